package util //nolint:revive // package name util hosts shared formatting helpers used by reports

import "time"

// FormatAuditDuration formats the elapsed time between start and end for display.
// Returns "-" when either bound is missing or the span is not positive, and truncates
// to milliseconds below one second and to tenths of a second above.
func FormatAuditDuration(start, end time.Time) string {
	if start.IsZero() || end.IsZero() {
		return "-"
	}
	d := end.Sub(start)
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return d.String()
	case d < time.Second:
		return d.Truncate(time.Millisecond).String()
	default:
		return d.Truncate(100 * time.Millisecond).String()
	}
}

package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatAuditDuration(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		end  time.Time
		want string
	}{
		{name: "missing end", want: "-"},
		{name: "negative span", end: start.Add(-time.Second), want: "-"},
		{name: "sub millisecond", end: start.Add(500 * time.Microsecond), want: "500µs"},
		{name: "milliseconds", end: start.Add(1234567 * time.Microsecond / 10), want: "123ms"},
		{name: "seconds", end: start.Add(12345 * time.Millisecond), want: "12.3s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAuditDuration(start, tt.end))
		})
	}
}

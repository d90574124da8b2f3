// Package notify holds the alert payload shared by the Slack and PagerDuty sinks.
package notify

import (
	"context"
	"time"
)

// Severities understood by both sinks. PagerDuty accepts them verbatim.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// AuditFailurePayload describes an audit that failed outright (critical) or completed with
// degraded findings (warning).
type AuditFailurePayload struct {
	JobID     string
	TargetURL string
	Domain    string
	ErrorCode string
	Error     string
	// ErrorClass is the metrics tag for the failure.
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Outcome is the verb sinks put in their headline.
func (p AuditFailurePayload) Outcome() string {
	if p.Severity == SeverityWarning {
		return "degraded"
	}
	return "failed"
}

type Sink interface {
	SendAuditFailure(ctx context.Context, payload AuditFailurePayload) error
}

// SinkFunc lets a plain function act as a Sink.
type SinkFunc func(ctx context.Context, payload AuditFailurePayload) error

func (f SinkFunc) SendAuditFailure(ctx context.Context, payload AuditFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}

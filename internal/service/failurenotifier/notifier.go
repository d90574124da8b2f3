// Package failurenotifier turns finished audits that need attention into alerts and fans
// them out to Slack, PagerDuty or any other notify.Sink.
package failurenotifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/target/mmk-site-audit/internal/core"
	"github.com/target/mmk-site-audit/internal/domain/model"
	"github.com/target/mmk-site-audit/internal/observability/notify"
	"github.com/target/mmk-site-audit/internal/observability/statsd"
)

// Destination is a named alert sink.
type Destination struct {
	Name string
	Sink notify.Sink
}

type Options struct {
	Logger       *slog.Logger
	Destinations []Destination
	Metrics      statsd.Sink
	// Cooldown is the minimum gap between alerts for the same domain. Zero alerts every time.
	Cooldown time.Duration
	// NotifyDegraded raises warnings for completed audits with degraded findings.
	NotifyDegraded bool
	Now            func() time.Time
}

// Service is registered as an AuditRecorder and alerts on audits that need a human.
type Service struct {
	logger         *slog.Logger
	destinations   []Destination
	metrics        statsd.Sink
	cooldown       time.Duration
	notifyDegraded bool
	now            func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

var _ core.AuditRecorder = (*Service)(nil)

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "failure_notifier")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	dests := make([]Destination, 0, len(opts.Destinations))
	for i, d := range opts.Destinations {
		if d.Sink == nil {
			continue
		}
		if d.Name == "" {
			d.Name = fmt.Sprintf("sink-%d", i)
		}
		dests = append(dests, d)
	}

	return &Service{
		logger:         logger,
		destinations:   dests,
		metrics:        opts.Metrics,
		cooldown:       max(opts.Cooldown, 0),
		notifyDegraded: opts.NotifyDegraded,
		now:            now,
		lastSent:       make(map[string]time.Time),
	}
}

// Enabled reports whether any destination is configured.
func (s *Service) Enabled() bool {
	return len(s.destinations) > 0
}

// RecordAudit alerts on failed audits, and on degraded completions when enabled. Jobs failed
// by process shutdown never alert. Delivery errors are logged, not returned.
func (s *Service) RecordAudit(ctx context.Context, job *model.AuditJob) error {
	payload, ok := s.alertFor(job)
	if !ok {
		return nil
	}
	if !s.claim(payload.Domain) {
		s.logger.DebugContext(ctx, "alert suppressed by cooldown", "job_id", job.ID, "domain", payload.Domain)
		s.count("notify.suppressed", map[string]string{"severity": payload.Severity})
		return nil
	}
	s.Dispatch(ctx, payload)
	return nil
}

func (s *Service) alertFor(job *model.AuditJob) (notify.AuditFailurePayload, bool) {
	if job == nil {
		return notify.AuditFailurePayload{}, false
	}

	payload := notify.AuditFailurePayload{
		JobID:      job.ID,
		TargetURL:  job.TargetURL,
		Domain:     model.TargetHost(job.TargetURL),
		OccurredAt: s.now().UTC(),
	}
	if job.CompletedAt != nil {
		payload.OccurredAt = job.CompletedAt.UTC()
	}

	switch {
	case job.Status == model.JobStatusFailed:
		if job.Error != nil && job.Error.Code == model.JobErrorShutdown {
			return payload, false
		}
		payload.Severity = notify.SeverityCritical
		if job.Error != nil {
			payload.ErrorCode = job.Error.Code
			payload.ErrorClass = job.Error.Code
			payload.Error = job.Error.Reason
		}
		return payload, true

	case job.Status == model.JobStatusCompleted && s.notifyDegraded && job.Result.Degraded():
		checks := degradedChecks(job.Result)
		payload.Severity = notify.SeverityWarning
		payload.ErrorCode = "degraded"
		payload.ErrorClass = "degraded"
		payload.Error = "audit completed without: " + strings.Join(checks, ", ")
		payload.Metadata = map[string]string{"degraded_checks": strings.Join(checks, ",")}
		return payload, true
	}
	return payload, false
}

func degradedChecks(result *model.AuditResult) []string {
	var checks []string
	for _, f := range result.Findings {
		if f.Degraded {
			checks = append(checks, f.Check)
		}
	}
	return checks
}

// claim reserves the alert slot for domain, returning false while it is cooling down.
func (s *Service) claim(domain string) bool {
	if s.cooldown == 0 || domain == "" {
		return true
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSent[domain]; ok && now.Sub(last) < s.cooldown {
		return false
	}
	for d, at := range s.lastSent {
		if now.Sub(at) >= s.cooldown {
			delete(s.lastSent, d)
		}
	}
	s.lastSent[domain] = now
	return true
}

// Dispatch sends payload to every destination concurrently and waits for all of them.
func (s *Service) Dispatch(ctx context.Context, payload notify.AuditFailurePayload) {
	if payload.Severity == "" {
		payload.Severity = notify.SeverityCritical
	}

	var wg sync.WaitGroup
	wg.Add(len(s.destinations))
	for _, d := range s.destinations {
		go func() {
			defer wg.Done()
			result := "sent"
			if err := d.Sink.SendAuditFailure(ctx, payload); err != nil {
				result = "error"
				s.logger.ErrorContext(ctx, "alert delivery failed",
					"sink", d.Name,
					"job_id", payload.JobID,
					"domain", payload.Domain,
					"error", err,
				)
			}
			s.count("notify.delivery", map[string]string{"sink": d.Name, "result": result, "severity": payload.Severity})
		}()
	}
	wg.Wait()
}

func (s *Service) count(name string, tags map[string]string) {
	if s.metrics != nil {
		s.metrics.Count(name, 1, tags)
	}
}

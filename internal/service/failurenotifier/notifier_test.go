package failurenotifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-site-audit/internal/domain/model"
	"github.com/target/mmk-site-audit/internal/observability/notify"
	"github.com/target/mmk-site-audit/internal/observability/statsd"
	"github.com/target/mmk-site-audit/internal/testutil"
)

type captureSink struct {
	mu       sync.Mutex
	received []notify.AuditFailurePayload
}

func (c *captureSink) SendAuditFailure(_ context.Context, payload notify.AuditFailurePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = append(c.received, payload)
	return nil
}

func (c *captureSink) payloads() []notify.AuditFailurePayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.AuditFailurePayload(nil), c.received...)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func degradedJob(id string) *model.AuditJob {
	job := testutil.NewAuditJob(id).Completed(70).Build()
	job.Result.Findings = []model.Finding{
		{Category: model.CategoryTechnical, Check: "robots_txt", Status: model.FindingGood},
		model.DegradedFinding(model.CategoryPerformance, "pagespeed", "timed out after 60s"),
		model.DegradedFinding(model.CategorySecurity, "security_headers", "connection reset"),
	}
	return job
}

func TestNewService(t *testing.T) {
	t.Run("nil sinks are dropped", func(t *testing.T) {
		svc := NewService(Options{Destinations: []Destination{{Name: "nil"}}})
		assert.False(t, svc.Enabled())
	})

	t.Run("unnamed sinks get a positional name", func(t *testing.T) {
		svc := NewService(Options{Destinations: []Destination{{Sink: &captureSink{}}}})
		require.True(t, svc.Enabled())
		assert.Equal(t, "sink-0", svc.destinations[0].Name)
	})
}

func TestDispatch(t *testing.T) {
	failing := notify.SinkFunc(func(context.Context, notify.AuditFailurePayload) error {
		return errors.New("boom")
	})
	sink := &captureSink{}
	rec := &statsd.Recorder{}
	svc := NewService(Options{
		Metrics: rec,
		Destinations: []Destination{
			{Name: "fail", Sink: failing},
			{Name: "capture", Sink: sink},
		},
	})

	svc.Dispatch(context.Background(), notify.AuditFailurePayload{JobID: "123"})

	got := sink.payloads()
	require.Len(t, got, 1)
	assert.Equal(t, notify.SeverityCritical, got[0].Severity)

	results := map[string]string{}
	for _, p := range rec.Find("c", "notify.delivery") {
		results[p.Tags["sink"]] = p.Tags["result"]
	}
	assert.Equal(t, map[string]string{"fail": "error", "capture": "sent"}, results)
}

func TestRecordAudit(t *testing.T) {
	tests := []struct {
		name           string
		job            *model.AuditJob
		notifyDegraded bool
		wantSeverity   string
	}{
		{
			name:         "failed audit is critical",
			job:          testutil.NewAuditJob("job-1").Failed(model.JobErrorFetchFailed, "connection refused").Build(),
			wantSeverity: notify.SeverityCritical,
		},
		{
			name: "completed audit is ignored",
			job:  testutil.NewAuditJob("job-2").Completed(80).Build(),
		},
		{
			name: "shutdown failure is ignored",
			job:  testutil.NewAuditJob("job-3").Failed(model.JobErrorShutdown, "service shutting down").Build(),
		},
		{
			name: "degraded completion is ignored by default",
			job:  degradedJob("job-4"),
		},
		{
			name:           "degraded completion is a warning when enabled",
			job:            degradedJob("job-5"),
			notifyDegraded: true,
			wantSeverity:   notify.SeverityWarning,
		},
		{
			name:           "clean completion is ignored even when degraded alerts are on",
			job:            testutil.NewAuditJob("job-6").Completed(95).Build(),
			notifyDegraded: true,
		},
		{
			name: "nil job is ignored",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &captureSink{}
			svc := NewService(Options{
				Destinations:   []Destination{{Name: "capture", Sink: sink}},
				NotifyDegraded: tt.notifyDegraded,
			})

			require.NoError(t, svc.RecordAudit(context.Background(), tt.job))
			got := sink.payloads()
			if tt.wantSeverity == "" {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantSeverity, got[0].Severity)
			assert.Equal(t, tt.job.ID, got[0].JobID)
			assert.Equal(t, "example.com", got[0].Domain)
			assert.Equal(t, tt.job.CompletedAt.UTC(), got[0].OccurredAt)
		})
	}
}

func TestRecordAuditPayloads(t *testing.T) {
	t.Run("failure carries the job error", func(t *testing.T) {
		sink := &captureSink{}
		svc := NewService(Options{Destinations: []Destination{{Name: "capture", Sink: sink}}})

		job := testutil.NewAuditJob("job-1").Failed(model.JobErrorFetchFailed, "connection refused").Build()
		require.NoError(t, svc.RecordAudit(context.Background(), job))

		got := sink.payloads()
		require.Len(t, got, 1)
		assert.Equal(t, model.JobErrorFetchFailed, got[0].ErrorCode)
		assert.Equal(t, "connection refused", got[0].Error)
		assert.Equal(t, "https://example.com/", got[0].TargetURL)
	})

	t.Run("degraded lists the missing checks", func(t *testing.T) {
		sink := &captureSink{}
		svc := NewService(Options{
			Destinations:   []Destination{{Name: "capture", Sink: sink}},
			NotifyDegraded: true,
		})

		require.NoError(t, svc.RecordAudit(context.Background(), degradedJob("job-2")))

		got := sink.payloads()
		require.Len(t, got, 1)
		assert.Equal(t, "degraded", got[0].ErrorCode)
		assert.Equal(t, "audit completed without: pagespeed, security_headers", got[0].Error)
		assert.Equal(t, "pagespeed,security_headers", got[0].Metadata["degraded_checks"])
	})
}

func TestRecordAuditCooldown(t *testing.T) {
	clock := &fakeClock{t: testutil.TestTime()}
	sink := &captureSink{}
	rec := &statsd.Recorder{}
	svc := NewService(Options{
		Destinations: []Destination{{Name: "capture", Sink: sink}},
		Metrics:      rec,
		Cooldown:     10 * time.Minute,
		Now:          clock.now,
	})
	ctx := context.Background()
	fail := func(id, target string) *model.AuditJob {
		return testutil.NewAuditJob(id).WithTarget(target).Failed(model.JobErrorFetchFailed, "timeout").Build()
	}

	require.NoError(t, svc.RecordAudit(ctx, fail("a1", "https://example.com/")))
	require.NoError(t, svc.RecordAudit(ctx, fail("a2", "https://example.com/pricing")))
	require.NoError(t, svc.RecordAudit(ctx, fail("b1", "https://other.example.org/")))
	assert.Len(t, sink.payloads(), 2, "second alert for example.com is suppressed")
	assert.Len(t, rec.Find("c", "notify.suppressed"), 1)

	clock.t = clock.t.Add(10 * time.Minute)
	require.NoError(t, svc.RecordAudit(ctx, fail("a3", "https://example.com/")))

	got := sink.payloads()
	require.Len(t, got, 3)
	assert.Equal(t, "a3", got[2].JobID)
}

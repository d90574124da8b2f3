package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobStatusQueued, JobStatusRunning, true},
		{JobStatusQueued, JobStatusFailed, true},
		{JobStatusQueued, JobStatusCompleted, false},
		{JobStatusRunning, JobStatusCompleted, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusQueued, false},
		{JobStatusCompleted, JobStatusRunning, false},
		{JobStatusCompleted, JobStatusFailed, false},
		{JobStatusFailed, JobStatusRunning, false},
		{JobStatusFailed, JobStatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, JobStatusQueued.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatus("paused").Valid())
}

func TestAuditJob_CloneIsIndependent(t *testing.T) {
	started := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	job := &AuditJob{
		ID:        "job-1",
		TargetURL: "https://example.com/",
		APIKey:    "secret",
		Status:    JobStatusRunning,
		StartedAt: &started,
	}

	cp := job.Clone()
	*cp.StartedAt = started.Add(time.Hour)
	cp.Status = JobStatusFailed

	assert.Equal(t, started, *job.StartedAt)
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.Nil(t, (*AuditJob)(nil).Clone())
}

func TestAuditJob_JSONOmitsAPIKey(t *testing.T) {
	job := &AuditJob{ID: "job-1", TargetURL: "https://example.com/", APIKey: "secret", Status: JobStatusQueued}
	raw, err := json.Marshal(job)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
	assert.True(t, job.HasAPIKey())
}

func TestNormalizeTargetURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare host defaults to https", in: "example.com", want: "https://example.com/"},
		{name: "case and default port", in: "HTTP://Example.COM:80/Path?q=1#frag", want: "http://example.com/Path?q=1"},
		{name: "non default port kept", in: "https://example.com:8443", want: "https://example.com:8443/"},
		{name: "ipv6 default port", in: "https://[::1]:443/", want: "https://[::1]/"},
		{name: "trims whitespace", in: "  https://example.com/a  ", want: "https://example.com/a"},
		{name: "empty", in: "   ", wantErr: true},
		{name: "unsupported scheme", in: "ftp://example.com", wantErr: true},
		{name: "missing host", in: "http://", wantErr: true},
		{name: "spaces in host", in: "not a url", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTargetURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSortFindings(t *testing.T) {
	findings := []Finding{
		{Category: CategoryPerformance, Check: "pagespeed_mobile"},
		{Category: CategoryTechnical, Check: "robots_txt"},
		{Category: CategoryOnPage, Check: "title_tags"},
		{Category: CategoryTechnical, Check: "canonical_tags"},
	}

	SortFindings(findings)

	got := make([]string, len(findings))
	for i, f := range findings {
		got[i] = f.Check
	}
	assert.Equal(t, []string{"canonical_tags", "robots_txt", "title_tags", "pagespeed_mobile"}, got)
}

func TestDegradedFinding(t *testing.T) {
	f := DegradedFinding(CategorySecurity, "security_headers", "timed out after 60s")
	assert.Equal(t, FindingCritical, f.Status)
	assert.True(t, f.Degraded)
	assert.Contains(t, f.Recommendation, "timed out after 60s")
	assert.Equal(t, "timed out after 60s", f.Metrics["error"])
}

func TestNewAuditRun(t *testing.T) {
	done := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("completed", func(t *testing.T) {
		job := &AuditJob{
			ID:          "job-1",
			TargetURL:   "https://example.com/",
			Status:      JobStatusCompleted,
			CompletedAt: &done,
			Result: &AuditResult{
				OverallScore: 87.5,
				Categories: map[Category]CategoryScore{
					CategoryTechnical: {Category: CategoryTechnical, Score: 90, Status: CategoryStatusGood},
				},
			},
		}
		run, err := NewAuditRun(job)
		require.NoError(t, err)
		require.NotNil(t, run.OverallScore)
		assert.InDelta(t, 87.5, *run.OverallScore, 0.001)
		assert.Contains(t, string(run.CategoryScores), `"technical"`)
		assert.Nil(t, run.ErrorReason)
	})

	t.Run("failed", func(t *testing.T) {
		job := &AuditJob{
			ID:          "job-2",
			Status:      JobStatusFailed,
			CompletedAt: &done,
			Error:       &JobError{Code: JobErrorFetchFailed, Reason: "connection refused"},
		}
		run, err := NewAuditRun(job)
		require.NoError(t, err)
		assert.Nil(t, run.OverallScore)
		require.NotNil(t, run.ErrorReason)
		assert.Equal(t, "connection refused", *run.ErrorReason)
		assert.JSONEq(t, `{}`, string(run.CategoryScores))
	})
}

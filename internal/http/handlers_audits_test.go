package httpx

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-site-audit/internal/domain/model"
	apperrors "github.com/target/mmk-site-audit/internal/errors"
	"github.com/target/mmk-site-audit/internal/service"
	"github.com/target/mmk-site-audit/internal/testutil"
)

// fakeAuditService serves fixed jobs keyed by id.
type fakeAuditService struct {
	jobs      map[string]*model.AuditJob
	submitted []service.SubmitAuditRequest
	submitErr error
	listOpts  model.JobListOptions
	waited    []string
	// waitDone replaces the job when Wait is called, simulating completion.
	waitDone *model.AuditJob
}

func newFakeAuditService(jobs ...*model.AuditJob) *fakeAuditService {
	f := &fakeAuditService{jobs: make(map[string]*model.AuditJob)}
	for _, j := range jobs {
		f.jobs[j.ID] = j
	}
	return f
}

func (f *fakeAuditService) SubmitAudit(_ context.Context, req service.SubmitAuditRequest) (*service.SubmitAuditResponse, error) {
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &service.SubmitAuditResponse{JobID: "job-new", Status: model.JobStatusRunning}, nil
}

func (f *fakeAuditService) GetJob(_ context.Context, id string) (*model.AuditJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, apperrors.NotFoundf("audit %s not found", id)
	}
	return job, nil
}

func (f *fakeAuditService) GetStatus(ctx context.Context, id string) (*model.AuditStatusResponse, error) {
	job, err := f.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return job.StatusResponse(), nil
}

func (f *fakeAuditService) GetResult(ctx context.Context, id string) (*model.AuditResult, error) {
	job, err := f.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, apperrors.NotReadyf("audit %s is %s", id, job.Status)
	}
	return job.Result, nil
}

func (f *fakeAuditService) ListJobs(_ context.Context, opts model.JobListOptions) ([]*model.AuditJob, error) {
	f.listOpts = opts
	out := make([]*model.AuditJob, 0, len(f.jobs))
	for _, j := range f.jobs {
		if opts.Status != nil && j.Status != *opts.Status {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (f *fakeAuditService) Stats(context.Context) (*service.ServiceStats, error) {
	return &service.ServiceStats{Slots: 5, Running: 1, Jobs: model.JobStats{Running: 1}}, nil
}

func (f *fakeAuditService) Wait(ctx context.Context, id string) (*model.AuditJob, error) {
	f.waited = append(f.waited, id)
	if f.waitDone != nil {
		f.jobs[id] = f.waitDone
		return f.waitDone, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func completedJob(id string) *model.AuditJob {
	job := testutil.NewAuditJob(id).Completed(88).Build()
	job.APIKey = "secret-key"
	job.Result.Findings = []model.Finding{
		{Category: model.CategoryTechnical, Check: "robots_txt", Status: model.FindingGood, Recommendation: "robots.txt is reachable"},
		{Category: model.CategorySecurity, Check: "security_headers", Status: model.FindingWarning, Recommendation: "Add HSTS, CSP", Degraded: true},
	}
	return job
}

func serve(t *testing.T, svc AuditService, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(RouterServices{Audits: svc, MaxBodyBytes: 1024})
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestSubmitAudit(t *testing.T) {
	t.Run("accepts a url", func(t *testing.T) {
		svc := newFakeAuditService()
		rec := serve(t, svc, http.MethodPost, "/api/audits", `{"url":"example.com","api_key":"k"}`)

		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "/api/audits/job-new", rec.Header().Get("Location"))
		resp := decodeBody[service.SubmitAuditResponse](t, rec)
		assert.Equal(t, "job-new", resp.JobID)
		assert.Equal(t, model.JobStatusRunning, resp.Status)
		require.Len(t, svc.submitted, 1)
		assert.Equal(t, "k", svc.submitted[0].APIKey)
	})

	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "empty url", body: `{"url":"  "}`, wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
		{name: "unknown field", body: `{"url":"example.com","depth":3}`, wantCode: http.StatusBadRequest, wantErr: "invalid_json"},
		{name: "malformed json", body: `{"url":`, wantCode: http.StatusBadRequest, wantErr: "invalid_json"},
		{name: "oversized body", body: `{"url":"` + strings.Repeat("a", 2048) + `"}`, wantCode: http.StatusRequestEntityTooLarge, wantErr: "body_too_large"},
		{
			name:     "invalid target",
			body:     `{"url":"ftp://example.com"}`,
			err:      apperrors.InvalidTarget("ftp://example.com", "unsupported scheme"),
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_target",
		},
		{name: "shutting down", body: `{"url":"example.com"}`, err: service.ErrShuttingDown, wantCode: http.StatusServiceUnavailable, wantErr: "shutting_down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeAuditService()
			svc.submitErr = tt.err
			rec := serve(t, svc, http.MethodPost, "/api/audits", tt.body)

			assert.Equal(t, tt.wantCode, rec.Code)
			body := decodeBody[map[string]string](t, rec)
			assert.Equal(t, tt.wantErr, body["error"])
		})
	}
}

func TestGetAudit(t *testing.T) {
	svc := newFakeAuditService(completedJob("job-1"))

	t.Run("returns the job without its api key", func(t *testing.T) {
		rec := serve(t, svc, http.MethodGet, "/api/audits/job-1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret-key")
		job := decodeBody[model.AuditJob](t, rec)
		assert.Equal(t, "job-1", job.ID)
		require.NotNil(t, job.Result)
		assert.InDelta(t, 88, job.Result.OverallScore, 0.001)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := serve(t, svc, http.MethodGet, "/api/audits/nope", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeBody[map[string]string](t, rec)["error"])
	})
}

func TestAuditStatus(t *testing.T) {
	failed := testutil.NewAuditJob("job-2").Failed(model.JobErrorFetchFailed, "dns failure").Build()
	svc := newFakeAuditService(failed)

	rec := serve(t, svc, http.MethodGet, "/api/audits/job-2/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[model.AuditStatusResponse](t, rec)
	assert.Equal(t, model.JobStatusFailed, status.Status)
	require.NotNil(t, status.Error)
	assert.Equal(t, "dns failure", status.Error.Reason)
}

func TestAuditResult(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		svc := newFakeAuditService(completedJob("job-1"))
		rec := serve(t, svc, http.MethodGet, "/api/audits/job-1/result", "")
		require.Equal(t, http.StatusOK, rec.Code)
		result := decodeBody[model.AuditResult](t, rec)
		assert.Len(t, result.Findings, 2)
	})

	t.Run("not ready", func(t *testing.T) {
		svc := newFakeAuditService(testutil.NewAuditJob("job-3").Build())
		rec := serve(t, svc, http.MethodGet, "/api/audits/job-3/result", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "not_ready", decodeBody[map[string]string](t, rec)["error"])
		assert.Empty(t, svc.waited)
	})

	t.Run("waits for completion", func(t *testing.T) {
		svc := newFakeAuditService(testutil.NewAuditJob("job-4").Build())
		svc.waitDone = completedJob("job-4")
		rec := serve(t, svc, http.MethodGet, "/api/audits/job-4/result?wait=5", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"job-4"}, svc.waited)
	})

	t.Run("unknown id", func(t *testing.T) {
		svc := newFakeAuditService()
		rec := serve(t, svc, http.MethodGet, "/api/audits/missing/result", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListAudits(t *testing.T) {
	svc := newFakeAuditService(completedJob("job-1"), testutil.NewAuditJob("job-2").Build())

	t.Run("filters by status", func(t *testing.T) {
		rec := serve(t, svc, http.MethodGet, "/api/audits?status=completed&limit=10", "")
		require.Equal(t, http.StatusOK, rec.Code)
		rows := decodeBody[[]auditSummary](t, rec)
		require.Len(t, rows, 1)
		assert.Equal(t, "job-1", rows[0].JobID)
		require.NotNil(t, rows[0].OverallScore)
		assert.True(t, rows[0].Degraded)
		assert.Equal(t, 10, svc.listOpts.Limit)
	})

	t.Run("normalizes the url filter", func(t *testing.T) {
		rec := serve(t, svc, http.MethodGet, "/api/audits?url=Example.com&limit=100000", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://example.com/", svc.listOpts.TargetURL)
		assert.Equal(t, maxListLimit, svc.listOpts.Limit)
	})

	t.Run("rejects an unknown status", func(t *testing.T) {
		rec := serve(t, svc, http.MethodGet, "/api/audits?status=paused", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation", decodeBody[map[string]string](t, rec)["error"])
	})
}

func TestAuditStats(t *testing.T) {
	rec := serve(t, newFakeAuditService(), http.MethodGet, "/api/audits/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[service.ServiceStats](t, rec)
	assert.Equal(t, 5, stats.Slots)
	assert.Equal(t, 1, stats.Running)
}

func TestExportCSV(t *testing.T) {
	svc := newFakeAuditService(completedJob("job-1"), testutil.NewAuditJob("job-2").Build())

	t.Run("writes one row per finding", func(t *testing.T) {
		rec := serve(t, svc, http.MethodGet, "/api/audits/job-1/export.csv", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "audit-job-1.csv")

		rows, err := csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, []string{"category", "check", "status", "recommendation", "degraded"}, rows[0])
		assert.Equal(t, []string{"security", "security_headers", "warning", "Add HSTS, CSP", "true"}, rows[2])
	})

	t.Run("not ready", func(t *testing.T) {
		rec := serve(t, svc, http.MethodGet, "/api/audits/job-2/export.csv", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

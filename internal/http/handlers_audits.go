package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/mmk-site-audit/config"
	"github.com/target/mmk-site-audit/internal/domain/model"
	apperrors "github.com/target/mmk-site-audit/internal/errors"
	"github.com/target/mmk-site-audit/internal/report"
	"github.com/target/mmk-site-audit/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	maxWaitSeconds = int(config.LongPollLimit / time.Second)
)

// AuditService is the subset of service.AuditService the handlers use.
type AuditService interface {
	SubmitAudit(ctx context.Context, req service.SubmitAuditRequest) (*service.SubmitAuditResponse, error)
	GetJob(ctx context.Context, id string) (*model.AuditJob, error)
	GetStatus(ctx context.Context, id string) (*model.AuditStatusResponse, error)
	GetResult(ctx context.Context, id string) (*model.AuditResult, error)
	ListJobs(ctx context.Context, opts model.JobListOptions) ([]*model.AuditJob, error)
	Stats(ctx context.Context) (*service.ServiceStats, error)
	Wait(ctx context.Context, id string) (*model.AuditJob, error)
}

var _ AuditService = (*service.AuditService)(nil)

// AuditHandlers provides HTTP handlers for audit operations.
type AuditHandlers struct {
	Svc AuditService
}

// auditSummary is one row of the listing endpoint.
type auditSummary struct {
	JobID        string          `json:"job_id"`
	TargetURL    string          `json:"target_url"`
	Status       model.JobStatus `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	OverallScore *float64        `json:"overall_score,omitempty"`
	Degraded     bool            `json:"degraded,omitempty"`
	Error        *model.JobError `json:"error,omitempty"`
}

func summarize(job *model.AuditJob) auditSummary {
	s := auditSummary{
		JobID:       job.ID,
		TargetURL:   job.TargetURL,
		Status:      job.Status,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
		Error:       job.Error,
	}
	if job.Result != nil {
		score := job.Result.OverallScore
		s.OverallScore = &score
		s.Degraded = job.Result.Degraded()
	}
	return s
}

// Submit handles POST /api/audits.
func (h *AuditHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitAuditRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_request", Err: errors.New("url is required")})
		return
	}

	resp, err := h.Svc.SubmitAudit(r.Context(), req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	w.Header().Set("Location", "/api/audits/"+resp.JobID)
	WriteJSON(w, http.StatusAccepted, resp)
}

// List handles GET /api/audits.
func (h *AuditHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOptions(r)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	jobs, err := h.Svc.ListJobs(r.Context(), opts)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	out := make([]auditSummary, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, summarize(job))
	}
	WriteJSON(w, http.StatusOK, out)
}

func parseListOptions(r *http.Request) (model.JobListOptions, error) {
	page := parsePageWindow(r, defaultListLimit, maxListLimit)
	opts := model.JobListOptions{Limit: page.Limit, Offset: page.Offset}

	q := r.URL.Query()
	if raw := q.Get("status"); raw != "" {
		status := model.JobStatus(strings.ToLower(raw))
		if !status.Valid() {
			return opts, apperrors.ValidationField("status", fmt.Sprintf("unknown status %q", raw))
		}
		opts.Status = &status
	}
	if raw := q.Get("url"); raw != "" {
		target, err := model.NormalizeTargetURL(raw)
		if err != nil {
			return opts, apperrors.InvalidTarget(raw, err.Error())
		}
		opts.TargetURL = target
	}
	return opts, nil
}

// Get handles GET /api/audits/{id}.
func (h *AuditHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	job, err := h.Svc.GetJob(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// Status handles GET /api/audits/{id}/status.
func (h *AuditHandlers) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	status, err := h.Svc.GetStatus(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// Result handles GET /api/audits/{id}/result. With ?wait=N it long-polls up to N seconds
// for the job to finish before answering.
func (h *AuditHandlers) Result(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if wait := min(parseIntQuery(r, "wait", 0), maxWaitSeconds); wait > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), time.Duration(wait)*time.Second)
		_, err := h.Svc.Wait(ctx, id)
		cancel()
		// a timed out wait falls through to the not_ready answer
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			WriteAppError(w, err)
			return
		}
	}

	result, err := h.Svc.GetResult(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// Stats handles GET /api/audits/stats.
func (h *AuditHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// ExportCSV handles GET /api/audits/{id}/export.csv.
func (h *AuditHandlers) ExportCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	result, err := h.Svc.GetResult(r.Context(), id)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-"+id+".csv"))
	w.WriteHeader(http.StatusOK)
	if err := report.WriteCSV(w, result); err != nil {
		// headers are already sent; nothing useful left to report to the client
		return
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("audit id is required")})
		return "", false
	}
	return id, true
}

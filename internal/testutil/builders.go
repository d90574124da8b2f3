package testutil

import (
	"net/http"
	"time"

	"github.com/target/mmk-site-audit/internal/domain/model"
)

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
}

// PageBuilder provides a fluent interface for building PageContext values for check tests.
type PageBuilder struct {
	page *model.PageContext
}

// NewPage creates a PageBuilder for an HTTPS page with a 200 response.
func NewPage(url string) *PageBuilder {
	return &PageBuilder{
		page: &model.PageContext{
			URL:        url,
			FinalURL:   url,
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
			TLS:        &model.PageTLS{Version: "TLS 1.3", CertExpiresAt: TestTime().AddDate(0, 6, 0)},
			Timing:     model.PageTiming{TTFB: 120 * time.Millisecond, Total: 400 * time.Millisecond},
			FetchedAt:  TestTime(),
		},
	}
}

// WithHTML sets the page body.
func (b *PageBuilder) WithHTML(body string) *PageBuilder {
	b.page.Body = []byte(body)
	return b
}

// WithHeader sets a response header.
func (b *PageBuilder) WithHeader(key, value string) *PageBuilder {
	b.page.Header.Set(key, value)
	return b
}

// WithoutTLS marks the page as fetched over plain HTTP.
func (b *PageBuilder) WithoutTLS() *PageBuilder {
	b.page.TLS = nil
	return b
}

// WithTiming sets response timings.
func (b *PageBuilder) WithTiming(ttfb, total time.Duration) *PageBuilder {
	b.page.Timing = model.PageTiming{TTFB: ttfb, Total: total}
	return b
}

// Build returns the page.
func (b *PageBuilder) Build() *model.PageContext {
	return b.page
}

// AuditJobBuilder builds AuditJob fixtures.
type AuditJobBuilder struct {
	job *model.AuditJob
}

// NewAuditJob creates a queued job fixture.
func NewAuditJob(id string) *AuditJobBuilder {
	return &AuditJobBuilder{job: &model.AuditJob{
		ID:        id,
		TargetURL: "https://example.com/",
		Status:    model.JobStatusQueued,
		CreatedAt: TestTime(),
	}}
}

// WithTarget sets the target URL.
func (b *AuditJobBuilder) WithTarget(target string) *AuditJobBuilder {
	b.job.TargetURL = target
	return b
}

// Completed marks the job completed with the given overall score.
func (b *AuditJobBuilder) Completed(score float64) *AuditJobBuilder {
	done := b.job.CreatedAt.Add(30 * time.Second)
	b.job.Status = model.JobStatusCompleted
	b.job.StartedAt = TimePtr(b.job.CreatedAt)
	b.job.CompletedAt = &done
	b.job.Error = nil
	b.job.Result = &model.AuditResult{
		TargetURL:    b.job.TargetURL,
		Domain:       model.TargetHost(b.job.TargetURL),
		StartedAt:    b.job.CreatedAt,
		CompletedAt:  done,
		OverallScore: score,
		Categories: map[model.Category]model.CategoryScore{
			model.CategoryTechnical: {Category: model.CategoryTechnical, Score: 90, Status: model.CategoryStatusGood, Weight: 1},
		},
	}
	return b
}

// Failed marks the job failed.
func (b *AuditJobBuilder) Failed(code, reason string) *AuditJobBuilder {
	done := b.job.CreatedAt.Add(5 * time.Second)
	b.job.Status = model.JobStatusFailed
	b.job.CompletedAt = &done
	b.job.Result = nil
	b.job.Error = &model.JobError{Code: code, Reason: reason}
	return b
}

// Build returns the job.
func (b *AuditJobBuilder) Build() *model.AuditJob {
	return b.job
}

// StringPtr returns a pointer to the given string value.
func StringPtr(s string) *string {
	return &s
}

// TimePtr returns a pointer to the given time value.
func TimePtr(t time.Time) *time.Time {
	return &t
}

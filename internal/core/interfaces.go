package core

import (
	"context"
	"time"

	"github.com/target/mmk-site-audit/internal/domain/model"
)

// This file contains the port definitions (hexagonal architecture) the audit service depends on.
// Service implementations should depend on these interfaces, not concrete implementations.

// JobStore owns audit job records and enforces the lifecycle transition table.
type JobStore interface {
	Create(ctx context.Context, req model.CreateAuditRequest) (*model.AuditJob, error)
	Get(ctx context.Context, id string) (*model.AuditJob, error)
	Transition(ctx context.Context, id string, to model.JobStatus, params model.TransitionParams) (*model.AuditJob, error)
	List(ctx context.Context, opts model.JobListOptions) ([]*model.AuditJob, error)
	Prune(ctx context.Context, before time.Time) (int, error)
	Stats(ctx context.Context) (*model.JobStats, error)
}

// ResultCache maps (target URL, API key) to the id of a recently completed job.
type ResultCache interface {
	Lookup(targetURL, apiKey string) (string, bool)
	Record(jobID, targetURL, apiKey string, completedAt time.Time)
	Remove(jobID string) bool
	Purge() int
}

// PageFetcher retrieves the target page. Its failure is the only fatal audit error.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (*model.PageContext, error)
}

// Check is a single check collaborator producing one finding for its category.
type Check interface {
	Name() string
	Category() model.Category
	Run(ctx context.Context, page *model.PageContext) (model.Finding, error)
}

// CheckRegistry exposes the fixed set of checks fanned out for every audit.
type CheckRegistry interface {
	Checks() []Check
}

// PerformanceClient fetches external performance insights for one device strategy.
type PerformanceClient interface {
	FetchInsights(
		ctx context.Context,
		url, apiKey string,
		strategy model.Strategy,
	) (*model.PerformanceMetrics, error)
}

// AuditRecorder observes jobs that reached a terminal state. Recorders are best-effort.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, job *model.AuditJob) error
}

// AuditHistoryRepository persists terminal audit runs.
type AuditHistoryRepository interface {
	Insert(ctx context.Context, run *model.AuditRun) error
	List(ctx context.Context, opts model.AuditRunListOptions) ([]*model.AuditRun, error)
}

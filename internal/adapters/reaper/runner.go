// Package reaper runs retention cleanup for the audit service, either as a long-lived loop
// next to the HTTP server or as a single pass from the admin CLI.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-site-audit/config"
	"github.com/target/mmk-site-audit/internal/observability/statsd"
	"github.com/target/mmk-site-audit/internal/service"
)

// RunnerOptions holds the dependencies for creating a Runner. At least one of Jobs and
// History must be set.
type RunnerOptions struct {
	// Jobs prunes the in-memory store. Only the serving process has one.
	Jobs service.JobPruner
	// History prunes audit_runs when Postgres is enabled.
	History service.HistoryPruner

	Config  config.ReaperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
	Now     func() time.Time
}

// Runner wraps a ReaperService with lifecycle logging.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
	scope  string
}

func NewRunner(opts RunnerOptions) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	svc, err := service.NewReaperService(service.ReaperServiceOptions{
		Jobs:         opts.Jobs,
		History:      opts.History,
		Config:       opts.Config,
		Logger:       logger,
		Metrics:      opts.Metrics,
		TimeProvider: opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: svc, logger: logger, scope: scopeOf(opts)}, nil
}

func scopeOf(opts RunnerOptions) string {
	switch {
	case opts.Jobs != nil && opts.History != nil:
		return "jobs+history"
	case opts.History != nil:
		return "history"
	default:
		return "jobs"
	}
}

// Run prunes on every interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner", "scope", r.scope)
	err := r.reaper.Run(ctx)
	r.logger.InfoContext(ctx, "reaper runner stopped", "scope", r.scope)
	return err
}

// RunOnce performs a single cleanup pass.
func (r *Runner) RunOnce(ctx context.Context) error {
	start := time.Now()
	if err := r.reaper.RunOnce(ctx); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "reaper pass complete", "scope", r.scope, "elapsed", time.Since(start))
	return nil
}

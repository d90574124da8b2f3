package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-site-audit/config"
	obserrors "github.com/target/mmk-site-audit/internal/observability/errors"
	"github.com/target/mmk-site-audit/internal/observability/metrics"
	"github.com/target/mmk-site-audit/internal/observability/statsd"
)

// JobPruner drops terminal in-memory jobs and expired cache entries.
type JobPruner interface {
	PruneExpired(ctx context.Context, before time.Time) (*PruneResult, error)
}

// HistoryPruner deletes persisted audit runs in batches.
type HistoryPruner interface {
	DeleteBefore(ctx context.Context, before time.Time, batchSize int) (int64, error)
}

type ReaperServiceOptions struct {
	Jobs         JobPruner // nil in processes that hold no jobs
	History      HistoryPruner
	Config       config.ReaperConfig
	Logger       *slog.Logger
	Metrics      statsd.Sink
	TimeProvider func() time.Time
}

// ReaperService enforces job and history retention, either once or on a jittered interval.
type ReaperService struct {
	tasks    []retentionTask
	interval time.Duration
	logger   *slog.Logger
	metrics  statsd.Sink
}

// retentionTask is one independent cleanup. A failing task does not stop the others.
type retentionTask struct {
	name      string // metric operation tag
	retention time.Duration
	run       func(ctx context.Context) (int64, error)
}

type taskResult struct {
	name  string
	count int64
	err   error
}

func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Jobs == nil && opts.History == nil {
		return nil, errors.New("a JobPruner or HistoryPruner is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "reaper_service")

	now := opts.TimeProvider
	if now == nil {
		now = time.Now
	}
	cfg := opts.Config

	s := &ReaperService{interval: cfg.Interval, logger: logger, metrics: opts.Metrics}
	if jobs := opts.Jobs; jobs != nil {
		s.tasks = append(s.tasks, retentionTask{
			name:      "prune_jobs",
			retention: cfg.JobRetention,
			run: func(ctx context.Context) (int64, error) {
				if err := ctx.Err(); err != nil {
					return 0, err
				}
				res, err := jobs.PruneExpired(ctx, now().Add(-cfg.JobRetention))
				if err != nil {
					return 0, err
				}
				if res.CacheEntries > 0 {
					logger.DebugContext(ctx, "expired cache entries dropped", "count", res.CacheEntries)
				}
				return int64(res.Jobs), nil
			},
		})
	}
	if history := opts.History; history != nil {
		s.tasks = append(s.tasks, retentionTask{
			name:      "delete_history",
			retention: cfg.HistoryRetention,
			run: func(ctx context.Context) (int64, error) {
				return drainBatches(ctx, func(ctx context.Context) (int64, error) {
					return history.DeleteBefore(ctx, now().Add(-cfg.HistoryRetention), cfg.BatchSize)
				})
			},
		})
	}

	logger.Debug("reaper configured",
		"interval", cfg.Interval,
		"job_retention", cfg.JobRetention,
		"history_retention", cfg.HistoryRetention,
		"tasks", len(s.tasks),
	)
	return s, nil
}

// drainBatches repeats batch until it removes nothing, returning the running total.
func drainBatches(ctx context.Context, batch func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		n, err := batch(ctx)
		total += n
		if err != nil || n == 0 {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

// Run sleeps a random fraction of the interval, prunes once, then prunes on every tick. It
// returns nil when ctx is cancelled and ctx.Err() when its deadline passes.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("reaper interval must be positive, got %v", s.interval)
	}
	s.logger.InfoContext(ctx, "reaper started", "interval", s.interval)

	select {
	case <-time.After(jitter(s.interval / 10)):
	case <-ctx.Done():
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.logPassError(ctx, s.RunOnce(ctx))

		select {
		case <-ticker.C:
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper stopped", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
	}
}

// jitter returns a random duration in [0, limit). Replicas started together spread out.
func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(buf[:]) % uint64(limit)) // #nosec G115 -- bounded by limit
}

// RunOnce runs every task once. It returns context.Canceled when every failure was a
// cancellation, and otherwise the joined task errors.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	start := time.Now()
	results := make([]taskResult, 0, len(s.tasks))
	var errs []error
	onlyCanceled := true

	for _, task := range s.tasks {
		count, err := task.run(ctx)
		results = append(results, taskResult{name: task.name, count: count, err: err})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", labelFor(task.name), err))
			onlyCanceled = onlyCanceled && isContextCancellation(err)
			continue
		}
		if count > 0 {
			s.logger.InfoContext(ctx, "retention applied", "task", task.name, "removed", count, "retention", task.retention)
		}
	}

	s.emitPassMetrics(results, time.Since(start))

	switch {
	case len(errs) == 0:
		return nil
	case onlyCanceled:
		return context.Canceled
	default:
		return fmt.Errorf("cleanup failed: %w", errors.Join(errs...))
	}
}

func labelFor(task string) string {
	switch task {
	case "prune_jobs":
		return "prune jobs"
	case "delete_history":
		return "delete old audit runs"
	}
	return task
}

// emitPassMetrics records the pass as a whole plus one reaper.cleanup_operation per task.
// Cancellations count as neither success nor error for the pass result.
func (s *ReaperService) emitPassMetrics(results []taskResult, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var total int64
	var failed error
	for _, r := range results {
		total += r.count
		if failed == nil && r.err != nil && !isContextCancellation(r.err) {
			failed = r.err
		}
		s.emitTaskMetric(r)
	}

	tags := resultTags(total, failed)
	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}
	if failed == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitTaskMetric(r taskResult) {
	err := r.err
	if isContextCancellation(err) {
		err = nil
	}
	tags := resultTags(r.count, err)
	tags["operation"] = r.name

	s.metrics.Count("reaper.cleanup_operation", 1, tags)
	if err == nil && r.count > 0 {
		s.metrics.Count("reaper.rows_processed", r.count, metrics.CloneTags(tags))
	}
}

func resultTags(count int64, err error) map[string]string {
	switch {
	case err != nil:
		tags := map[string]string{"result": metrics.ResultError}
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
		return tags
	case count == 0:
		return map[string]string{"result": metrics.ResultNoop}
	default:
		return map[string]string{"result": metrics.ResultSuccess}
	}
}

func (s *ReaperService) logPassError(ctx context.Context, err error) {
	switch {
	case err == nil:
	case isContextCancellation(err):
		s.logger.DebugContext(ctx, "cleanup interrupted", "error", err)
	default:
		s.logger.ErrorContext(ctx, "cleanup failed", "error", err)
	}
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

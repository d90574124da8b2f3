package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/target/mmk-site-audit/internal/core"
	domainjob "github.com/target/mmk-site-audit/internal/domain/job"
	"github.com/target/mmk-site-audit/internal/domain/model"
	"github.com/target/mmk-site-audit/internal/domain/scoring"
	apperrors "github.com/target/mmk-site-audit/internal/errors"
	"github.com/target/mmk-site-audit/internal/observability/metrics"
	"github.com/target/mmk-site-audit/internal/observability/statsd"
)

// Default orchestration limits.
const (
	DefaultSlots        = 5
	DefaultAuditTimeout = 300 * time.Second
	DefaultCallTimeout  = 60 * time.Second
	DefaultFetchTimeout = 30 * time.Second

	recorderTimeout = 5 * time.Second
)

// ErrShuttingDown is returned by SubmitAudit once Shutdown has begun.
var ErrShuttingDown error = apperrors.New(apperrors.ErrCodeShuttingDown, "audit service is shutting down")

// AuditSettings holds the orchestration tunables.
type AuditSettings struct {
	Slots        int
	AuditTimeout time.Duration
	CallTimeout  time.Duration
	FetchTimeout time.Duration
	// DefaultAPIKey is used for performance insights when a request carries no key.
	DefaultAPIKey string
}

func (s AuditSettings) withDefaults() AuditSettings {
	if s.Slots <= 0 {
		s.Slots = DefaultSlots
	}
	if s.AuditTimeout <= 0 {
		s.AuditTimeout = DefaultAuditTimeout
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = DefaultCallTimeout
	}
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = DefaultFetchTimeout
	}
	s.DefaultAPIKey = strings.TrimSpace(s.DefaultAPIKey)
	return s
}

// AuditServiceOptions groups dependencies for AuditService.
type AuditServiceOptions struct {
	Store       core.JobStore          // Required: job lifecycle records
	Cache       core.ResultCache       // Required: completed-result cache
	Fetcher     core.PageFetcher       // Required: target page fetcher
	Checks      core.CheckRegistry     // Required: check collaborators
	Performance core.PerformanceClient // Optional: performance insights
	Scoring     *scoring.Engine        // Optional: defaults to scoring.DefaultPolicy
	Archive     *core.ResultArchive    // Optional: lookup fallback for pruned jobs; also recorded to
	Recorders   []core.AuditRecorder   // Optional: best-effort terminal job sinks
	Notifier    domainjob.Notifier     // Optional: completion notifier used by Wait
	Metrics     statsd.Sink            // Optional: metrics sink
	Logger      *slog.Logger           // Optional: structured logger
	Settings    AuditSettings
	// TimeProvider overrides the clock used for deadlines and result timestamps.
	TimeProvider func() time.Time
}

// SubmitAuditRequest asks for an audit of URL.
type SubmitAuditRequest struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key,omitempty"`
}

// SubmitAuditResponse identifies the job that will answer a submission.
type SubmitAuditResponse struct {
	JobID  string          `json:"job_id"`
	Status model.JobStatus `json:"status"`
	Cached bool            `json:"cached"`
}

// ServiceStats summarizes the orchestrator's state.
type ServiceStats struct {
	Jobs    model.JobStats `json:"jobs"`
	Slots   int            `json:"slots"`
	Running int            `json:"running"`
	Queued  int            `json:"queued"`
}

// PruneResult reports what PruneExpired removed.
type PruneResult struct {
	Jobs         int `json:"jobs"`
	CacheEntries int `json:"cache_entries"`
}

// pending is an admitted job waiting for, or holding, a slot.
type pending struct {
	jobID string
	key   string
}

// AuditService admits audits, bounds how many run at once and exposes their state.
//
// This service manages:
// - Cache and in-flight deduplication of submissions
// - A fixed number of running slots with FIFO promotion
// - Per-job fan-out to check and performance collaborators
// - Scoring, persistence of terminal state and best-effort recording.
type AuditService struct {
	store       core.JobStore
	cache       core.ResultCache
	fetcher     core.PageFetcher
	checks      core.CheckRegistry
	performance core.PerformanceClient
	engine      *scoring.Engine
	archive     *core.ResultArchive
	recorders   []core.AuditRecorder
	notifier    domainjob.Notifier
	metrics     statsd.Sink
	logger      *slog.Logger
	settings    AuditSettings
	fetchBudget *domainjob.CallBudget
	callBudget  *domainjob.CallBudget
	now         func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	running  int
	queue    []pending
	inflight map[string]string
	closed   bool
}

// NewAuditService constructs an AuditService.
func NewAuditService(opts AuditServiceOptions) (*AuditService, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("JobStore is required")
	case opts.Cache == nil:
		return nil, errors.New("ResultCache is required")
	case opts.Fetcher == nil:
		return nil, errors.New("PageFetcher is required")
	case opts.Checks == nil:
		return nil, errors.New("CheckRegistry is required")
	}

	settings := opts.Settings.withDefaults()
	fetchBudget, err := domainjob.NewCallBudget(settings.FetchTimeout)
	if err != nil {
		return nil, fmt.Errorf("create fetch budget: %w", err)
	}
	callBudget, err := domainjob.NewCallBudget(settings.CallTimeout)
	if err != nil {
		return nil, fmt.Errorf("create call budget: %w", err)
	}

	engine := opts.Scoring
	if engine == nil {
		engine, err = scoring.NewEngine(scoring.DefaultPolicy())
		if err != nil {
			return nil, fmt.Errorf("create scoring engine: %w", err)
		}
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = domainjob.NewCompletionNotifier()
	}

	now := opts.TimeProvider
	if now == nil {
		now = time.Now
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "audit_service")
	}

	recorders := make([]core.AuditRecorder, 0, len(opts.Recorders)+1)
	if opts.Archive != nil {
		recorders = append(recorders, opts.Archive)
	}
	for _, r := range opts.Recorders {
		if r != nil {
			recorders = append(recorders, r)
		}
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &AuditService{
		store:       opts.Store,
		cache:       opts.Cache,
		fetcher:     opts.Fetcher,
		checks:      opts.Checks,
		performance: opts.Performance,
		engine:      engine,
		archive:     opts.Archive,
		recorders:   recorders,
		notifier:    notifier,
		metrics:     opts.Metrics,
		logger:      logger,
		settings:    settings,
		fetchBudget: fetchBudget,
		callBudget:  callBudget,
		now:         now,
		baseCtx:     baseCtx,
		cancel:      cancel,
		inflight:    make(map[string]string),
	}, nil
}

// Settings returns the effective orchestration settings.
func (s *AuditService) Settings() AuditSettings {
	return s.settings
}

// SubmitAudit admits an audit of req.URL. A cached or in-flight job for the same target and
// API key is returned instead of creating a new one.
func (s *AuditService) SubmitAudit(ctx context.Context, req SubmitAuditRequest) (*SubmitAuditResponse, error) {
	target, err := model.NormalizeTargetURL(req.URL)
	if err != nil {
		return nil, apperrors.InvalidTarget(req.URL, err.Error())
	}
	apiKey := strings.TrimSpace(req.APIKey)

	if resp, ok := s.fromCache(ctx, target, apiKey); ok {
		return resp, nil
	}

	key := inflightKey(target, apiKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrShuttingDown
	}
	if id, ok := s.inflight[key]; ok {
		job, gerr := s.store.Get(ctx, id)
		switch {
		case gerr != nil:
		case !job.Status.IsTerminal():
			return &SubmitAuditResponse{JobID: id, Status: job.Status}, nil
		case job.Status == model.JobStatusCompleted:
			// completed but not yet in the result cache
			return &SubmitAuditResponse{JobID: id, Status: job.Status, Cached: true}, nil
		}
	}

	job, err := s.store.Create(ctx, model.CreateAuditRequest{TargetURL: target, APIKey: apiKey})
	if err != nil {
		return nil, err
	}
	s.inflight[key] = job.ID
	metrics.EmitAuditLifecycle(s.metrics, metrics.AuditMetric{
		Transition: metrics.TransitionAdmitted,
		Result:     metrics.ResultSuccess,
	})

	p := pending{jobID: job.ID, key: key}
	status := model.JobStatusQueued
	if s.running < s.settings.Slots {
		if s.launchLocked(p) {
			status = model.JobStatusRunning
		} else {
			status = model.JobStatusFailed
		}
	} else {
		s.queue = append(s.queue, p)
	}
	metrics.EmitQueueDepth(s.metrics, s.running, len(s.queue))

	if s.logger != nil {
		s.logger.InfoContext(ctx, "audit admitted", "job_id", job.ID, "target", target, "status", status)
	}
	return &SubmitAuditResponse{JobID: job.ID, Status: status}, nil
}

func (s *AuditService) fromCache(ctx context.Context, target, apiKey string) (*SubmitAuditResponse, bool) {
	id, ok := s.cache.Lookup(target, apiKey)
	if !ok {
		metrics.EmitCache(s.metrics, false)
		return nil, false
	}
	job, err := s.store.Get(ctx, id)
	if err != nil {
		// the job was pruned; the entry cannot be served any more
		s.cache.Remove(id)
		metrics.EmitCache(s.metrics, false)
		return nil, false
	}
	metrics.EmitCache(s.metrics, true)
	return &SubmitAuditResponse{JobID: job.ID, Status: job.Status, Cached: true}, true
}

func inflightKey(target, apiKey string) string {
	return target + "\x00" + apiKey
}

// GetJob returns a snapshot of a job, falling back to the result archive for pruned jobs.
func (s *AuditService) GetJob(ctx context.Context, id string) (*model.AuditJob, error) {
	job, err := s.store.Get(ctx, id)
	if err == nil {
		return job, nil
	}
	if !apperrors.IsNotFound(err) || s.archive == nil {
		return nil, err
	}
	archived, aerr := s.archive.Load(ctx, id)
	if aerr != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "result archive lookup failed", "job_id", id, "error", aerr)
		}
		return nil, err
	}
	if archived == nil {
		return nil, err
	}
	return archived, nil
}

// GetStatus returns the lifecycle view of a job.
func (s *AuditService) GetStatus(ctx context.Context, id string) (*model.AuditStatusResponse, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	return job.StatusResponse(), nil
}

// GetResult returns the scored report of a completed job.
func (s *AuditService) GetResult(ctx context.Context, id string) (*model.AuditResult, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted || job.Result == nil {
		return nil, apperrors.NotReadyf("audit %s is %s", id, job.Status)
	}
	return job.Result, nil
}

// ListJobs lists in-memory jobs.
func (s *AuditService) ListJobs(ctx context.Context, opts model.JobListOptions) ([]*model.AuditJob, error) {
	return s.store.List(ctx, opts)
}

// Stats reports job counts and slot usage.
func (s *AuditService) Stats(ctx context.Context) (*ServiceStats, error) {
	jobs, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return &ServiceStats{
		Jobs:    *jobs,
		Slots:   s.settings.Slots,
		Running: s.running,
		Queued:  len(s.queue),
	}, nil
}

// PruneExpired drops terminal jobs completed before the cutoff and expired cache entries.
func (s *AuditService) PruneExpired(ctx context.Context, before time.Time) (*PruneResult, error) {
	jobs, err := s.store.Prune(ctx, before)
	if err != nil {
		return nil, fmt.Errorf("prune jobs: %w", err)
	}
	return &PruneResult{Jobs: jobs, CacheEntries: s.cache.Purge()}, nil
}

// Wait blocks until the job reaches a terminal state or ctx ends.
func (s *AuditService) Wait(ctx context.Context, id string) (*model.AuditJob, error) {
	unsubscribe, ch := s.notifier.Subscribe(id)
	defer unsubscribe()

	for {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case _, ok := <-ch:
			if !ok {
				if job, err = s.GetJob(ctx, id); err == nil && job.Status.IsTerminal() {
					return job, nil
				}
				return nil, ErrShuttingDown
			}
		}
	}
}

// Shutdown stops admission, fails queued jobs, cancels running ones and waits for them
// to finish until ctx ends.
func (s *AuditService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	queued := s.queue
	s.queue = nil
	s.mu.Unlock()

	if !alreadyClosed {
		s.cancel()
		for _, p := range queued {
			s.failQueued(p)
		}
		if s.logger != nil && len(queued) > 0 {
			s.logger.Info("failed queued audits on shutdown", "count", len(queued))
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.notifier.StopAll()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AuditService) failQueued(p pending) {
	ctx := context.WithoutCancel(s.baseCtx)
	job, err := s.store.Transition(ctx, p.jobID, model.JobStatusFailed, model.TransitionParams{
		Error: &model.JobError{Code: model.JobErrorShutdown, Reason: "service shut down before the audit started"},
	})
	s.mu.Lock()
	delete(s.inflight, p.key)
	s.mu.Unlock()
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("fail queued audit", "job_id", p.jobID, "error", err)
		}
		return
	}
	s.record(ctx, job)
	metrics.EmitAuditLifecycle(s.metrics, metrics.AuditMetric{
		Transition: metrics.TransitionFailed,
		Result:     metrics.ResultError,
		Err:        context.Canceled,
	})
	s.notifier.Notify(p.jobID)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/target/mmk-site-audit/internal/domain/model"
	apperrors "github.com/target/mmk-site-audit/internal/errors"
	"github.com/target/mmk-site-audit/internal/observability/metrics"
)

// collaborator is one unit of the per-job fan-out.
type collaborator struct {
	name     string
	category model.Category
	call     func(ctx context.Context) (model.Finding, error)
}

// outcome is what a collaborator sends back on the join channel.
type outcome struct {
	index   int
	finding model.Finding
	result  string
	elapsed time.Duration
}

// launchLocked moves a queued job to Running and starts it. Caller holds s.mu.
func (s *AuditService) launchLocked(p pending) bool {
	ctx := context.WithoutCancel(s.baseCtx)
	job, err := s.store.Transition(ctx, p.jobID, model.JobStatusRunning, model.TransitionParams{})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("start audit", "job_id", p.jobID, "error", err)
		}
		_, _ = s.store.Transition(ctx, p.jobID, model.JobStatusFailed, model.TransitionParams{
			Error: &model.JobError{Code: model.JobErrorInternal, Reason: err.Error()},
		})
		delete(s.inflight, p.key)
		s.notifier.Notify(p.jobID)
		return false
	}

	s.running++
	s.wg.Add(1)
	metrics.EmitAuditLifecycle(s.metrics, metrics.AuditMetric{
		Transition: metrics.TransitionStarted,
		Result:     metrics.ResultSuccess,
	})
	go s.run(job, p)
	return true
}

// release frees p's slot and promotes queued jobs in admission order.
func (s *AuditService) release(p pending) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running--
	delete(s.inflight, p.key)
	for !s.closed && s.running < s.settings.Slots && len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.launchLocked(next)
	}
	metrics.EmitQueueDepth(s.metrics, s.running, len(s.queue))
}

func (s *AuditService) run(job *model.AuditJob, p pending) {
	defer s.wg.Done()
	defer s.release(p)
	defer s.notifier.Notify(job.ID)
	defer func() {
		if r := recover(); r != nil {
			if s.logger != nil {
				s.logger.Error("audit panicked", "job_id", job.ID, "panic", r)
			}
			s.failJob(job, model.JobErrorInternal, fmt.Sprintf("internal error: %v", r), nil, 0)
		}
	}()

	ctx, cancel := context.WithTimeout(s.baseCtx, s.settings.AuditTimeout)
	defer cancel()
	s.execute(ctx, job)
}

// execute drives one Running job to a terminal state.
func (s *AuditService) execute(ctx context.Context, job *model.AuditJob) *model.AuditJob {
	started := time.Now()
	deadline, _ := ctx.Deadline()

	page, err := s.fetch(ctx, job, deadline)
	if err != nil {
		code := model.JobErrorFetchFailed
		if s.baseCtx.Err() != nil {
			code = model.JobErrorShutdown
		}
		return s.failJob(job, code, err.Error(), err, time.Since(started))
	}

	findings := s.fanOut(ctx, s.plan(job, page), deadline)
	if s.baseCtx.Err() != nil {
		return s.failJob(job, model.JobErrorShutdown, "service shut down while the audit was running",
			context.Canceled, time.Since(started))
	}
	return s.complete(job, findings, time.Since(started))
}

func (s *AuditService) fetch(ctx context.Context, job *model.AuditJob, deadline time.Time) (*model.PageContext, error) {
	decision := s.fetchBudget.Resolve(deadline, time.Now())
	if decision.Exhausted() {
		return nil, fmt.Errorf("fetch %s: %w", job.TargetURL, context.DeadlineExceeded)
	}
	fctx, cancel := context.WithTimeout(ctx, decision.Timeout)
	defer cancel()

	page, err := s.fetcher.FetchPage(fctx, job.TargetURL)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, fmt.Errorf("fetch %s: no page returned", job.TargetURL)
	}
	return page, nil
}

// plan lists the collaborators for a job: every registered check, plus one performance
// call per strategy when an API key is available.
func (s *AuditService) plan(job *model.AuditJob, page *model.PageContext) []collaborator {
	checks := s.checks.Checks()
	out := make([]collaborator, 0, len(checks)+len(model.Strategies))
	for _, c := range checks {
		if c == nil {
			continue
		}
		out = append(out, collaborator{
			name:     c.Name(),
			category: c.Category(),
			call: func(ctx context.Context) (model.Finding, error) {
				return c.Run(ctx, page)
			},
		})
	}

	apiKey := job.APIKey
	if apiKey == "" {
		apiKey = s.settings.DefaultAPIKey
	}
	if apiKey == "" || s.performance == nil {
		return out
	}
	for _, strategy := range model.Strategies {
		out = append(out, collaborator{
			name:     PerformanceCheckName(strategy),
			category: model.CategoryPerformance,
			call: func(ctx context.Context) (model.Finding, error) {
				m, err := s.performance.FetchInsights(ctx, job.TargetURL, apiKey, strategy)
				if err != nil {
					return model.Finding{}, err
				}
				return PerformanceFinding(m, strategy), nil
			},
		})
	}
	return out
}

// fanOut runs every collaborator concurrently and joins them against the deadline.
// Collaborators that have not answered when ctx ends are recorded as timeouts.
func (s *AuditService) fanOut(ctx context.Context, plan []collaborator, deadline time.Time) []model.Finding {
	results := make(chan outcome, len(plan))
	for i, c := range plan {
		go s.invoke(ctx, deadline, i, c, results)
	}

	findings := make([]model.Finding, len(plan))
	answered := make([]bool, len(plan))
	received := 0

collect:
	for received < len(plan) {
		select {
		case out := <-results:
			findings[out.index] = out.finding
			answered[out.index] = true
			received++
			s.emitCollaborator(plan[out.index], out.result, out.elapsed)
		case <-ctx.Done():
			break collect
		}
	}

	for i, c := range plan {
		if answered[i] {
			continue
		}
		findings[i] = model.DegradedFinding(c.category, c.name, s.abandonReason())
		s.emitCollaborator(c, metrics.ResultTimeout, 0)
	}
	return findings
}

func (s *AuditService) invoke(ctx context.Context, deadline time.Time, index int, c collaborator, results chan<- outcome) {
	start := time.Now()
	out := outcome{index: index}
	defer func() {
		if r := recover(); r != nil {
			out.finding = model.DegradedFinding(c.category, c.name, fmt.Sprintf("panic: %v", r))
			out.result = metrics.ResultDegraded
		}
		out.elapsed = time.Since(start)
		results <- out
	}()

	decision := s.callBudget.Resolve(deadline, start)
	if decision.Exhausted() {
		out.finding = model.DegradedFinding(c.category, c.name, "timed out before it could start")
		out.result = metrics.ResultTimeout
		return
	}
	cctx, cancel := context.WithTimeout(ctx, decision.Timeout)
	defer cancel()

	f, err := c.call(cctx)
	switch {
	case err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded):
		out.finding = model.DegradedFinding(c.category, c.name,
			fmt.Sprintf("timed out after %s", decision.Timeout.Round(time.Millisecond)))
		out.result = metrics.ResultTimeout
	case err != nil:
		out.finding = model.DegradedFinding(c.category, c.name, collaboratorReason(err))
		out.result = metrics.ResultDegraded
	default:
		f.Category = c.category
		f.Check = c.name
		if !f.Status.Valid() {
			f.Status = model.FindingCritical
		}
		out.finding = f
		out.result = metrics.ResultSuccess
	}
}

// quotaError is satisfied by collaborator errors that report an exhausted API quota.
type quotaError interface {
	QuotaExceeded() bool
}

func collaboratorReason(err error) string {
	var q quotaError
	if errors.As(err, &q) && q.QuotaExceeded() {
		return "quota exceeded: " + err.Error()
	}
	return err.Error()
}

func (s *AuditService) abandonReason() string {
	if s.baseCtx.Err() != nil {
		return "canceled by shutdown"
	}
	return "timed out waiting for the audit deadline"
}

func (s *AuditService) emitCollaborator(c collaborator, result string, elapsed time.Duration) {
	metrics.EmitCollaborator(s.metrics, metrics.CollaboratorMetric{
		Check:    c.name,
		Category: string(c.category),
		Result:   result,
		Duration: elapsed,
	})
}

// complete scores the findings and moves the job to Completed.
func (s *AuditService) complete(job *model.AuditJob, findings []model.Finding, elapsed time.Duration) *model.AuditJob {
	ctx := context.WithoutCancel(s.baseCtx)

	model.SortFindings(findings)
	report := s.engine.Score(findings)
	now := s.now().UTC()
	startedAt := now
	if job.StartedAt != nil {
		startedAt = *job.StartedAt
	}
	result := &model.AuditResult{
		TargetURL:    job.TargetURL,
		Domain:       model.TargetHost(job.TargetURL),
		StartedAt:    startedAt,
		CompletedAt:  now,
		Categories:   report.Categories,
		OverallScore: report.Overall,
		Findings:     findings,
	}

	done, err := s.store.Transition(ctx, job.ID, model.JobStatusCompleted, model.TransitionParams{Result: result})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("complete audit", "job_id", job.ID, "error", err)
		}
		return nil
	}

	// the store's clock stamps both the job and its result
	completedAt := now
	if done.CompletedAt != nil {
		completedAt = *done.CompletedAt
	}
	if done.Result != nil {
		result = done.Result
	}
	s.cache.Record(done.ID, done.TargetURL, done.APIKey, completedAt)
	s.record(ctx, done)

	outcome := metrics.ResultSuccess
	if result.Degraded() {
		outcome = metrics.ResultDegraded
	}
	metrics.EmitAuditLifecycle(s.metrics, metrics.AuditMetric{
		Transition: metrics.TransitionComplete,
		Result:     outcome,
		Duration:   elapsed,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "audit completed",
			"job_id", done.ID,
			"target", done.TargetURL,
			"overall_score", result.OverallScore,
			"degraded", result.Degraded(),
			"duration", elapsed)
	}
	return done
}

func (s *AuditService) failJob(
	job *model.AuditJob,
	code, reason string,
	cause error,
	elapsed time.Duration,
) *model.AuditJob {
	ctx := context.WithoutCancel(s.baseCtx)
	failed, err := s.store.Transition(ctx, job.ID, model.JobStatusFailed, model.TransitionParams{
		Error: &model.JobError{Code: code, Reason: reason},
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("fail audit", "job_id", job.ID, "code", code, "error", err)
		}
		return nil
	}
	s.record(ctx, failed)

	if cause == nil {
		cause = errors.New(reason)
	}
	metrics.EmitAuditLifecycle(s.metrics, metrics.AuditMetric{
		Transition: metrics.TransitionFailed,
		Result:     metrics.ResultError,
		Duration:   elapsed,
		Err:        cause,
	})
	if s.logger != nil {
		s.logger.WarnContext(ctx, "audit failed", "job_id", job.ID, "code", code, "reason", reason)
	}
	return failed
}

// record hands a terminal job to every recorder. Failures are logged, never propagated.
func (s *AuditService) record(ctx context.Context, job *model.AuditJob) {
	for _, r := range s.recorders {
		rctx, cancel := context.WithTimeout(ctx, recorderTimeout)
		err := r.RecordAudit(rctx, job)
		cancel()
		if err != nil && !apperrors.IsConflict(err) && s.logger != nil {
			s.logger.WarnContext(ctx, "record audit", "job_id", job.ID, "error", err)
		}
	}
}

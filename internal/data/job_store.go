package data

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/mmk-site-audit/internal/core"
	"github.com/target/mmk-site-audit/internal/domain/model"
	apperrors "github.com/target/mmk-site-audit/internal/errors"
)

const defaultJobListLimit = 50

// JobStoreOptions configures a JobStore.
type JobStoreOptions struct {
	TimeProvider TimeProvider
	// NewID overrides uuid generation (tests).
	NewID func() string
}

// JobStore is the process-lifetime, in-memory audit job store.
// The map is guarded by mu; each record has its own lock so transitions for one job
// are serialized without blocking unrelated jobs. Readers always get a snapshot copy.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*jobRecord
	clock TimeProvider
	newID func() string
}

type jobRecord struct {
	mu  sync.Mutex
	job *model.AuditJob
}

var _ core.JobStore = (*JobStore)(nil)

// NewJobStore creates an empty JobStore.
func NewJobStore(opts JobStoreOptions) *JobStore {
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &JobStore{
		jobs:  make(map[string]*jobRecord),
		clock: timeProviderOrDefault(opts.TimeProvider),
		newID: newID,
	}
}

// Create allocates a Queued job for a validated target.
func (s *JobStore) Create(_ context.Context, req model.CreateAuditRequest) (*model.AuditJob, error) {
	target, err := model.NormalizeTargetURL(req.TargetURL)
	if err != nil {
		return nil, apperrors.InvalidTarget(req.TargetURL, err.Error())
	}

	job := &model.AuditJob{
		ID:        s.newID(),
		TargetURL: target,
		APIKey:    strings.TrimSpace(req.APIKey),
		Status:    model.JobStatusQueued,
		CreatedAt: s.clock.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return nil, apperrors.Internalf("duplicate audit job id %s", job.ID)
	}
	s.jobs[job.ID] = &jobRecord{job: job}
	return job.Clone(), nil
}

// Get returns a snapshot of the job.
func (s *JobStore) Get(_ context.Context, id string) (*model.AuditJob, error) {
	rec := s.record(id)
	if rec == nil {
		return nil, apperrors.NotFoundf("audit job %s not found", id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.job.Clone(), nil
}

// Transition moves a job to a new state, attaching the payload that state requires.
func (s *JobStore) Transition(
	_ context.Context,
	id string,
	to model.JobStatus,
	params model.TransitionParams,
) (*model.AuditJob, error) {
	rec := s.record(id)
	if rec == nil {
		return nil, apperrors.NotFoundf("audit job %s not found", id)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	from := rec.job.Status
	if !from.CanTransitionTo(to) {
		return nil, apperrors.IllegalTransitionf("audit job %s cannot move from %s to %s", id, from, to)
	}
	if err := checkPayload(id, to, params); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	next := rec.job.Clone()
	next.Status = to
	switch to {
	case model.JobStatusRunning:
		next.StartedAt = &now
	case model.JobStatusCompleted:
		next.CompletedAt = &now
		result := *params.Result
		result.CompletedAt = now
		next.Result = &result
	case model.JobStatusFailed:
		next.CompletedAt = &now
		errCopy := *params.Error
		next.Error = &errCopy
	}
	rec.job = next
	return next.Clone(), nil
}

// checkPayload enforces result-iff-completed and error-iff-failed.
func checkPayload(id string, to model.JobStatus, params model.TransitionParams) error {
	switch to {
	case model.JobStatusCompleted:
		if params.Result == nil || params.Error != nil {
			return apperrors.IllegalTransitionf("audit job %s: completed requires a result and no error", id)
		}
	case model.JobStatusFailed:
		if params.Error == nil || params.Result != nil {
			return apperrors.IllegalTransitionf("audit job %s: failed requires an error and no result", id)
		}
	default:
		if params.Result != nil || params.Error != nil {
			return apperrors.IllegalTransitionf("audit job %s: %s carries no payload", id, to)
		}
	}
	return nil
}

// List returns job snapshots, newest first.
func (s *JobStore) List(_ context.Context, opts model.JobListOptions) ([]*model.AuditJob, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultJobListLimit
	}
	offset := max(opts.Offset, 0)

	snaps := make([]*model.AuditJob, 0, len(s.records()))
	for _, rec := range s.records() {
		rec.mu.Lock()
		snap := rec.job.Clone()
		rec.mu.Unlock()

		if opts.Status != nil && snap.Status != *opts.Status {
			continue
		}
		if opts.TargetURL != "" && snap.TargetURL != opts.TargetURL {
			continue
		}
		snaps = append(snaps, snap)
	}

	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
		}
		return snaps[i].ID < snaps[j].ID
	})

	if offset >= len(snaps) {
		return []*model.AuditJob{}, nil
	}
	end := min(offset+limit, len(snaps))
	return snaps[offset:end], nil
}

// Prune deletes terminal jobs that completed before the cutoff.
func (s *JobStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.jobs {
		rec.mu.Lock()
		job := rec.job
		expired := job.Status.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(before)
		rec.mu.Unlock()
		if expired {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// Stats counts jobs per state.
func (s *JobStore) Stats(_ context.Context) (*model.JobStats, error) {
	stats := &model.JobStats{}
	for _, rec := range s.records() {
		rec.mu.Lock()
		status := rec.job.Status
		rec.mu.Unlock()

		switch status {
		case model.JobStatusQueued:
			stats.Queued++
		case model.JobStatusRunning:
			stats.Running++
		case model.JobStatusCompleted:
			stats.Completed++
		case model.JobStatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *JobStore) record(id string) *jobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}

func (s *JobStore) records() []*jobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*jobRecord, 0, len(s.jobs))
	for _, rec := range s.jobs {
		out = append(out, rec)
	}
	return out
}

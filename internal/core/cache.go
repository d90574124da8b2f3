// Package core provides the ports and cross-cutting services of the site audit system.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-site-audit/internal/domain/model"
)

// CacheRepository is the key/value store behind the result archive.
type CacheRepository interface {
	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns nil, nil for a missing or expired key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) error
}

const resultArchiveKeyPrefix = "siteaudit:result:"

// ResultArchive keeps terminal job snapshots in a shared cache so results outlive
// in-memory pruning and can be read by other tools.
type ResultArchive struct {
	cache  CacheRepository
	ttl    time.Duration
	logger *slog.Logger
}

// ResultArchiveOptions bundles dependencies for NewResultArchive.
type ResultArchiveOptions struct {
	Cache  CacheRepository
	TTL    time.Duration
	Logger *slog.Logger
}

var _ AuditRecorder = (*ResultArchive)(nil)

// NewResultArchive creates a ResultArchive.
func NewResultArchive(opts ResultArchiveOptions) *ResultArchive {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultArchive{
		cache:  opts.Cache,
		ttl:    opts.TTL,
		logger: logger.With("component", "result_archive"),
	}
}

// ResultArchiveKey returns the cache key holding a job snapshot.
func ResultArchiveKey(jobID string) string {
	return resultArchiveKeyPrefix + jobID
}

// RecordAudit stores a terminal job snapshot. Non-terminal jobs are ignored.
func (a *ResultArchive) RecordAudit(ctx context.Context, job *model.AuditJob) error {
	if a == nil || a.cache == nil || job == nil || job.ID == "" {
		return nil
	}
	if !job.Status.IsTerminal() {
		return nil
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal audit job %s: %w", job.ID, err)
	}
	if err := a.cache.Set(ctx, ResultArchiveKey(job.ID), payload, a.ttl); err != nil {
		return fmt.Errorf("archive audit job %s: %w", job.ID, err)
	}
	a.logger.DebugContext(ctx, "archived audit job", "job_id", job.ID, "status", job.Status)
	return nil
}

// Load returns the archived snapshot, or nil when none exists.
func (a *ResultArchive) Load(ctx context.Context, jobID string) (*model.AuditJob, error) {
	if a == nil || a.cache == nil || jobID == "" {
		return nil, nil
	}

	payload, err := a.cache.Get(ctx, ResultArchiveKey(jobID))
	if err != nil {
		return nil, fmt.Errorf("load archived audit job %s: %w", jobID, err)
	}
	if payload == nil {
		return nil, nil
	}

	var job model.AuditJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("decode archived audit job %s: %w", jobID, err)
	}
	if job.ID != jobID {
		return nil, errors.New("archived audit job id mismatch")
	}
	return &job, nil
}

// Delete removes an archived snapshot.
func (a *ResultArchive) Delete(ctx context.Context, jobID string) (bool, error) {
	if a == nil || a.cache == nil || jobID == "" {
		return false, nil
	}
	return a.cache.Delete(ctx, ResultArchiveKey(jobID))
}

// Health reports the backing cache health.
func (a *ResultArchive) Health(ctx context.Context) error {
	if a == nil || a.cache == nil {
		return nil
	}
	return a.cache.Health(ctx)
}

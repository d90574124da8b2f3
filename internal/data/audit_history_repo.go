package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/mmk-site-audit/internal/core"
	"github.com/target/mmk-site-audit/internal/data/pgxutil"
	"github.com/target/mmk-site-audit/internal/domain/model"
	apperrors "github.com/target/mmk-site-audit/internal/errors"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500

	auditRunColumns = `id, target_url, status, overall_score, category_scores, error_reason, created_at, completed_at`
)

// AuditHistoryRepo persists terminal audit runs in Postgres.
type AuditHistoryRepo struct {
	DB *sql.DB
}

var (
	_ core.AuditHistoryRepository = (*AuditHistoryRepo)(nil)
	_ core.AuditRecorder          = (*AuditHistoryRepo)(nil)
)

// NewAuditHistoryRepo creates a new AuditHistoryRepo.
func NewAuditHistoryRepo(db *sql.DB) *AuditHistoryRepo {
	return &AuditHistoryRepo{DB: db}
}

// RecordAudit stores a terminal job as a history row. Non-terminal jobs are ignored.
func (r *AuditHistoryRepo) RecordAudit(ctx context.Context, job *model.AuditJob) error {
	if job == nil || !job.Status.IsTerminal() {
		return nil
	}
	run, err := model.NewAuditRun(job)
	if err != nil {
		return fmt.Errorf("build audit run %s: %w", job.ID, err)
	}
	return r.Insert(ctx, run)
}

// Insert writes one audit run.
func (r *AuditHistoryRepo) Insert(ctx context.Context, run *model.AuditRun) error {
	if run == nil {
		return errors.New("audit run is required")
	}
	_, err := pgxutil.Exec(ctx, r.DB, `
		INSERT INTO audit_runs (`+auditRunColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID,
		run.TargetURL,
		string(run.Status),
		run.OverallScore,
		[]byte(run.CategoryScores),
		run.ErrorReason,
		run.CreatedAt,
		run.CompletedAt,
	)
	return apperrors.MapDBError(err)
}

// Get returns one audit run by job id.
func (r *AuditHistoryRepo) Get(ctx context.Context, id string) (*model.AuditRun, error) {
	run, err := pgxutil.Query(ctx, r.DB, func(conn *pgx.Conn) (*model.AuditRun, error) {
		return pgxutil.CollectOne[model.AuditRun](ctx, conn,
			`SELECT `+auditRunColumns+` FROM audit_runs WHERE id = $1`, id)
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return run, nil
}

// List returns recent audit runs, newest first, optionally for one target.
func (r *AuditHistoryRepo) List(ctx context.Context, opts model.AuditRunListOptions) ([]*model.AuditRun, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	query := `SELECT ` + auditRunColumns + ` FROM audit_runs`
	args := []any{}
	if target := strings.TrimSpace(opts.TargetURL); target != "" {
		if normalized, err := model.NormalizeTargetURL(target); err == nil {
			target = normalized
		}
		query += ` WHERE target_url = $1`
		args = append(args, target)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	runs, err := pgxutil.Query(ctx, r.DB, func(conn *pgx.Conn) ([]*model.AuditRun, error) {
		return pgxutil.CollectPtrs[model.AuditRun](ctx, conn, query, args...)
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return runs, nil
}

// DeleteBefore removes up to batchSize runs created before the cutoff, oldest first.
func (r *AuditHistoryRepo) DeleteBefore(ctx context.Context, before time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	deleted, err := pgxutil.Exec(ctx, r.DB, `
		DELETE FROM audit_runs
		WHERE id IN (
			SELECT id FROM audit_runs
			WHERE created_at < $1
			ORDER BY created_at
			LIMIT $2
		)`, before, batchSize)
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return deleted, nil
}

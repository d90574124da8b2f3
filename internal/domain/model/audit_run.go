package model

import (
	"encoding/json"
	"time"
)

// AuditRun is the persisted history row for a terminal audit job.
type AuditRun struct {
	ID             string          `json:"id"                     db:"id"`
	TargetURL      string          `json:"target_url"             db:"target_url"`
	Status         JobStatus       `json:"status"                 db:"status"`
	OverallScore   *float64        `json:"overall_score,omitempty" db:"overall_score"`
	CategoryScores json.RawMessage `json:"category_scores"        db:"category_scores"`
	ErrorReason    *string         `json:"error_reason,omitempty" db:"error_reason"`
	CreatedAt      time.Time       `json:"created_at"             db:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// NewAuditRun flattens a terminal job into its history row.
func NewAuditRun(job *AuditJob) (*AuditRun, error) {
	run := &AuditRun{
		ID:             job.ID,
		TargetURL:      job.TargetURL,
		Status:         job.Status,
		CategoryScores: json.RawMessage("{}"),
		CreatedAt:      job.CreatedAt,
		CompletedAt:    job.CompletedAt,
	}
	if job.Result != nil {
		score := job.Result.OverallScore
		run.OverallScore = &score
		raw, err := job.Result.CategoryScoresJSON()
		if err != nil {
			return nil, err
		}
		run.CategoryScores = raw
	}
	if job.Error != nil {
		reason := job.Error.Reason
		run.ErrorReason = &reason
	}
	return run, nil
}

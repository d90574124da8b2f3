// Package model defines the core data types and structures used throughout the site audit system.
package model

import (
	"time"
)

// JobStatus represents the current lifecycle state of an audit job.
type JobStatus string

const (
	// JobStatusQueued indicates a job is waiting for a concurrency slot.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates a job's collaborators are executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job has a (possibly degraded) result.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the target page could not be audited at all.
	JobStatusFailed JobStatus = "failed"
)

// Job error codes recorded on failed jobs.
const (
	JobErrorFetchFailed = "fetch_failed"
	JobErrorShutdown    = "shutdown"
	JobErrorInternal    = "internal"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusQueued || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// legal transition table; terminal states have no outgoing edges.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:  {JobStatusRunning, JobStatusFailed},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// JobError is the single top-level reason attached to a failed job.
type JobError struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// AuditJob represents one audit request's lifecycle record.
type AuditJob struct {
	ID          string       `json:"id"                     db:"id"`
	TargetURL   string       `json:"target_url"             db:"target_url"`
	APIKey      string       `json:"-"                      db:"-"`
	Status      JobStatus    `json:"status"                 db:"status"`
	CreatedAt   time.Time    `json:"created_at"             db:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"   db:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty" db:"completed_at"`
	Result      *AuditResult `json:"result,omitempty"       db:"-"`
	Error       *JobError    `json:"error,omitempty"        db:"-"`
}

// HasAPIKey reports whether the job carries a performance API key.
func (j *AuditJob) HasAPIKey() bool {
	return j != nil && j.APIKey != ""
}

// Clone returns a snapshot copy of the job. The result payload is shared since it is
// never mutated once attached.
func (j *AuditJob) Clone() *AuditJob {
	if j == nil {
		return nil
	}
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	return &cp
}

// CreateAuditRequest represents a request to allocate a new audit job.
type CreateAuditRequest struct {
	TargetURL string `json:"url"`
	APIKey    string `json:"api_key,omitempty"`
}

// TransitionParams carries the payload that must accompany a state change.
// Result is required for Completed and forbidden otherwise; Error likewise for Failed.
type TransitionParams struct {
	Result *AuditResult
	Error  *JobError
}

// JobStats represents statistics about jobs in different states.
type JobStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// AuditStatusResponse represents the status information for a specific job.
type AuditStatusResponse struct {
	JobID       string     `json:"job_id"`
	TargetURL   string     `json:"target_url"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *JobError  `json:"error,omitempty"`
}

// StatusResponse builds the status view of a job.
func (j *AuditJob) StatusResponse() *AuditStatusResponse {
	snap := j.Clone()
	return &AuditStatusResponse{
		JobID:       snap.ID,
		TargetURL:   snap.TargetURL,
		Status:      snap.Status,
		CreatedAt:   snap.CreatedAt,
		StartedAt:   snap.StartedAt,
		CompletedAt: snap.CompletedAt,
		Error:       snap.Error,
	}
}

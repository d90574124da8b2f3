package model

// JobListOptions groups parameters for listing audit jobs with optional filters.
type JobListOptions struct {
	Status    *JobStatus // Optional filter by status (queued, running, completed, failed)
	TargetURL string     // Optional filter by normalized target URL
	Limit     int        // Pagination limit
	Offset    int        // Pagination offset
}

// AuditRunListOptions groups parameters for reading persisted audit history.
type AuditRunListOptions struct {
	TargetURL string
	Limit     int
}

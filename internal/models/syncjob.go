package models

import "time"

// JobStatus is the lifecycle state of a sync job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"

	// JobExpired is terminal and reached only by discovery: a pending or
	// running job older than the expiry ceiling is treated as abandoned.
	JobExpired JobStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobExpired
}

// Progress holds the monotonic counters of a sync job. As a delta passed to
// the tracker, every field must be >= 0.
type Progress struct {
	Created            int
	Updated            int
	ApplicationsSynced int
	FilesSynced        int
	RecordsProcessed   int
}

// SyncJob tracks one long-running window sync so it can be attached to,
// polled, cancelled and auto-expired.
type SyncJob struct {
	ID          string
	Kind        Kind
	WindowStart time.Time
	WindowEnd   time.Time
	Status      JobStatus

	Progress    Progress
	CurrentItem string
	Total       int

	// Errors is the bounded per-record error list; ErrorMessage is set only
	// for job-level fatal failures.
	Errors       []string
	ErrorMessage string

	CancelRequested bool

	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time
}

// Overlaps reports whether the job's window intersects [start, end].
func (j *SyncJob) Overlaps(start, end time.Time) bool {
	return !j.WindowEnd.Before(start) && !j.WindowStart.After(end)
}

// Package syncjobs persists sync-job rows: the pollable progress state of
// long-running window syncs.
package syncjobs

import (
	"context"
	"time"

	"github.com/finvista/acusync/internal/models"
)

// Repository is the storage contract for sync jobs. Progress counters are
// monotonic: Advance only ever adds non-negative deltas.
type Repository interface {
	// Create inserts a new pending job.
	Create(ctx context.Context, job *models.SyncJob) error

	// GetByID returns the job or common.ErrJobNotFound.
	GetByID(ctx context.Context, id string) (*models.SyncJob, error)

	// FindActive returns the newest pending/running job whose window overlaps
	// [start, end] for the kind, or common.ErrorNotFound.
	FindActive(ctx context.Context, kind models.Kind, start, end time.Time) (*models.SyncJob, error)

	// MarkRunning transitions a pending job to running.
	MarkRunning(ctx context.Context, id string) error

	// Advance adds the progress delta and updates the current item and total.
	Advance(ctx context.Context, id string, delta models.Progress, currentItem string, total int) error

	// Finish sets a terminal status with the fatal message (may be empty) and
	// the bounded per-record error list.
	Finish(ctx context.Context, id string, status models.JobStatus, errorMessage string, errs []string) error

	// RequestCancel sets the cooperative cancellation flag.
	RequestCancel(ctx context.Context, id string) error
}

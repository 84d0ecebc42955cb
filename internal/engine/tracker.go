// Package engine drives window syncs end to end: job tracking, the page loop
// that upserts remote records, count reconciliation, drift verification and
// attachment fetching.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/logging"
	"github.com/finvista/acusync/internal/models"
	"github.com/finvista/acusync/internal/repository/syncjobs"
)

// advanceEvery batches progress writes: the tracker flushes counters to the
// store once per this many processed records, plus a final flush at the end.
const advanceEvery = 5

// Tracker manages sync-job lifecycle and progress. State lives in the job
// store, so polls and cancels work across process restarts.
type Tracker struct {
	repo   syncjobs.Repository
	expiry time.Duration
	clock  func() time.Time
	logger logging.Logger
}

// NewTracker builds a tracker. expiry is the ceiling after which a
// pending/running job counts as abandoned.
func NewTracker(repo syncjobs.Repository, expiry time.Duration, logger logging.Logger) *Tracker {
	return &Tracker{repo: repo, expiry: expiry, clock: time.Now, logger: logger}
}

// Submit returns a job for the window. If a live job with an overlapping
// window already exists the caller is attached to it instead of starting a
// second sync of the same records; attached reports which happened.
func (t *Tracker) Submit(ctx context.Context, kind models.Kind, start, end time.Time) (job *models.SyncJob, attached bool, err error) {
	existing, err := t.repo.FindActive(ctx, kind, start, end)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, false, fmt.Errorf("looking up active jobs: %w", err)
	}
	if existing != nil {
		if t.expired(existing) {
			t.markExpired(ctx, existing)
		} else {
			t.logger.Info(ctx, "attaching to running job", "job_id", existing.ID, "kind", kind)
			return existing, true, nil
		}
	}

	now := t.clock()
	job = &models.SyncJob{
		ID:          uuid.NewString(),
		Kind:        kind,
		WindowStart: start,
		WindowEnd:   end,
		Status:      models.JobPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.repo.Create(ctx, job); err != nil {
		return nil, false, fmt.Errorf("creating job: %w", err)
	}
	return job, false, nil
}

// Start transitions the job from pending to running.
func (t *Tracker) Start(ctx context.Context, jobID string) error {
	return t.repo.MarkRunning(ctx, jobID)
}

// ProgressRecorder accumulates counter deltas between flushes for one job run.
type ProgressRecorder struct {
	t       *Tracker
	jobID   string
	pending models.Progress
	since   int
	current string
	total   int
}

// Progress returns a batched progress recorder for the job.
func (t *Tracker) Progress(jobID string, total int) *ProgressRecorder {
	return &ProgressRecorder{t: t, jobID: jobID, total: total}
}

// Record adds a delta. The store is written once per advanceEvery records;
// the page loop calls Flush after the last one.
func (p *ProgressRecorder) Record(ctx context.Context, delta models.Progress, currentItem string) error {
	p.pending.Created += delta.Created
	p.pending.Updated += delta.Updated
	p.pending.ApplicationsSynced += delta.ApplicationsSynced
	p.pending.FilesSynced += delta.FilesSynced
	p.pending.RecordsProcessed += delta.RecordsProcessed
	p.since += delta.RecordsProcessed
	p.current = currentItem

	if p.since < advanceEvery {
		return nil
	}
	return p.Flush(ctx)
}

// Flush writes the accumulated delta to the store.
func (p *ProgressRecorder) Flush(ctx context.Context) error {
	if p.since == 0 && p.pending == (models.Progress{}) {
		return nil
	}
	err := p.t.repo.Advance(ctx, p.jobID, p.pending, p.current, p.total)
	if err != nil {
		return fmt.Errorf("advancing job %s: %w", p.jobID, err)
	}
	p.pending = models.Progress{}
	p.since = 0
	return nil
}

// Finish moves the job to a terminal status. errorMessage is the job-level
// fatal message; errs is the bounded per-record error list.
func (t *Tracker) Finish(ctx context.Context, jobID string, status models.JobStatus, errorMessage string, errs []string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish with non-terminal status %q", status)
	}
	return t.repo.Finish(ctx, jobID, status, errorMessage, errs)
}

// Poll returns the current job state. Abandoned jobs are expired at read time
// rather than by a background sweeper.
func (t *Tracker) Poll(ctx context.Context, jobID string) (*models.SyncJob, error) {
	job, err := t.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if t.expired(job) {
		t.markExpired(ctx, job)
		job.Status = models.JobExpired
	}
	return job, nil
}

// Cancel requests cooperative cancellation. The run loop observes the flag
// between records and stops with the progress made so far preserved.
func (t *Tracker) Cancel(ctx context.Context, jobID string) error {
	job, err := t.repo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	return t.repo.RequestCancel(ctx, jobID)
}

// Cancelled reports whether cancellation has been requested for the job.
func (t *Tracker) Cancelled(ctx context.Context, jobID string) bool {
	job, err := t.repo.GetByID(ctx, jobID)
	if err != nil {
		t.logger.Warn(ctx, "reading cancel flag failed", "job_id", jobID, "error", err)
		return false
	}
	return job.CancelRequested
}

// WaitForCompletion polls the job until it reaches a terminal status or the
// context expires. Poll intervals back off from pollInterval.
func (t *Tracker) WaitForCompletion(ctx context.Context, jobID string, pollInterval time.Duration) (*models.SyncJob, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = pollInterval
	eb.MaxInterval = 10 * pollInterval
	eb.MaxElapsedTime = 0

	var job *models.SyncJob
	err := backoff.Retry(func() error {
		var err error
		job, err = t.Poll(ctx, jobID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !job.Status.Terminal() {
			return errors.New("job still running")
		}
		return nil
	}, backoff.WithContext(eb, ctx))
	if err != nil && job != nil && job.Status.Terminal() {
		return job, nil
	}
	return job, err
}

func (t *Tracker) expired(job *models.SyncJob) bool {
	if job.Status.Terminal() {
		return false
	}
	return t.clock().Sub(job.UpdatedAt) > t.expiry
}

func (t *Tracker) markExpired(ctx context.Context, job *models.SyncJob) {
	t.logger.Warn(ctx, "expiring abandoned job", "job_id", job.ID, "updated_at", job.UpdatedAt)
	if err := t.repo.Finish(ctx, job.ID, models.JobExpired, "job exceeded the expiry ceiling without finishing", job.Errors); err != nil {
		t.logger.Error(ctx, "expiring job failed", "job_id", job.ID, "error", err)
	}
}

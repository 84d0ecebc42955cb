package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finvista/acusync/internal/acumatica"
	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/logging"
	"github.com/finvista/acusync/internal/models"
	"github.com/finvista/acusync/internal/store"
)

// maxJobErrors bounds the per-record error list carried on a job. Past the
// cap, errors are counted but not stored.
const maxJobErrors = 50

// PageIterator yields pages of canonical records until a nil slice.
type PageIterator interface {
	Next(ctx context.Context) ([]*models.Document, error)
	Reset()
}

// Remote is the slice of the Acumatica layer the engine drives.
type Remote interface {
	EnsureSession(ctx context.Context, forceNew bool) error
	FetchWindow(kind models.Kind, start, end time.Time) PageIterator
	CountWindow(ctx context.Context, kind models.Kind, start, end time.Time) (int, error)
	ListWindowRefs(ctx context.Context, kind models.Kind, start, end time.Time) ([]string, error)
	FetchByRef(ctx context.Context, kind models.Kind, refNbr string) (*models.Document, error)
	FetchApplications(ctx context.Context, kind models.Kind, refNbr string) ([]models.Application, error)
	ListFiles(ctx context.Context, kind models.Kind, refNbr string) ([]acumatica.RemoteFile, error)
	DownloadFile(ctx context.Context, href string) ([]byte, error)
}

// Store is the slice of the local store the engine writes through.
type Store interface {
	Upsert(ctx context.Context, doc *models.Document, source string) (store.UpsertResult, error)
	ReplaceApplications(ctx context.Context, kind models.Kind, paymentRef string, apps []models.Application) error
	SaveAttachment(ctx context.Context, att *models.Attachment, data []byte) (bool, error)
	HasAttachment(ctx context.Context, refNbr, fileID string) (bool, error)
	ApplyRemoteDate(ctx context.Context, kind models.Kind, refNbr string, localDate, remoteDate time.Time) error
	Exists(ctx context.Context, kind models.Kind, refNbr string) (bool, error)
	CountWindow(ctx context.Context, kind models.Kind, start, end time.Time) (int, error)
	ListWindow(ctx context.Context, kind models.Kind, start, end time.Time) ([]*models.Document, error)
}

// remoteReader adapts the concrete reader and session manager to Remote.
type remoteReader struct {
	*acumatica.Reader
	sessions *acumatica.SessionManager
}

// NewRemote wraps the reader and session manager for the engine.
func NewRemote(r *acumatica.Reader, sessions *acumatica.SessionManager) Remote {
	return &remoteReader{Reader: r, sessions: sessions}
}

func (r *remoteReader) EnsureSession(ctx context.Context, forceNew bool) error {
	_, err := r.sessions.Acquire(ctx, forceNew)
	return err
}

func (r *remoteReader) FetchWindow(kind models.Kind, start, end time.Time) PageIterator {
	return r.Reader.FetchWindow(kind, start, end)
}

// SyncRequest describes one window sync run.
type SyncRequest struct {
	Kind            models.Kind
	Start           time.Time
	End             time.Time
	ForceNewSession bool
	SkipAttachments bool
}

// Engine runs window syncs. One goroutine per job; all shared state lives in
// the store and the session manager.
type Engine struct {
	remote  Remote
	store   Store
	tracker *Tracker
	logger  logging.Logger
	clock   func() time.Time
}

// New builds a sync engine.
func New(remote Remote, st Store, tracker *Tracker, logger logging.Logger) *Engine {
	return &Engine{remote: remote, store: st, tracker: tracker, logger: logger, clock: time.Now}
}

// Tracker exposes the engine's job tracker for polling and cancellation.
func (e *Engine) Tracker() *Tracker { return e.tracker }

type pageResult struct {
	docs []*models.Document
	err  error
}

// Run executes one window sync under the given job, driving it to a terminal
// status. Per-record failures are recorded on the job and do not abort the
// run; session establishment failure and page-fetch failure do.
func (e *Engine) Run(ctx context.Context, jobID string, req SyncRequest) error {
	log := e.logger.With("job_id", jobID, "kind", req.Kind)

	if err := e.tracker.Start(ctx, jobID); err != nil {
		return fmt.Errorf("starting job: %w", err)
	}

	if err := e.remote.EnsureSession(ctx, req.ForceNewSession); err != nil {
		return e.fail(ctx, jobID, fmt.Errorf("establishing session: %w", err), nil)
	}

	total, err := e.remote.CountWindow(ctx, req.Kind, req.Start, req.End)
	if err != nil {
		log.Warn(ctx, "window pre-count failed; progress will report totals as unknown", "error", err)
		total = 0
	}

	prog := e.tracker.Progress(jobID, total)
	var recordErrs []string
	var overflow int
	recordErr := func(ref string, err error) {
		if len(recordErrs) < maxJobErrors {
			recordErrs = append(recordErrs, fmt.Sprintf("%s: %v", ref, err))
		} else {
			overflow++
		}
	}

	// One-page prefetch: the next page downloads while this one is processed.
	it := e.remote.FetchWindow(req.Kind, req.Start, req.End)
	next := make(chan pageResult, 1)
	fetch := func() {
		docs, err := it.Next(ctx)
		next <- pageResult{docs: docs, err: err}
	}
	go fetch()

	cancelled := false
pages:
	for {
		page := <-next
		if page.err != nil {
			_ = prog.Flush(ctx)
			return e.fail(ctx, jobID, fmt.Errorf("fetching page: %w", page.err), recordErrs)
		}
		if page.docs == nil {
			break
		}
		go fetch()

		for _, doc := range page.docs {
			delta, err := e.processRecord(ctx, doc, req)
			if err != nil {
				recordErr(doc.Identity(), err)
			}
			if err := prog.Record(ctx, delta, doc.Identity()); err != nil {
				log.Warn(ctx, "recording progress failed", "error", err)
			}
		}

		if e.tracker.Cancelled(ctx, jobID) {
			cancelled = true
			break pages
		}
		if err := ctx.Err(); err != nil {
			_ = prog.Flush(ctx)
			return e.fail(ctx, jobID, err, recordErrs)
		}
	}

	if err := prog.Flush(ctx); err != nil {
		log.Warn(ctx, "flushing progress failed", "error", err)
	}
	if overflow > 0 {
		recordErrs = append(recordErrs[:maxJobErrors-1],
			fmt.Sprintf("... and %d more record errors", overflow+1))
	}

	if cancelled {
		log.Info(ctx, "sync cancelled by request")
		return e.tracker.Finish(ctx, jobID, models.JobFailed, "cancelled by request", recordErrs)
	}

	// Post-run count comparison for the operator log; informational only.
	if cmp, err := NewReconciler(e.remote, e.store, e.logger).Compare(ctx, req.Kind, req.Start, req.End); err == nil {
		log.Info(ctx, "window sync complete",
			"remote_count", cmp.RemoteCount, "local_count", cmp.LocalCount, "difference", cmp.Difference,
			"record_errors", len(recordErrs))
	} else {
		log.Warn(ctx, "post-sync comparison failed", "error", err)
	}

	return e.tracker.Finish(ctx, jobID, models.JobCompleted, "", recordErrs)
}

func (e *Engine) fail(ctx context.Context, jobID string, cause error, recordErrs []string) error {
	e.logger.Error(ctx, "sync failed", "job_id", jobID, "error", cause)
	if err := e.tracker.Finish(ctx, jobID, models.JobFailed, cause.Error(), recordErrs); err != nil {
		e.logger.Error(ctx, "marking job failed failed", "job_id", jobID, "error", err)
	}
	return cause
}

// processRecord syncs one canonical record: upsert, voided-counterpart
// re-fetch, application expansion for payments, attachment fetch.
func (e *Engine) processRecord(ctx context.Context, doc *models.Document, req SyncRequest) (models.Progress, error) {
	delta := models.Progress{RecordsProcessed: 1}

	res, err := e.store.Upsert(ctx, doc, models.SourceWindowSync)
	if err != nil {
		return delta, err
	}
	switch res.Action {
	case store.Created:
		delta.Created++
	case store.Updated:
		delta.Updated++
	}

	if doc.Kind == models.KindPayment && doc.Status == acumatica.StatusVoided {
		if err := e.syncVoidedCounterpart(ctx, doc, &delta); err != nil {
			return delta, err
		}
	}

	if doc.Kind.Entity() == "Payment" {
		apps, err := e.remote.FetchApplications(ctx, doc.Kind, doc.RefNbr)
		if err != nil {
			return delta, fmt.Errorf("fetching applications: %w", err)
		}
		if err := e.store.ReplaceApplications(ctx, doc.Kind, doc.RefNbr, apps); err != nil {
			return delta, err
		}
		delta.ApplicationsSynced += len(apps)
	}

	if !req.SkipAttachments {
		n, err := e.FetchAttachments(ctx, doc.Kind, doc.RefNbr)
		delta.FilesSynced += n
		if err != nil {
			return delta, fmt.Errorf("fetching attachments: %w", err)
		}
	}

	return delta, nil
}

// syncVoidedCounterpart pulls in the parallel voided-payment document the
// remote creates when a payment is voided, if it is not stored yet. Only the
// voided pair gets this treatment.
func (e *Engine) syncVoidedCounterpart(ctx context.Context, doc *models.Document, delta *models.Progress) error {
	exists, err := e.store.Exists(ctx, models.KindVoidedPayment, doc.RefNbr)
	if err != nil || exists {
		return err
	}

	voided, err := e.remote.FetchByRef(ctx, models.KindVoidedPayment, doc.RefNbr)
	if errors.Is(err, common.ErrRecordNotFound) {
		// Status flipped without a counterpart document; nothing to pull.
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetching voided counterpart: %w", err)
	}

	res, err := e.store.Upsert(ctx, voided, models.SourceWindowSync)
	if err != nil {
		return err
	}
	if res.Action == store.Created {
		delta.Created++
	} else {
		delta.Updated++
	}
	delta.RecordsProcessed++
	return nil
}

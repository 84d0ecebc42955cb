// Package store implements the local side of the sync: idempotent upserts of
// canonical records, wholesale application replacement, exactly-once
// attachment storage, and the append-only change log that audits every
// observable mutation.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/dbx"
	"github.com/finvista/acusync/internal/logging"
	"github.com/finvista/acusync/internal/models"
	"github.com/finvista/acusync/internal/repository/repomanager"
)

// UpsertAction says whether an upsert created or refreshed the row.
type UpsertAction string

const (
	Created UpsertAction = "created"
	Updated UpsertAction = "updated"
)

// UpsertResult reports what one upsert did. Changed is false for a no-op
// refresh: the row's last_synced_at still advanced, but no change-log entry
// was written.
type UpsertResult struct {
	Action        UpsertAction
	Changed       bool
	StatusChanged bool
}

// ObjectStore stores attachment bytes under a key.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Adapter is the local store adapter. All mutations that must be observed
// together (row write + change-log append) run in one transaction.
type Adapter struct {
	db      *sql.DB
	repos   repomanager.RepositoryManager
	objects ObjectStore
	logger  logging.Logger
}

// NewAdapter builds a store adapter.
func NewAdapter(db *sql.DB, repos repomanager.RepositoryManager, objects ObjectStore, logger logging.Logger) *Adapter {
	return &Adapter{db: db, repos: repos, objects: objects, logger: logger}
}

// trackedChange is one field difference between the local row and the
// incoming canonical record.
type trackedChange struct {
	field    string
	oldValue string
	newValue string
}

func diffDocuments(existing, incoming *models.Document) []trackedChange {
	var changes []trackedChange
	if existing.Status != incoming.Status {
		changes = append(changes, trackedChange{"status", existing.Status, incoming.Status})
	}
	if !existing.DocDate.Equal(incoming.DocDate) {
		changes = append(changes, trackedChange{"doc_date",
			existing.DocDate.Format(time.RFC3339), incoming.DocDate.Format(time.RFC3339)})
	}
	if existing.Amount != incoming.Amount {
		changes = append(changes, trackedChange{"amount",
			fmt.Sprintf("%.2f", existing.Amount), fmt.Sprintf("%.2f", incoming.Amount)})
	}
	if existing.CustomerID != incoming.CustomerID {
		changes = append(changes, trackedChange{"customer_id", existing.CustomerID, incoming.CustomerID})
	}
	if existing.Description != incoming.Description {
		changes = append(changes, trackedChange{"description", existing.Description, incoming.Description})
	}
	return changes
}

// changeEntry folds the tracked changes of one upsert into exactly one
// change-log row. Old/new values are compact JSON keyed by field name.
func changeEntry(doc *models.Document, action models.ChangeAction, changes []trackedChange, source string) *models.ChangeLogEntry {
	fields := make([]string, len(changes))
	oldVals := make(map[string]string, len(changes))
	newVals := make(map[string]string, len(changes))
	for i, c := range changes {
		fields[i] = c.field
		oldVals[c.field] = c.oldValue
		newVals[c.field] = c.newValue
	}
	oldJSON, _ := json.Marshal(oldVals)
	newJSON, _ := json.Marshal(newVals)

	return &models.ChangeLogEntry{
		EntityKind: doc.Kind,
		RefNbr:     doc.RefNbr,
		Action:     action,
		Field:      strings.Join(fields, ","),
		OldValue:   string(oldJSON),
		NewValue:   string(newJSON),
		Source:     source,
	}
}

// Upsert creates or refreshes one canonical record. Existence is checked
// first so the change-log action distinguishes created, updated and
// status-changed. A refresh that changes nothing observable still advances
// last_synced_at but emits no change-log row.
func (a *Adapter) Upsert(ctx context.Context, doc *models.Document, source string) (UpsertResult, error) {
	existing, err := a.repos.Documents(a.db).GetByIdentity(ctx, doc.Kind, doc.RefNbr)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return UpsertResult{}, fmt.Errorf("%w: loading %s: %v", common.ErrPersistence, doc.Identity(), err)
	}

	if existing == nil {
		err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			if err := a.repos.Documents(tx).Insert(ctx, doc); err != nil {
				return err
			}
			entry := &models.ChangeLogEntry{
				EntityKind: doc.Kind,
				RefNbr:     doc.RefNbr,
				Action:     models.ActionCreated,
				NewValue:   doc.Status,
				Source:     source,
			}
			return a.repos.ChangeLog(tx).Append(ctx, entry)
		})
		if err != nil {
			return UpsertResult{}, fmt.Errorf("%w: creating %s: %v", common.ErrPersistence, doc.Identity(), err)
		}
		return UpsertResult{Action: Created, Changed: true}, nil
	}

	changes := diffDocuments(existing, doc)
	err = dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := a.repos.Documents(tx).Update(ctx, doc); err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		action := models.ActionUpdated
		if existing.Status != doc.Status {
			action = models.ActionStatusChanged
		}
		return a.repos.ChangeLog(tx).Append(ctx, changeEntry(doc, action, changes, source))
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("%w: updating %s: %v", common.ErrPersistence, doc.Identity(), err)
	}

	return UpsertResult{
		Action:        Updated,
		Changed:       len(changes) > 0,
		StatusChanged: existing.Status != doc.Status,
	}, nil
}

// ReplaceApplications swaps the stored application set of one payment for the
// fresh remote set, delete-then-insert in a single transaction. The remote
// has no delete-application event, so scoped full replacement is the only
// safe way to reflect removals.
func (a *Adapter) ReplaceApplications(ctx context.Context, kind models.Kind, paymentRef string, apps []models.Application) error {
	err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := a.repos.Applications(tx)
		if err := repo.DeleteForPayment(ctx, kind, paymentRef); err != nil {
			return err
		}
		for i := range apps {
			if err := repo.Insert(ctx, &apps[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: replacing applications for %s/%s: %v", common.ErrPersistence, kind, paymentRef, err)
	}
	return nil
}

// SaveAttachment stores one attachment exactly once per (ref_nbr, file_id).
// The metadata row is claimed first; losing the claim means another fetch
// already stored the pair and the bytes are dropped. Returns whether the file
// was newly stored.
func (a *Adapter) SaveAttachment(ctx context.Context, att *models.Attachment, data []byte) (bool, error) {
	repo := a.repos.Attachments(a.db)

	inserted, err := repo.Insert(ctx, att)
	if err != nil {
		return false, fmt.Errorf("%w: claiming attachment %s/%s: %v", common.ErrPersistence, att.RefNbr, att.FileID, err)
	}
	if !inserted {
		return false, nil
	}

	if err := a.objects.Put(ctx, att.StorageKey, data); err != nil {
		// Release the claim so a later fetch can retry the upload.
		if delErr := repo.Delete(ctx, att.RefNbr, att.FileID); delErr != nil {
			a.logger.Error(ctx, "releasing attachment claim failed", "ref_nbr", att.RefNbr, "file_id", att.FileID, "error", delErr)
		}
		return false, fmt.Errorf("%w: storing attachment bytes %s: %v", common.ErrPersistence, att.StorageKey, err)
	}
	return true, nil
}

// HasAttachment reports whether the (ref_nbr, file_id) pair is already stored,
// letting the fetcher skip the download entirely.
func (a *Adapter) HasAttachment(ctx context.Context, refNbr, fileID string) (bool, error) {
	return a.repos.Attachments(a.db).Exists(ctx, refNbr, fileID)
}

// ApplyRemoteDate moves a drifted document to the remote system's current
// date and audits the correction.
func (a *Adapter) ApplyRemoteDate(ctx context.Context, kind models.Kind, refNbr string, localDate, remoteDate time.Time) error {
	err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := a.repos.Documents(tx).UpdateDocDate(ctx, kind, refNbr, remoteDate); err != nil {
			return err
		}
		entry := &models.ChangeLogEntry{
			EntityKind: kind,
			RefNbr:     refNbr,
			Action:     models.ActionUpdated,
			Field:      "doc_date",
			OldValue:   localDate.Format(time.RFC3339),
			NewValue:   remoteDate.Format(time.RFC3339),
			Source:     models.SourceDriftVerify,
		}
		return a.repos.ChangeLog(tx).Append(ctx, entry)
	})
	if err != nil {
		return fmt.Errorf("%w: fixing date for %s/%s: %v", common.ErrPersistence, kind, refNbr, err)
	}
	return nil
}

// Exists reports whether the identity is present locally.
func (a *Adapter) Exists(ctx context.Context, kind models.Kind, refNbr string) (bool, error) {
	return a.repos.Documents(a.db).Exists(ctx, kind, refNbr)
}

// CountWindow counts local documents in the window, spanning all kinds the
// window covers.
func (a *Adapter) CountWindow(ctx context.Context, kind models.Kind, start, end time.Time) (int, error) {
	return a.repos.Documents(a.db).CountWindow(ctx, kind.WindowKinds(), start, end)
}

// ListWindow returns local documents in the window.
func (a *Adapter) ListWindow(ctx context.Context, kind models.Kind, start, end time.Time) ([]*models.Document, error) {
	return a.repos.Documents(a.db).ListWindow(ctx, kind.WindowKinds(), start, end)
}

// Package documents persists canonical records keyed by (kind, ref_nbr).
package documents

import (
	"context"
	"time"

	"github.com/finvista/acusync/internal/models"
)

// Repository is the storage contract for canonical documents. The store
// adapter checks existence before writing so it can classify the change-log
// action; the repository itself stays a plain row store.
type Repository interface {
	// GetByIdentity returns the document or common.ErrorNotFound.
	GetByIdentity(ctx context.Context, kind models.Kind, refNbr string) (*models.Document, error)

	// Insert creates a new document row.
	Insert(ctx context.Context, doc *models.Document) error

	// Update rewrites the tracked fields of an existing row and advances
	// last_synced_at even when nothing else changed.
	Update(ctx context.Context, doc *models.Document) error

	// UpdateDocDate moves the primary date of one document (drift fix).
	UpdateDocDate(ctx context.Context, kind models.Kind, refNbr string, date time.Time) error

	// Exists reports whether the identity is present locally.
	Exists(ctx context.Context, kind models.Kind, refNbr string) (bool, error)

	// CountWindow counts local documents of the given kinds whose primary
	// date falls inside [start, end].
	CountWindow(ctx context.Context, kinds []models.Kind, start, end time.Time) (int, error)

	// ListWindow returns local documents of the given kinds inside the window.
	ListWindow(ctx context.Context, kinds []models.Kind, start, end time.Time) ([]*models.Document, error)
}

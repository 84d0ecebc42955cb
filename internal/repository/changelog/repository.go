// Package changelog persists the append-only audit trail of local mutations.
// The engine only ever appends; rows are never updated or deleted.
package changelog

import (
	"context"

	"github.com/finvista/acusync/internal/models"
)

// Repository is the storage contract for change-log rows.
type Repository interface {
	// Append writes one immutable audit row.
	Append(ctx context.Context, entry *models.ChangeLogEntry) error

	// ListForEntity returns the audit rows of one document, newest first.
	ListForEntity(ctx context.Context, kind models.Kind, refNbr string) ([]*models.ChangeLogEntry, error)
}

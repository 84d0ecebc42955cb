// Package attachments persists metadata rows for downloaded files, keyed by
// (ref_nbr, file_id).
package attachments

import (
	"context"

	"github.com/finvista/acusync/internal/models"
)

// Repository is the storage contract for attachment metadata. Idempotency is
// structural: Insert reports false for an already-claimed (ref, file) pair
// instead of erroring, so concurrent fetchers cannot double-store.
type Repository interface {
	// Insert claims the (ref_nbr, file_id) pair. Returns false when the pair
	// already exists; the caller then skips the byte upload.
	Insert(ctx context.Context, att *models.Attachment) (bool, error)

	// Exists reports whether the pair is already stored.
	Exists(ctx context.Context, refNbr, fileID string) (bool, error)

	// Delete removes a claim after a failed byte upload.
	Delete(ctx context.Context, refNbr, fileID string) error
}

// Package applications persists payment-to-invoice application rows. Rows are
// replaced wholesale per parent payment on every re-sync because the remote
// system never reports application deletions.
package applications

import (
	"context"

	"github.com/finvista/acusync/internal/models"
)

// Repository is the storage contract for application rows. Replace semantics
// (delete then insert inside one transaction) live in the store adapter; the
// repository exposes the two halves.
type Repository interface {
	// DeleteForPayment removes all applications of one parent payment.
	DeleteForPayment(ctx context.Context, kind models.Kind, paymentRef string) error

	// Insert creates one application row.
	Insert(ctx context.Context, app *models.Application) error

	// ListForPayment returns the stored applications of one payment.
	ListForPayment(ctx context.Context, kind models.Kind, paymentRef string) ([]*models.Application, error)
}

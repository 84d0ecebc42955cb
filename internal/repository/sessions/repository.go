// Package sessions persists remote session handles. Superseded sessions are
// flagged invalid rather than deleted so the login history stays auditable.
package sessions

import (
	"context"

	"github.com/finvista/acusync/internal/models"
)

// Repository is the storage contract for the session cache.
type Repository interface {
	// Insert stores a freshly acquired session.
	Insert(ctx context.Context, s *models.Session) error

	// LatestValid returns the newest valid session or common.ErrorNotFound.
	LatestValid(ctx context.Context) (*models.Session, error)

	// ListValid returns all sessions still flagged valid.
	ListValid(ctx context.Context) ([]*models.Session, error)

	// Invalidate flags one session invalid.
	Invalidate(ctx context.Context, id string) error

	// InvalidateOthers flags every valid session except keepID invalid.
	InvalidateOthers(ctx context.Context, keepID string) error
}

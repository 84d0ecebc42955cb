package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/dbx"
	"github.com/finvista/acusync/internal/models"
)

// PostgresRepository implements session storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO acumatica_sessions (id, cookie, created_at, expires_at, valid)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, s.ID, s.Cookie, s.CreatedAt, s.ExpiresAt, s.Valid)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LatestValid(ctx context.Context) (*models.Session, error) {
	query := `SELECT id, cookie, created_at, expires_at, valid FROM acumatica_sessions
		WHERE valid ORDER BY created_at DESC LIMIT 1`
	var s models.Session
	err := r.db.QueryRowContext(ctx, query).Scan(&s.ID, &s.Cookie, &s.CreatedAt, &s.ExpiresAt, &s.Valid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select session: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) ListValid(ctx context.Context) ([]*models.Session, error) {
	query := `SELECT id, cookie, created_at, expires_at, valid FROM acumatica_sessions WHERE valid`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select sessions: %w", err)
	}
	defer rows.Close()

	var result []*models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.Cookie, &s.CreatedAt, &s.ExpiresAt, &s.Valid); err != nil {
			return nil, err
		}
		result = append(result, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Invalidate(ctx context.Context, id string) error {
	query := `UPDATE acumatica_sessions SET valid=false WHERE id=$1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InvalidateOthers(ctx context.Context, keepID string) error {
	query := `UPDATE acumatica_sessions SET valid=false WHERE valid AND id <> $1`
	if _, err := r.db.ExecContext(ctx, query, keepID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

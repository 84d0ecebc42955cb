package attachments

import (
	"context"
	"fmt"

	"github.com/finvista/acusync/internal/dbx"
	"github.com/finvista/acusync/internal/models"
)

// PostgresRepository implements attachment metadata storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, att *models.Attachment) (bool, error) {
	query := `
		INSERT INTO attachments (kind, ref_nbr, file_id, filename, storage_key, size, check_image)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ref_nbr, file_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		string(att.Kind), att.RefNbr, att.FileID, att.Filename, att.StorageKey, att.Size, att.CheckImage)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, refNbr, fileID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM attachments WHERE ref_nbr=$1 AND file_id=$2)`
	if err := r.db.QueryRowContext(ctx, query, refNbr, fileID).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, refNbr, fileID string) error {
	query := `DELETE FROM attachments WHERE ref_nbr=$1 AND file_id=$2`
	if _, err := r.db.ExecContext(ctx, query, refNbr, fileID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/dbx"
	"github.com/finvista/acusync/internal/models"
)

// PostgresRepository implements document storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const documentColumns = `kind, ref_nbr, status, doc_date, amount, customer_id, description, raw_payload, last_synced_at, created_at, updated_at`

func scanDocument(row interface{ Scan(dest ...any) error }) (*models.Document, error) {
	var d models.Document
	var kind string
	if err := row.Scan(&kind, &d.RefNbr, &d.Status, &d.DocDate, &d.Amount, &d.CustomerID,
		&d.Description, &d.RawPayload, &d.LastSyncedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Kind = models.Kind(kind)
	return &d, nil
}

func (r *PostgresRepository) GetByIdentity(ctx context.Context, kind models.Kind, refNbr string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE kind=$1 AND ref_nbr=$2`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, string(kind), refNbr))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select document: %w", err)
	}
	return doc, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (kind, ref_nbr, status, doc_date, amount, customer_id, description, raw_payload, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
	`
	_, err := r.db.ExecContext(ctx, query,
		string(doc.Kind), doc.RefNbr, doc.Status, doc.DocDate, doc.Amount,
		doc.CustomerID, doc.Description, doc.RawPayload)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, doc *models.Document) error {
	query := `
		UPDATE documents
		SET status=$3, doc_date=$4, amount=$5, customer_id=$6, description=$7,
			raw_payload=$8, last_synced_at=now(), updated_at=now()
		WHERE kind=$1 AND ref_nbr=$2
	`
	res, err := r.db.ExecContext(ctx, query,
		string(doc.Kind), doc.RefNbr, doc.Status, doc.DocDate, doc.Amount,
		doc.CustomerID, doc.Description, doc.RawPayload)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateDocDate(ctx context.Context, kind models.Kind, refNbr string, date time.Time) error {
	query := `UPDATE documents SET doc_date=$3, updated_at=now() WHERE kind=$1 AND ref_nbr=$2`
	res, err := r.db.ExecContext(ctx, query, string(kind), refNbr, date)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Exists(ctx context.Context, kind models.Kind, refNbr string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM documents WHERE kind=$1 AND ref_nbr=$2)`
	if err := r.db.QueryRowContext(ctx, query, string(kind), refNbr).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// kindPlaceholders renders "($3, $4, ...)" for the kind list, with matching args.
func kindPlaceholders(kinds []models.Kind, firstIndex int) (string, []any) {
	parts := make([]string, len(kinds))
	args := make([]any, len(kinds))
	for i, k := range kinds {
		parts[i] = "$" + strconv.Itoa(firstIndex+i)
		args[i] = string(k)
	}
	return "(" + strings.Join(parts, ", ") + ")", args
}

func (r *PostgresRepository) CountWindow(ctx context.Context, kinds []models.Kind, start, end time.Time) (int, error) {
	placeholders, kindArgs := kindPlaceholders(kinds, 3)
	query := `SELECT COUNT(*) FROM documents WHERE doc_date >= $1 AND doc_date <= $2 AND kind IN ` + placeholders

	args := append([]any{start, end}, kindArgs...)
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListWindow(ctx context.Context, kinds []models.Kind, start, end time.Time) ([]*models.Document, error) {
	placeholders, kindArgs := kindPlaceholders(kinds, 3)
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE doc_date >= $1 AND doc_date <= $2 AND kind IN ` + placeholders + ` ORDER BY ref_nbr`

	args := append([]any{start, end}, kindArgs...)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select documents: %w", err)
	}
	defer rows.Close()

	var result []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

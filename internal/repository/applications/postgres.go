package applications

import (
	"context"
	"fmt"

	"github.com/finvista/acusync/internal/dbx"
	"github.com/finvista/acusync/internal/models"
)

// PostgresRepository implements application storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) DeleteForPayment(ctx context.Context, kind models.Kind, paymentRef string) error {
	query := `DELETE FROM applications WHERE payment_kind=$1 AND payment_ref=$2`
	if _, err := r.db.ExecContext(ctx, query, string(kind), paymentRef); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Insert(ctx context.Context, app *models.Application) error {
	query := `
		INSERT INTO applications (payment_kind, payment_ref, invoice_ref, doc_type, amount, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		string(app.PaymentKind), app.PaymentRef, app.InvoiceRef, app.DocType, app.Amount, app.AppliedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListForPayment(ctx context.Context, kind models.Kind, paymentRef string) ([]*models.Application, error) {
	query := `SELECT payment_kind, payment_ref, invoice_ref, doc_type, amount, applied_at
		FROM applications WHERE payment_kind=$1 AND payment_ref=$2 ORDER BY invoice_ref`
	rows, err := r.db.QueryContext(ctx, query, string(kind), paymentRef)
	if err != nil {
		return nil, fmt.Errorf("failed to select applications: %w", err)
	}
	defer rows.Close()

	var result []*models.Application
	for rows.Next() {
		var a models.Application
		var paymentKind string
		if err := rows.Scan(&paymentKind, &a.PaymentRef, &a.InvoiceRef, &a.DocType, &a.Amount, &a.AppliedAt); err != nil {
			return nil, err
		}
		a.PaymentKind = models.Kind(paymentKind)
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

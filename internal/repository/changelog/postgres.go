package changelog

import (
	"context"
	"fmt"

	"github.com/finvista/acusync/internal/dbx"
	"github.com/finvista/acusync/internal/models"
)

// PostgresRepository implements change-log storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, entry *models.ChangeLogEntry) error {
	query := `
		INSERT INTO change_log (entity_kind, ref_nbr, action, field, old_value, new_value, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		string(entry.EntityKind), entry.RefNbr, string(entry.Action),
		entry.Field, entry.OldValue, entry.NewValue, entry.Source)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListForEntity(ctx context.Context, kind models.Kind, refNbr string) ([]*models.ChangeLogEntry, error) {
	query := `SELECT id, entity_kind, ref_nbr, action, field, old_value, new_value, source, logged_at
		FROM change_log WHERE entity_kind=$1 AND ref_nbr=$2 ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query, string(kind), refNbr)
	if err != nil {
		return nil, fmt.Errorf("failed to select change log: %w", err)
	}
	defer rows.Close()

	var result []*models.ChangeLogEntry
	for rows.Next() {
		var e models.ChangeLogEntry
		var entityKind, action string
		if err := rows.Scan(&e.ID, &entityKind, &e.RefNbr, &action, &e.Field,
			&e.OldValue, &e.NewValue, &e.Source, &e.LoggedAt); err != nil {
			return nil, err
		}
		e.EntityKind = models.Kind(entityKind)
		e.Action = models.ChangeAction(action)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

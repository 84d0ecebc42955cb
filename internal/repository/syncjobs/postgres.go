package syncjobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/dbx"
	"github.com/finvista/acusync/internal/models"
)

// PostgresRepository implements sync-job storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const jobColumns = `id, kind, window_start, window_end, status,
	created_count, updated_count, applications_synced, files_synced, records_processed,
	current_item, total, errors, error_message, cancel_requested,
	created_at, updated_at, finished_at`

func scanJob(row interface{ Scan(dest ...any) error }) (*models.SyncJob, error) {
	var j models.SyncJob
	var kind, status string
	var errs []byte
	var finishedAt sql.NullTime
	if err := row.Scan(&j.ID, &kind, &j.WindowStart, &j.WindowEnd, &status,
		&j.Progress.Created, &j.Progress.Updated, &j.Progress.ApplicationsSynced,
		&j.Progress.FilesSynced, &j.Progress.RecordsProcessed,
		&j.CurrentItem, &j.Total, &errs, &j.ErrorMessage, &j.CancelRequested,
		&j.CreatedAt, &j.UpdatedAt, &finishedAt); err != nil {
		return nil, err
	}
	j.Kind = models.Kind(kind)
	j.Status = models.JobStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		j.FinishedAt = &t
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &j.Errors); err != nil {
			return nil, fmt.Errorf("decoding job errors: %w", err)
		}
	}
	return &j, nil
}

func (r *PostgresRepository) Create(ctx context.Context, job *models.SyncJob) error {
	query := `
		INSERT INTO sync_jobs (id, kind, window_start, window_end, status, errors)
		VALUES ($1, $2, $3, $4, $5, '[]'::jsonb)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, string(job.Kind), job.WindowStart, job.WindowEnd, string(job.Status))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE id=$1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select job: %w", err)
	}
	return job, nil
}

func (r *PostgresRepository) FindActive(ctx context.Context, kind models.Kind, start, end time.Time) (*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs
		WHERE kind=$1 AND status IN ('pending', 'running')
			AND window_end >= $2 AND window_start <= $3
		ORDER BY created_at DESC LIMIT 1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, string(kind), start, end))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select active job: %w", err)
	}
	return job, nil
}

func (r *PostgresRepository) MarkRunning(ctx context.Context, id string) error {
	query := `UPDATE sync_jobs SET status='running', updated_at=now() WHERE id=$1 AND status='pending'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrJobNotFound
	}
	return nil
}

func (r *PostgresRepository) Advance(ctx context.Context, id string, delta models.Progress, currentItem string, total int) error {
	query := `
		UPDATE sync_jobs SET
			created_count = created_count + $2,
			updated_count = updated_count + $3,
			applications_synced = applications_synced + $4,
			files_synced = files_synced + $5,
			records_processed = records_processed + $6,
			current_item = $7,
			total = $8,
			updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id,
		delta.Created, delta.Updated, delta.ApplicationsSynced, delta.FilesSynced,
		delta.RecordsProcessed, currentItem, total)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrJobNotFound
	}
	return nil
}

func (r *PostgresRepository) Finish(ctx context.Context, id string, status models.JobStatus, errorMessage string, errs []string) error {
	if errs == nil {
		errs = []string{}
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encoding job errors: %w", err)
	}

	query := `UPDATE sync_jobs SET status=$2, error_message=$3, errors=$4, finished_at=now(), updated_at=now() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, query, id, string(status), errorMessage, encoded)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrJobNotFound
	}
	return nil
}

func (r *PostgresRepository) RequestCancel(ctx context.Context, id string) error {
	query := `UPDATE sync_jobs SET cancel_requested=true, updated_at=now() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrJobNotFound
	}
	return nil
}

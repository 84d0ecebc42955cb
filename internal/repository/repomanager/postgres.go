package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/finvista/acusync/internal/dbx"
	"github.com/finvista/acusync/internal/migrations"
	"github.com/finvista/acusync/internal/repository/applications"
	"github.com/finvista/acusync/internal/repository/attachments"
	"github.com/finvista/acusync/internal/repository/changelog"
	"github.com/finvista/acusync/internal/repository/documents"
	"github.com/finvista/acusync/internal/repository/sessions"
	"github.com/finvista/acusync/internal/repository/syncjobs"
)

// Postgres builds the PostgreSQL repositories.
type Postgres struct{}

// NewPostgres returns the PostgreSQL repository manager.
func NewPostgres() *Postgres {
	return &Postgres{}
}

func (Postgres) Documents(db dbx.DBTX) documents.Repository {
	return documents.NewPostgresRepository(db)
}

func (Postgres) Applications(db dbx.DBTX) applications.Repository {
	return applications.NewPostgresRepository(db)
}

func (Postgres) Attachments(db dbx.DBTX) attachments.Repository {
	return attachments.NewPostgresRepository(db)
}

func (Postgres) ChangeLog(db dbx.DBTX) changelog.Repository {
	return changelog.NewPostgresRepository(db)
}

func (Postgres) SyncJobs(db dbx.DBTX) syncjobs.Repository {
	return syncjobs.NewPostgresRepository(db)
}

func (Postgres) Sessions(db dbx.DBTX) sessions.Repository {
	return sessions.NewPostgresRepository(db)
}

// OpenDB opens the PostgreSQL database and applies the embedded goose
// migrations.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("goose dialect error: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return db, nil
}

// Package repomanager hands out repositories bound to a DBTX, letting callers
// use the same repository code inside and outside transactions.
package repomanager

import (
	"github.com/finvista/acusync/internal/dbx"
	"github.com/finvista/acusync/internal/repository/applications"
	"github.com/finvista/acusync/internal/repository/attachments"
	"github.com/finvista/acusync/internal/repository/changelog"
	"github.com/finvista/acusync/internal/repository/documents"
	"github.com/finvista/acusync/internal/repository/sessions"
	"github.com/finvista/acusync/internal/repository/syncjobs"
)

// RepositoryManager builds repositories over an arbitrary DBTX
// (*sql.DB or *sql.Tx).
type RepositoryManager interface {
	Documents(db dbx.DBTX) documents.Repository
	Applications(db dbx.DBTX) applications.Repository
	Attachments(db dbx.DBTX) attachments.Repository
	ChangeLog(db dbx.DBTX) changelog.Repository
	SyncJobs(db dbx.DBTX) syncjobs.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}

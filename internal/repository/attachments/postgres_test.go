package attachments

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/finvista/acusync/internal/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestInsert_ClaimsNewPair(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO attachments .*ON CONFLICT \(ref_nbr, file_id\) DO NOTHING`).
		WithArgs("payment", "000042", "f-1", "check.tif", "payment/000042/1700000000/check.tif", int64(2048), true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := repo.Insert(context.Background(), &models.Attachment{
		Kind:       models.KindPayment,
		RefNbr:     "000042",
		FileID:     "f-1",
		Filename:   "check.tif",
		StorageKey: "payment/000042/1700000000/check.tif",
		Size:       2048,
		CheckImage: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inserted {
		t.Fatalf("want inserted=true for a new pair")
	}
}

func TestInsert_ExistingPairIsNotAnError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO attachments .*ON CONFLICT \(ref_nbr, file_id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.Insert(context.Background(), &models.Attachment{
		Kind: models.KindPayment, RefNbr: "000042", FileID: "f-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted {
		t.Fatalf("want inserted=false for an already-claimed pair")
	}
}

func TestInsert_DBExecError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO attachments`).
		WillReturnError(errors.New("db is down"))

	_, err := repo.Insert(context.Background(), &models.Attachment{
		Kind: models.KindPayment, RefNbr: "000042", FileID: "f-1",
	})
	if err == nil || !regexp.MustCompile(`db error: .*db is down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestExists(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM attachments WHERE ref_nbr=\$1 AND file_id=\$2\)`).
		WithArgs("000042", "f-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := repo.Exists(context.Background(), "000042", "f-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("want exists=false")
	}
}

func TestDelete_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM attachments WHERE ref_nbr=\$1 AND file_id=\$2`).
		WithArgs("000042", "f-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), "000042", "f-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

package nodes

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/openscholar/platform/internal/common"
	"github.com/openscholar/platform/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "title", "is_public", "is_registration", "is_deleted", "contributors", "addons", "created_at"}).
		AddRow("node1", "Reproducibility Study", true, false, false,
			[]byte(`{"u-1":"admin","u-2":"write"}`), []byte(`["osfstorage","wiki"]`), time.Now())
	mock.ExpectQuery(`SELECT\s+id,\s*title,.*FROM\s+nodes\s+WHERE\s+id=\$1`).
		WithArgs("node1").
		WillReturnRows(rows)

	n, err := repo.GetByID(context.Background(), "node1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if !n.IsPublic || n.Contributors["u-1"] != models.PermAdmin || !n.HasAddon("wiki") {
		t.Fatalf("unexpected node: %+v", n)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+id,\s*title,.*FROM\s+nodes\s+WHERE\s+id=\$1`).
		WithArgs("gone").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "gone")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now())
	mock.ExpectQuery(`INSERT\s+INTO\s+nodes`).
		WithArgs("node1", "Reproducibility Study", false, false,
			[]byte(`{"u-1":"admin"}`), []byte(`["osfstorage"]`)).
		WillReturnRows(rows)

	n := &models.Node{
		ID:           "node1",
		Title:        "Reproducibility Study",
		Contributors: map[string]string{"u-1": models.PermAdmin},
		Addons:       []string{"osfstorage"},
	}
	got, err := repo.Create(context.Background(), n)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("created_at not filled in: %+v", got)
	}
}

package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jerome/simply-versioned/internal/versioning"
)

var versionRowColumns = []string{"id", "owner_id", "owner_type", "number", "snapshot", "created_at"}

// newMockPostgresStore returns a Postgres store over sqlmock.
func newMockPostgresStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	store := NewPostgresStoreFromDB(sqlx.NewDb(db, "postgres"), nil)
	t.Cleanup(func() {
		store.Close()
	})
	return store, mock
}

func TestPostgresStore_NextNumber(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(number), 0) + 1 FROM versions WHERE owner_id = $1 AND owner_type = $2`)).
		WithArgs(int64(1), "aardvark").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(int64(4)))

	got, err := store.NextNumber(context.Background(), aardvark1)
	if err != nil {
		t.Fatalf("NextNumber() error = %v", err)
	}
	if got != 4 {
		t.Errorf("NextNumber() = %d, want 4", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_Append(t *testing.T) {
	insert := regexp.QuoteMeta(`INSERT INTO versions (id, owner_id, owner_type, number, snapshot, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	v := &versioning.Version{
		ID:        "0b9d3a7e-6f5c-4a59-9f1e-2f7a8c1d5e01",
		Owner:     aardvark1,
		Number:    2,
		Snapshot:  []byte("format: 1\n"),
		CreatedAt: testTime,
	}

	t.Run("inserts version", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		mock.ExpectExec(insert).
			WithArgs(v.ID, int64(1), "aardvark", int64(2), v.Snapshot, testTime, testTime).
			WillReturnResult(sqlmock.NewResult(0, 1))

		got, err := store.Append(context.Background(), v)
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if got.ID != v.ID || got.Number != 2 {
			t.Errorf("Append() = %+v", got)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("maps unique violation", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		mock.ExpectExec(insert).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: "23505"})

		_, err := store.Append(context.Background(), v)
		if !errors.Is(err, versioning.ErrConstraintViolation) {
			t.Errorf("Append() error = %v, want ErrConstraintViolation", err)
		}
	})

	t.Run("passes other errors through", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		dbErr := errors.New("connection reset")
		mock.ExpectExec(insert).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnError(dbErr)

		_, err := store.Append(context.Background(), v)
		if !errors.Is(err, dbErr) {
			t.Errorf("Append() error = %v, want %v", err, dbErr)
		}
		if errors.Is(err, versioning.ErrConstraintViolation) {
			t.Error("Append() classified a connection error as a constraint violation")
		}
	})
}

func TestPostgresStore_Get(t *testing.T) {
	query := regexp.QuoteMeta(`SELECT id, owner_id, owner_type, number, snapshot, created_at FROM versions WHERE owner_id = $1 AND owner_type = $2 AND number = $3`)

	t.Run("found", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		mock.ExpectQuery(query).
			WithArgs(int64(1), "aardvark", int64(3)).
			WillReturnRows(sqlmock.NewRows(versionRowColumns).
				AddRow("v-3", int64(1), "aardvark", int64(3), []byte("snap"), testTime))

		got, err := store.Get(context.Background(), aardvark1, 3)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.ID != "v-3" || got.Number != 3 || got.Owner != aardvark1 {
			t.Errorf("Get() = %+v", got)
		}
		if string(got.Snapshot) != "snap" {
			t.Errorf("Snapshot = %q, want %q", got.Snapshot, "snap")
		}
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		mock.ExpectQuery(query).
			WithArgs(int64(1), "aardvark", int64(9)).
			WillReturnRows(sqlmock.NewRows(versionRowColumns))

		_, err := store.Get(context.Background(), aardvark1, 9)
		if !errors.Is(err, versioning.ErrVersionNotFound) {
			t.Errorf("Get() error = %v, want ErrVersionNotFound", err)
		}
	})
}

func TestPostgresStore_ListByOwner(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM versions WHERE owner_id = $1 AND owner_type = $2 ORDER BY number DESC`)).
		WithArgs(int64(1), "aardvark").
		WillReturnRows(sqlmock.NewRows(versionRowColumns).
			AddRow("v-2", int64(1), "aardvark", int64(2), []byte("b"), testTime).
			AddRow("v-1", int64(1), "aardvark", int64(1), []byte("a"), testTime))

	got, err := store.ListByOwner(context.Background(), aardvark1, versioning.Descending)
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if n := numbers(got); !equalNumbers(n, []int64{2, 1}) {
		t.Errorf("ListByOwner() = %v, want [2 1]", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStore_DeleteOlderThanOrEqual(t *testing.T) {
	t.Run("deletes through threshold", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM versions WHERE owner_id = $1 AND owner_type = $2 AND number <= $3`)).
			WithArgs(int64(1), "aardvark", int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := store.DeleteOlderThanOrEqual(context.Background(), aardvark1, 2)
		if err != nil {
			t.Fatalf("DeleteOlderThanOrEqual() error = %v", err)
		}
		if n != 2 {
			t.Errorf("DeleteOlderThanOrEqual() = %d, want 2", n)
		}
	})

	t.Run("threshold below one issues no query", func(t *testing.T) {
		store, mock := newMockPostgresStore(t)

		n, err := store.DeleteOlderThanOrEqual(context.Background(), aardvark1, 0)
		if err != nil {
			t.Fatalf("DeleteOlderThanOrEqual() error = %v", err)
		}
		if n != 0 {
			t.Errorf("DeleteOlderThanOrEqual() = %d, want 0", n)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unexpected query: %v", err)
		}
	})
}

func TestPostgresStore_DeleteAllForOwner(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM versions WHERE owner_id = $1 AND owner_type = $2`)).
		WithArgs(int64(1), "gnu").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.DeleteAllForOwner(context.Background(), gnu1)
	if err != nil {
		t.Fatalf("DeleteAllForOwner() error = %v", err)
	}
	if n != 4 {
		t.Errorf("DeleteAllForOwner() = %d, want 4", n)
	}
}

func TestIsPostgresUniqueViolation(t *testing.T) {
	if !isPostgresUniqueViolation(&pq.Error{Code: "23505"}) {
		t.Error("isPostgresUniqueViolation(23505) = false, want true")
	}
	if isPostgresUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("isPostgresUniqueViolation(23503) = true, want false")
	}
	if isPostgresUniqueViolation(errors.New("boom")) {
		t.Error("isPostgresUniqueViolation(plain error) = true, want false")
	}
}

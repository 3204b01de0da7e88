package testutil

import (
	"context"
	"testing"

	"github.com/jerome/simply-versioned/internal/database"
	"github.com/jerome/simply-versioned/internal/versioning"
)

// NewTestStore creates a new in-memory SQLite version store with schema applied.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) *database.SQLStore {
	t.Helper()

	store, err := database.NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return store
}

// FaultyStore wraps a Store and injects failures.
type FaultyStore struct {
	versioning.Store

	// AppendConflicts makes that many Append calls fail with
	// ErrConstraintViolation before reaching the wrapped store.
	AppendConflicts int

	// AppendErr, NextNumberErr and DeleteErr replace the result of the
	// respective calls when set.
	AppendErr     error
	NextNumberErr error
	DeleteErr     error

	Appends int
}

func (s *FaultyStore) NextNumber(ctx context.Context, owner versioning.Owner) (int64, error) {
	if s.NextNumberErr != nil {
		return 0, s.NextNumberErr
	}
	return s.Store.NextNumber(ctx, owner)
}

func (s *FaultyStore) Append(ctx context.Context, v *versioning.Version) (*versioning.Version, error) {
	s.Appends++
	if s.AppendErr != nil {
		return nil, s.AppendErr
	}
	if s.AppendConflicts > 0 {
		s.AppendConflicts--
		return nil, versioning.ErrConstraintViolation
	}
	return s.Store.Append(ctx, v)
}

func (s *FaultyStore) DeleteOlderThanOrEqual(ctx context.Context, owner versioning.Owner, threshold int64) (int64, error) {
	if s.DeleteErr != nil {
		return 0, s.DeleteErr
	}
	return s.Store.DeleteOlderThanOrEqual(ctx, owner, threshold)
}

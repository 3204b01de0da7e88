package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jerome/simply-versioned/internal/versioning"
)

func TestSQLiteStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "versions.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := store.CheckMigrations(ctx); err == nil {
		t.Error("CheckMigrations() on fresh database expected error, got nil")
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	appendN(t, store, aardvark1, 2)
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Versions survive reopening.
	reopened, err := NewSQLiteStore(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore() reopen error = %v", err)
	}
	defer reopened.Close()

	if err := reopened.CheckMigrations(ctx); err != nil {
		t.Errorf("CheckMigrations() after reopen error = %v", err)
	}
	current, err := reopened.Current(ctx, aardvark1)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if current.Number != 2 {
		t.Errorf("Current().Number = %d, want 2", current.Number)
	}
}

func TestSQLiteStore_DuplicateIDIsConstraintViolation(t *testing.T) {
	store := newTestBackend(t, "sqlite")
	ctx := context.Background()

	v := &versioning.Version{ID: "same", Owner: aardvark1, Number: 1, Snapshot: []byte("a"), CreatedAt: testTime}
	if _, err := store.Append(ctx, v); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// A colliding row id is reported the same way as a colliding number.
	again := *v
	again.Number = 2
	_, err := store.Append(ctx, &again)
	if !errors.Is(err, versioning.ErrConstraintViolation) {
		t.Errorf("Append() error = %v, want ErrConstraintViolation", err)
	}
}

func TestIsSQLiteUniqueViolation(t *testing.T) {
	if isSQLiteUniqueViolation(errors.New("UNIQUE constraint failed")) {
		t.Error("isSQLiteUniqueViolation(plain error) = true, want false")
	}
}

type debugRecorder struct {
	versioning.NopLogger
	mu    sync.Mutex
	lines []string
}

func (r *debugRecorder) Debug(msg string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, strings.TrimSpace(fmt.Sprintln(append([]any{msg}, args...)...)))
}

func (r *debugRecorder) find(msg string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range r.lines {
		if strings.HasPrefix(line, msg) {
			return line
		}
	}
	return ""
}

func TestSQLiteStore_DebugLogging(t *testing.T) {
	logger := &debugRecorder{}
	store, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	appendN(t, store, aardvark1, 3)
	dup := &versioning.Version{ID: "dup", Owner: aardvark1, Number: 3, Snapshot: []byte("x"), CreatedAt: testTime}
	if _, err := store.Append(ctx, dup); !errors.Is(err, versioning.ErrConstraintViolation) {
		t.Fatalf("Append() error = %v, want ErrConstraintViolation", err)
	}
	if _, err := store.DeleteOlderThanOrEqual(ctx, aardvark1, 2); err != nil {
		t.Fatalf("DeleteOlderThanOrEqual() error = %v", err)
	}
	if _, err := store.DeleteAllForOwner(ctx, aardvark1); err != nil {
		t.Fatalf("DeleteAllForOwner() error = %v", err)
	}

	tests := []struct {
		msg  string
		want string
	}{
		{"version number already taken", "number 3"},
		{"versions deleted", "count 2"},
		{"history deleted", "count 1"},
	}
	for _, tt := range tests {
		line := logger.find(tt.msg)
		if line == "" {
			t.Errorf("no %q debug line in %v", tt.msg, logger.lines)
			continue
		}
		if !strings.Contains(line, tt.want) {
			t.Errorf("debug line %q missing %q", line, tt.want)
		}
	}
}

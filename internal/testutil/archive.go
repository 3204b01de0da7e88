package testutil

import (
	"context"
	"errors"

	"github.com/jerome/simply-versioned/internal/archive"
	"github.com/jerome/simply-versioned/internal/versioning"
)

// NewTestArchive creates a new in-memory archive for testing.
func NewTestArchive() *archive.MemoryArchive {
	return archive.NewMemoryArchive()
}

// ErrArchiveUnavailable is returned by BrokenArchive.
var ErrArchiveUnavailable = errors.New("archive unavailable")

// BrokenArchive fails every call.
type BrokenArchive struct{}

func (BrokenArchive) Put(context.Context, *versioning.Version) error { return ErrArchiveUnavailable }

func (BrokenArchive) Get(context.Context, versioning.Owner, int64) (*versioning.Version, error) {
	return nil, ErrArchiveUnavailable
}

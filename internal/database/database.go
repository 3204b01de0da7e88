// Package database provides the version store backends: SQLite, Postgres,
// Badger and an in-process map.
package database

import (
	"context"

	"github.com/jerome/simply-versioned/internal/versioning"
)

// Backend is a versioning.Store with a lifecycle.
type Backend interface {
	versioning.Store

	// Migrate brings the schema up to date. Backends without a schema
	// return nil.
	Migrate(ctx context.Context) error

	// CheckMigrations returns an error if the schema is not at the latest
	// version.
	CheckMigrations(ctx context.Context) error

	Close() error
}

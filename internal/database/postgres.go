package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jerome/simply-versioned/internal/database/migrations"
	"github.com/jerome/simply-versioned/internal/versioning"
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 25
	connMaxLifetime = 5 * time.Minute
	connMaxIdleTime = 5 * time.Minute

	pgUniqueViolationCode = "23505"
)

// NewPostgresStore connects to Postgres and returns a version store.
func NewPostgresStore(dsn string, logger versioning.Logger) (*SQLStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	return NewPostgresStoreFromDB(db, logger), nil
}

// NewPostgresStoreFromDB wraps an existing connection. db must have been
// opened with the "postgres" driver name so that queries are rebound to $n
// placeholders.
func NewPostgresStoreFromDB(db *sqlx.DB, logger versioning.Logger) *SQLStore {
	return newSQLStore(db, migrations.Postgres, isPostgresUniqueViolation, logger)
}

func isPostgresUniqueViolation(err error) bool {
	var pgErr *pq.Error
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode
}

package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jerome/simply-versioned/internal/config"
	"github.com/jerome/simply-versioned/internal/versioning"
)

// NewStoreFromConfig creates a Backend based on the database config type.
// The schema is not migrated; call Backend.Migrate.
func NewStoreFromConfig(cfg config.DatabaseConfig, logger versioning.Logger) (Backend, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data_dir: %w", err)
		}
		store, err := NewSQLiteStore(filepath.Join(cfg.DataDir, "versions.db"), logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dsn required for postgres database")
		}
		store, err := NewPostgresStore(cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "badger":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for badger database")
		}
		store, err := OpenBadgerStore(BadgerConfig{
			Path:       filepath.Join(cfg.DataDir, "versions.badger"),
			SyncWrites: true,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jerome/simply-versioned/internal/database/migrations"
	"github.com/jerome/simply-versioned/internal/versioning"
)

const versionColumns = `id, owner_id, owner_type, number, snapshot, created_at`

// versionRow is the versions table row.
type versionRow struct {
	ID        string    `db:"id"`
	OwnerID   int64     `db:"owner_id"`
	OwnerType string    `db:"owner_type"`
	Number    int64     `db:"number"`
	Snapshot  []byte    `db:"snapshot"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *versionRow) toVersion() *versioning.Version {
	return &versioning.Version{
		ID:        r.ID,
		Owner:     versioning.Owner{ID: r.OwnerID, Type: r.OwnerType},
		Number:    r.Number,
		Snapshot:  r.Snapshot,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

// SQLStore implements versioning.Store over a SQL database. Queries are
// written with ? placeholders and rebound for the driver.
type SQLStore struct {
	db                *sqlx.DB
	dialect           migrations.Dialect
	isUniqueViolation func(error) bool
	logger            versioning.Logger
}

var _ Backend = (*SQLStore)(nil)

func newSQLStore(db *sqlx.DB, dialect migrations.Dialect, isUniqueViolation func(error) bool, logger versioning.Logger) *SQLStore {
	if logger == nil {
		logger = versioning.NewNopLogger()
	}
	return &SQLStore{
		db:                db,
		dialect:           dialect,
		isUniqueViolation: isUniqueViolation,
		logger:            logger,
	}
}

// DB returns the underlying connection pool.
func (s *SQLStore) DB() *sqlx.DB { return s.db }

func (s *SQLStore) Migrate(ctx context.Context) error {
	if err := migrations.MigrateUp(s.db.DB, s.dialect); err != nil {
		return fmt.Errorf("migrating %s database: %w", s.dialect, err)
	}
	return nil
}

func (s *SQLStore) CheckMigrations(ctx context.Context) error {
	return migrations.CheckDBMigrationStatus(s.db.DB, s.dialect)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) NextNumber(ctx context.Context, owner versioning.Owner) (int64, error) {
	query := s.db.Rebind(`SELECT COALESCE(MAX(number), 0) + 1 FROM versions WHERE owner_id = ? AND owner_type = ?`)
	var next int64
	if err := s.db.GetContext(ctx, &next, query, owner.ID, owner.Type); err != nil {
		return 0, fmt.Errorf("querying max version number: %w", err)
	}
	return next, nil
}

func (s *SQLStore) Append(ctx context.Context, v *versioning.Version) (*versioning.Version, error) {
	query := s.db.Rebind(`INSERT INTO versions (id, owner_id, owner_type, number, snapshot, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	createdAt := v.CreatedAt.UTC()
	_, err := s.db.ExecContext(ctx, query, v.ID, v.Owner.ID, v.Owner.Type, v.Number, v.Snapshot, createdAt, createdAt)
	if err != nil {
		if s.isUniqueViolation(err) {
			s.logger.Debug("version number already taken", "dialect", string(s.dialect), "owner", v.Owner.String(), "number", v.Number)
			return nil, fmt.Errorf("%w: %s number %d", versioning.ErrConstraintViolation, v.Owner, v.Number)
		}
		return nil, fmt.Errorf("inserting version: %w", err)
	}

	out := *v
	out.CreatedAt = createdAt
	return &out, nil
}

func (s *SQLStore) ListByOwner(ctx context.Context, owner versioning.Owner, order versioning.Order) ([]*versioning.Version, error) {
	direction := "DESC"
	if order == versioning.Ascending {
		direction = "ASC"
	}
	query := s.db.Rebind(`SELECT ` + versionColumns + ` FROM versions WHERE owner_id = ? AND owner_type = ? ORDER BY number ` + direction)

	var rows []versionRow
	if err := s.db.SelectContext(ctx, &rows, query, owner.ID, owner.Type); err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}

	result := make([]*versioning.Version, len(rows))
	for i := range rows {
		result[i] = rows[i].toVersion()
	}
	return result, nil
}

func (s *SQLStore) Count(ctx context.Context, owner versioning.Owner) (int64, error) {
	query := s.db.Rebind(`SELECT COUNT(*) FROM versions WHERE owner_id = ? AND owner_type = ?`)
	var n int64
	if err := s.db.GetContext(ctx, &n, query, owner.ID, owner.Type); err != nil {
		return 0, fmt.Errorf("counting versions: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Get(ctx context.Context, owner versioning.Owner, number int64) (*versioning.Version, error) {
	return s.getOne(ctx, `AND number = ?`, owner, number)
}

func (s *SQLStore) First(ctx context.Context, owner versioning.Owner) (*versioning.Version, error) {
	return s.getOne(ctx, `ORDER BY number ASC LIMIT 1`, owner)
}

func (s *SQLStore) Current(ctx context.Context, owner versioning.Owner) (*versioning.Version, error) {
	return s.getOne(ctx, `ORDER BY number DESC LIMIT 1`, owner)
}

func (s *SQLStore) Next(ctx context.Context, owner versioning.Owner, number int64) (*versioning.Version, error) {
	return s.getOne(ctx, `AND number > ? ORDER BY number ASC LIMIT 1`, owner, number)
}

func (s *SQLStore) Previous(ctx context.Context, owner versioning.Owner, number int64) (*versioning.Version, error) {
	return s.getOne(ctx, `AND number < ? ORDER BY number DESC LIMIT 1`, owner, number)
}

// getOne selects a single version of owner. tail is appended to the owner
// filter and args follow the owner arguments.
func (s *SQLStore) getOne(ctx context.Context, tail string, owner versioning.Owner, args ...any) (*versioning.Version, error) {
	query := s.db.Rebind(`SELECT ` + versionColumns + ` FROM versions WHERE owner_id = ? AND owner_type = ? ` + tail)

	var row versionRow
	err := s.db.GetContext(ctx, &row, query, append([]any{owner.ID, owner.Type}, args...)...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, versioning.ErrVersionNotFound
		}
		return nil, fmt.Errorf("finding version: %w", err)
	}
	return row.toVersion(), nil
}

func (s *SQLStore) DeleteOlderThanOrEqual(ctx context.Context, owner versioning.Owner, threshold int64) (int64, error) {
	if threshold < 1 {
		return 0, nil
	}
	query := s.db.Rebind(`DELETE FROM versions WHERE owner_id = ? AND owner_type = ? AND number <= ?`)
	n, err := s.exec(ctx, query, owner.ID, owner.Type, threshold)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("versions deleted", "dialect", string(s.dialect), "owner", owner.String(), "through", threshold, "count", n)
	return n, nil
}

func (s *SQLStore) DeleteAllForOwner(ctx context.Context, owner versioning.Owner) (int64, error) {
	query := s.db.Rebind(`DELETE FROM versions WHERE owner_id = ? AND owner_type = ?`)
	n, err := s.exec(ctx, query, owner.ID, owner.Type)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("history deleted", "dialect", string(s.dialect), "owner", owner.String(), "count", n)
	return n, nil
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting versions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted versions: %w", err)
	}
	return n, nil
}

package database

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jerome/simply-versioned/internal/versioning"
)

// BadgerConfig holds configuration for a Badger version store.
type BadgerConfig struct {
	// Path is the directory for Badger files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives Badger's internal log lines. nil disables them.
	Logger versioning.Logger
}

// badgerLogger adapts versioning.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger versioning.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

// badgerRecord is the value stored under a version key. Owner and number
// live in the key.
type badgerRecord struct {
	ID        string
	Snapshot  []byte
	CreatedAt time.Time
}

// BadgerStore implements versioning.Store on Badger. Keys are
//
//	versions/<owner type>/<owner id, 20 digits>/<number, 20 digits>
//
// so a prefix scan over one owner visits versions in number order.
// Uniqueness of (owner, number) relies on Badger's transaction conflict
// detection: Append reads the key before writing it.
type BadgerStore struct {
	db *badger.DB
}

var _ Backend = (*BadgerStore)(nil)

// OpenBadgerStore opens a Badger database with cfg.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent badger store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("creating badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return NewBadgerStoreFromDB(db), nil
}

// NewBadgerStoreFromDB wraps an open database. Close closes db.
func NewBadgerStoreFromDB(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (b *BadgerStore) Migrate(context.Context) error         { return nil }
func (b *BadgerStore) CheckMigrations(context.Context) error { return nil }

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func ownerPrefix(owner versioning.Owner) []byte {
	return []byte(fmt.Sprintf("versions/%s/%020d/", owner.Type, owner.ID))
}

func versionKey(owner versioning.Owner, number int64) []byte {
	return append(ownerPrefix(owner), fmt.Sprintf("%020d", number)...)
}

func numberFromKey(prefix, key []byte) (int64, error) {
	number, err := strconv.ParseInt(string(key[len(prefix):]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version key %q: %w", key, err)
	}
	return number, nil
}

func decodeItem(owner versioning.Owner, prefix []byte, item *badger.Item) (*versioning.Version, error) {
	number, err := numberFromKey(prefix, item.Key())
	if err != nil {
		return nil, err
	}

	var rec badgerRecord
	err = item.Value(func(val []byte) error {
		return gob.NewDecoder(bytes.NewReader(val)).Decode(&rec)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding version %d of %s: %w", number, owner, err)
	}

	return &versioning.Version{
		ID:        rec.ID,
		Owner:     owner,
		Number:    number,
		Snapshot:  rec.Snapshot,
		CreatedAt: rec.CreatedAt.UTC(),
	}, nil
}

func (b *BadgerStore) NextNumber(ctx context.Context, owner versioning.Owner) (int64, error) {
	var next int64 = 1
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := b.seekLast(txn, owner)
		if err != nil || item == nil {
			return err
		}
		number, err := numberFromKey(ownerPrefix(owner), item.Key())
		if err != nil {
			return err
		}
		next = number + 1
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("finding max version number: %w", err)
	}
	return next, nil
}

// seekLast returns the highest-numbered key of owner, or nil.
// The returned item is only valid inside txn.
func (b *BadgerStore) seekLast(txn *badger.Txn, owner versioning.Owner) (*badger.Item, error) {
	return b.seekBefore(txn, owner, append(ownerPrefix(owner), 0xFF))
}

// seekBefore returns the last key of owner that sorts at or before seek.
func (b *BadgerStore) seekBefore(txn *badger.Txn, owner versioning.Owner, seek []byte) (*badger.Item, error) {
	prefix := ownerPrefix(owner)
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true

	it := txn.NewIterator(opts)
	defer it.Close()

	it.Seek(seek)
	if !it.ValidForPrefix(prefix) {
		return nil, nil
	}
	return it.Item(), nil
}

// seekAfter returns the first key of owner that sorts at or after seek.
func (b *BadgerStore) seekAfter(txn *badger.Txn, owner versioning.Owner, seek []byte) (*badger.Item, error) {
	prefix := ownerPrefix(owner)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	it.Seek(seek)
	if !it.ValidForPrefix(prefix) {
		return nil, nil
	}
	return it.Item(), nil
}

func (b *BadgerStore) Append(ctx context.Context, v *versioning.Version) (*versioning.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v.Number < 1 {
		return nil, fmt.Errorf("inserting version: number %d is not positive", v.Number)
	}

	var buf bytes.Buffer
	createdAt := v.CreatedAt.UTC()
	rec := badgerRecord{ID: v.ID, Snapshot: v.Snapshot, CreatedAt: createdAt}
	if err := gob.NewEncoder(&buf).Encode(&rec); err != nil {
		return nil, fmt.Errorf("encoding version: %w", err)
	}

	key := versionKey(v.Owner, v.Number)
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return versioning.ErrConstraintViolation
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, buf.Bytes())
	})
	switch {
	case err == nil:
	case errors.Is(err, versioning.ErrConstraintViolation), errors.Is(err, badger.ErrConflict):
		return nil, fmt.Errorf("%w: %s number %d", versioning.ErrConstraintViolation, v.Owner, v.Number)
	default:
		return nil, fmt.Errorf("inserting version: %w", err)
	}

	out := *v
	out.CreatedAt = createdAt
	return &out, nil
}

func (b *BadgerStore) ListByOwner(ctx context.Context, owner versioning.Owner, order versioning.Order) ([]*versioning.Version, error) {
	prefix := ownerPrefix(owner)
	var result []*versioning.Version

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		seek := prefix
		if order != versioning.Ascending {
			opts.Reverse = true
			seek = append(append([]byte(nil), prefix...), 0xFF)
		}

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			v, err := decodeItem(owner, prefix, it.Item())
			if err != nil {
				return err
			}
			result = append(result, v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	return result, nil
}

func (b *BadgerStore) Count(ctx context.Context, owner versioning.Owner) (int64, error) {
	keys, err := b.keysThrough(owner, -1)
	if err != nil {
		return 0, fmt.Errorf("counting versions: %w", err)
	}
	return int64(len(keys)), nil
}

func (b *BadgerStore) Get(ctx context.Context, owner versioning.Owner, number int64) (*versioning.Version, error) {
	var v *versioning.Version
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(versionKey(owner, number))
		if err != nil {
			return err
		}
		v, err = decodeItem(owner, ownerPrefix(owner), item)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, versioning.ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding version: %w", err)
	}
	return v, nil
}

func (b *BadgerStore) First(ctx context.Context, owner versioning.Owner) (*versioning.Version, error) {
	return b.find(owner, func(txn *badger.Txn) (*badger.Item, error) {
		return b.seekAfter(txn, owner, ownerPrefix(owner))
	})
}

func (b *BadgerStore) Current(ctx context.Context, owner versioning.Owner) (*versioning.Version, error) {
	return b.find(owner, func(txn *badger.Txn) (*badger.Item, error) {
		return b.seekLast(txn, owner)
	})
}

func (b *BadgerStore) Next(ctx context.Context, owner versioning.Owner, number int64) (*versioning.Version, error) {
	switch {
	case number < 0:
		return b.First(ctx, owner)
	case number == math.MaxInt64:
		return nil, versioning.ErrVersionNotFound
	}
	return b.find(owner, func(txn *badger.Txn) (*badger.Item, error) {
		return b.seekAfter(txn, owner, versionKey(owner, number+1))
	})
}

func (b *BadgerStore) Previous(ctx context.Context, owner versioning.Owner, number int64) (*versioning.Version, error) {
	if number <= 1 {
		return nil, versioning.ErrVersionNotFound
	}
	return b.find(owner, func(txn *badger.Txn) (*badger.Item, error) {
		return b.seekBefore(txn, owner, versionKey(owner, number-1))
	})
}

func (b *BadgerStore) find(owner versioning.Owner, seek func(txn *badger.Txn) (*badger.Item, error)) (*versioning.Version, error) {
	var v *versioning.Version
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := seek(txn)
		if err != nil || item == nil {
			return err
		}
		v, err = decodeItem(owner, ownerPrefix(owner), item)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("finding version: %w", err)
	}
	if v == nil {
		return nil, versioning.ErrVersionNotFound
	}
	return v, nil
}

// keysThrough collects the keys of owner numbered <= threshold, or all keys
// when threshold is negative.
func (b *BadgerStore) keysThrough(owner versioning.Owner, threshold int64) ([][]byte, error) {
	prefix := ownerPrefix(owner)
	var keys [][]byte

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if threshold >= 0 {
				number, err := numberFromKey(prefix, key)
				if err != nil {
					return err
				}
				if number > threshold {
					break
				}
			}
			keys = append(keys, key)
		}
		return nil
	})
	return keys, err
}

func (b *BadgerStore) DeleteOlderThanOrEqual(ctx context.Context, owner versioning.Owner, threshold int64) (int64, error) {
	if threshold < 1 {
		return 0, nil
	}
	return b.deleteKeys(owner, threshold)
}

func (b *BadgerStore) DeleteAllForOwner(ctx context.Context, owner versioning.Owner) (int64, error) {
	return b.deleteKeys(owner, -1)
}

func (b *BadgerStore) deleteKeys(owner versioning.Owner, threshold int64) (int64, error) {
	keys, err := b.keysThrough(owner, threshold)
	if err != nil {
		return 0, fmt.Errorf("listing versions to delete: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("deleting versions: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("deleting versions: %w", err)
	}
	return int64(len(keys)), nil
}

package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jerome/simply-versioned/internal/versioning"
)

// MemoryStore is an in-memory implementation of versioning.Store.
// It is safe for concurrent use and enforces (owner, number) uniqueness
// like the SQL stores do, so concurrent appends race for real.
type MemoryStore struct {
	mu       sync.RWMutex
	versions map[versioning.Owner][]*versioning.Version // ascending by number
}

var _ Backend = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions: make(map[versioning.Owner][]*versioning.Version),
	}
}

func (m *MemoryStore) Migrate(context.Context) error         { return nil }
func (m *MemoryStore) CheckMigrations(context.Context) error { return nil }
func (m *MemoryStore) Close() error                          { return nil }

func (m *MemoryStore) NextNumber(ctx context.Context, owner versioning.Owner) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.versions[owner]
	if len(list) == 0 {
		return 1, nil
	}
	return list[len(list)-1].Number + 1, nil
}

func (m *MemoryStore) Append(ctx context.Context, v *versioning.Version) (*versioning.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v.Number < 1 {
		return nil, fmt.Errorf("inserting version: number %d is not positive", v.Number)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.versions[v.Owner]
	i := sort.Search(len(list), func(i int) bool { return list[i].Number >= v.Number })
	if i < len(list) && list[i].Number == v.Number {
		return nil, fmt.Errorf("%w: %s number %d", versioning.ErrConstraintViolation, v.Owner, v.Number)
	}

	stored := cloneVersion(v)
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = stored
	m.versions[v.Owner] = list

	return cloneVersion(stored), nil
}

func (m *MemoryStore) ListByOwner(ctx context.Context, owner versioning.Owner, order versioning.Order) ([]*versioning.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.versions[owner]
	result := make([]*versioning.Version, len(list))
	for i, v := range list {
		if order == versioning.Ascending {
			result[i] = cloneVersion(v)
		} else {
			result[len(list)-1-i] = cloneVersion(v)
		}
	}
	return result, nil
}

func (m *MemoryStore) Count(ctx context.Context, owner versioning.Owner) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.versions[owner])), nil
}

func (m *MemoryStore) Get(ctx context.Context, owner versioning.Owner, number int64) (*versioning.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.versions[owner]
	i := sort.Search(len(list), func(i int) bool { return list[i].Number >= number })
	if i < len(list) && list[i].Number == number {
		return cloneVersion(list[i]), nil
	}
	return nil, versioning.ErrVersionNotFound
}

func (m *MemoryStore) First(ctx context.Context, owner versioning.Owner) (*versioning.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.versions[owner]
	if len(list) == 0 {
		return nil, versioning.ErrVersionNotFound
	}
	return cloneVersion(list[0]), nil
}

func (m *MemoryStore) Current(ctx context.Context, owner versioning.Owner) (*versioning.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.versions[owner]
	if len(list) == 0 {
		return nil, versioning.ErrVersionNotFound
	}
	return cloneVersion(list[len(list)-1]), nil
}

func (m *MemoryStore) Next(ctx context.Context, owner versioning.Owner, number int64) (*versioning.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.versions[owner]
	i := sort.Search(len(list), func(i int) bool { return list[i].Number > number })
	if i == len(list) {
		return nil, versioning.ErrVersionNotFound
	}
	return cloneVersion(list[i]), nil
}

func (m *MemoryStore) Previous(ctx context.Context, owner versioning.Owner, number int64) (*versioning.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.versions[owner]
	i := sort.Search(len(list), func(i int) bool { return list[i].Number >= number })
	if i == 0 {
		return nil, versioning.ErrVersionNotFound
	}
	return cloneVersion(list[i-1]), nil
}

func (m *MemoryStore) DeleteOlderThanOrEqual(ctx context.Context, owner versioning.Owner, threshold int64) (int64, error) {
	if threshold < 1 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.versions[owner]
	i := sort.Search(len(list), func(i int) bool { return list[i].Number > threshold })
	if i == 0 {
		return 0, nil
	}
	m.versions[owner] = append([]*versioning.Version(nil), list[i:]...)
	return int64(i), nil
}

func (m *MemoryStore) DeleteAllForOwner(ctx context.Context, owner versioning.Owner) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.versions[owner])
	delete(m.versions, owner)
	return int64(n), nil
}

// cloneVersion copies v so callers cannot mutate stored versions.
func cloneVersion(v *versioning.Version) *versioning.Version {
	out := *v
	out.Snapshot = append([]byte(nil), v.Snapshot...)
	return &out
}

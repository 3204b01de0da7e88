package archive

import (
	"context"
	"sync"

	"github.com/jerome/simply-versioned/internal/versioning"
)

// MemoryArchive keeps archived versions in memory. Safe for concurrent use.
type MemoryArchive struct {
	mu       sync.RWMutex
	versions map[string][]byte // objectName -> encoded record
}

var _ versioning.Archive = (*MemoryArchive)(nil)

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{versions: make(map[string][]byte)}
}

// Put stores v. Storing the same version again overwrites it.
func (m *MemoryArchive) Put(ctx context.Context, v *versioning.Version) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[objectName(v.Owner, v.Number)] = data
	return nil
}

func (m *MemoryArchive) Get(ctx context.Context, owner versioning.Owner, number int64) (*versioning.Version, error) {
	m.mu.RLock()
	data, ok := m.versions[objectName(owner, number)]
	m.mu.RUnlock()

	if !ok {
		return nil, versioning.ErrVersionNotFound
	}
	return decodeRecord(data)
}

// Len returns the number of archived versions.
func (m *MemoryArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.versions)
}

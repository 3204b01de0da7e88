package encryption

import (
	"fmt"
	"sync"

	"github.com/jerome/simply-versioned/internal/versioning"
)

// Sealer adapts an Encryptor to versioning.Sealer. Sealing works at any
// time; opening needs Unlock first.
type Sealer struct {
	enc Encryptor

	mu  sync.RWMutex
	dec DecryptionContext
}

var _ versioning.Sealer = (*Sealer)(nil)

func NewSealer(enc Encryptor) *Sealer {
	return &Sealer{enc: enc}
}

// Unlock makes sealed snapshots readable until Lock.
func (s *Sealer) Unlock(passphrase string) error {
	dec, err := s.enc.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking snapshot key: %w", err)
	}
	s.mu.Lock()
	s.dec = dec
	s.mu.Unlock()
	return nil
}

// Lock drops the unlocked key.
func (s *Sealer) Lock() {
	s.mu.Lock()
	s.dec = nil
	s.mu.Unlock()
}

func (s *Sealer) Unlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dec != nil
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	return s.enc.Encrypt(plaintext)
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	s.mu.RLock()
	dec := s.dec
	s.mu.RUnlock()

	if dec == nil {
		return nil, versioning.ErrLocked
	}
	return dec.Decrypt(sealed)
}

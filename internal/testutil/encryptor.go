package testutil

import (
	"github.com/jerome/simply-versioned/internal/encryption"
)

// NewTestSealer creates a sealer backed by the deterministic test encryptor.
// It starts locked.
func NewTestSealer() *encryption.Sealer {
	return encryption.NewSealer(encryption.NewTestEncryptor())
}

// Package encryption seals version snapshots at rest.
package encryption

// Encryptor encrypts snapshots with a public key and unlocks the matching
// private key for decryption.
type Encryptor interface {
	// Setup performs one-time key generation: it stores the public key in
	// plaintext and the private key encrypted with passphrase.
	Setup(passphrase string) error

	// Encrypt needs the public key only.
	Encrypt(plaintext []byte) ([]byte, error)

	// Unlock decrypts the private key. It fails if the passphrase is wrong.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if the key material exists.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory. It is never
// written to disk.
type DecryptionContext interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

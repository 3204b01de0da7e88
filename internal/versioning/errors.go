package versioning

import "errors"

var (
	// ErrConstraintViolation is returned by Store.Append when the
	// (owner, number) pair is already taken. The controller recovers from it
	// by recomputing the number.
	ErrConstraintViolation = errors.New("version number already exists for owner")

	// ErrConcurrencyConflict is returned when every append attempt lost the
	// race for a version number.
	ErrConcurrencyConflict = errors.New("version number contention: retries exhausted")

	// ErrVersionNotFound is returned when the requested version does not exist.
	ErrVersionNotFound = errors.New("version not found")

	// ErrSerializationFailure is returned when a snapshot cannot be produced
	// from, or applied back to, a host.
	ErrSerializationFailure = errors.New("snapshot serialization failed")

	// ErrInvalidOwner is returned for owners that cannot key a history.
	ErrInvalidOwner = errors.New("invalid version owner")

	// ErrLocked is returned when opening a sealed snapshot without an unlocked key.
	ErrLocked = errors.New("snapshot is sealed and no key is unlocked")
)

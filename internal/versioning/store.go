package versioning

import "context"

// Store is the durable, append-only log of versions.
// Implementations must enforce uniqueness of (owner, number) atomically, so
// that of two concurrent appends with the same number exactly one succeeds.
type Store interface {
	// NextNumber returns the highest existing number for owner plus one,
	// or 1 when the owner has no versions.
	NextNumber(ctx context.Context, owner Owner) (int64, error)

	// Append inserts v. It fails with ErrConstraintViolation if v.Number is
	// already taken for v.Owner. Versions are never updated after Append.
	Append(ctx context.Context, v *Version) (*Version, error)

	// ListByOwner returns every version of owner in the requested order.
	ListByOwner(ctx context.Context, owner Owner, order Order) ([]*Version, error)

	// Count returns the number of surviving versions of owner.
	Count(ctx context.Context, owner Owner) (int64, error)

	// Get returns the version with the given number.
	Get(ctx context.Context, owner Owner, number int64) (*Version, error)

	// First returns the lowest-numbered surviving version.
	First(ctx context.Context, owner Owner) (*Version, error)

	// Current returns the highest-numbered version.
	Current(ctx context.Context, owner Owner) (*Version, error)

	// Next returns the version with the smallest number greater than number.
	Next(ctx context.Context, owner Owner, number int64) (*Version, error)

	// Previous returns the version with the largest number less than number.
	Previous(ctx context.Context, owner Owner, number int64) (*Version, error)

	// DeleteOlderThanOrEqual removes all versions with Number <= threshold
	// and returns how many were removed. A threshold below 1 is a no-op.
	DeleteOlderThanOrEqual(ctx context.Context, owner Owner, threshold int64) (int64, error)

	// DeleteAllForOwner removes the whole history of owner.
	DeleteAllForOwner(ctx context.Context, owner Owner) (int64, error)
}

// Archive receives versions before retention trimming deletes them.
type Archive interface {
	// Put stores v. Storing the same version twice is safe.
	Put(ctx context.Context, v *Version) error

	// Get returns an archived version, or ErrVersionNotFound.
	Get(ctx context.Context, owner Owner, number int64) (*Version, error)
}

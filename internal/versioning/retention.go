package versioning

import (
	"context"
	"errors"
	"fmt"
)

// Keep is a retention limit: the number of most recent versions that survive
// trimming.
type Keep int

const (
	// Unlimited disables trimming.
	Unlimited Keep = -1

	// DefaultKeep applies to owner types without an explicit limit.
	DefaultKeep Keep = 99
)

// RetentionPolicy bounds the number of versions kept per owner.
// Configure it with SetKeep and SetArchive before sharing it between
// goroutines; Trim itself is safe for concurrent use.
type RetentionPolicy struct {
	defaultKeep Keep
	byType      map[string]Keep
	archive     Archive
}

// NewRetentionPolicy creates a policy applying defaultKeep to every owner type.
func NewRetentionPolicy(defaultKeep Keep) *RetentionPolicy {
	return &RetentionPolicy{
		defaultKeep: defaultKeep,
		byType:      make(map[string]Keep),
	}
}

// SetKeep sets the limit for one owner type.
func (p *RetentionPolicy) SetKeep(ownerType string, keep Keep) *RetentionPolicy {
	p.byType[ownerType] = keep
	return p
}

// SetArchive makes Trim copy versions into a before deleting them.
func (p *RetentionPolicy) SetArchive(a Archive) *RetentionPolicy {
	p.archive = a
	return p
}

// KeepFor returns the limit in force for ownerType.
func (p *RetentionPolicy) KeepFor(ownerType string) Keep {
	if keep, ok := p.byType[ownerType]; ok {
		return keep
	}
	return p.defaultKeep
}

// Trim deletes every version of owner older than the newest KeepFor(owner.Type)
// ones and returns how many were deleted. A limit of 0 keeps the newest
// version, so numbers are never handed out twice.
//
// The threshold is computed from a possibly stale Current; a concurrent
// append only means slightly fewer versions are removed this round.
func (p *RetentionPolicy) Trim(ctx context.Context, store Store, owner Owner) (int64, error) {
	keep := p.KeepFor(owner.Type)
	if keep < 0 {
		return 0, nil
	}
	if keep == 0 {
		keep = 1
	}

	current, err := store.Current(ctx, owner)
	if errors.Is(err, ErrVersionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("finding current version: %w", err)
	}

	threshold := current.Number - int64(keep)
	if threshold < 1 {
		return 0, nil
	}

	if p.archive != nil {
		if err := p.archiveThrough(ctx, store, owner, threshold); err != nil {
			return 0, err
		}
	}

	n, err := store.DeleteOlderThanOrEqual(ctx, owner, threshold)
	if err != nil {
		return 0, fmt.Errorf("deleting versions through %d: %w", threshold, err)
	}
	return n, nil
}

// archiveThrough copies every version numbered <= threshold into the archive.
func (p *RetentionPolicy) archiveThrough(ctx context.Context, store Store, owner Owner, threshold int64) error {
	versions, err := store.ListByOwner(ctx, owner, Ascending)
	if err != nil {
		return fmt.Errorf("listing versions to archive: %w", err)
	}
	for _, v := range versions {
		if v.Number > threshold {
			break
		}
		if err := p.archive.Put(ctx, v); err != nil {
			return fmt.Errorf("archiving version %d of %s: %w", v.Number, owner, err)
		}
	}
	return nil
}

package versioning

import (
	"fmt"
	"strings"
	"time"
)

// Owner identifies the host record a version belongs to.
// Type distinguishes which host collection ID refers to, so two hosts of
// different kinds may share the same ID without sharing history.
type Owner struct {
	ID   int64
	Type string
}

// Validate reports whether the owner can key a version history.
func (o Owner) Validate() error {
	if o.Type == "" {
		return fmt.Errorf("%w: owner type is empty", ErrInvalidOwner)
	}
	if strings.ContainsAny(o.Type, "/ \t\n") {
		return fmt.Errorf("%w: owner type %q contains a separator", ErrInvalidOwner, o.Type)
	}
	if o.ID <= 0 {
		return fmt.Errorf("%w: %s has no persisted id", ErrInvalidOwner, o.Type)
	}
	return nil
}

func (o Owner) String() string {
	return fmt.Sprintf("%s/%d", o.Type, o.ID)
}

// Version is an immutable, numbered snapshot of a host's attributes.
type Version struct {
	ID        string    // UUID
	Owner     Owner     // Host the snapshot was captured from
	Number    int64     // 1-based, strictly increasing per owner, never reused
	Snapshot  []byte    // Codec output, opaque to the store
	CreatedAt time.Time // When the snapshot was captured
}

// Order selects the sort direction of ListByOwner.
type Order int

const (
	// Descending lists the most recent version first.
	Descending Order = iota
	// Ascending lists the oldest surviving version first.
	Ascending
)

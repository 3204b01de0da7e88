package versioning

import (
	"context"
	"fmt"
)

// History is the version list of one owner.
type History struct {
	c     *Controller
	owner Owner
}

// History returns the version list of owner.
func (c *Controller) History(owner Owner) *History {
	return &History{c: c, owner: owner}
}

// Versions returns the version list of host.
func (c *Controller) Versions(host Host) *History {
	return c.History(host.VersionOwner())
}

func (h *History) Owner() Owner { return h.owner }

// List returns every surviving version, newest first unless order says otherwise.
func (h *History) List(ctx context.Context, order Order) ([]*Version, error) {
	return h.c.store.ListByOwner(ctx, h.owner, order)
}

func (h *History) Count(ctx context.Context) (int64, error) {
	return h.c.store.Count(ctx, h.owner)
}

// Get returns the version with the given number, or ErrVersionNotFound if it
// never existed or has been trimmed.
func (h *History) Get(ctx context.Context, number int64) (*Version, error) {
	return h.c.store.Get(ctx, h.owner, number)
}

func (h *History) First(ctx context.Context) (*Version, error) {
	return h.c.store.First(ctx, h.owner)
}

func (h *History) Current(ctx context.Context) (*Version, error) {
	return h.c.store.Current(ctx, h.owner)
}

// Next returns the version following number. Gaps left by trimming are skipped.
func (h *History) Next(ctx context.Context, number int64) (*Version, error) {
	return h.c.store.Next(ctx, h.owner, number)
}

// Previous returns the version preceding number.
func (h *History) Previous(ctx context.Context, number int64) (*Version, error) {
	return h.c.store.Previous(ctx, h.owner, number)
}

// Next returns the version of the same owner following v.
func (c *Controller) Next(ctx context.Context, v *Version) (*Version, error) {
	return c.store.Next(ctx, v.Owner, v.Number)
}

// Previous returns the version of the same owner preceding v.
func (c *Controller) Previous(ctx context.Context, v *Version) (*Version, error) {
	return c.store.Previous(ctx, v.Owner, v.Number)
}

// ToModel reconstructs the attribute set v was captured from. Nothing is
// persisted and no host is touched.
func (c *Controller) ToModel(v *Version) (Attributes, error) {
	attrs, err := c.codec.Decode(v.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("decoding version %d of %s: %w", v.Number, v.Owner, err)
	}
	return attrs, nil
}

// DecodeSnapshot reconstructs v into a fresh T, typically a snapshot struct
// of the host kind with yaml tags.
func DecodeSnapshot[T any](c *Controller, v *Version) (*T, error) {
	attrs, err := c.ToModel(v)
	if err != nil {
		return nil, err
	}
	var out T
	if err := attrs.Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding version %d of %s: %w", v.Number, v.Owner, err)
	}
	return &out, nil
}

package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/jerome/simply-versioned/internal/versioning"
)

// Aardvark is a versioned test host with a name and an age.
type Aardvark struct {
	versioning.State
	ID   int64
	Name string
	Age  int
}

// AardvarkSnapshot is the typed form of an Aardvark version.
type AardvarkSnapshot struct {
	Name string `yaml:"name"`
	Age  int    `yaml:"age"`
}

func (a *Aardvark) VersionOwner() versioning.Owner {
	return versioning.Owner{ID: a.ID, Type: "aardvark"}
}

func (a *Aardvark) Attributes() (versioning.Attributes, error) {
	return versioning.Attributes{"name": a.Name, "age": a.Age}, nil
}

func (a *Aardvark) ApplyAttributes(attrs versioning.Attributes) error {
	var snap AardvarkSnapshot
	if err := attrs.Decode(&snap); err != nil {
		return err
	}
	a.Name, a.Age = snap.Name, snap.Age
	return nil
}

func (a *Aardvark) SetID(id int64) { a.ID = id }

// Gnu is a versioned test host with a name and a description.
type Gnu struct {
	versioning.State
	ID          int64
	Name        string
	Description string
}

// GnuSnapshot is the typed form of a Gnu version.
type GnuSnapshot struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

func (g *Gnu) VersionOwner() versioning.Owner {
	return versioning.Owner{ID: g.ID, Type: "gnu"}
}

func (g *Gnu) Attributes() (versioning.Attributes, error) {
	return versioning.Attributes{"name": g.Name, "description": g.Description}, nil
}

func (g *Gnu) ApplyAttributes(attrs versioning.Attributes) error {
	var snap GnuSnapshot
	if err := attrs.Decode(&snap); err != nil {
		return err
	}
	g.Name, g.Description = snap.Name, snap.Description
	return nil
}

func (g *Gnu) SetID(id int64) { g.ID = id }

// IDSetter is implemented by hosts that get their ID from MemoryHosts.
type IDSetter interface {
	SetID(id int64)
}

// MemoryHosts is an in-memory versioning.HostStore. It assigns IDs per owner
// type on first save and keeps the last saved attribute set of each host.
type MemoryHosts struct {
	mu     sync.Mutex
	nextID map[string]int64
	rows   map[versioning.Owner]versioning.Attributes
	saves  int

	// SaveErr and DeleteErr, when set, are returned instead of persisting.
	SaveErr   error
	DeleteErr error
}

var _ versioning.HostStore = (*MemoryHosts)(nil)

func NewMemoryHosts() *MemoryHosts {
	return &MemoryHosts{
		nextID: make(map[string]int64),
		rows:   make(map[versioning.Owner]versioning.Attributes),
	}
}

func (h *MemoryHosts) Save(ctx context.Context, host versioning.Host) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.SaveErr != nil {
		return h.SaveErr
	}

	owner := host.VersionOwner()
	if owner.ID == 0 {
		setter, ok := host.(IDSetter)
		if !ok {
			return errors.New("host has no id and cannot be assigned one")
		}
		h.nextID[owner.Type]++
		setter.SetID(h.nextID[owner.Type])
		owner = host.VersionOwner()
	}

	attrs, err := host.Attributes()
	if err != nil {
		return err
	}
	h.rows[owner] = attrs
	h.saves++
	return nil
}

func (h *MemoryHosts) Delete(ctx context.Context, host versioning.Host) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.DeleteErr != nil {
		return h.DeleteErr
	}
	delete(h.rows, host.VersionOwner())
	return nil
}

// Row returns the last saved attribute set of owner.
func (h *MemoryHosts) Row(owner versioning.Owner) (versioning.Attributes, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	attrs, ok := h.rows[owner]
	return attrs, ok
}

// Saves returns how many saves succeeded.
func (h *MemoryHosts) Saves() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.saves
}

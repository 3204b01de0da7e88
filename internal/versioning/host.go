package versioning

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// Attributes is a host's persisted attribute set, keyed by attribute name.
type Attributes map[string]any

// Decode copies the attribute set into target, which is usually a pointer to
// a per-host-kind snapshot struct with yaml tags. Attributes without a
// matching field are ignored and fields without a matching attribute keep
// their zero value, so snapshots taken before a schema change stay readable.
func (a Attributes) Decode(target any) error {
	data, err := yaml.Marshal(map[string]any(a))
	if err != nil {
		return fmt.Errorf("%w: encoding attributes: %v", ErrSerializationFailure, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: decoding attributes: %v", ErrSerializationFailure, err)
	}
	return nil
}

// Host is a record whose saves are versioned.
// Hosts get VersioningState by embedding State.
type Host interface {
	// VersionOwner identifies the host. The ID must be assigned by the time
	// the host has been saved.
	VersionOwner() Owner

	// Attributes returns the host's persisted attribute set.
	Attributes() (Attributes, error)

	// ApplyAttributes assigns attrs onto the host without persisting it.
	// It must not modify the host when it returns an error.
	ApplyAttributes(attrs Attributes) error

	VersioningState() *State
}

// HostSaver persists hosts. It belongs to the host's own persistence layer
// and knows nothing about versions.
type HostSaver interface {
	Save(ctx context.Context, host Host) error
}

// HostDeleter removes hosts from the host's own persistence layer.
type HostDeleter interface {
	Delete(ctx context.Context, host Host) error
}

// HostStore is the host persistence collaborator used by Controller.Save,
// Controller.RevertToVersion and Controller.Destroy.
type HostStore interface {
	HostSaver
	HostDeleter
}

// State is the per-instance versioning state of a host. Embed it by value;
// the zero value has versioning enabled.
type State struct {
	mu       sync.Mutex
	disabled bool
	pending  []byte
	cached   bool
}

// VersioningState returns s, which lets embedding types satisfy Host.
func (s *State) VersioningState() *State { return s }

// VersioningEnabled reports whether saves of this instance create versions.
func (s *State) VersioningEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.disabled
}

// setEnabled switches versioning and returns the previous value.
func (s *State) setEnabled(enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := !s.disabled
	s.disabled = !enabled
	return prev
}

// cache stores a snapshot captured before a save, for the following AfterSave.
func (s *State) cache(snapshot []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = snapshot
	s.cached = true
}

// take returns and clears the cached snapshot.
func (s *State) take() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot, ok := s.pending, s.cached
	s.pending, s.cached = nil, false
	return snapshot, ok
}

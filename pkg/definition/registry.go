package definition

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStale is returned by storage when the persisted schema revision
// for an object type is ahead of the definition the write was built
// against. Callers resync the definition and retry once.
var ErrStale = errors.New("entity definition is stale")

// Loader resolves object types to their current definitions
type Loader interface {
	// Get returns the definition for an object type
	Get(ctx context.Context, objType string) (*EntityDefinition, error)

	// ForceSystemReset discards any cached definition and reloads it
	// from the system source. Used to recover from stale-schema writes.
	ForceSystemReset(ctx context.Context, objType string) error
}

// ResetFunc reloads a definition from the system source of truth
type ResetFunc func(ctx context.Context, objType string) (*EntityDefinition, error)

// Registry is an in-memory definition loader. Definitions are
// registered directly or pulled lazily through the reset hook.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]*EntityDefinition
	reset ResetFunc
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[string]*EntityDefinition),
	}
}

// SetResetHook wires the source definitions are reloaded from on
// ForceSystemReset and lazy misses
func (r *Registry) SetResetHook(fn ResetFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset = fn
}

// Register adds or replaces a definition
func (r *Registry) Register(def *EntityDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.ObjType] = def
}

// Get returns the definition for an object type, loading it through
// the reset hook on first use
func (r *Registry) Get(ctx context.Context, objType string) (*EntityDefinition, error) {
	r.mu.RLock()
	def, ok := r.defs[objType]
	reset := r.reset
	r.mu.RUnlock()

	if ok {
		return def, nil
	}
	if reset == nil {
		return nil, fmt.Errorf("no definition registered for object type %q", objType)
	}

	def, err := reset(ctx, objType)
	if err != nil {
		return nil, fmt.Errorf("failed to load definition for %q: %w", objType, err)
	}

	r.mu.Lock()
	r.defs[objType] = def
	r.mu.Unlock()
	return def, nil
}

// ForceSystemReset reloads the definition from the system source
func (r *Registry) ForceSystemReset(ctx context.Context, objType string) error {
	r.mu.RLock()
	reset := r.reset
	r.mu.RUnlock()

	if reset == nil {
		// Nothing to reload from; drop the cached copy so the next Get fails loudly
		r.mu.Lock()
		delete(r.defs, objType)
		r.mu.Unlock()
		return nil
	}

	def, err := reset(ctx, objType)
	if err != nil {
		return fmt.Errorf("failed to reset definition for %q: %w", objType, err)
	}

	r.mu.Lock()
	r.defs[objType] = def
	r.mu.Unlock()
	return nil
}

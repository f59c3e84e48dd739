package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Registry is a process-local counter registry. Loaders and mappers
// publish counts such as entity.cache.hit and entity.cache.miss; a
// scraper or test reads them back through Snapshot.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]*atomic.Int64),
	}
}

// Increment adds one to the named counter, creating it on first use
func (r *Registry) Increment(name string) {
	r.counter(name).Add(1)
}

// Add adds delta to the named counter
func (r *Registry) Add(name string, delta int64) {
	r.counter(name).Add(delta)
}

// Value returns the current value of the named counter
func (r *Registry) Value(name string) int64 {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return c.Load()
}

// Snapshot returns all counters as a map
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int64, len(r.counters))
	for name, c := range r.counters {
		out[name] = c.Load()
	}
	return out
}

// Names returns all counter names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.counters))
	for name := range r.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) counter(name string) *atomic.Int64 {
	r.mu.RLock()
	c, ok := r.counters[name]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.counters[name]; ok {
		return c
	}
	c = &atomic.Int64{}
	r.counters[name] = c
	return c
}

// Package registry manages backend registration and lookup. Backends are
// registered explicitly at startup; there is no discovery mechanism, so
// adding a backend never requires changes here.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ssciwr/afwizard/ports"
)

// Registry holds the filtering backends of a session, keyed by identifier.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]ports.Backend
	order    []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		backends: make(map[string]ports.Backend),
	}
}

// Register adds a backend. Registering a second backend under the same
// identifier is an error.
func (r *Registry) Register(b ports.Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := b.Identifier()
	if id == "" {
		return fmt.Errorf("backend has an empty identifier")
	}
	if _, exists := r.backends[id]; exists {
		return fmt.Errorf("backend %q already registered", id)
	}

	r.backends[id] = b
	r.order = append(r.order, id)
	return nil
}

// Unregister removes a backend.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[id]; !exists {
		return fmt.Errorf("backend %q not registered", id)
	}
	delete(r.backends, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Backend resolves an identifier to its backend. Implements
// ports.BackendSource.
func (r *Registry) Backend(id string) (ports.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[id]
	if !ok {
		return nil, fmt.Errorf("backend %q not registered", id)
	}
	return b, nil
}

// All returns every registered backend sorted by identifier.
func (r *Registry) All() []ports.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	backends := make([]ports.Backend, 0, len(ids))
	for _, id := range ids {
		backends = append(backends, r.backends[id])
	}
	return backends
}

// Enabled returns the backends whose toolchain is available, in
// registration order. Schema composition runs over exactly this list.
func (r *Registry) Enabled() []ports.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backends := make([]ports.Backend, 0, len(r.order))
	for _, id := range r.order {
		if b := r.backends[id]; b.Enabled() {
			backends = append(backends, b)
		}
	}
	return backends
}

var _ ports.BackendSource = (*Registry)(nil)

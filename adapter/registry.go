package adapter

import (
	"sync"

	"github.com/gomind-ai/orchestrator/core"
	"github.com/gomind-ai/orchestrator/task"
)

// Registry is a concurrency-safe, id-keyed set of registered adapters.
// Registration is idempotent (re-registering an id replaces it without
// error); deregistration does not cancel in-flight Invoke calls since
// adapters are looked up by id, not by reference (§9 "no cyclic graphs").
type Registry struct {
	mu       sync.RWMutex
	adapters map[ID]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[ID]Adapter)}
}

// Register adds or replaces the adapter under its own ID.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ID()] = a
}

// Deregister removes an adapter by id. It is a no-op if the id is absent
// and never cancels a call already in flight against that adapter.
func (r *Registry) Deregister(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, id)
}

// Get looks up an adapter by id.
func (r *Registry) Get(id ID) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// MustGet looks up an adapter by id, returning a FrameworkError of kind
// "adapter" if it is not registered.
func (r *Registry) MustGet(id ID) (Adapter, error) {
	a, ok := r.Get(id)
	if !ok {
		return nil, core.NewFrameworkError("registry.Get", "adapter", core.ErrAdapterNotFound).WithID(string(id))
	}
	return a, nil
}

// All returns every registered adapter in no particular order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}

// IDs returns every registered adapter id.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ID, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	return out
}

// CanExecute reports whether the adapter registered under id supports
// kind. An unregistered id reports false rather than erroring, so routing
// can treat it the same as "no candidate".
func (r *Registry) CanExecute(id ID, kind task.Kind) bool {
	a, ok := r.Get(id)
	if !ok {
		return false
	}
	return a.Supports(kind)
}

// CandidateIDs returns every registered adapter id, satisfying
// router.CapabilityProvider directly so the registry needs no separate
// adapter type at the composition root.
func (r *Registry) CandidateIDs() []ID {
	return r.IDs()
}

// Capabilities returns the declared capability tags for id, or nil if id
// is not registered.
func (r *Registry) Capabilities(id ID) []string {
	a, ok := r.Get(id)
	if !ok {
		return nil
	}
	return a.Capabilities()
}

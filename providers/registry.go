package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aiia-labs/orchestrator/models"
)

// Registry maps vendor families to the live backend that serves them.
// Families with no registered backend are simulated by the invoker.
type Registry struct {
	mu        sync.RWMutex
	providers map[models.Provider]Provider
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[models.Provider]Provider),
	}
}

// Register routes family to p, replacing any earlier registration.
func (r *Registry) Register(family models.Provider, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[family] = p
}

// Get returns the live backend for family and whether one was registered.
func (r *Registry) Get(family models.Provider) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[family]
	return p, ok
}

// MustGet returns the backend for family or panics if none is registered.
func (r *Registry) MustGet(family models.Provider) Provider {
	p, ok := r.Get(family)
	if !ok {
		panic(fmt.Sprintf("provider not found: %s", family))
	}
	return p
}

// Families returns the families with a live backend, sorted.
func (r *Registry) Families() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Provider, 0, len(r.providers))
	for f := range r.providers {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registered families.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

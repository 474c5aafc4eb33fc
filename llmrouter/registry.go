package llmrouter

import (
	"sync"

	"github.com/agentmesh/coordinator/provider"
)

// providerRegistry is the router's name-keyed table of live provider
// adapters. Unlike a general-purpose registry it always upserts: a
// second Register call under a name already in use is how an operator
// rotates credentials or swaps a backend without restarting the
// process, not an error condition.
type providerRegistry struct {
	mu    sync.RWMutex
	byName map[string]provider.Adapter
	order  []string // first-registration order, for Names()
}

func newProviderRegistry() *providerRegistry {
	return &providerRegistry{byName: make(map[string]provider.Adapter)}
}

// register upserts name's adapter, returning whether this is a fresh
// name (false means an existing adapter was replaced).
func (r *providerRegistry) register(name string, adapter provider.Adapter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.byName[name]
	r.byName[name] = adapter
	if !existed {
		r.order = append(r.order, name)
	}
	return !existed
}

func (r *providerRegistry) get(name string) (provider.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	return a, ok
}

// names returns every registered provider name in registration order.
func (r *providerRegistry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

package bindings

import (
	"net/http"
	"sync"
)

// Registry maps service-binding names to in-process HTTP handlers. Tenants
// whose origin is a bound service are forwarded through it without leaving
// the process.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]http.Handler
}

// NewRegistry creates an empty binding registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]http.Handler),
	}
}

// Register adds or replaces a binding.
func (r *Registry) Register(name string, h http.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[name] = h
}

// Deregister removes a binding.
func (r *Registry) Deregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handlers, name)
}

// Lookup retrieves a binding by name.
func (r *Registry) Lookup(name string) (http.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered binding names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered bindings.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handlers)
}

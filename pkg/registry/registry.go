package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
)

// Handler implements a named task. It may read and write the context
// variables, and may call fc.Stop to hold the walk at its node. Handlers run
// under the instance lock and must not submit actions on that instance.
type Handler func(ctx context.Context, fc *flow.Context, node *domain.Node) error

// Registry manages the available task handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler to the registry.
// If a handler with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = fn
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[name]
	return fn, ok
}

// Names lists the registered handler names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute looks up a handler by name and runs it.
// Returns an error if the handler is not found.
func (r *Registry) Execute(ctx context.Context, name string, fc *flow.Context, node *domain.Node) error {
	fn, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("task not found: %s", name)
	}
	return fn(ctx, fc, node)
}

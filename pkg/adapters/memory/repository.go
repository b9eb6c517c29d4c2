package memory

import (
	"context"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
)

// Repository implements ports.StateRepository in memory.
// Safe for concurrent use.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string]domain.TaskState
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		data: make(map[string]map[string]domain.TaskState),
	}
}

// Get returns the state of the node, or TaskStateUnknown when absent.
func (r *Repository) Get(ctx context.Context, instanceID string, node *domain.Node) (domain.TaskState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data[instanceID][node.Key()], nil
}

// Put stores the state of the node.
func (r *Repository) Put(ctx context.Context, instanceID string, node *domain.Node, state domain.TaskState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	states, ok := r.data[instanceID]
	if !ok {
		states = make(map[string]domain.TaskState)
		r.data[instanceID] = states
	}
	states[node.Key()] = state
	return nil
}

// Remove deletes the state of the node.
func (r *Repository) Remove(ctx context.Context, instanceID string, node *domain.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	states, ok := r.data[instanceID]
	if !ok {
		return nil
	}
	delete(states, node.Key())
	if len(states) == 0 {
		delete(r.data, instanceID)
	}
	return nil
}

// Clear deletes every entry of the instance.
func (r *Repository) Clear(ctx context.Context, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, instanceID)
	return nil
}

// Snapshot returns a copy of the instance's entries.
func (r *Repository) Snapshot(ctx context.Context, instanceID string) (map[string]domain.TaskState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]domain.TaskState, len(r.data[instanceID]))
	for k, v := range r.data[instanceID] {
		out[k] = v
	}
	return out, nil
}

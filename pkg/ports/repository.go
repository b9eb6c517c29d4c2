package ports

import (
	"context"

	"github.com/aretw0/espalier/pkg/domain"
)

// StateRepository persists the task state of each node per process instance.
// Entries are keyed by the node key ("graphId:nodeId") inside the instance
// namespace. A missing entry reads as domain.TaskStateUnknown and removing it
// is not an error.
//
// Implementations guarantee per-key atomicity only; the executor serializes
// multi-key updates of an instance with its own lock.
type StateRepository interface {
	// Get returns the state of the node, or TaskStateUnknown when absent.
	Get(ctx context.Context, instanceID string, node *domain.Node) (domain.TaskState, error)

	// Put stores the state of the node.
	Put(ctx context.Context, instanceID string, node *domain.Node, state domain.TaskState) error

	// Remove deletes the state of the node.
	Remove(ctx context.Context, instanceID string, node *domain.Node) error

	// Clear deletes every entry of the instance.
	Clear(ctx context.Context, instanceID string) error
}

// StateLister is implemented by repositories able to list an instance's
// entries, keyed by "graphId:nodeId".
type StateLister interface {
	Snapshot(ctx context.Context, instanceID string) (map[string]domain.TaskState, error)
}

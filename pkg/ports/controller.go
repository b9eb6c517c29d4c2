package ports

import (
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
)

// StateController is the authorization and auto-advance policy.
// It is only asked about activity nodes and must be safe for concurrent use.
type StateController interface {
	// IsOperatable reports whether the actor described by the context may act
	// on the node.
	IsOperatable(fc *flow.Context, node *domain.Node) bool

	// IsAutoForward reports whether the node completes without human action.
	IsAutoForward(fc *flow.Context, node *domain.Node) bool
}

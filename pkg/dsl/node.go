package dsl

import (
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.Node
	builder *Builder
}

// Title sets the display title.
func (n *NodeBuilder) Title(title string) *NodeBuilder {
	n.node.Title = title
	return n
}

// Meta sets a node attribute, such as the actor allowed to act on it.
func (n *NodeBuilder) Meta(key string, value any) *NodeBuilder {
	if n.node.Meta == nil {
		n.node.Meta = make(map[string]any)
	}
	n.node.Meta[key] = value
	return n
}

// Task sets the task run by the node: a registered handler name or
// "#<graphId>" for a sub-graph.
func (n *NodeBuilder) Task(task string) *NodeBuilder {
	n.node.Task = task
	return n
}

// When guards the task with a condition.
func (n *NodeBuilder) When(condition string) *NodeBuilder {
	n.node.When = condition
	return n
}

// For makes a loop node iterate over in, assigning each item to variable.
// in is a list, the name of a context variable, or a stepper
// ("1:10:2", "1...5").
func (n *NodeBuilder) For(variable string, in any) *NodeBuilder {
	return n.Meta(flow.MetaLoopFor, variable).Meta(flow.MetaLoopIn, in)
}

// Go adds an unconditional link to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.node.Links = append(n.node.Links, domain.Link{NextID: target})
	return n
}

// Branch adds a conditional link to the target node.
func (n *NodeBuilder) Branch(condition string, target string) *NodeBuilder {
	n.node.Links = append(n.node.Links, domain.Link{
		NextID: target,
		When:   condition,
	})
	return n
}

// Link adds a fully specified link.
func (n *NodeBuilder) Link(l domain.Link) *NodeBuilder {
	n.node.Links = append(n.node.Links, l)
	return n
}

// Then returns the graph builder, to chain the declaration of the next node.
func (n *NodeBuilder) Then() *Builder {
	return n.builder
}

// Build returns the underlying domain.Node.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() domain.Node {
	return n.node
}

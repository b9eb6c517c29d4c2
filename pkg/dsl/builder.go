package dsl

import (
	"fmt"

	"github.com/aretw0/espalier/pkg/domain"
)

// Builder manages the graph construction. Nodes keep their declaration
// order.
type Builder struct {
	id    string
	title string
	meta  map[string]any
	nodes []*NodeBuilder
	index map[string]*NodeBuilder
}

// New creates a new graph builder.
func New(id string) *Builder {
	return &Builder{
		id:    id,
		index: make(map[string]*NodeBuilder),
	}
}

// Title sets the graph title.
func (b *Builder) Title(title string) *Builder {
	b.title = title
	return b
}

// Meta sets a graph attribute.
func (b *Builder) Meta(key string, value any) *Builder {
	if b.meta == nil {
		b.meta = make(map[string]any)
	}
	b.meta[key] = value
	return b
}

// Add creates a new node of the given type.
// If the node already exists, it returns the existing builder unchanged.
func (b *Builder) Add(id string, typ domain.NodeType) *NodeBuilder {
	if nb, ok := b.index[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node: domain.Node{
			ID:   id,
			Type: typ,
		},
		builder: b,
	}
	b.index[id] = nb
	b.nodes = append(b.nodes, nb)
	return nb
}

func (b *Builder) Start(id string) *NodeBuilder     { return b.Add(id, domain.NodeTypeStart) }
func (b *Builder) End(id string) *NodeBuilder       { return b.Add(id, domain.NodeTypeEnd) }
func (b *Builder) Activity(id string) *NodeBuilder  { return b.Add(id, domain.NodeTypeActivity) }
func (b *Builder) Exclusive(id string) *NodeBuilder { return b.Add(id, domain.NodeTypeExclusive) }
func (b *Builder) Inclusive(id string) *NodeBuilder { return b.Add(id, domain.NodeTypeInclusive) }
func (b *Builder) Parallel(id string) *NodeBuilder  { return b.Add(id, domain.NodeTypeParallel) }
func (b *Builder) Loop(id string) *NodeBuilder      { return b.Add(id, domain.NodeTypeLoop) }

// Build validates and compiles the graph.
func (b *Builder) Build() (*domain.Graph, error) {
	nodes := make([]domain.Node, 0, len(b.nodes))
	for _, nb := range b.nodes {
		nodes = append(nodes, nb.Build())
	}

	g, err := domain.NewGraph(b.id, b.title, b.meta, nodes...)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	return g, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *domain.Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}

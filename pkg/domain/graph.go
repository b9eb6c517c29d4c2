package domain

import (
	"fmt"
	"sort"
)

// Graph is an immutable directed graph of nodes.
// It is safe for concurrent use once built.
type Graph struct {
	ID    string         `json:"id"`
	Title string         `json:"title,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`

	order   []*Node
	nodes   map[string]*Node
	start   *Node
	next    map[string][]*Node
	prev    map[string][]*Node
	inbound map[string]int
}

// NewGraph builds and validates a graph from its nodes.
// Outgoing links are sorted by priority (higher first), keeping declaration
// order for ties. The graph must have exactly one start node, at least one
// end node, and every link must point to a node of the graph.
func NewGraph(id, title string, meta map[string]any, nodes ...Node) (*Graph, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: graph id is required", ErrInvalidGraph)
	}
	if title == "" {
		title = id
	}

	g := &Graph{
		ID:      id,
		Title:   title,
		Meta:    meta,
		nodes:   make(map[string]*Node, len(nodes)),
		next:    make(map[string][]*Node, len(nodes)),
		prev:    make(map[string][]*Node, len(nodes)),
		inbound: make(map[string]int, len(nodes)),
	}

	ends := 0
	for i := range nodes {
		n := nodes[i]
		if n.ID == "" {
			return nil, fmt.Errorf("%w: graph %s: node at position %d has no id", ErrInvalidGraph, id, i+1)
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: graph %s: duplicate node %q", ErrInvalidGraph, id, n.ID)
		}
		if _, ok := nodeTypeNames[n.Type]; !ok {
			return nil, fmt.Errorf("%w: graph %s: node %q has no valid type", ErrInvalidGraph, id, n.ID)
		}

		links := make([]Link, len(n.Links))
		copy(links, n.Links)
		sort.SliceStable(links, func(a, b int) bool {
			return links[a].Priority > links[b].Priority
		})
		n.Links = links
		n.graph = g

		node := &n
		g.nodes[n.ID] = node
		g.order = append(g.order, node)

		switch n.Type {
		case NodeTypeStart:
			if g.start != nil {
				return nil, fmt.Errorf("%w: graph %s: more than one start node", ErrInvalidGraph, id)
			}
			g.start = node
		case NodeTypeEnd:
			ends++
		}
	}

	if g.start == nil {
		return nil, fmt.Errorf("%w: graph %s: missing start node", ErrInvalidGraph, id)
	}
	if ends == 0 {
		return nil, fmt.Errorf("%w: graph %s: missing end node", ErrInvalidGraph, id)
	}

	for _, n := range g.order {
		seen := make(map[string]bool, len(n.Links))
		for _, l := range n.Links {
			target, ok := g.nodes[l.NextID]
			if !ok {
				return nil, fmt.Errorf("%w: graph %s: node %q links to unknown node %q", ErrInvalidGraph, id, n.ID, l.NextID)
			}
			g.inbound[target.ID]++
			if seen[target.ID] {
				continue
			}
			seen[target.ID] = true
			g.next[n.ID] = append(g.next[n.ID], target)
			g.prev[target.ID] = append(g.prev[target.ID], n)
		}
	}

	return g, nil
}

// MustGraph is like NewGraph but panics on error. Intended for tests and
// static definitions.
func MustGraph(id, title string, meta map[string]any, nodes ...Node) *Graph {
	g, err := NewGraph(id, title, meta, nodes...)
	if err != nil {
		panic(err)
	}
	return g
}

// Start returns the start node.
func (g *Graph) Start() *Node {
	return g.start
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNodeNotFound, g.ID, id)
	}
	return n, nil
}

// Nodes returns the nodes in declaration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

package domain

import (
	"fmt"
	"strings"
)

// NodeType defines how the engine treats a node while walking a graph.
type NodeType int

const (
	NodeTypeStart NodeType = iota + 1
	NodeTypeEnd
	NodeTypeActivity
	NodeTypeExclusive
	NodeTypeInclusive
	NodeTypeParallel
	NodeTypeLoop
)

var nodeTypeNames = map[NodeType]string{
	NodeTypeStart:     "start",
	NodeTypeEnd:       "end",
	NodeTypeActivity:  "activity",
	NodeTypeExclusive: "exclusive",
	NodeTypeInclusive: "inclusive",
	NodeTypeParallel:  "parallel",
	NodeTypeLoop:      "loop",
}

func (t NodeType) String() string {
	if name, ok := nodeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("NodeType(%d)", int(t))
}

// IsGateway reports whether the node type branches, merges or iterates.
func (t NodeType) IsGateway() bool {
	switch t {
	case NodeTypeExclusive, NodeTypeInclusive, NodeTypeParallel, NodeTypeLoop:
		return true
	default:
		return false
	}
}

// ParseNodeType resolves a node type from its lowercase name.
func ParseNodeType(s string) (NodeType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range nodeTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown node type %q", ErrInvalidGraph, s)
}

// Link is a directed edge between two nodes of the same graph.
type Link struct {
	NextID string `json:"nextId" yaml:"nextId"`
	Title  string `json:"title,omitempty" yaml:"title,omitempty"`

	// When is the guard condition. Empty means the link is always taken,
	// except on exclusive gateways where it marks the default link.
	When string `json:"when,omitempty" yaml:"when,omitempty"`

	// Priority orders the outgoing links of a node, higher first.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Node represents a step of a graph.
type Node struct {
	ID    string         `json:"id" yaml:"id"`
	Type  NodeType       `json:"type" yaml:"type"`
	Title string         `json:"title,omitempty" yaml:"title,omitempty"`
	Meta  map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`

	// Task is the task expression run for the node: a registered handler
	// name, or "#<graphID>" to run a sub-graph.
	Task string `json:"task,omitempty" yaml:"task,omitempty"`

	// When guards the task; the task is skipped when it evaluates to false.
	When string `json:"when,omitempty" yaml:"when,omitempty"`

	Links []Link `json:"link,omitempty" yaml:"link,omitempty"`

	graph *Graph
}

// Graph returns the graph owning the node, or nil for a detached node.
func (n *Node) Graph() *Graph {
	return n.graph
}

// GraphID returns the id of the owning graph.
func (n *Node) GraphID() string {
	if n.graph == nil {
		return ""
	}
	return n.graph.ID
}

// Key identifies the node across graphs ("graphId:nodeId").
func (n *Node) Key() string {
	return n.GraphID() + ":" + n.ID
}

// MetaValue returns the node attribute stored under key.
func (n *Node) MetaValue(key string) (any, bool) {
	if n.Meta == nil {
		return nil, false
	}
	v, ok := n.Meta[key]
	return v, ok
}

// MetaString returns the attribute under key formatted as a string.
func (n *Node) MetaString(key string) string {
	v, ok := n.MetaValue(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// HasMeta reports whether the node declares the attribute key.
func (n *Node) HasMeta(key string) bool {
	_, ok := n.MetaValue(key)
	return ok
}

// Next returns the successors in link priority order.
func (n *Node) Next() []*Node {
	if n.graph == nil {
		return nil
	}
	return n.graph.next[n.ID]
}

// Prev returns the predecessors in declaration order.
func (n *Node) Prev() []*Node {
	if n.graph == nil {
		return nil
	}
	return n.graph.prev[n.ID]
}

// PrevCount returns the number of incoming links.
func (n *Node) PrevCount() int {
	if n.graph == nil {
		return 0
	}
	return n.graph.inbound[n.ID]
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.Key(), n.Type)
}

func (t NodeType) MarshalText() ([]byte, error) {
	name, ok := nodeTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown node type %d", int(t))
	}
	return []byte(name), nil
}

func (t *NodeType) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

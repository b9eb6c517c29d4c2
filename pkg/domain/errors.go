package domain

import "errors"

// ErrInvalidAction is returned when an action cannot be submitted (e.g. UNKNOWN).
var ErrInvalidAction = errors.New("invalid task action")

// ErrJumpTargetUnreachable is returned when a jump cannot make progress
// towards its target node.
var ErrJumpTargetUnreachable = errors.New("jump target unreachable")

// ErrGraphNotFound is returned when a graph id is not registered.
var ErrGraphNotFound = errors.New("graph not found")

// ErrNodeNotFound is returned when a node id does not exist in a graph.
var ErrNodeNotFound = errors.New("node not found")

// ErrInvalidGraph is returned when a graph definition is structurally invalid.
var ErrInvalidGraph = errors.New("invalid graph")

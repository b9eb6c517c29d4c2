package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeStart     EventType = "node_start"
	EventNodeEnd       EventType = "node_end"
	EventTaskSubmitted EventType = "task_submitted"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"type"`
	InstanceID string    `json:"instance_id"`
}

// NodeEvent represents the engine entering or leaving a node.
type NodeEvent struct {
	EventBase
	GraphID  string `json:"graph_id"`
	NodeID   string `json:"node_id"`
	NodeType string `json:"node_type"`
}

// TaskEvent records a successful submission.
type TaskEvent struct {
	EventBase
	GraphID string    `json:"graph_id"`
	NodeID  string    `json:"node_id"`
	Action  string    `json:"action"`
	State   TaskState `json:"state"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeStart     func(context.Context, *NodeEvent)
	OnNodeEnd       func(context.Context, *NodeEvent)
	OnTaskSubmitted func(context.Context, *TaskEvent)
}

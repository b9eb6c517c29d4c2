package http

import (
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
)

// QueryRequest carries the actor variables of a task query.
type QueryRequest struct {
	Vars map[string]any `json:"vars,omitempty"`
}

// SubmitRequest is the body of a task submission.
type SubmitRequest struct {
	Action    string         `json:"action" validate:"required"`
	Vars      map[string]any `json:"vars,omitempty"`
	IfWaiting bool           `json:"if_waiting,omitempty"`
}

// SubmitResponse reports the outcome of a submission. Applied is false when
// an if_waiting submission was skipped.
type SubmitResponse struct {
	Applied bool             `json:"applied"`
	NodeID  string           `json:"node_id"`
	State   domain.TaskState `json:"state"`
}

// TaskResponse describes one task.
type TaskResponse struct {
	GraphID string           `json:"graph_id"`
	NodeID  string           `json:"node_id"`
	Title   string           `json:"title,omitempty"`
	State   domain.TaskState `json:"state"`
	Meta    map[string]any   `json:"meta,omitempty"`
}

// FindResponse is the answer of a single-task query. Task is nil when
// nothing is actionable; Ended tells a finished instance from a blocked one.
type FindResponse struct {
	InstanceID string        `json:"instance_id"`
	Task       *TaskResponse `json:"task"`
	Ended      bool          `json:"ended"`
}

// GraphSummary lists a graph.
type GraphSummary struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Nodes int    `json:"nodes"`
}

// GraphResponse describes a graph and its nodes.
type GraphResponse struct {
	ID    string         `json:"id"`
	Title string         `json:"title,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Nodes []NodeResponse `json:"nodes"`
}

// NodeResponse describes a node of a graph.
type NodeResponse struct {
	ID    string   `json:"id"`
	Type  string   `json:"type"`
	Title string   `json:"title,omitempty"`
	Task  string   `json:"task,omitempty"`
	Next  []string `json:"next,omitempty"`
}

// StateResponse lists the persisted states of an instance.
type StateResponse struct {
	InstanceID string      `json:"instance_id"`
	Nodes      []NodeState `json:"nodes"`
}

// NodeState is the state of one node. NodeID is empty for entries that do
// not belong to the requested graph.
type NodeState struct {
	Key    string           `json:"key"`
	NodeID string           `json:"node_id,omitempty"`
	State  domain.TaskState `json:"state"`
}

func newTaskResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		GraphID: t.Node.GraphID(),
		NodeID:  t.Node.ID,
		Title:   t.Node.Title,
		State:   t.State,
		Meta:    t.Node.Meta,
	}
}

func newFindResponse(g *domain.Graph, fc *flow.Context, t *domain.Task) FindResponse {
	resp := FindResponse{InstanceID: fc.InstanceID()}
	if t != nil {
		tr := newTaskResponse(t)
		resp.Task = &tr
		return resp
	}
	resp.Ended = fc.Trace().Ended(g.ID)
	return resp
}

func newGraphResponse(g *domain.Graph) GraphResponse {
	resp := GraphResponse{ID: g.ID, Title: g.Title, Meta: g.Meta, Nodes: make([]NodeResponse, 0, g.Len())}
	for _, n := range g.Nodes() {
		nr := NodeResponse{ID: n.ID, Type: n.Type.String(), Title: n.Title, Task: n.Task}
		for _, next := range n.Next() {
			nr.Next = append(nr.Next, next.ID)
		}
		resp.Nodes = append(resp.Nodes, nr)
	}
	return resp
}

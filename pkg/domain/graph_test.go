package domain

import (
	"errors"
	"testing"
)

func TestNewGraph_LinkPriorityOrder(t *testing.T) {
	g, err := NewGraph("g", "", nil,
		Node{ID: "s", Type: NodeTypeStart, Links: []Link{{NextID: "gw"}}},
		Node{ID: "gw", Type: NodeTypeExclusive, Links: []Link{
			{NextID: "a", Priority: 1},
			{NextID: "b", Priority: 5},
			{NextID: "c", Priority: 1},
		}},
		Node{ID: "a", Type: NodeTypeActivity, Links: []Link{{NextID: "e"}}},
		Node{ID: "b", Type: NodeTypeActivity, Links: []Link{{NextID: "e"}}},
		Node{ID: "c", Type: NodeTypeActivity, Links: []Link{{NextID: "e"}}},
		Node{ID: "e", Type: NodeTypeEnd},
	)
	if err != nil {
		t.Fatalf("NewGraph() failed: %v", err)
	}

	gw, _ := g.Node("gw")
	var got []string
	for _, n := range gw.Next() {
		got = append(got, n.ID)
	}
	want := []string{"b", "a", "c"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("Next() = %v, want %v", got, want)
		}
	}

	end, _ := g.Node("e")
	if end.PrevCount() != 3 {
		t.Errorf("Expected 3 inbound links on end, got %d", end.PrevCount())
	}
	if len(end.Prev()) != 3 {
		t.Errorf("Expected 3 predecessors on end, got %d", len(end.Prev()))
	}
	if end.Key() != "g:e" {
		t.Errorf("Expected key 'g:e', got %q", end.Key())
	}
	if g.Title != "g" {
		t.Errorf("Expected title to default to id, got %q", g.Title)
	}
}

func TestNewGraph_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
	}{
		{
			name:  "missing start",
			nodes: []Node{{ID: "e", Type: NodeTypeEnd}},
		},
		{
			name: "missing end",
			nodes: []Node{
				{ID: "s", Type: NodeTypeStart, Links: []Link{{NextID: "a"}}},
				{ID: "a", Type: NodeTypeActivity},
			},
		},
		{
			name: "two starts",
			nodes: []Node{
				{ID: "s1", Type: NodeTypeStart},
				{ID: "s2", Type: NodeTypeStart},
				{ID: "e", Type: NodeTypeEnd},
			},
		},
		{
			name: "dangling link",
			nodes: []Node{
				{ID: "s", Type: NodeTypeStart, Links: []Link{{NextID: "nowhere"}}},
				{ID: "e", Type: NodeTypeEnd},
			},
		},
		{
			name: "duplicate id",
			nodes: []Node{
				{ID: "s", Type: NodeTypeStart},
				{ID: "s", Type: NodeTypeEnd},
			},
		},
		{
			name: "missing type",
			nodes: []Node{
				{ID: "s", Type: NodeTypeStart},
				{ID: "x"},
				{ID: "e", Type: NodeTypeEnd},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph("g", "", nil, tt.nodes...)
			if !errors.Is(err, ErrInvalidGraph) {
				t.Errorf("Expected ErrInvalidGraph, got %v", err)
			}
		})
	}
}

func TestGraph_NodeNotFound(t *testing.T) {
	g := MustGraph("g", "", nil,
		Node{ID: "s", Type: NodeTypeStart, Links: []Link{{NextID: "e"}}},
		Node{ID: "e", Type: NodeTypeEnd},
	)
	if _, err := g.Node("missing"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Expected ErrNodeNotFound, got %v", err)
	}
}

func TestNodeType_IsGateway(t *testing.T) {
	gateways := map[NodeType]bool{
		NodeTypeStart:     false,
		NodeTypeEnd:       false,
		NodeTypeActivity:  false,
		NodeTypeExclusive: true,
		NodeTypeInclusive: true,
		NodeTypeParallel:  true,
		NodeTypeLoop:      true,
	}
	for typ, want := range gateways {
		if got := typ.IsGateway(); got != want {
			t.Errorf("%s.IsGateway() = %v, want %v", typ, got, want)
		}
	}
}

func TestTaskAction_TargetState(t *testing.T) {
	tests := map[TaskAction]TaskState{
		TaskActionBack:        TaskStateWaiting,
		TaskActionBackJump:    TaskStateWaiting,
		TaskActionForward:     TaskStateCompleted,
		TaskActionForwardJump: TaskStateCompleted,
		TaskActionTerminate:   TaskStateTerminated,
		TaskActionRestart:     TaskStateUnknown,
		TaskActionUnknown:     TaskStateUnknown,
	}
	for action, want := range tests {
		if got := action.TargetState(); got != want {
			t.Errorf("%s.TargetState() = %s, want %s", action, got, want)
		}
	}
}

func TestParseTaskAction(t *testing.T) {
	a, err := ParseTaskAction("forward-jump")
	if err != nil || a != TaskActionForwardJump {
		t.Errorf("ParseTaskAction(forward-jump) = %v, %v", a, err)
	}

	if _, err := ParseTaskAction("unknown"); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("Expected ErrInvalidAction for UNKNOWN, got %v", err)
	}
	if _, err := ParseTaskAction("approve"); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("Expected ErrInvalidAction, got %v", err)
	}
}

func TestTaskStateOf(t *testing.T) {
	if TaskStateOf(1002) != TaskStateCompleted {
		t.Error("Expected code 1002 to map to COMPLETED")
	}
	if TaskStateOf(42) != TaskStateUnknown {
		t.Error("Expected unknown code to map to UNKNOWN")
	}
}

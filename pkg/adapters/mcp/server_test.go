package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/controller"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/expr"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/espalier/pkg/registry"
	"github.com/aretw0/espalier/pkg/workflow"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	g := domain.MustGraph("g1", "Approval", nil,
		domain.Node{ID: "s", Type: domain.NodeTypeStart, Links: []domain.Link{{NextID: "n0"}}},
		domain.Node{ID: "n0", Type: domain.NodeTypeActivity, Title: "Request", Meta: map[string]any{"role": "employee"}, Links: []domain.Link{{NextID: "n1"}}},
		domain.Node{ID: "n1", Type: domain.NodeTypeActivity, Title: "Approve", Meta: map[string]any{"role": "tl"}, Links: []domain.Link{{NextID: "e"}}},
		domain.Node{ID: "e", Type: domain.NodeTypeEnd},
	)
	catalog := memory.NewCatalog(g)
	exec := workflow.NewExecutor(
		flow.New(flow.WithConditionEvaluator(expr.NewEvaluator().Evaluate)),
		registry.NewDriver(registry.NewRegistry(), catalog),
		memory.NewRepository(),
		controller.Actor("role"),
	)
	return NewServer(exec, catalog)
}

func args(role string, extra ...string) map[string]interface{} {
	a := map[string]interface{}{
		"graph_id":    "g1",
		"instance_id": "i1",
		"vars":        `{"role":"` + role + `"}`,
	}
	for i := 0; i+1 < len(extra); i += 2 {
		a[extra[i]] = extra[i+1]
	}
	return a
}

func TestServer_TaskTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleFindTask(ctx, mcp.CallToolRequest{}, args("employee"))
	require.NoError(t, err)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, TaskView{GraphID: "g1", NodeID: "n0", Title: "Request", State: "WAITING"}, res.Tasks[0])

	submitted, err := s.handleSubmitTask(ctx, mcp.CallToolRequest{}, args("employee", "node_id", "n0", "action", "forward"))
	require.NoError(t, err)
	assert.Equal(t, SubmitResult{Applied: true, NodeID: "n0", State: "COMPLETED"}, submitted)

	next, err := s.handleFindNextTasks(ctx, mcp.CallToolRequest{}, args("employee"))
	require.NoError(t, err)
	require.Len(t, next.Tasks, 1)
	assert.Equal(t, "n1", next.Tasks[0].NodeID)
	assert.Equal(t, "UNKNOWN", next.Tasks[0].State)

	located, err := s.handleLocateTask(ctx, mcp.CallToolRequest{}, args("employee"))
	require.NoError(t, err)
	require.Len(t, located.Tasks, 1)
	assert.Equal(t, "n1", located.Tasks[0].NodeID)
}

func TestServer_SubmitIfWaiting(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleFindTask(ctx, mcp.CallToolRequest{}, args("employee"))
	require.NoError(t, err)

	a := args("tl", "node_id", "n0", "action", "FORWARD")
	a["if_waiting"] = true
	res, err := s.handleSubmitTask(ctx, mcp.CallToolRequest{}, a)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "WAITING", res.State)
}

func TestServer_ArgumentErrors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr string
	}{
		{"Unknown Graph", map[string]interface{}{"graph_id": "nope", "instance_id": "i1"}, "graph not found"},
		{"Missing Instance", map[string]interface{}{"graph_id": "g1"}, "instance_id is required"},
		{"Bad Vars", map[string]interface{}{"graph_id": "g1", "instance_id": "i1", "vars": "[1"}, "vars must be a JSON object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleFindTask(ctx, mcp.CallToolRequest{}, tt.args)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err := s.handleSubmitTask(ctx, mcp.CallToolRequest{}, args("employee", "node_id", "n0", "action", "sideways"))
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	_, err = s.handleSubmitTask(ctx, mcp.CallToolRequest{}, args("employee", "node_id", "zz", "action", "FORWARD"))
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestServer_DescribeGraphs(t *testing.T) {
	s := newTestServer(t)

	data, err := s.describeGraphs()
	require.NoError(t, err)

	var graphs []struct {
		ID    string `json:"id"`
		Nodes []struct {
			ID   string   `json:"id"`
			Type string   `json:"type"`
			Next []string `json:"next"`
		} `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(data, &graphs))
	require.Len(t, graphs, 1)
	assert.Equal(t, "g1", graphs[0].ID)
	require.Len(t, graphs[0].Nodes, 4)
	assert.Equal(t, []string{"n1"}, graphs[0].Nodes[1].Next)
}

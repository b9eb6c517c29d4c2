package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

const graphsURI = "espalier://graphs"

// TaskResult is the structured answer of the task tools.
type TaskResult struct {
	InstanceID string     `json:"instance_id" jsonschema_description:"The process instance queried"`
	Tasks      []TaskView `json:"tasks" jsonschema_description:"Tasks found, empty when nothing is actionable"`
	Ended      bool       `json:"ended" jsonschema_description:"Indicates the instance reached an end node"`
}

// TaskView describes one task.
type TaskView struct {
	GraphID string `json:"graph_id"`
	NodeID  string `json:"node_id"`
	Title   string `json:"title,omitempty"`
	State   string `json:"state" jsonschema_description:"UNKNOWN, WAITING, COMPLETED or TERMINATED"`
}

// SubmitResult reports a submission.
type SubmitResult struct {
	Applied bool   `json:"applied" jsonschema_description:"False when an if_waiting submission was skipped"`
	NodeID  string `json:"node_id"`
	State   string `json:"state"`
}

// Executor is the workflow surface exposed as tools. workflow.Executor
// implements it.
type Executor interface {
	FindTask(ctx context.Context, g *domain.Graph, fc *flow.Context) (*domain.Task, error)
	FindNextTasks(ctx context.Context, g *domain.Graph, fc *flow.Context) ([]domain.Task, error)
	LocateTask(ctx context.Context, g *domain.Graph, fc *flow.Context) (*domain.Task, error)
	Submit(ctx context.Context, node *domain.Node, action domain.TaskAction, fc *flow.Context) error
	SubmitIfWaiting(ctx context.Context, task *domain.Task, action domain.TaskAction, fc *flow.Context) (bool, error)
	GetState(ctx context.Context, node *domain.Node, fc *flow.Context) (domain.TaskState, error)
	Snapshot(ctx context.Context, instanceID string) (map[string]domain.TaskState, error)
}

// Server exposes the workflow executor as an MCP server.
type Server struct {
	exec      Executor
	graphs    ports.GraphSource
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(exec Executor, graphs ports.GraphSource, opts ...Option) *Server {
	s := &Server{
		exec:      exec,
		graphs:    graphs,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("espalier-mcp", strings.TrimSpace(espalier.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) registerTools() {
	query := func(name, description string) mcp.Tool {
		return mcp.NewTool(name,
			mcp.WithDescription(description),
			mcp.WithString("graph_id", mcp.Required(), mcp.Description("The graph of the process")),
			mcp.WithString("instance_id", mcp.Required(), mcp.Description("The process instance")),
			mcp.WithString("vars", mcp.Description("JSON object of actor variables, e.g. {\"role\":\"tl\"}")),
			mcp.WithOutputSchema[TaskResult](),
		)
	}

	// TOOL: find_task
	s.mcpServer.AddTool(
		query("find_task", "Find the first task the actor may act on and claim it (marks it WAITING)."),
		mcp.NewStructuredToolHandler(s.handleFindTask),
	)

	// TOOL: find_next_tasks
	s.mcpServer.AddTool(
		query("find_next_tasks", "List every task reachable now, including tasks owned by other actors (state UNKNOWN)."),
		mcp.NewStructuredToolHandler(s.handleFindNextTasks),
	)

	// TOOL: locate_task
	s.mcpServer.AddTool(
		query("locate_task", "Report where the instance stands without claiming anything."),
		mcp.NewStructuredToolHandler(s.handleLocateTask),
	)

	// TOOL: submit_task
	submitTool := mcp.NewTool("submit_task",
		mcp.WithDescription("Submit an action on a node: FORWARD, BACK, FORWARD_JUMP, BACK_JUMP, TERMINATE or RESTART."),
		mcp.WithString("graph_id", mcp.Required(), mcp.Description("The graph of the process")),
		mcp.WithString("instance_id", mcp.Required(), mcp.Description("The process instance")),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("The node acted on")),
		mcp.WithString("action", mcp.Required(), mcp.Description("The action to apply")),
		mcp.WithString("vars", mcp.Description("JSON object of actor variables")),
		mcp.WithBoolean("if_waiting", mcp.Description("Only apply when the task is WAITING and the actor owns it")),
		mcp.WithOutputSchema[SubmitResult](),
	)
	s.mcpServer.AddTool(submitTool, mcp.NewStructuredToolHandler(s.handleSubmitTask))

	// TOOL: get_state
	s.mcpServer.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Get the persisted task states of an instance."),
		mcp.WithString("instance_id", mcp.Required(), mcp.Description("The process instance")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		instanceID := request.GetString("instance_id", "")
		snap, err := s.exec.Snapshot(ctx, instanceID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("snapshot failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(snap)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	// TOOL: list_graphs
	s.mcpServer.AddTool(mcp.NewTool("list_graphs",
		mcp.WithDescription("List the known process graphs and their nodes."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, err := s.describeGraphs()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) registerResources() {
	// EXPOSE: espalier://graphs
	s.mcpServer.AddResource(mcp.NewResource(graphsURI, "Process Graph Definitions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := s.describeGraphs()
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      graphsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

// Handler methods for structured tools

func (s *Server) handleFindTask(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TaskResult, error) {
	g, fc, err := s.resolve(args)
	if err != nil {
		return TaskResult{}, err
	}
	task, err := s.exec.FindTask(ctx, g, fc)
	if err != nil {
		return TaskResult{}, fmt.Errorf("find task failed: %w", err)
	}
	return single(g, fc, task), nil
}

func (s *Server) handleLocateTask(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TaskResult, error) {
	g, fc, err := s.resolve(args)
	if err != nil {
		return TaskResult{}, err
	}
	task, err := s.exec.LocateTask(ctx, g, fc)
	if err != nil {
		return TaskResult{}, fmt.Errorf("locate task failed: %w", err)
	}
	return single(g, fc, task), nil
}

func (s *Server) handleFindNextTasks(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TaskResult, error) {
	g, fc, err := s.resolve(args)
	if err != nil {
		return TaskResult{}, err
	}
	tasks, err := s.exec.FindNextTasks(ctx, g, fc)
	if err != nil {
		return TaskResult{}, fmt.Errorf("find next tasks failed: %w", err)
	}
	res := TaskResult{InstanceID: fc.InstanceID(), Tasks: []TaskView{}}
	for i := range tasks {
		res.Tasks = append(res.Tasks, view(&tasks[i]))
	}
	res.Ended = len(tasks) == 0 && fc.Trace().Ended(g.ID)
	return res, nil
}

func (s *Server) handleSubmitTask(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SubmitResult, error) {
	g, fc, err := s.resolve(args)
	if err != nil {
		return SubmitResult{}, err
	}
	nodeID, _ := args["node_id"].(string)
	node, err := g.Node(nodeID)
	if err != nil {
		return SubmitResult{}, err
	}
	name, _ := args["action"].(string)
	action, err := domain.ParseTaskAction(name)
	if err != nil {
		return SubmitResult{}, err
	}

	applied := true
	if ifWaiting, _ := args["if_waiting"].(bool); ifWaiting {
		state, err := s.exec.GetState(ctx, node, fc)
		if err != nil {
			return SubmitResult{}, err
		}
		applied, err = s.exec.SubmitIfWaiting(ctx, &domain.Task{Node: node, State: state}, action, fc)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("submit failed: %w", err)
		}
	} else if err := s.exec.Submit(ctx, node, action, fc); err != nil {
		return SubmitResult{}, fmt.Errorf("submit failed: %w", err)
	}

	state, err := s.exec.GetState(ctx, node, fc)
	if err != nil {
		return SubmitResult{}, err
	}
	s.logger.Info("MCP: Task submitted", "instance_id", fc.InstanceID(), "node_id", node.ID, "action", action.String(), "applied", applied)
	return SubmitResult{Applied: applied, NodeID: node.ID, State: state.String()}, nil
}

// resolve reads graph_id, instance_id and vars from the tool arguments.
func (s *Server) resolve(args map[string]interface{}) (*domain.Graph, *flow.Context, error) {
	graphID, _ := args["graph_id"].(string)
	instanceID, _ := args["instance_id"].(string)
	if instanceID == "" {
		return nil, nil, errors.New("instance_id is required")
	}
	g, err := s.graphs.Graph(graphID)
	if err != nil {
		return nil, nil, err
	}

	vars := make(map[string]any)
	if raw, ok := args["vars"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &vars); err != nil {
			return nil, nil, fmt.Errorf("vars must be a JSON object: %w", err)
		}
	}
	return g, flow.NewContextWith(instanceID, vars), nil
}

func (s *Server) describeGraphs() ([]byte, error) {
	type node struct {
		ID    string   `json:"id"`
		Type  string   `json:"type"`
		Title string   `json:"title,omitempty"`
		Next  []string `json:"next,omitempty"`
	}
	type graph struct {
		ID    string `json:"id"`
		Title string `json:"title,omitempty"`
		Nodes []node `json:"nodes"`
	}

	var out []graph
	for _, g := range s.graphs.Graphs() {
		gv := graph{ID: g.ID, Title: g.Title}
		for _, n := range g.Nodes() {
			nv := node{ID: n.ID, Type: n.Type.String(), Title: n.Title}
			for _, next := range n.Next() {
				nv.Next = append(nv.Next, next.ID)
			}
			gv.Nodes = append(gv.Nodes, nv)
		}
		out = append(out, gv)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to describe graphs: %w", err)
	}
	return data, nil
}

func single(g *domain.Graph, fc *flow.Context, task *domain.Task) TaskResult {
	res := TaskResult{InstanceID: fc.InstanceID(), Tasks: []TaskView{}}
	if task == nil {
		res.Ended = fc.Trace().Ended(g.ID)
		return res
	}
	res.Tasks = append(res.Tasks, view(task))
	return res
}

func view(t *domain.Task) TaskView {
	return TaskView{
		GraphID: t.Node.GraphID(),
		NodeID:  t.Node.ID,
		Title:   t.Node.Title,
		State:   t.State.String(),
	}
}

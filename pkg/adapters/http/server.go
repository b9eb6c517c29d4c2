package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/internal/presentation/graph"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Executor is the workflow surface served over HTTP. workflow.Executor
// implements it.
type Executor interface {
	FindTask(ctx context.Context, g *domain.Graph, fc *flow.Context) (*domain.Task, error)
	FindNextTasks(ctx context.Context, g *domain.Graph, fc *flow.Context) ([]domain.Task, error)
	LocateTask(ctx context.Context, g *domain.Graph, fc *flow.Context) (*domain.Task, error)
	Submit(ctx context.Context, node *domain.Node, action domain.TaskAction, fc *flow.Context) error
	SubmitIfWaiting(ctx context.Context, task *domain.Task, action domain.TaskAction, fc *flow.Context) (bool, error)
	GetState(ctx context.Context, node *domain.Node, fc *flow.Context) (domain.TaskState, error)
	ClearState(ctx context.Context, g *domain.Graph, fc *flow.Context) error
	Snapshot(ctx context.Context, instanceID string) (map[string]domain.TaskState, error)
}

// Server holds the HTTP handlers.
type Server struct {
	Executor Executor
	Graphs   ports.GraphSource
	Streams  *StreamManager

	logger   *slog.Logger
	validate *validator.Validate
	metrics  *httpMetrics
	gatherer prometheus.Gatherer
	cors     bool
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStreams serves task events of an instance as server-sent events. The
// same StreamManager must receive the executor events (see
// StreamManager.Hooks).
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithCORS allows cross-origin calls from any origin.
func WithCORS() Option {
	return func(s *Server) {
		s.cors = true
	}
}

// WithMetrics records request metrics in reg and serves g on /metrics.
func WithMetrics(reg prometheus.Registerer, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = newHTTPMetrics(reg)
		s.gatherer = g
	}
}

// NewHandler creates the HTTP handler of the workflow API.
func NewHandler(exec Executor, graphs ports.GraphSource, opts ...Option) http.Handler {
	s := &Server{
		Executor: exec,
		Graphs:   graphs,
		logger:   logging.NewNop(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.middleware)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/healthz", s.GetHealth)
	r.Route("/graphs", func(r chi.Router) {
		r.Get("/", s.ListGraphs)
		r.Route("/{graphID}", func(r chi.Router) {
			r.Get("/", s.GetGraph)
			r.Get("/mermaid", s.GetMermaid)
			r.Post("/instances", s.StartInstance)
			r.Route("/instances/{instanceID}", func(r chi.Router) {
				r.Post("/task", s.FindTask)
				r.Post("/tasks", s.FindNextTasks)
				r.Post("/locate", s.LocateTask)
				r.Get("/state", s.GetState)
				r.Delete("/", s.ClearState)
				r.Get("/events", s.SubscribeEvents)
				r.Post("/nodes/{nodeID}/submit", s.SubmitTask)
			})
		})
	})

	if s.cors {
		return enableCORS(r)
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /healthz request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListGraphs handles the GET /graphs request.
func (s *Server) ListGraphs(w http.ResponseWriter, r *http.Request) {
	graphs := s.Graphs.Graphs()
	resp := make([]GraphSummary, 0, len(graphs))
	for _, g := range graphs {
		resp = append(resp, GraphSummary{ID: g.ID, Title: g.Title, Nodes: g.Len()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetGraph handles the GET /graphs/{graphID} request.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	g, ok := s.graph(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newGraphResponse(g))
}

// GetMermaid handles the GET /graphs/{graphID}/mermaid request. The optional
// instance query parameter colours the nodes by their states.
func (s *Server) GetMermaid(w http.ResponseWriter, r *http.Request) {
	g, ok := s.graph(w, r)
	if !ok {
		return
	}

	var overlay graph.StateOverlay
	if instanceID := r.URL.Query().Get("instance"); instanceID != "" {
		snap, err := s.Executor.Snapshot(r.Context(), instanceID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		overlay = snap
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, graph.GenerateMermaid(g, overlay))
}

// StartInstance handles the POST /graphs/{graphID}/instances request: it
// mints an instance id and claims the first task of the caller.
func (s *Server) StartInstance(w http.ResponseWriter, r *http.Request) {
	g, ok := s.graph(w, r)
	if !ok {
		return
	}
	var body QueryRequest
	if !s.decode(w, r, &body) {
		return
	}

	fc := flow.NewContextWith(uuid.NewString(), body.Vars)
	task, err := s.Executor.FindTask(r.Context(), g, fc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newFindResponse(g, fc, task))
}

// FindTask handles the POST .../instances/{instanceID}/task request.
func (s *Server) FindTask(w http.ResponseWriter, r *http.Request) {
	g, fc, ok := s.instance(w, r)
	if !ok {
		return
	}
	task, err := s.Executor.FindTask(r.Context(), g, fc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFindResponse(g, fc, task))
}

// FindNextTasks handles the POST .../instances/{instanceID}/tasks request.
func (s *Server) FindNextTasks(w http.ResponseWriter, r *http.Request) {
	g, fc, ok := s.instance(w, r)
	if !ok {
		return
	}
	tasks, err := s.Executor.FindNextTasks(r.Context(), g, fc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := make([]TaskResponse, 0, len(tasks))
	for i := range tasks {
		resp = append(resp, newTaskResponse(&tasks[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// LocateTask handles the POST .../instances/{instanceID}/locate request.
func (s *Server) LocateTask(w http.ResponseWriter, r *http.Request) {
	g, fc, ok := s.instance(w, r)
	if !ok {
		return
	}
	task, err := s.Executor.LocateTask(r.Context(), g, fc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFindResponse(g, fc, task))
}

// SubmitTask handles the POST .../nodes/{nodeID}/submit request.
func (s *Server) SubmitTask(w http.ResponseWriter, r *http.Request) {
	g, ok := s.graph(w, r)
	if !ok {
		return
	}
	node, err := g.Node(chi.URLParam(r, "nodeID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var body SubmitRequest
	if !s.decode(w, r, &body) {
		return
	}
	action, err := domain.ParseTaskAction(body.Action)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ctx := r.Context()
	fc := flow.NewContextWith(chi.URLParam(r, "instanceID"), body.Vars)

	applied := true
	if body.IfWaiting {
		state, err := s.Executor.GetState(ctx, node, fc)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		applied, err = s.Executor.SubmitIfWaiting(ctx, &domain.Task{Node: node, State: state}, action, fc)
		if err != nil {
			s.fail(w, r, err)
			return
		}
	} else if err := s.Executor.Submit(ctx, node, action, fc); err != nil {
		s.fail(w, r, err)
		return
	}

	state, err := s.Executor.GetState(ctx, node, fc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{Applied: applied, NodeID: node.ID, State: state})
}

// GetState handles the GET .../instances/{instanceID}/state request.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	g, ok := s.graph(w, r)
	if !ok {
		return
	}
	instanceID := chi.URLParam(r, "instanceID")

	snap, err := s.Executor.Snapshot(r.Context(), instanceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := StateResponse{InstanceID: instanceID, Nodes: []NodeState{}}
	seen := make(map[string]bool, len(snap))
	for _, n := range g.Nodes() {
		if n.Type != domain.NodeTypeActivity {
			continue
		}
		seen[n.Key()] = true
		resp.Nodes = append(resp.Nodes, NodeState{Key: n.Key(), NodeID: n.ID, State: snap[n.Key()]})
	}
	// Entries of sub-graphs run under this instance.
	var extra []string
	for key := range snap {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		resp.Nodes = append(resp.Nodes, NodeState{Key: key, State: snap[key]})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClearState handles the DELETE .../instances/{instanceID} request.
func (s *Server) ClearState(w http.ResponseWriter, r *http.Request) {
	g, ok := s.graph(w, r)
	if !ok {
		return
	}
	fc := flow.NewContext(chi.URLParam(r, "instanceID"))
	if err := s.Executor.ClearState(r.Context(), g, fc); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubscribeEvents handles the GET .../instances/{instanceID}/events request
// (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	if s.Streams == nil {
		notFound(w, r, "event streaming is disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		internalError(w, r, errors.New("streaming not supported"))
		return
	}

	instanceID := chi.URLParam(r, "instanceID")
	ch, cancel := s.Streams.Subscribe(instanceID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s.logger.Info("SSE: Subscribing to instance events", "instance_id", instanceID)
	writeEvent(w, "ping", "connected")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "instance_id", instanceID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, "task", msg)
			flusher.Flush()
		}
	}
}

// -- Helpers --

func (s *Server) graph(w http.ResponseWriter, r *http.Request) (*domain.Graph, bool) {
	g, err := s.Graphs.Graph(chi.URLParam(r, "graphID"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return g, true
}

func (s *Server) instance(w http.ResponseWriter, r *http.Request) (*domain.Graph, *flow.Context, bool) {
	g, ok := s.graph(w, r)
	if !ok {
		return nil, nil, false
	}
	var body QueryRequest
	if !s.decode(w, r, &body) {
		return nil, nil, false
	}
	return g, flow.NewContextWith(chi.URLParam(r, "instanceID"), body.Vars), true
}

// decode reads an optional JSON body and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			s.logger.Warn("Invalid request body", "path", r.URL.Path, "err", err)
			badRequest(w, r, "invalid request body: "+err.Error())
			return false
		}
	}
	if err := s.validate.Struct(dst); err != nil {
		badRequest(w, r, err.Error())
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := writeError(w, r, err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", r.URL.Path, "err", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// httpMetrics labels requests with the chi route pattern to bound
// cardinality.
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "espalier_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "espalier_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

func (m *httpMetrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := routePattern(r)
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unmatched"
}

package espalier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/adapters/memory"
	"github.com/aretw0/espalier/pkg/controller"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/expr"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/registry"
	"github.com/aretw0/espalier/pkg/workflow"
)

// Engine is the high-level entry point of the library. It wires the graph
// catalog, the generic engine, the task registry, the state repository and
// the workflow executor.
type Engine struct {
	catalog  *memory.Catalog
	registry *registry.Registry
	executor *workflow.Executor

	loaders     []ports.GraphLoader
	graphs      []*domain.Graph
	handlers    map[string]registry.Handler
	repo        ports.StateRepository
	controller  ports.StateController
	evaluator   flow.ConditionEvaluator
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	execOpts    []workflow.Option
	parallelism int
	closers     []func() error
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithGraphs registers graphs built in code.
func WithGraphs(graphs ...*domain.Graph) Option {
	return func(e *Engine) {
		e.graphs = append(e.graphs, graphs...)
	}
}

// WithLoader adds a source of graph definitions, read once by New.
func WithLoader(l ports.GraphLoader) Option {
	return func(e *Engine) {
		e.loaders = append(e.loaders, l)
	}
}

// WithHandler registers a task handler under name.
func WithHandler(name string, h registry.Handler) Option {
	return func(e *Engine) {
		e.handlers[name] = h
	}
}

// WithRepository sets the state repository (default: in memory).
func WithRepository(repo ports.StateRepository) Option {
	return func(e *Engine) {
		e.repo = repo
	}
}

// WithController sets the authorization policy (default: controller.Actor()).
func WithController(c ports.StateController) Option {
	return func(e *Engine) {
		e.controller = c
	}
}

// WithConditionEvaluator replaces the HCL expression evaluator.
func WithConditionEvaluator(eval flow.ConditionEvaluator) Option {
	return func(e *Engine) {
		e.evaluator = eval
	}
}

// WithLifecycleHooks registers observability hooks for both node visits and
// task submissions.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithObserver installs metrics and tracing on the executor.
func WithObserver(o workflow.Observer) Option {
	return func(e *Engine) {
		e.execOpts = append(e.execOpts, workflow.WithObserver(o))
	}
}

// WithPublisher publishes an event for every successful submission.
func WithPublisher(p ports.EventPublisher) Option {
	return func(e *Engine) {
		e.execOpts = append(e.execOpts, workflow.WithPublisher(p))
	}
}

// WithDistributedLocker serializes submissions across processes.
func WithDistributedLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.execOpts = append(e.execOpts, workflow.WithDistributedLocker(l))
	}
}

// WithMaxJumpHops bounds FORWARD_JUMP and BACK_JUMP.
func WithMaxJumpHops(n int) Option {
	return func(e *Engine) {
		e.execOpts = append(e.execOpts, workflow.WithMaxJumpHops(n))
	}
}

// WithParallelism walks up to n gateway branches concurrently.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		e.parallelism = n
	}
}

// WithCloser registers a release function run by Close, e.g. a database
// handle opened for WithRepository.
func WithCloser(fn func() error) Option {
	return func(e *Engine) {
		e.closers = append(e.closers, fn)
	}
}

// New initializes a new Engine. Graphs from the loaders are read once; a
// graph id defined twice is an error.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	eng := &Engine{handlers: make(map[string]registry.Handler)}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.repo == nil {
		eng.repo = memory.NewRepository()
	}
	if eng.controller == nil {
		eng.controller = controller.Actor()
	}
	if eng.evaluator == nil {
		eng.evaluator = expr.NewEvaluator().Evaluate
	}

	graphs := append([]*domain.Graph(nil), eng.graphs...)
	for _, l := range eng.loaders {
		loaded, err := l.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load graphs: %w", err)
		}
		graphs = append(graphs, loaded...)
	}

	eng.catalog = memory.NewCatalog()
	for _, g := range graphs {
		if _, err := eng.catalog.Graph(g.ID); err == nil {
			return nil, fmt.Errorf("%w: graph %s defined twice", domain.ErrInvalidGraph, g.ID)
		}
		eng.catalog.Register(g)
	}

	eng.registry = registry.NewRegistry()
	for name, h := range eng.handlers {
		eng.registry.Register(name, h)
	}

	engine := flow.New(
		flow.WithConditionEvaluator(eng.evaluator),
		flow.WithLifecycleHooks(eng.hooks),
		flow.WithLogger(eng.logger),
		flow.WithParallelism(eng.parallelism),
	)

	execOpts := []workflow.Option{
		workflow.WithLogger(eng.logger),
		workflow.WithLifecycleHooks(eng.hooks),
	}
	execOpts = append(execOpts, eng.execOpts...)

	eng.executor = workflow.NewExecutor(
		engine,
		registry.NewDriver(eng.registry, eng.catalog),
		eng.repo,
		eng.controller,
		execOpts...,
	)

	eng.logger.Debug("Engine ready", "graphs", len(graphs), "handlers", len(eng.handlers))
	return eng, nil
}

// Executor returns the workflow executor.
func (e *Engine) Executor() *workflow.Executor {
	return e.executor
}

// Catalog returns the registered graphs.
func (e *Engine) Catalog() ports.GraphSource {
	return e.catalog
}

// Registry returns the task registry; handlers may be added after New.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Graph returns a registered graph.
func (e *Engine) Graph(id string) (*domain.Graph, error) {
	return e.catalog.Graph(id)
}

// Node resolves a node by graph and node id.
func (e *Engine) Node(graphID, nodeID string) (*domain.Node, error) {
	g, err := e.catalog.Graph(graphID)
	if err != nil {
		return nil, err
	}
	return g.Node(nodeID)
}

// FindTask returns the first task of the actor in the graph.
func (e *Engine) FindTask(ctx context.Context, graphID string, fc *flow.Context) (*domain.Task, error) {
	g, err := e.catalog.Graph(graphID)
	if err != nil {
		return nil, err
	}
	return e.executor.FindTask(ctx, g, fc)
}

// Submit applies action on the node identified by graph and node id.
func (e *Engine) Submit(ctx context.Context, graphID, nodeID string, action domain.TaskAction, fc *flow.Context) error {
	node, err := e.Node(graphID, nodeID)
	if err != nil {
		return err
	}
	return e.executor.Submit(ctx, node, action, fc)
}

// Close releases the resources registered with WithCloser.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

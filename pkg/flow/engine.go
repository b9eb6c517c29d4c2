package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
	"golang.org/x/sync/errgroup"
)

// Loop node attributes.
const (
	MetaLoopFor = "$for"
	MetaLoopIn  = "$in"
)

// Engine walks graphs. It holds no per-walk state and is safe for concurrent
// use.
type Engine struct {
	evaluator   ConditionEvaluator
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	parallelism int
}

// Option configures the Engine.
type Option func(*Engine)

// WithConditionEvaluator sets the evaluator used for link and node guards.
func WithConditionEvaluator(eval ConditionEvaluator) Option {
	return func(e *Engine) {
		e.evaluator = eval
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability callbacks run before the driver
// on every node start and end.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithParallelism runs the branches of a parallel gateway concurrently, with
// at most n branches in flight. Zero (the default) keeps them sequential.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		e.parallelism = n
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Eval walks the graph from its start node.
func (e *Engine) Eval(ctx context.Context, g *domain.Graph, fc *Context, driver Driver) error {
	return e.EvalNode(ctx, g.Start(), fc, driver)
}

// EvalNode starts a new walk from the given node. The stop signal and the
// trace of the context are cleared first.
func (e *Engine) EvalNode(ctx context.Context, node *domain.Node, fc *Context, driver Driver) error {
	if node == nil || node.Graph() == nil {
		return fmt.Errorf("%w: detached node", domain.ErrNodeNotFound)
	}
	return e.run(ctx, e.NewExchanger(node.Graph(), fc, driver), node)
}

// NewExchanger prepares a fresh exchanger on g, for running driver callbacks
// outside of Eval (a task body executed on submit, for instance). The stop
// signal and the trace of the context are cleared.
func (e *Engine) NewExchanger(g *domain.Graph, fc *Context, driver Driver) *Exchanger {
	fc.reset()
	return &Exchanger{
		engine:  e,
		driver:  driver,
		graph:   g,
		fc:      fc,
		scratch: newScratch(),
	}
}

func (e *Engine) run(ctx context.Context, ex *Exchanger, node *domain.Node) error {
	if node == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if ex.halted() {
		return nil
	}

	ex.fc.trace.record(node)
	e.logger.Debug("Visiting node",
		"instance_id", ex.fc.InstanceID(),
		"graph_id", node.GraphID(),
		"node_id", node.ID,
		"node_type", node.Type.String(),
	)

	switch node.Type {
	case domain.NodeTypeStart:
		if !e.nodeStart(ctx, ex, node) || !e.nodeEnd(ctx, ex, node) {
			return nil
		}
		return e.followLinks(ctx, ex, node)
	case domain.NodeTypeEnd:
		if e.nodeStart(ctx, ex, node) {
			e.nodeEnd(ctx, ex, node)
		}
		return nil
	case domain.NodeTypeActivity:
		return e.runActivity(ctx, ex, node)
	case domain.NodeTypeExclusive:
		return e.runExclusive(ctx, ex, node)
	case domain.NodeTypeInclusive:
		return e.runInclusive(ctx, ex, node)
	case domain.NodeTypeParallel:
		return e.runParallel(ctx, ex, node)
	case domain.NodeTypeLoop:
		return e.runLoop(ctx, ex, node)
	default:
		return fmt.Errorf("%w: node %s has unsupported type %s", domain.ErrInvalidGraph, node.Key(), node.Type)
	}
}

func (e *Engine) nodeStart(ctx context.Context, ex *Exchanger, node *domain.Node) bool {
	if e.hooks.OnNodeStart != nil {
		e.hooks.OnNodeStart(ctx, e.nodeEvent(domain.EventNodeStart, ex, node))
	}
	ex.driver.OnNodeStart(ctx, ex, node)
	return !ex.halted()
}

func (e *Engine) nodeEnd(ctx context.Context, ex *Exchanger, node *domain.Node) bool {
	if e.hooks.OnNodeEnd != nil {
		e.hooks.OnNodeEnd(ctx, e.nodeEvent(domain.EventNodeEnd, ex, node))
	}
	ex.driver.OnNodeEnd(ctx, ex, node)
	return !ex.halted()
}

func (e *Engine) nodeEvent(typ domain.EventType, ex *Exchanger, node *domain.Node) *domain.NodeEvent {
	return &domain.NodeEvent{
		EventBase: domain.EventBase{
			Timestamp:  time.Now(),
			Type:       typ,
			InstanceID: ex.fc.InstanceID(),
		},
		GraphID:  node.GraphID(),
		NodeID:   node.ID,
		NodeType: node.Type.String(),
	}
}

// test evaluates a guard; an empty condition yields def.
func (e *Engine) test(ctx context.Context, ex *Exchanger, condition string, def bool) (bool, error) {
	if condition == "" {
		return def, nil
	}
	if e.evaluator == nil {
		return false, &ConditionError{GraphID: ex.graph.ID, Condition: condition, Err: errors.New("no condition evaluator configured")}
	}
	ok, err := e.evaluator(ctx, condition, ex.fc.Vars())
	if err != nil {
		return false, &ConditionError{GraphID: ex.graph.ID, Condition: condition, Err: err}
	}
	return ok, nil
}

// execTask runs the start hooks, the task (when its guard passes) and the end
// hooks. It reports whether the walk may leave the node.
func (e *Engine) execTask(ctx context.Context, ex *Exchanger, node *domain.Node) (bool, error) {
	if !e.nodeStart(ctx, ex, node) {
		return false, nil
	}

	ok, err := e.test(ctx, ex, node.When, true)
	if err != nil {
		return false, err
	}
	if ok {
		if err := ex.driver.HandleTask(ctx, ex, node); err != nil {
			var taskErr *TaskError
			if errors.As(err, &taskErr) {
				return false, err
			}
			return false, &TaskError{GraphID: node.GraphID(), NodeID: node.ID, Err: err}
		}
	}

	if ex.halted() {
		return false, nil
	}
	return e.nodeEnd(ctx, ex, node), nil
}

func (e *Engine) followLinks(ctx context.Context, ex *Exchanger, node *domain.Node) error {
	for _, l := range node.Links {
		ok, err := e.test(ctx, ex, l.When, true)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		next, err := ex.graph.Node(l.NextID)
		if err != nil {
			return err
		}
		if err := e.run(ctx, ex, next); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runActivity(ctx context.Context, ex *Exchanger, node *domain.Node) error {
	ok, err := e.execTask(ctx, ex, node)
	if err != nil || !ok {
		return err
	}
	return e.followLinks(ctx, ex, node)
}

func (e *Engine) runExclusive(ctx context.Context, ex *Exchanger, node *domain.Node) error {
	ok, err := e.execTask(ctx, ex, node)
	if err != nil || !ok {
		return err
	}

	var fallback *domain.Link
	for i := range node.Links {
		l := &node.Links[i]
		if l.When == "" {
			fallback = l
			continue
		}
		matched, err := e.test(ctx, ex, l.When, false)
		if err != nil {
			return err
		}
		if matched {
			return e.runNext(ctx, ex, l.NextID)
		}
	}
	if fallback != nil {
		return e.runNext(ctx, ex, fallback.NextID)
	}
	return nil
}

func (e *Engine) runInclusive(ctx context.Context, ex *Exchanger, node *domain.Node) error {
	if node.PrevCount() > 1 && !ex.scratch.joinInclusive(ex.graph.ID, node.Key()) {
		return nil
	}

	ok, err := e.execTask(ctx, ex, node)
	if err != nil || !ok {
		return err
	}

	var matched []string
	for _, l := range node.Links {
		pass, err := e.test(ctx, ex, l.When, true)
		if err != nil {
			return err
		}
		if pass {
			matched = append(matched, l.NextID)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	ex.scratch.pushInclusive(ex.graph.ID, len(matched))
	for _, id := range matched {
		if err := e.runNext(ctx, ex, id); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runParallel(ctx context.Context, ex *Exchanger, node *domain.Node) error {
	if ex.scratch.incr(node.Key()) < node.PrevCount() {
		return nil
	}

	ok, err := e.execTask(ctx, ex, node)
	if err != nil || !ok {
		return err
	}
	ex.scratch.resetCount(node.Key())

	next := node.Next()
	if e.parallelism <= 0 || len(next) < 2 {
		for _, n := range next {
			if err := e.run(ctx, ex, n); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for _, n := range next {
		branch := ex.fork()
		g.Go(func() error {
			return e.run(gctx, branch, n)
		})
	}
	return g.Wait()
}

func (e *Engine) runLoop(ctx context.Context, ex *Exchanger, node *domain.Node) error {
	forKey := node.MetaString(MetaLoopFor)

	if forKey == "" {
		// Closing node: pass only once the innermost loop is drained.
		if !ex.scratch.closeLoop(ex.graph.ID) {
			return nil
		}
		ok, err := e.execTask(ctx, ex, node)
		if err != nil || !ok {
			return err
		}
		return e.followLinks(ctx, ex, node)
	}

	ok, err := e.execTask(ctx, ex, node)
	if err != nil || !ok {
		return err
	}

	in, _ := node.MetaValue(MetaLoopIn)
	items, err := loopItems(in, ex.fc)
	if err != nil {
		return fmt.Errorf("loop %s: %w", node.Key(), err)
	}

	it := &iterator{items: items}
	ex.scratch.pushLoop(ex.graph.ID, it)
	for it.hasNext() {
		ex.fc.Put(forKey, it.next())
		if err := e.followLinks(ctx, ex, node); err != nil {
			return err
		}
		if ex.Stopped() {
			return nil
		}
	}
	return nil
}

func (e *Engine) runNext(ctx context.Context, ex *Exchanger, id string) error {
	next, err := ex.graph.Node(id)
	if err != nil {
		return err
	}
	return e.run(ctx, ex, next)
}

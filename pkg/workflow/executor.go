package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/espalier/pkg/ports"
)

// Executor is the public surface of the workflow layer: it answers "what is
// the current task" for an instance and applies actor decisions to it.
//
// Queries take no lock. Every mutating call holds the lock of its instance
// for its whole duration, cascading walks included. The lock is not
// re-entrant, so a task handler must not Submit on its own instance.
type Executor struct {
	engine     *flow.Engine
	plain      flow.Driver
	repo       ports.StateRepository
	controller ports.StateController

	locks       *lockManager
	locker      ports.DistributedLocker
	logger      *slog.Logger
	observer    Observer
	publisher   ports.EventPublisher
	hooks       domain.LifecycleHooks
	maxJumpHops int
}

// Option configures the Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithObserver installs metrics and tracing.
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// WithPublisher publishes an event for every successful submit.
func WithPublisher(p ports.EventPublisher) Option {
	return func(e *Executor) {
		e.publisher = p
	}
}

// WithLifecycleHooks registers callbacks; only OnTaskSubmitted is used by
// the executor, node hooks belong to the engine.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Executor) {
		e.hooks = hooks
	}
}

// WithDistributedLocker layers a cross-process lock over the per-instance
// lock.
func WithDistributedLocker(locker ports.DistributedLocker) Option {
	return func(e *Executor) {
		e.locker = locker
	}
}

// WithMaxJumpHops bounds FORWARD_JUMP and BACK_JUMP. Zero or less means the
// number of nodes in the graph plus one.
func WithMaxJumpHops(n int) Option {
	return func(e *Executor) {
		e.maxJumpHops = n
	}
}

// NewExecutor creates an Executor. plain runs the task bodies; it is wrapped
// by a StatefulDriver on every walk.
func NewExecutor(engine *flow.Engine, plain flow.Driver, repo ports.StateRepository, controller ports.StateController, opts ...Option) *Executor {
	e := &Executor{
		engine:     engine,
		plain:      plain,
		repo:       repo,
		controller: controller,
		logger:     logging.NewNop(),
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.locks = newLockManager(e.locker, e.logger)
	return e
}

// Repository returns the state repository.
func (e *Executor) Repository() ports.StateRepository { return e.repo }

// Controller returns the state controller.
func (e *Executor) Controller() ports.StateController { return e.controller }

func (e *Executor) driver(mode Mode) *StatefulDriver {
	return NewStatefulDriver(e.plain, e.repo, e.controller, mode)
}

// FindTask walks the graph from its start node and returns the first task
// the actor may act on. Reaching it marks it WAITING.
//
// A nil task means either that the instance ended or that every open branch
// is blocked by another actor; fc.Trace().Ended(g.ID) tells them apart.
func (e *Executor) FindTask(ctx context.Context, g *domain.Graph, fc *flow.Context) (*domain.Task, error) {
	d, err := e.query(ctx, g, fc, ModeClaim)
	if err != nil {
		return nil, err
	}
	return d.Task(), nil
}

// FindNextTasks walks every branch and returns all tasks reachable now,
// including UNKNOWN entries for nodes that belong to another actor.
func (e *Executor) FindNextTasks(ctx context.Context, g *domain.Graph, fc *flow.Context) ([]domain.Task, error) {
	d, err := e.query(ctx, g, fc, ModeCollect)
	if err != nil {
		return nil, err
	}
	return d.Tasks(), nil
}

// LocateTask reports where the instance stands: the first blocking node
// (waiting, terminated, or owned by another actor), or the last completed
// node when nothing blocks.
func (e *Executor) LocateTask(ctx context.Context, g *domain.Graph, fc *flow.Context) (*domain.Task, error) {
	d, err := e.query(ctx, g, fc, ModeLocate)
	if err != nil {
		return nil, err
	}
	return d.Task(), nil
}

func (e *Executor) query(ctx context.Context, g *domain.Graph, fc *flow.Context, mode Mode) (*StatefulDriver, error) {
	ctx, end := e.observer.Start(ctx, "workflow.query."+mode.String(), g.ID, fc.InstanceID())
	e.observer.TaskQueried(g.ID, mode)

	d, err := e.walk(ctx, g.Start(), fc, mode)
	end(err)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Task query finished",
		"instance_id", fc.InstanceID(),
		"graph_id", g.ID,
		"mode", mode.String(),
		"node_id", d.Task().NodeID(),
	)
	return d, nil
}

func (e *Executor) walk(ctx context.Context, from *domain.Node, fc *flow.Context, mode Mode) (*StatefulDriver, error) {
	d := e.driver(mode)
	if err := e.engine.EvalNode(ctx, from, fc, d); err != nil {
		return nil, err
	}
	return d, nil
}

// GetState returns the persisted state of the node for the instance.
func (e *Executor) GetState(ctx context.Context, node *domain.Node, fc *flow.Context) (domain.TaskState, error) {
	return e.repo.Get(ctx, fc.InstanceID(), node)
}

// ClearState forgets every state of the instance, under its lock.
func (e *Executor) ClearState(ctx context.Context, g *domain.Graph, fc *flow.Context) error {
	return e.locks.withLock(ctx, fc.InstanceID(), func(ctx context.Context) error {
		if err := e.repo.Clear(ctx, fc.InstanceID()); err != nil {
			return fmt.Errorf("failed to clear instance %s: %w", fc.InstanceID(), err)
		}
		e.logger.Info("Instance state cleared", "instance_id", fc.InstanceID(), "graph_id", g.ID)
		return nil
	})
}

// Snapshot lists the persisted states of the instance when the repository
// supports it.
func (e *Executor) Snapshot(ctx context.Context, instanceID string) (map[string]domain.TaskState, error) {
	lister, ok := e.repo.(ports.StateLister)
	if !ok {
		return nil, fmt.Errorf("state repository %T cannot list states", e.repo)
	}
	return lister.Snapshot(ctx, instanceID)
}

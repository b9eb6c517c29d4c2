package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/espalier/pkg/ports"
)

// Mode selects what a StatefulDriver walk is looking for.
type Mode int

const (
	// ModeClaim stops at the first node the actor may act on.
	ModeClaim Mode = iota
	// ModeCollect gathers every reachable node waiting for an actor.
	ModeCollect
	// ModeLocate reports where the instance stands, whoever the actor is:
	// completed and terminated nodes are recorded too, and the walk stops
	// at the first node that blocks it.
	ModeLocate
)

func (m Mode) String() string {
	switch m {
	case ModeClaim:
		return "claim"
	case ModeCollect:
		return "collect"
	case ModeLocate:
		return "locate"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// StatefulDriver wraps a plain driver and intercepts activity nodes: it
// consults the persisted state and the controller, records the task found
// and steers the walk. A StatefulDriver holds the result of one walk; create
// one per walk.
type StatefulDriver struct {
	plain      flow.Driver
	repo       ports.StateRepository
	controller ports.StateController
	mode       Mode

	mu    sync.Mutex
	task  *domain.Task
	tasks []domain.Task
}

// NewStatefulDriver creates a driver for a single walk in the given mode.
func NewStatefulDriver(plain flow.Driver, repo ports.StateRepository, controller ports.StateController, mode Mode) *StatefulDriver {
	return &StatefulDriver{
		plain:      plain,
		repo:       repo,
		controller: controller,
		mode:       mode,
	}
}

// Task returns the task found by the walk, or nil.
func (d *StatefulDriver) Task() *domain.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.task == nil {
		return nil
	}
	t := *d.task
	return &t
}

// Tasks returns every task collected by the walk, including the entries of
// nodes the actor may not act on (state UNKNOWN).
func (d *StatefulDriver) Tasks() []domain.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Task(nil), d.tasks...)
}

func (d *StatefulDriver) OnNodeStart(ctx context.Context, ex *flow.Exchanger, node *domain.Node) {
	d.plain.OnNodeStart(ctx, ex, node)
}

func (d *StatefulDriver) OnNodeEnd(ctx context.Context, ex *flow.Exchanger, node *domain.Node) {
	d.plain.OnNodeEnd(ctx, ex, node)
}

// PostHandleTask runs the task body through the plain driver.
func (d *StatefulDriver) PostHandleTask(ctx context.Context, ex *flow.Exchanger, node *domain.Node) error {
	return d.plain.PostHandleTask(ctx, ex, node)
}

// HandleTask intercepts activities. Gateways go straight to the plain
// driver.
func (d *StatefulDriver) HandleTask(ctx context.Context, ex *flow.Exchanger, node *domain.Node) error {
	if node.Type != domain.NodeTypeActivity {
		return d.plain.HandleTask(ctx, ex, node)
	}

	fc := ex.Context()
	state, err := d.repo.Get(ctx, fc.InstanceID(), node)
	if err != nil {
		return fmt.Errorf("failed to read state of %s: %w", node.Key(), err)
	}

	if d.controller.IsAutoForward(fc, node) {
		return d.autoForward(ctx, ex, node, state)
	}
	return d.controlled(ctx, ex, node, state)
}

func (d *StatefulDriver) autoForward(ctx context.Context, ex *flow.Exchanger, node *domain.Node, state domain.TaskState) error {
	fc := ex.Context()

	switch state {
	case domain.TaskStateUnknown, domain.TaskStateWaiting:
		if err := d.PostHandleTask(ctx, ex, node); err != nil {
			return err
		}
		if ex.Stopped() || ex.Interrupted() {
			// The task body holds the walk (a sub-graph waiting for an actor).
			d.record(domain.Task{Node: node, State: domain.TaskStateWaiting})
			if state == domain.TaskStateUnknown {
				return d.put(ctx, fc, node, domain.TaskStateWaiting)
			}
			return nil
		}
		if d.mode == ModeLocate {
			d.record(domain.Task{Node: node, State: domain.TaskStateCompleted})
		}
		return d.put(ctx, fc, node, domain.TaskStateCompleted)
	case domain.TaskStateTerminated:
		if d.mode == ModeLocate {
			d.record(domain.Task{Node: node, State: domain.TaskStateTerminated})
		}
		ex.Stop()
	case domain.TaskStateCompleted:
		if d.mode == ModeLocate {
			d.record(domain.Task{Node: node, State: domain.TaskStateCompleted})
		}
	}
	return nil
}

func (d *StatefulDriver) controlled(ctx context.Context, ex *flow.Exchanger, node *domain.Node, state domain.TaskState) error {
	fc := ex.Context()

	switch state {
	case domain.TaskStateUnknown, domain.TaskStateWaiting:
		if !d.controller.IsOperatable(fc, node) {
			t := domain.Task{Node: node, State: domain.TaskStateUnknown}
			d.collect(t)
			if d.mode == ModeLocate {
				d.record(t)
				ex.Stop()
			} else {
				ex.Interrupt()
			}
			return nil
		}

		t := domain.Task{Node: node, State: domain.TaskStateWaiting}
		d.record(t)
		d.collect(t)
		if state == domain.TaskStateUnknown {
			if err := d.put(ctx, fc, node, domain.TaskStateWaiting); err != nil {
				return err
			}
		}
		if d.mode == ModeCollect {
			ex.Interrupt()
		} else {
			ex.Stop()
		}
	case domain.TaskStateTerminated:
		d.record(domain.Task{Node: node, State: domain.TaskStateTerminated})
		if d.mode == ModeCollect {
			ex.Interrupt()
		} else {
			ex.Stop()
		}
	case domain.TaskStateCompleted:
		if d.mode == ModeLocate {
			d.record(domain.Task{Node: node, State: domain.TaskStateCompleted})
		}
	}
	return nil
}

// record keeps the first task found. In locate mode a completed entry only
// marks the position reached so far and is replaced by whatever comes next.
func (d *StatefulDriver) record(t domain.Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.task == nil || (d.mode == ModeLocate && d.task.State == domain.TaskStateCompleted) {
		d.task = &t
	}
}

func (d *StatefulDriver) collect(t domain.Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, t)
}

func (d *StatefulDriver) put(ctx context.Context, fc *flow.Context, node *domain.Node, state domain.TaskState) error {
	if err := d.repo.Put(ctx, fc.InstanceID(), node, state); err != nil {
		return fmt.Errorf("failed to store state of %s: %w", node.Key(), err)
	}
	return nil
}

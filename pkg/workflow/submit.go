package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
)

func validAction(a domain.TaskAction) bool {
	switch a {
	case domain.TaskActionBack, domain.TaskActionBackJump,
		domain.TaskActionForward, domain.TaskActionForwardJump,
		domain.TaskActionTerminate, domain.TaskActionRestart:
		return true
	default:
		return false
	}
}

// Submit applies an actor decision to the node for the instance of fc.
// It runs under the instance lock. No authorization check is made here;
// use SubmitIfWaiting for actor-facing calls.
func (e *Executor) Submit(ctx context.Context, node *domain.Node, action domain.TaskAction, fc *flow.Context) error {
	if !validAction(action) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidAction, action)
	}
	return e.submit(ctx, node, action, fc, nil)
}

// SubmitIfWaiting submits only when the task is WAITING, both as given and
// as persisted, the actor may act on it, and it is still the task a fresh
// FindTask would return. It reports whether the action was applied.
func (e *Executor) SubmitIfWaiting(ctx context.Context, task *domain.Task, action domain.TaskAction, fc *flow.Context) (bool, error) {
	if task == nil || task.Node == nil || task.State != domain.TaskStateWaiting {
		return false, nil
	}
	if !validAction(action) {
		return false, fmt.Errorf("%w: %s", domain.ErrInvalidAction, action)
	}

	applied := false
	err := e.submit(ctx, task.Node, action, fc, func(ctx context.Context) (bool, error) {
		state, err := e.repo.Get(ctx, fc.InstanceID(), task.Node)
		if err != nil {
			return false, err
		}
		if state != domain.TaskStateWaiting || !e.controller.IsOperatable(fc, task.Node) {
			return false, nil
		}
		d, err := e.walk(ctx, task.Node.Graph().Start(), fc, ModeClaim)
		if err != nil {
			return false, err
		}
		current := d.Task()
		if current == nil || current.Node != task.Node || current.State != domain.TaskStateWaiting {
			return false, nil
		}
		applied = true
		return true, nil
	})
	return applied, err
}

// submit runs the action under the instance lock. guard, when set, runs
// first with the lock held and may veto the action.
func (e *Executor) submit(ctx context.Context, node *domain.Node, action domain.TaskAction, fc *flow.Context, guard func(context.Context) (bool, error)) error {
	started := time.Now()
	ctx, end := e.observer.Start(ctx, "workflow.submit."+action.String(), node.GraphID(), fc.InstanceID())

	skipped := false
	err := e.locks.withLock(ctx, fc.InstanceID(), func(ctx context.Context) error {
		if guard != nil {
			ok, err := guard(ctx)
			if err != nil {
				return err
			}
			if !ok {
				skipped = true
				return nil
			}
		}
		return e.apply(ctx, node, action, fc)
	})
	end(err)

	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeError
	case skipped:
		outcome = OutcomeSkipped
	}
	e.observer.TaskSubmitted(node.GraphID(), action, outcome, time.Since(started))

	if err != nil {
		e.logger.Error("Task submission failed",
			"instance_id", fc.InstanceID(),
			"graph_id", node.GraphID(),
			"node_id", node.ID,
			"action", action.String(),
			"err", err,
		)
		return err
	}
	if skipped {
		e.logger.Debug("Task submission skipped",
			"instance_id", fc.InstanceID(),
			"graph_id", node.GraphID(),
			"node_id", node.ID,
			"action", action.String(),
		)
		return nil
	}

	e.logger.Info("Task submitted",
		"instance_id", fc.InstanceID(),
		"graph_id", node.GraphID(),
		"node_id", node.ID,
		"action", action.String(),
	)
	e.notify(ctx, node, action, fc)
	return nil
}

func (e *Executor) notify(ctx context.Context, node *domain.Node, action domain.TaskAction, fc *flow.Context) {
	if e.publisher == nil && e.hooks.OnTaskSubmitted == nil {
		return
	}

	state, err := e.repo.Get(ctx, fc.InstanceID(), node)
	if err != nil {
		state = action.TargetState()
	}
	ev := &domain.TaskEvent{
		EventBase: domain.EventBase{
			Timestamp:  time.Now(),
			Type:       domain.EventTaskSubmitted,
			InstanceID: fc.InstanceID(),
		},
		GraphID: node.GraphID(),
		NodeID:  node.ID,
		Action:  action.String(),
		State:   state,
	}

	if e.hooks.OnTaskSubmitted != nil {
		e.hooks.OnTaskSubmitted(ctx, ev)
	}
	if e.publisher != nil {
		if err := e.publisher.PublishTaskEvent(ctx, ev); err != nil {
			e.logger.Warn("Failed to publish task event",
				"instance_id", fc.InstanceID(),
				"node_id", node.ID,
				"err", err,
			)
		}
	}
}

// apply runs with the instance lock held.
func (e *Executor) apply(ctx context.Context, node *domain.Node, action domain.TaskAction, fc *flow.Context) error {
	switch action {
	case domain.TaskActionForward:
		return e.forward(ctx, node, fc)
	case domain.TaskActionBack:
		return e.back(ctx, node, fc, make(map[string]bool))
	case domain.TaskActionForwardJump, domain.TaskActionBackJump:
		return e.jump(ctx, node, action, fc)
	case domain.TaskActionRestart:
		if err := e.repo.Clear(ctx, fc.InstanceID()); err != nil {
			return fmt.Errorf("failed to restart instance %s: %w", fc.InstanceID(), err)
		}
		return nil
	default:
		if err := e.repo.Put(ctx, fc.InstanceID(), node, action.TargetState()); err != nil {
			return fmt.Errorf("failed to store state of %s: %w", node.Key(), err)
		}
		return nil
	}
}

// forward completes the node, then lets the automatic nodes behind it run.
func (e *Executor) forward(ctx context.Context, node *domain.Node, fc *flow.Context) error {
	d := e.driver(ModeClaim)
	ex := e.engine.NewExchanger(node.Graph(), fc, d)
	if err := d.PostHandleTask(ctx, ex, node); err != nil {
		var taskErr *flow.TaskError
		if errors.As(err, &taskErr) {
			return err
		}
		return &flow.TaskError{GraphID: node.GraphID(), NodeID: node.ID, Err: err}
	}

	if err := e.repo.Put(ctx, fc.InstanceID(), node, domain.TaskStateCompleted); err != nil {
		return fmt.Errorf("failed to store state of %s: %w", node.Key(), err)
	}

	for _, next := range node.Next() {
		if next.Type.IsGateway() {
			// Where a gateway leads depends on conditions and joins: ask the
			// whole graph.
			d, err := e.walk(ctx, node.Graph().Start(), fc, ModeClaim)
			if err != nil {
				return err
			}
			task := d.Task()
			if task != nil && task.State == domain.TaskStateTerminated {
				break
			}
			next = nil
			if task != nil {
				next = task.Node
			}
		}

		if next == nil || !e.controller.IsAutoForward(fc, next) {
			continue
		}
		if _, err := e.walk(ctx, next, fc, ModeClaim); err != nil {
			return err
		}
	}
	return nil
}

// back reopens the activities right before the node; the node keeps its
// own state. Gateways are crossed backwards: every activity they lead to is
// reopened as well.
func (e *Executor) back(ctx context.Context, node *domain.Node, fc *flow.Context, visited map[string]bool) error {
	if visited[node.Key()] {
		return nil
	}
	visited[node.Key()] = true

	for _, prev := range node.Prev() {
		switch prev.Type {
		case domain.NodeTypeActivity:
			if err := e.remove(ctx, prev, fc); err != nil {
				return err
			}
		case domain.NodeTypeExclusive, domain.NodeTypeInclusive, domain.NodeTypeParallel, domain.NodeTypeLoop:
			for _, sibling := range prev.Next() {
				if sibling.Type != domain.NodeTypeActivity {
					continue
				}
				if err := e.remove(ctx, sibling, fc); err != nil {
					return err
				}
			}
			if err := e.back(ctx, prev, fc, visited); err != nil {
				return err
			}
		case domain.NodeTypeStart, domain.NodeTypeEnd:
		default:
			return fmt.Errorf("%w: node %s has unsupported type %s", domain.ErrInvalidGraph, prev.Key(), prev.Type)
		}
	}
	return nil
}

func (e *Executor) remove(ctx context.Context, node *domain.Node, fc *flow.Context) error {
	if err := e.repo.Remove(ctx, fc.InstanceID(), node); err != nil {
		return fmt.Errorf("failed to remove state of %s: %w", node.Key(), err)
	}
	return nil
}

// jump repeats FORWARD (or BACK) on the located task until the target node
// has been processed. A backward jump also resets every node it steps over,
// so a finished or rejected instance can be rewound. Progress made before an
// error is kept.
func (e *Executor) jump(ctx context.Context, target *domain.Node, action domain.TaskAction, fc *flow.Context) error {
	g := target.Graph()
	forward := action == domain.TaskActionForwardJump

	limit := e.maxJumpHops
	if limit <= 0 {
		limit = g.Len() + 1
	}

	unreachable := func(hops int, reason string) error {
		return fmt.Errorf("%w: %s after %d hops: %s", domain.ErrJumpTargetUnreachable, target.Key(), hops, reason)
	}

	var last *domain.Task
	for hop := 0; ; hop++ {
		if hop >= limit {
			return unreachable(hop, "hop limit reached")
		}

		d, err := e.walk(ctx, g.Start(), fc, ModeLocate)
		if err != nil {
			return err
		}
		task := d.Task()

		switch {
		case task == nil:
			return unreachable(hop, "no task")
		case last != nil && last.Node == task.Node && last.State == task.State:
			return unreachable(hop, "stuck at "+task.Node.Key())
		case forward && task.State == domain.TaskStateTerminated:
			return unreachable(hop, "instance terminated at "+task.Node.Key())
		case forward && task.State == domain.TaskStateCompleted:
			return unreachable(hop, "instance completed")
		}

		if forward {
			err = e.forward(ctx, task.Node, fc)
		} else if err = e.back(ctx, task.Node, fc, make(map[string]bool)); err == nil {
			err = e.remove(ctx, task.Node, fc)
		}
		if err != nil {
			return err
		}

		if task.Node == target {
			return nil
		}
		last = task
	}
}

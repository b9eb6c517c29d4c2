package flow

import (
	"context"
	"fmt"

	"github.com/aretw0/espalier/pkg/domain"
)

// Driver is the hook the engine calls while walking a graph.
//
// HandleTask is called when the engine reaches a node carrying work
// (activities and gateways) and decides what happens to it; a driver may
// stop or interrupt the walk through the Exchanger. PostHandleTask runs the
// task body itself.
type Driver interface {
	OnNodeStart(ctx context.Context, ex *Exchanger, node *domain.Node)
	OnNodeEnd(ctx context.Context, ex *Exchanger, node *domain.Node)
	HandleTask(ctx context.Context, ex *Exchanger, node *domain.Node) error
	PostHandleTask(ctx context.Context, ex *Exchanger, node *domain.Node) error
}

// ConditionEvaluator decides whether a guard condition holds for the given
// variables.
type ConditionEvaluator func(ctx context.Context, condition string, vars map[string]any) (bool, error)

// TaskError reports a failure while handling the task of a node.
type TaskError struct {
	GraphID string
	NodeID  string
	Err     error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task handle failed: %s / %s: %v", e.GraphID, e.NodeID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// ConditionError reports a failure while evaluating a guard.
type ConditionError struct {
	GraphID   string
	Condition string
	Err       error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition handle failed: %s / %q: %v", e.GraphID, e.Condition, e.Err)
}

func (e *ConditionError) Unwrap() error {
	return e.Err
}

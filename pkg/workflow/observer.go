package workflow

import (
	"context"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
)

// Submission outcomes reported to the Observer.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Observer receives telemetry from the Executor. observability.Recorder is
// the production implementation.
type Observer interface {
	// Start opens a span around an executor operation and returns the
	// function closing it with the operation's error.
	Start(ctx context.Context, op string, graphID, instanceID string) (context.Context, func(error))

	// TaskQueried counts a task query walk.
	TaskQueried(graphID string, mode Mode)

	// TaskSubmitted records a submission attempt.
	TaskSubmitted(graphID string, action domain.TaskAction, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Start(ctx context.Context, _ string, _, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

func (nopObserver) TaskQueried(string, Mode) {}

func (nopObserver) TaskSubmitted(string, domain.TaskAction, string, time.Duration) {}

package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/espalier/pkg/controller"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/espalier/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	spans    []string
	queries  []string
	submits  []string
	spanErrs []error
}

func (o *recordingObserver) Start(ctx context.Context, op string, graphID, instanceID string) (context.Context, func(error)) {
	o.mu.Lock()
	o.spans = append(o.spans, op)
	o.mu.Unlock()
	return ctx, func(err error) {
		o.mu.Lock()
		o.spanErrs = append(o.spanErrs, err)
		o.mu.Unlock()
	}
}

func (o *recordingObserver) TaskQueried(graphID string, mode workflow.Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queries = append(o.queries, graphID+"/"+mode.String())
}

func (o *recordingObserver) TaskSubmitted(graphID string, action domain.TaskAction, outcome string, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.submits = append(o.submits, graphID+"/"+action.String()+"/"+outcome)
}

type recordingPublisher struct {
	events []*domain.TaskEvent
	err    error
}

func (p *recordingPublisher) PublishTaskEvent(ctx context.Context, ev *domain.TaskEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func TestExecutor_ObserverAndPublisher(t *testing.T) {
	ctx := context.Background()
	g := approvalGraph()
	obs := &recordingObserver{}
	pub := &recordingPublisher{}
	var hooked []string
	hooks := domain.LifecycleHooks{
		OnTaskSubmitted: func(ctx context.Context, ev *domain.TaskEvent) {
			hooked = append(hooked, ev.NodeID)
		},
	}
	f := newFixture(t, controller.Actor("role"), []*domain.Graph{g},
		workflow.WithObserver(obs),
		workflow.WithPublisher(pub),
		workflow.WithLifecycleHooks(hooks),
	)
	employee := flow.NewContext("i1").Put("role", "employee")

	task, err := f.exec.FindTask(ctx, g, employee)
	require.NoError(t, err)

	ok, err := f.exec.SubmitIfWaiting(ctx, task, domain.TaskActionForward, flow.NewContext("i1").Put("role", "tl"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.exec.SubmitIfWaiting(ctx, task, domain.TaskActionForward, employee)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []string{"g1/claim"}, obs.queries)
	assert.Equal(t, []string{"g1/FORWARD/skipped", "g1/FORWARD/ok"}, obs.submits)
	assert.Equal(t, []string{"workflow.query.claim", "workflow.submit.FORWARD", "workflow.submit.FORWARD"}, obs.spans)

	require.Len(t, pub.events, 1, "skipped submissions publish nothing")
	ev := pub.events[0]
	assert.Equal(t, domain.EventTaskSubmitted, ev.Type)
	assert.Equal(t, "i1", ev.InstanceID)
	assert.Equal(t, "g1", ev.GraphID)
	assert.Equal(t, "n0", ev.NodeID)
	assert.Equal(t, "FORWARD", ev.Action)
	assert.Equal(t, domain.TaskStateCompleted, ev.State)
	assert.Equal(t, []string{"n0"}, hooked)
}

func TestExecutor_PublishFailureDoesNotFailSubmit(t *testing.T) {
	g := approvalGraph()
	pub := &recordingPublisher{err: errors.New("broker down")}
	f := newFixture(t, controller.Actor("role"), []*domain.Graph{g}, workflow.WithPublisher(pub))
	fc := flow.NewContext("i1")

	err := f.exec.Submit(context.Background(), mustNode(t, g, "n0"), domain.TaskActionTerminate, fc)
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.TaskStateTerminated, pub.events[0].State)
}

func TestExecutor_FailedSubmitIsObserved(t *testing.T) {
	g := linearGraph()
	obs := &recordingObserver{}
	f := newFixture(t, controller.Block, []*domain.Graph{g},
		workflow.WithObserver(obs),
		workflow.WithMaxJumpHops(1),
	)

	err := f.exec.Submit(context.Background(), mustNode(t, g, "n3"), domain.TaskActionForwardJump, flow.NewContext("i1"))
	require.Error(t, err)

	assert.Equal(t, []string{"line/FORWARD_JUMP/error"}, obs.submits)
	require.Len(t, obs.spanErrs, 1)
	assert.ErrorIs(t, obs.spanErrs[0], domain.ErrJumpTargetUnreachable)
}

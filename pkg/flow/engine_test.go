package flow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// boolVars treats a condition as the name of a boolean variable.
func boolVars(_ context.Context, condition string, vars map[string]any) (bool, error) {
	v, _ := vars[condition].(bool)
	return v, nil
}

// recordingDriver records handled nodes and can stop, interrupt or fail on
// selected nodes.
type recordingDriver struct {
	mu        sync.Mutex
	handled   []string
	items     []any
	stopAt    map[string]bool
	interrupt map[string]bool
	failAt    map[string]bool
	subgraphs map[string]*domain.Graph
}

func (d *recordingDriver) OnNodeStart(context.Context, *flow.Exchanger, *domain.Node) {}
func (d *recordingDriver) OnNodeEnd(context.Context, *flow.Exchanger, *domain.Node)   {}

func (d *recordingDriver) HandleTask(ctx context.Context, ex *flow.Exchanger, node *domain.Node) error {
	if node.Type != domain.NodeTypeActivity {
		return nil
	}
	switch {
	case d.stopAt[node.ID]:
		ex.Stop()
		return nil
	case d.interrupt[node.ID]:
		ex.Interrupt()
		return nil
	case d.failAt[node.ID]:
		return errors.New("boom")
	}
	return d.PostHandleTask(ctx, ex, node)
}

func (d *recordingDriver) PostHandleTask(ctx context.Context, ex *flow.Exchanger, node *domain.Node) error {
	if sub, ok := d.subgraphs[node.Task]; ok {
		return ex.EvalGraph(ctx, sub)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handled = append(d.handled, node.ID)
	if v, ok := ex.Context().Get("item"); ok {
		d.items = append(d.items, v)
	}
	return nil
}

func (d *recordingDriver) Handled() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.handled...)
}

func act(id string, next ...string) domain.Node {
	n := domain.Node{ID: id, Type: domain.NodeTypeActivity}
	for _, id := range next {
		n.Links = append(n.Links, domain.Link{NextID: id})
	}
	return n
}

func node(id string, typ domain.NodeType, links ...domain.Link) domain.Node {
	return domain.Node{ID: id, Type: typ, Links: links}
}

func to(id string) domain.Link { return domain.Link{NextID: id} }

func TestEngine_Sequential(t *testing.T) {
	g := domain.MustGraph("seq", "", nil,
		node("s", domain.NodeTypeStart, to("a")),
		act("a", "b"),
		act("b", "e"),
		node("e", domain.NodeTypeEnd),
	)
	d := &recordingDriver{}
	fc := flow.NewContext("i1")

	err := flow.New().Eval(context.Background(), g, fc, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, d.Handled())
	assert.True(t, fc.Trace().Ended("seq"))
}

func TestEngine_Exclusive(t *testing.T) {
	g := domain.MustGraph("ex", "", nil,
		node("s", domain.NodeTypeStart, to("gw")),
		node("gw", domain.NodeTypeExclusive,
			domain.Link{NextID: "x", When: "goX"},
			domain.Link{NextID: "z"},
			domain.Link{NextID: "y", When: "goY"},
		),
		act("x", "e"),
		act("y", "e"),
		act("z", "e"),
		node("e", domain.NodeTypeEnd),
	)
	engine := flow.New(flow.WithConditionEvaluator(boolVars))

	t.Run("first matching link", func(t *testing.T) {
		d := &recordingDriver{}
		fc := flow.NewContextWith("i1", map[string]any{"goX": true, "goY": true})
		require.NoError(t, engine.Eval(context.Background(), g, fc, d))
		assert.Equal(t, []string{"x"}, d.Handled())
	})

	t.Run("later matching link", func(t *testing.T) {
		d := &recordingDriver{}
		fc := flow.NewContextWith("i1", map[string]any{"goY": true})
		require.NoError(t, engine.Eval(context.Background(), g, fc, d))
		assert.Equal(t, []string{"y"}, d.Handled())
	})

	t.Run("default link", func(t *testing.T) {
		d := &recordingDriver{}
		require.NoError(t, engine.Eval(context.Background(), g, flow.NewContext("i1"), d))
		assert.Equal(t, []string{"z"}, d.Handled())
	})
}

func TestEngine_InclusiveJoin(t *testing.T) {
	g := domain.MustGraph("inc", "", nil,
		node("s", domain.NodeTypeStart, to("split")),
		node("split", domain.NodeTypeInclusive,
			domain.Link{NextID: "a", When: "doA"},
			domain.Link{NextID: "b", When: "doB"},
			domain.Link{NextID: "c", When: "doC"},
		),
		act("a", "join"),
		act("b", "join"),
		act("c", "join"),
		node("join", domain.NodeTypeInclusive, to("after")),
		act("after", "e"),
		node("e", domain.NodeTypeEnd),
	)
	d := &recordingDriver{}
	fc := flow.NewContextWith("i1", map[string]any{"doA": true, "doC": true})

	err := flow.New(flow.WithConditionEvaluator(boolVars)).Eval(context.Background(), g, fc, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "after"}, d.Handled())
}

func parallelGraph() *domain.Graph {
	return domain.MustGraph("par", "", nil,
		node("s", domain.NodeTypeStart, to("a")),
		act("a", "fork"),
		node("fork", domain.NodeTypeParallel, to("b"), to("c")),
		act("b", "join"),
		act("c", "join"),
		node("join", domain.NodeTypeParallel, to("d")),
		act("d", "e"),
		node("e", domain.NodeTypeEnd),
	)
}

func TestEngine_ParallelJoin(t *testing.T) {
	for _, parallelism := range []int{0, 2} {
		d := &recordingDriver{}
		err := flow.New(flow.WithParallelism(parallelism)).Eval(context.Background(), parallelGraph(), flow.NewContext("i1"), d)
		require.NoError(t, err)

		handled := d.Handled()
		assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, handled, "parallelism=%d", parallelism)
		assert.Equal(t, "d", handled[len(handled)-1], "merge must fire once, after both branches")
	}
}

func TestEngine_InterruptKeepsSiblingBranches(t *testing.T) {
	d := &recordingDriver{interrupt: map[string]bool{"b": true}}
	err := flow.New().Eval(context.Background(), parallelGraph(), flow.NewContext("i1"), d)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, d.Handled(), "c runs, the join waits for b")
}

func TestEngine_StopHaltsWalk(t *testing.T) {
	d := &recordingDriver{stopAt: map[string]bool{"b": true}}
	fc := flow.NewContext("i1")
	err := flow.New().Eval(context.Background(), parallelGraph(), fc, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, d.Handled())
	assert.True(t, fc.Stopped())
	assert.Equal(t, "b", fc.Trace().Last("par").ID)
	assert.False(t, fc.Trace().Ended("par"))
}

func TestEngine_TaskError(t *testing.T) {
	d := &recordingDriver{failAt: map[string]bool{"b": true}}
	err := flow.New().Eval(context.Background(), parallelGraph(), flow.NewContext("i1"), d)

	var taskErr *flow.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "par", taskErr.GraphID)
	assert.Equal(t, "b", taskErr.NodeID)
}

func TestEngine_NodeGuardSkipsTask(t *testing.T) {
	guarded := act("a", "b")
	guarded.When = "enabled"
	g := domain.MustGraph("guard", "", nil,
		node("s", domain.NodeTypeStart, to("a")),
		guarded,
		act("b", "e"),
		node("e", domain.NodeTypeEnd),
	)
	d := &recordingDriver{}
	err := flow.New(flow.WithConditionEvaluator(boolVars)).Eval(context.Background(), g, flow.NewContext("i1"), d)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, d.Handled())
}

func TestEngine_MissingEvaluator(t *testing.T) {
	g := domain.MustGraph("cond", "", nil,
		node("s", domain.NodeTypeStart, domain.Link{NextID: "e", When: "x"}),
		node("e", domain.NodeTypeEnd),
	)
	err := flow.New().Eval(context.Background(), g, flow.NewContext("i1"), &recordingDriver{})

	var condErr *flow.ConditionError
	assert.ErrorAs(t, err, &condErr)
}

func TestEngine_Loop(t *testing.T) {
	loopStart := node("each", domain.NodeTypeLoop, to("body"))
	loopStart.Meta = map[string]any{flow.MetaLoopFor: "item", flow.MetaLoopIn: []any{"x", "y", "z"}}
	g := domain.MustGraph("loop", "", nil,
		node("s", domain.NodeTypeStart, to("each")),
		loopStart,
		act("body", "done"),
		node("done", domain.NodeTypeLoop, to("after")),
		act("after", "e"),
		node("e", domain.NodeTypeEnd),
	)
	d := &recordingDriver{}
	err := flow.New().Eval(context.Background(), g, flow.NewContext("i1"), d)
	require.NoError(t, err)
	assert.Equal(t, []string{"body", "body", "body", "after"}, d.Handled())
	assert.Equal(t, []any{"x", "y", "z", "z"}, d.items)
}

func TestEngine_LoopOverContextVariable(t *testing.T) {
	loopStart := node("each", domain.NodeTypeLoop, to("body"))
	loopStart.Meta = map[string]any{flow.MetaLoopFor: "item", flow.MetaLoopIn: "approvers"}
	g := domain.MustGraph("loopvar", "", nil,
		node("s", domain.NodeTypeStart, to("each")),
		loopStart,
		act("body", "done"),
		node("done", domain.NodeTypeLoop, to("e")),
		node("e", domain.NodeTypeEnd),
	)
	d := &recordingDriver{}
	fc := flow.NewContextWith("i1", map[string]any{"approvers": []string{"ana", "bo"}})
	require.NoError(t, flow.New().Eval(context.Background(), g, fc, d))
	assert.Equal(t, []any{"ana", "bo"}, d.items)
}

func TestParseStepper(t *testing.T) {
	steps, err := flow.ParseStepper("1:10:4")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5, 9}, steps)

	steps, err = flow.ParseStepper("0...3")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, steps)

	_, err = flow.ParseStepper("1:2")
	assert.Error(t, err)
	_, err = flow.ParseStepper("1:5:0")
	assert.Error(t, err)
}

func TestExchanger_EvalGraph(t *testing.T) {
	sub := domain.MustGraph("sub", "", nil,
		node("s", domain.NodeTypeStart, to("inner")),
		act("inner", "e"),
		node("e", domain.NodeTypeEnd),
	)
	call := act("call", "after")
	call.Task = "#sub"
	parent := domain.MustGraph("parent", "", nil,
		node("s", domain.NodeTypeStart, to("call")),
		call,
		act("after", "e"),
		node("e", domain.NodeTypeEnd),
	)

	t.Run("completed sub-graph continues the parent", func(t *testing.T) {
		d := &recordingDriver{subgraphs: map[string]*domain.Graph{"#sub": sub}}
		fc := flow.NewContext("i1")
		require.NoError(t, flow.New().Eval(context.Background(), parent, fc, d))
		assert.Equal(t, []string{"inner", "after"}, d.Handled())
		assert.True(t, fc.Trace().Ended("sub"))
	})

	t.Run("blocked sub-graph interrupts the parent branch", func(t *testing.T) {
		d := &recordingDriver{
			subgraphs: map[string]*domain.Graph{"#sub": sub},
			interrupt: map[string]bool{"inner": true},
		}
		require.NoError(t, flow.New().Eval(context.Background(), parent, flow.NewContext("i1"), d))
		assert.Empty(t, d.Handled())
	})
}

func TestEngine_HooksAndCancellation(t *testing.T) {
	var started []string
	hooks := domain.LifecycleHooks{
		OnNodeStart: func(_ context.Context, ev *domain.NodeEvent) {
			started = append(started, ev.NodeID)
		},
	}
	g := parallelGraph()
	require.NoError(t, flow.New(flow.WithLifecycleHooks(hooks)).Eval(context.Background(), g, flow.NewContext("i1"), &recordingDriver{}))
	assert.Equal(t, []string{"s", "a", "fork", "b", "c", "join", "d", "e"}, started)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := flow.New().Eval(ctx, g, flow.NewContext("i1"), &recordingDriver{})
	assert.ErrorIs(t, err, context.Canceled)
}

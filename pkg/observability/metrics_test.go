package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder(t *testing.T) (*Recorder, *tracetest.SpanRecorder) {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	r, err := NewRecorder(prometheus.NewRegistry(), WithTracer(tp.Tracer(TracerName)))
	require.NoError(t, err)
	return r, spans
}

func TestRecorder_Counters(t *testing.T) {
	r, _ := newRecorder(t)

	r.TaskQueried("g1", workflow.ModeClaim)
	r.TaskQueried("g1", workflow.ModeClaim)
	r.TaskQueried("g1", workflow.ModeCollect)
	r.TaskSubmitted("g1", domain.TaskActionForward, workflow.OutcomeOK, 20*time.Millisecond)
	r.TaskSubmitted("g1", domain.TaskActionForward, workflow.OutcomeSkipped, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.queries.WithLabelValues("g1", "claim")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queries.WithLabelValues("g1", "collect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.submissions.WithLabelValues("g1", "FORWARD", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.submissions.WithLabelValues("g1", "FORWARD", "skipped")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.duration))
}

func TestRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)

	_, err = NewRecorder(reg)
	assert.Error(t, err)
}

func TestRecorder_Spans(t *testing.T) {
	r, spans := newRecorder(t)
	ctx := context.Background()

	_, end := r.Start(ctx, "workflow.query.claim", "g1", "i1")
	end(nil)
	_, end = r.Start(ctx, "workflow.submit.FORWARD", "g1", "i1")
	end(errors.New("boom"))

	ended := spans.Ended()
	require.Len(t, ended, 2)

	assert.Equal(t, "workflow.query.claim", ended[0].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)

	failed := ended[1]
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Equal(t, "boom", failed.Status().Description)
	require.Len(t, failed.Events(), 1)
	assert.Equal(t, "exception", failed.Events()[0].Name)

	attrs := map[string]string{}
	for _, kv := range failed.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, "g1", attrs[GraphIDKey])
	assert.Equal(t, "i1", attrs[InstanceIDKey])
}

func TestRecorder_NodeHooks(t *testing.T) {
	r, _ := newRecorder(t)
	hooks := r.NodeHooks()

	hooks.OnNodeStart(context.Background(), &domain.NodeEvent{GraphID: "g1", NodeType: "activity"})
	hooks.OnNodeStart(context.Background(), &domain.NodeEvent{GraphID: "g1", NodeType: "activity"})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.nodeVisits.WithLabelValues("g1", "activity")))
	assert.Nil(t, hooks.OnNodeEnd)
}

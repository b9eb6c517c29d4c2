package observability

import (
	"context"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of the spans opened by Recorder.
const TracerName = "github.com/aretw0/espalier"

// Span attribute keys.
const (
	GraphIDKey    = "espalier.graph.id"
	InstanceIDKey = "espalier.instance.id"
)

var _ workflow.Observer = (*Recorder)(nil)

// Recorder records executor telemetry.
type Recorder struct {
	submissions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	queries     *prometheus.CounterVec
	nodeVisits  *prometheus.CounterVec

	tracer trace.Tracer
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithTracer sets the tracer. The global tracer provider is used otherwise.
func WithTracer(t trace.Tracer) RecorderOption {
	return func(r *Recorder) {
		r.tracer = t
	}
}

// NewRecorder creates the metrics and registers them with reg.
func NewRecorder(reg prometheus.Registerer, opts ...RecorderOption) (*Recorder, error) {
	r := &Recorder{
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "espalier_task_submissions_total",
				Help: "Task submissions by graph, action and outcome.",
			},
			[]string{"graph", "action", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "espalier_task_submit_duration_seconds",
				Help:    "Duration of task submissions, lock wait included, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"graph", "action"},
		),
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "espalier_task_queries_total",
				Help: "Task query walks by graph and mode.",
			},
			[]string{"graph", "mode"},
		),
		nodeVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "espalier_node_visits_total",
				Help: "Nodes entered by the engine, by graph and node type.",
			},
			[]string{"graph", "node_type"},
		),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(TracerName)
	}

	for _, c := range []prometheus.Collector{r.submissions, r.duration, r.queries, r.nodeVisits} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Start opens a span named after the operation.
func (r *Recorder) Start(ctx context.Context, op string, graphID, instanceID string) (context.Context, func(error)) {
	ctx, span := r.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String(GraphIDKey, graphID),
		attribute.String(InstanceIDKey, instanceID),
	))
	return ctx, func(err error) {
		if err != nil {
			setError(span, err)
		}
		span.End()
	}
}

func (r *Recorder) TaskQueried(graphID string, mode workflow.Mode) {
	r.queries.WithLabelValues(graphID, mode.String()).Inc()
}

func (r *Recorder) TaskSubmitted(graphID string, action domain.TaskAction, outcome string, elapsed time.Duration) {
	r.submissions.WithLabelValues(graphID, action.String(), outcome).Inc()
	r.duration.WithLabelValues(graphID, action.String()).Observe(elapsed.Seconds())
}

// NodeHooks counts the nodes the engine enters.
func (r *Recorder) NodeHooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeStart: func(_ context.Context, ev *domain.NodeEvent) {
			r.nodeVisits.WithLabelValues(ev.GraphID, ev.NodeType).Inc()
		},
	}
}

func setError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

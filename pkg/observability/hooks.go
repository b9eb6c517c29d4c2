package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/espalier/pkg/domain"
)

// LoggingHooks logs node visits at debug level and submissions at info
// level.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeStart: func(ctx context.Context, ev *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_start",
				"instance_id", ev.InstanceID,
				"graph_id", ev.GraphID,
				"node_id", ev.NodeID,
				"type", ev.NodeType,
			)
		},
		OnNodeEnd: func(ctx context.Context, ev *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_end",
				"instance_id", ev.InstanceID,
				"graph_id", ev.GraphID,
				"node_id", ev.NodeID,
			)
		},
		OnTaskSubmitted: func(ctx context.Context, ev *domain.TaskEvent) {
			logger.InfoContext(ctx, "task_submitted",
				"instance_id", ev.InstanceID,
				"graph_id", ev.GraphID,
				"node_id", ev.NodeID,
				"action", ev.Action,
				"state", ev.State.String(),
			)
		},
	}
}

// MergeHooks returns hooks calling every non-nil callback of each set, in
// order.
func MergeHooks(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var start, end []func(context.Context, *domain.NodeEvent)
	var submitted []func(context.Context, *domain.TaskEvent)
	for _, h := range sets {
		if h.OnNodeStart != nil {
			start = append(start, h.OnNodeStart)
		}
		if h.OnNodeEnd != nil {
			end = append(end, h.OnNodeEnd)
		}
		if h.OnTaskSubmitted != nil {
			submitted = append(submitted, h.OnTaskSubmitted)
		}
	}

	var merged domain.LifecycleHooks
	if len(start) > 0 {
		merged.OnNodeStart = func(ctx context.Context, ev *domain.NodeEvent) {
			for _, fn := range start {
				fn(ctx, ev)
			}
		}
	}
	if len(end) > 0 {
		merged.OnNodeEnd = func(ctx context.Context, ev *domain.NodeEvent) {
			for _, fn := range end {
				fn(ctx, ev)
			}
		}
	}
	if len(submitted) > 0 {
		merged.OnTaskSubmitted = func(ctx context.Context, ev *domain.TaskEvent) {
			for _, fn := range submitted {
				fn(ctx, ev)
			}
		}
	}
	return merged
}

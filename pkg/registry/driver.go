package registry

import (
	"context"
	"strings"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/espalier/pkg/ports"
)

// SubGraphPrefix marks a task that runs another graph: "#<graphID>".
const SubGraphPrefix = "#"

// Driver is the plain flow.Driver: it runs the task of every node it is
// handed. Tasks are either a registered handler name or a sub-graph
// reference resolved through the graph source.
type Driver struct {
	registry *Registry
	graphs   ports.GraphSource
}

// NewDriver creates a Driver. graphs may be nil when no task references a
// sub-graph.
func NewDriver(r *Registry, graphs ports.GraphSource) *Driver {
	return &Driver{registry: r, graphs: graphs}
}

func (d *Driver) OnNodeStart(ctx context.Context, ex *flow.Exchanger, node *domain.Node) {}

func (d *Driver) OnNodeEnd(ctx context.Context, ex *flow.Exchanger, node *domain.Node) {}

// HandleTask runs the task immediately.
func (d *Driver) HandleTask(ctx context.Context, ex *flow.Exchanger, node *domain.Node) error {
	return d.PostHandleTask(ctx, ex, node)
}

// PostHandleTask runs the task of the node. A sub-graph is walked with the
// driver installed on the current walk, so an interceptor wrapping this
// driver also sees the sub-graph's nodes.
func (d *Driver) PostHandleTask(ctx context.Context, ex *flow.Exchanger, node *domain.Node) error {
	task := strings.TrimSpace(node.Task)
	if task == "" {
		return nil
	}

	if id, ok := strings.CutPrefix(task, SubGraphPrefix); ok {
		if d.graphs == nil {
			return domain.ErrGraphNotFound
		}
		g, err := d.graphs.Graph(id)
		if err != nil {
			return err
		}
		return ex.EvalGraph(ctx, g)
	}

	return d.registry.Execute(ctx, task, ex.Context(), node)
}

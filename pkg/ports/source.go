package ports

import (
	"context"

	"github.com/aretw0/espalier/pkg/domain"
)

// GraphSource resolves graphs by id.
type GraphSource interface {
	// Graph returns the graph with the given id, or domain.ErrGraphNotFound.
	Graph(id string) (*domain.Graph, error)

	// Graphs lists every known graph, ordered by id.
	Graphs() []*domain.Graph
}

// GraphLoader reads graph definitions from a backing store.
type GraphLoader interface {
	Load(ctx context.Context) ([]*domain.Graph, error)
}

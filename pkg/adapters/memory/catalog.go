package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
)

// Catalog implements ports.GraphSource using an in-memory map.
// Safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	graphs map[string]*domain.Graph
}

// NewCatalog creates a catalog holding the given graphs.
func NewCatalog(graphs ...*domain.Graph) *Catalog {
	c := &Catalog{graphs: make(map[string]*domain.Graph)}
	for _, g := range graphs {
		c.Register(g)
	}
	return c
}

// Register adds a graph, replacing any graph with the same id.
func (c *Catalog) Register(g *domain.Graph) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graphs[g.ID] = g
}

// Graph returns the graph with the given id.
func (c *Catalog) Graph(id string) (*domain.Graph, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	g, ok := c.graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, id)
	}
	return g, nil
}

// Graphs returns every graph, ordered by id.
func (c *Catalog) Graphs() []*domain.Graph {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*domain.Graph, 0, len(c.graphs))
	for _, g := range c.graphs {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

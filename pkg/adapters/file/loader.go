// Package file loads graphs from YAML documents on disk.
package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/schema"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

var _ ports.GraphLoader = (*Loader)(nil)

// Loader reads every *.yml and *.yaml file of a directory (not recursive).
type Loader struct {
	dir    string
	logger *slog.Logger
}

// Option configures the Loader.
type Option func(*Loader)

// WithLogger sets the loader logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// New creates a Loader for dir.
func New(dir string, opts ...Option) *Loader {
	l := &Loader{dir: dir, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load parses every graph file, in file name order. Two files declaring the
// same graph id are an error.
func (l *Loader) Load(ctx context.Context) ([]*domain.Graph, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph directory %s: %w", l.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yml", ".yaml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	graphs := make([]*domain.Graph, 0, len(names))
	seen := make(map[string]string, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(l.dir, name)
		g, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[g.ID]; dup {
			return nil, fmt.Errorf("%w: graph %s declared in both %s and %s", domain.ErrInvalidGraph, g.ID, prev, name)
		}
		seen[g.ID] = name
		graphs = append(graphs, g)

		l.logger.Debug("Graph loaded", "graph_id", g.ID, "file", path, "nodes", g.Len())
	}
	return graphs, nil
}

// ParseFile parses a single graph file.
func ParseFile(path string) (*domain.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Parse validates a YAML (or JSON) graph document and builds the graph.
func Parse(data []byte) (*domain.Graph, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidGraph, err)
	}
	if err := schema.ValidateGraph(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidGraph, err)
	}

	var doc GraphDocument
	if err := mapstructure.Decode(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode graph document: %v", domain.ErrInvalidGraph, err)
	}
	return Build(doc)
}

// Build turns a document into a graph. Nodes without an id are named
// "n-<position>" (1-based); nodes other than END without links point to the
// next node of the layout.
func Build(doc GraphDocument) (*domain.Graph, error) {
	ids := make([]string, len(doc.Layout))
	for i, nd := range doc.Layout {
		ids[i] = nd.ID
		if ids[i] == "" {
			ids[i] = "n-" + strconv.Itoa(i+1)
		}
	}

	nodes := make([]domain.Node, 0, len(doc.Layout))
	for i, nd := range doc.Layout {
		typ, err := domain.ParseNodeType(nd.Type)
		if err != nil {
			return nil, err
		}

		var links []domain.Link
		if nd.Link != nil {
			links, err = parseLinks(nd.Link)
			if err != nil {
				return nil, fmt.Errorf("%w: graph %s: node %s: %v", domain.ErrInvalidGraph, doc.ID, ids[i], err)
			}
		} else if typ != domain.NodeTypeEnd && i+1 < len(ids) {
			links = []domain.Link{{NextID: ids[i+1]}}
		}

		nodes = append(nodes, domain.Node{
			ID:    ids[i],
			Type:  typ,
			Title: nd.Title,
			Meta:  nd.Meta,
			Task:  nd.Task,
			When:  nd.When,
			Links: links,
		})
	}

	return domain.NewGraph(doc.ID, doc.Title, doc.Meta, nodes...)
}

func parseLinks(raw any) ([]domain.Link, error) {
	switch v := raw.(type) {
	case string:
		return []domain.Link{{NextID: v}}, nil
	case []any:
		links := make([]domain.Link, 0, len(v))
		for _, item := range v {
			parsed, err := parseLinks(item)
			if err != nil {
				return nil, err
			}
			links = append(links, parsed...)
		}
		return links, nil
	case map[string]any:
		var ld LinkDocument
		if err := mapstructure.Decode(v, &ld); err != nil {
			return nil, fmt.Errorf("failed to decode link: %w", err)
		}
		if ld.NextID == "" {
			return nil, fmt.Errorf("link without nextId")
		}
		when := ld.When
		if when == "" {
			when = ld.Condition
		}
		return []domain.Link{{NextID: ld.NextID, Title: ld.Title, When: when, Priority: ld.Priority}}, nil
	default:
		return nil, fmt.Errorf("unsupported link %T", raw)
	}
}

package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/espalier/pkg/domain"
)

// StateOverlay colours the nodes of one instance by their persisted state,
// keyed by node key ("graphId:nodeId").
type StateOverlay map[string]domain.TaskState

// GenerateMermaid produces a Mermaid flowchart of the graph.
// It applies semantic styling:
// - Start / End: ((Circle))
// - Exclusive / Inclusive / Parallel: {Rhombus} labelled x, o, +
// - Loop: [[Subroutine]]
// - Activity: [Rectangle]
// Link conditions become edge labels. With an overlay, WAITING nodes are
// styled current, COMPLETED visited and TERMINATED terminated.
func GenerateMermaid(g *domain.Graph, overlay StateOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range g.Nodes() {
		safeID := sanitizeMermaidID(node.ID)

		label := node.ID
		if node.Title != "" {
			label = node.Title
		}
		label = escape(label)

		switch node.Type {
		case domain.NodeTypeStart, domain.NodeTypeEnd:
			fmt.Fprintf(&sb, "    %s((\"%s\"))\n", safeID, label)
		case domain.NodeTypeExclusive:
			fmt.Fprintf(&sb, "    %s{\"x %s\"}\n", safeID, label)
		case domain.NodeTypeInclusive:
			fmt.Fprintf(&sb, "    %s{\"o %s\"}\n", safeID, label)
		case domain.NodeTypeParallel:
			fmt.Fprintf(&sb, "    %s{\"+ %s\"}\n", safeID, label)
		case domain.NodeTypeLoop:
			fmt.Fprintf(&sb, "    %s[[\"%s\"]]\n", safeID, label)
		default:
			if strings.HasPrefix(node.Task, "#") {
				// Sub-graph task
				label += " <br/> " + escape(node.Task)
			}
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", safeID, label)
		}

		for _, l := range node.Links {
			safeTo := sanitizeMermaidID(l.NextID)
			switch {
			case l.When != "":
				fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, escape(l.When), safeTo)
			case l.Title != "":
				fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", safeID, escape(l.Title), safeTo)
			default:
				fmt.Fprintf(&sb, "    %s --> %s\n", safeID, safeTo)
			}
		}
	}

	if len(overlay) > 0 {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef terminated fill:#ffcdd2,stroke:#b71c1c,stroke-width:2px,color:#000;\n")

		keys := make([]string, 0, len(overlay))
		for k := range overlay {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		prefix := g.ID + ":"
		for _, key := range keys {
			nodeID, ok := strings.CutPrefix(key, prefix)
			if !ok {
				continue
			}
			class := ""
			switch overlay[key] {
			case domain.TaskStateWaiting:
				class = "current"
			case domain.TaskStateCompleted:
				class = "visited"
			case domain.TaskStateTerminated:
				class = "terminated"
			}
			if class != "" {
				fmt.Fprintf(&sb, "    class %s %s;\n", sanitizeMermaidID(nodeID), class)
			}
		}
	}

	return sb.String()
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}

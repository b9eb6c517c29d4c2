package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/espalier/internal/presentation/graph"
	"github.com/aretw0/espalier/pkg/domain"
)

func sample() *domain.Graph {
	return domain.MustGraph("leave", "", nil,
		domain.Node{ID: "s", Type: domain.NodeTypeStart, Links: []domain.Link{{NextID: "apply-form"}}},
		domain.Node{ID: "apply-form", Type: domain.NodeTypeActivity, Title: "Apply", Links: []domain.Link{{NextID: "gw"}}},
		domain.Node{ID: "gw", Type: domain.NodeTypeExclusive, Links: []domain.Link{
			{NextID: "review", When: `days > 3 && kind == "paid"`},
			{NextID: "e", Title: "short"},
		}},
		domain.Node{ID: "review", Type: domain.NodeTypeActivity, Task: "#audit", Links: []domain.Link{{NextID: "e"}}},
		domain.Node{ID: "e", Type: domain.NodeTypeEnd},
	)
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(sample(), nil)

	for _, want := range []string{
		"graph TD\n",
		`s(("s"))`,
		`apply_form["Apply"]`,
		`gw{"x gw"}`,
		`review["review <br/> #audit"]`,
		`e(("e"))`,
		"s --> apply_form",
		`gw -- "days > 3 && kind == 'paid'" --> review`,
		`gw -- "short" --> e`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "classDef") {
		t.Error("Did not expect overlay styles without an overlay")
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	out := graph.GenerateMermaid(sample(), graph.StateOverlay{
		"leave:apply-form": domain.TaskStateCompleted,
		"leave:review":     domain.TaskStateWaiting,
		"audit:check":      domain.TaskStateWaiting,
	})

	for _, want := range []string{
		"classDef current",
		"class apply_form visited;",
		"class review current;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "class check") {
		t.Error("Entries of other graphs must not be styled")
	}
}

package controller_test

import (
	"testing"

	"github.com/aretw0/espalier/pkg/controller"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/stretchr/testify/assert"
)

var (
	_ ports.StateController = controller.Actor()
	_ ports.StateController = controller.Block
	_ ports.StateController = controller.NotBlock
	_ ports.StateController = controller.Func(nil, nil)
)

func graph(t *testing.T) *domain.Graph {
	t.Helper()
	return domain.MustGraph("g", "", nil,
		domain.Node{ID: "s", Type: domain.NodeTypeStart, Links: []domain.Link{{NextID: "mgr"}}},
		domain.Node{ID: "mgr", Type: domain.NodeTypeActivity, Meta: map[string]any{"role": "manager"}, Links: []domain.Link{{NextID: "auto"}}},
		domain.Node{ID: "auto", Type: domain.NodeTypeActivity, Links: []domain.Link{{NextID: "lvl"}}},
		domain.Node{ID: "lvl", Type: domain.NodeTypeActivity, Meta: map[string]any{"level": 2}, Links: []domain.Link{{NextID: "e"}}},
		domain.Node{ID: "e", Type: domain.NodeTypeEnd, Meta: map[string]any{"role": "manager"}},
	)
}

func node(t *testing.T, g *domain.Graph, id string) *domain.Node {
	t.Helper()
	n, err := g.Node(id)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestActor_IsOperatable(t *testing.T) {
	g := graph(t)
	role := controller.Actor("role")

	assert.True(t, role.IsOperatable(flow.NewContext("i").Put("role", "manager"), node(t, g, "mgr")))
	assert.False(t, role.IsOperatable(flow.NewContext("i").Put("role", "clerk"), node(t, g, "mgr")))
	assert.False(t, role.IsOperatable(flow.NewContext("i"), node(t, g, "mgr")), "meta without context value")
	assert.False(t, role.IsOperatable(flow.NewContext("i").Put("role", "manager"), node(t, g, "auto")), "context value without meta")
	assert.True(t, role.IsOperatable(flow.NewContext("i"), node(t, g, "auto")), "absent from both counts as equal")

	level := controller.Actor("level")
	assert.True(t, level.IsOperatable(flow.NewContext("i").Put("level", "2"), node(t, g, "lvl")), "scalars compare by value")
	assert.True(t, level.IsOperatable(flow.NewContext("i").Put("level", 2.0), node(t, g, "lvl")))
}

func TestActor_AnyKeyMatches(t *testing.T) {
	g := graph(t)
	c := controller.Actor("user", "role")

	fc := flow.NewContext("i").Put("user", "bob").Put("role", "manager")
	assert.True(t, c.IsOperatable(fc, node(t, g, "mgr")))
	assert.Equal(t, []string{"user", "role"}, c.Keys())
}

func TestActor_IsAutoForward(t *testing.T) {
	g := graph(t)
	c := controller.Actor("role")
	fc := flow.NewContext("i")

	assert.False(t, c.IsAutoForward(fc, node(t, g, "mgr")))
	assert.True(t, c.IsAutoForward(fc, node(t, g, "auto")))
	assert.True(t, c.IsAutoForward(fc, node(t, g, "e")), "end nodes always advance")

	assert.Equal(t, []string{controller.DefaultActorKey}, controller.Actor().Keys())
}

func TestBlockAndNotBlock(t *testing.T) {
	g := graph(t)
	fc := flow.NewContext("i")

	assert.True(t, controller.Block.IsOperatable(fc, node(t, g, "auto")))
	assert.False(t, controller.Block.IsAutoForward(fc, node(t, g, "auto")))
	assert.True(t, controller.Block.IsAutoForward(fc, node(t, g, "e")))

	assert.True(t, controller.NotBlock.IsOperatable(fc, node(t, g, "mgr")))
	assert.True(t, controller.NotBlock.IsAutoForward(fc, node(t, g, "mgr")))
}

func TestFunc(t *testing.T) {
	g := graph(t)
	admin := controller.Actor("role")
	c := controller.Func(
		func(fc *flow.Context, n *domain.Node) bool {
			return fc.GetString("role") == "admin" || admin.IsOperatable(fc, n)
		},
		admin.IsAutoForward,
	)

	assert.True(t, c.IsOperatable(flow.NewContext("i").Put("role", "admin"), node(t, g, "mgr")))
	assert.False(t, c.IsOperatable(flow.NewContext("i").Put("role", "clerk"), node(t, g, "mgr")))
	assert.False(t, c.IsAutoForward(flow.NewContext("i"), node(t, g, "mgr")))

	empty := controller.Func(nil, nil)
	assert.False(t, empty.IsOperatable(flow.NewContext("i"), node(t, g, "mgr")))
}

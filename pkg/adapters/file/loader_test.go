package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const leaveYAML = `
id: leave
title: Leave request
layout:
  - {id: s, type: start}
  - {id: n0, type: activity, meta: {role: employee}, task: notify}
  - id: gw
    type: exclusive
    link:
      - n2
      - {nextId: n1, when: "days > 3", priority: 1}
  - {id: n1, type: activity, meta: {role: director}, link: e}
  - {id: n2, type: activity, meta: {role: tl}, link: {nextId: e, condition: "approved"}}
  - {id: e, type: end}
`

func nextIDs(n *domain.Node) []string {
	var ids []string
	for _, l := range n.Links {
		ids = append(ids, l.NextID)
	}
	return ids
}

func TestParse(t *testing.T) {
	g, err := Parse([]byte(leaveYAML))
	require.NoError(t, err)

	assert.Equal(t, "leave", g.ID)
	assert.Equal(t, "Leave request", g.Title)
	assert.Equal(t, 6, g.Len())
	assert.Equal(t, "s", g.Start().ID)

	n0, err := g.Node("n0")
	require.NoError(t, err)
	assert.Equal(t, domain.NodeTypeActivity, n0.Type)
	assert.Equal(t, "employee", n0.MetaString("role"))
	assert.Equal(t, "notify", n0.Task)
	assert.Equal(t, []string{"gw"}, nextIDs(n0), "absent link points to the next node")

	gw, err := g.Node("gw")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2"}, nextIDs(gw), "higher priority first")
	assert.Equal(t, "days > 3", gw.Links[0].When)

	n2, err := g.Node("n2")
	require.NoError(t, err)
	assert.Equal(t, "approved", n2.Links[0].When, "condition is an alias of when")

	e, err := g.Node("e")
	require.NoError(t, err)
	assert.Empty(t, e.Links)
}

func TestParse_AutoIDs(t *testing.T) {
	g, err := Parse([]byte(`
id: auto
layout:
  - {type: start}
  - {type: activity}
  - {type: end}
`))
	require.NoError(t, err)

	assert.Equal(t, "n-1", g.Start().ID)
	assert.Equal(t, []string{"n-2"}, nextIDs(g.Start()))
	n2, err := g.Node("n-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"n-3"}, nextIDs(n2))
}

func TestParse_Invalid(t *testing.T) {
	t.Run("Schema Violation", func(t *testing.T) {
		_, err := Parse([]byte("id: g\nlayout: [{type: start}, {type: gateway}]"))
		assert.ErrorIs(t, err, domain.ErrInvalidGraph)
		assert.NotEmpty(t, schema.ValidationErrors(err))
	})

	t.Run("Unknown Link Target", func(t *testing.T) {
		_, err := Parse([]byte("id: g\nlayout: [{type: start, link: nowhere}, {type: end}]"))
		assert.ErrorIs(t, err, domain.ErrInvalidGraph)
	})

	t.Run("Not YAML", func(t *testing.T) {
		_, err := Parse([]byte("id: [unclosed"))
		assert.ErrorIs(t, err, domain.ErrInvalidGraph)
	})
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b-leave.yml", leaveYAML)
	writeFile(t, dir, "a-mini.yaml", "id: mini\nlayout: [{type: start}, {type: end}]")
	writeFile(t, dir, "README.md", "# not a graph")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yml"), 0o755))

	graphs, err := New(dir).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, graphs, 2)
	assert.Equal(t, "mini", graphs[0].ID)
	assert.Equal(t, "leave", graphs[1].ID)
}

func TestLoader_DuplicateID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.yml", "id: same\nlayout: [{type: start}, {type: end}]")
	writeFile(t, dir, "two.yml", "id: same\nlayout: [{type: start}, {type: end}]")

	_, err := New(dir).Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidGraph)
	assert.ErrorContains(t, err, "one.yml")
}

func TestLoader_BadFileNamesPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yml", "id: g\nlayout: [{type: start}]")

	_, err := New(dir).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yml")
}

func TestLoader_MissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing")).Load(context.Background())
	assert.Error(t, err)
}

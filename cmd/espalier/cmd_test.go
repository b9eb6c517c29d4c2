package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const leaveYAML = `
id: leave
layout:
  - {id: s, type: start}
  - {id: n0, type: activity, meta: {actor: employee}}
  - {id: n1, type: activity, meta: {actor: tl}}
  - {id: e, type: end}
`

func graphsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leave.yaml"), []byte(leaveYAML), 0o644))
	return dir
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestCLI_TaskFind(t *testing.T) {
	out := execute(t, "--dir", graphsDir(t), "task", "find", "leave", "i1", "--var", "actor=employee")

	var got taskOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, "i1", got.InstanceID)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "n0", got.Tasks[0].NodeID)
	assert.Equal(t, "WAITING", got.Tasks[0].State.String())
}

func TestCLI_Validate(t *testing.T) {
	out := execute(t, "validate", graphsDir(t))
	assert.Contains(t, out, "leave: 4 nodes")
	assert.Contains(t, out, "1 graphs are valid")
}

func TestContextFromFlags(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().StringArray("var", nil, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--var", "role=tl", "--var", "days=4", "--var", "ratio=0.5", "--var", "urgent=true"}))

	fc, err := contextFromFlags(cmd, "i1")
	require.NoError(t, err)
	assert.Equal(t, "i1", fc.InstanceID())
	assert.Equal(t, map[string]any{"role": "tl", "days": int64(4), "ratio": 0.5, "urgent": true}, fc.Vars())

	bad := &cobra.Command{}
	bad.Flags().StringArray("var", nil, "")
	require.NoError(t, bad.Flags().Parse([]string{"--var", "novalue"}))
	_, err = contextFromFlags(bad, "i1")
	assert.ErrorContains(t, err, "want key=value")
}

func TestCLI_Graph(t *testing.T) {
	out := execute(t, "--dir", graphsDir(t), "graph", "leave")
	assert.Contains(t, out, "graph TD\n")
	assert.Contains(t, out, `n0["n0"]`)
	assert.Contains(t, out, "n0 --> n1")
	assert.Contains(t, out, "n1 --> e")
}

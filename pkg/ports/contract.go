package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateRepositoryContract runs a suite of tests to verify that a
// StateRepository implementation adheres to the interface contract.
func RunStateRepositoryContract(t *testing.T, repo StateRepository) {
	ctx := context.Background()
	suffix := time.Now().Format("20060102150405.000000000")
	instance := func(name string) string {
		return fmt.Sprintf("contract-%s-%s", name, suffix)
	}

	g := domain.MustGraph("contract", "", nil,
		domain.Node{ID: "s", Type: domain.NodeTypeStart, Links: []domain.Link{{NextID: "a"}}},
		domain.Node{ID: "a", Type: domain.NodeTypeActivity, Links: []domain.Link{{NextID: "b"}}},
		domain.Node{ID: "b", Type: domain.NodeTypeActivity, Links: []domain.Link{{NextID: "e"}}},
		domain.Node{ID: "e", Type: domain.NodeTypeEnd},
	)
	other := domain.MustGraph("contract-other", "", nil,
		domain.Node{ID: "s", Type: domain.NodeTypeStart, Links: []domain.Link{{NextID: "a"}}},
		domain.Node{ID: "a", Type: domain.NodeTypeActivity, Links: []domain.Link{{NextID: "e"}}},
		domain.Node{ID: "e", Type: domain.NodeTypeEnd},
	)
	a, _ := g.Node("a")
	b, _ := g.Node("b")
	otherA, _ := other.Node("a")

	t.Run("Get Missing", func(t *testing.T) {
		state, err := repo.Get(ctx, instance("missing"), a)
		require.NoError(t, err, "Get of a missing key should not error")
		assert.Equal(t, domain.TaskStateUnknown, state)
	})

	t.Run("Put and Get", func(t *testing.T) {
		id := instance("put")
		defer func() { _ = repo.Clear(ctx, id) }()

		for _, want := range []domain.TaskState{domain.TaskStateWaiting, domain.TaskStateCompleted, domain.TaskStateTerminated} {
			require.NoError(t, repo.Put(ctx, id, a, want))
			got, err := repo.Get(ctx, id, a)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("Keys Include Graph", func(t *testing.T) {
		id := instance("graph")
		defer func() { _ = repo.Clear(ctx, id) }()

		require.NoError(t, repo.Put(ctx, id, a, domain.TaskStateCompleted))
		got, err := repo.Get(ctx, id, otherA)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStateUnknown, got, "same node id in another graph must not collide")
	})

	t.Run("Remove", func(t *testing.T) {
		id := instance("remove")
		defer func() { _ = repo.Clear(ctx, id) }()

		require.NoError(t, repo.Put(ctx, id, a, domain.TaskStateCompleted))
		require.NoError(t, repo.Put(ctx, id, b, domain.TaskStateWaiting))
		require.NoError(t, repo.Remove(ctx, id, a))

		got, err := repo.Get(ctx, id, a)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStateUnknown, got)

		got, err = repo.Get(ctx, id, b)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStateWaiting, got, "Remove should only touch its own key")

		assert.NoError(t, repo.Remove(ctx, id, a), "removing a missing key should not error")
	})

	t.Run("Clear Isolates Instances", func(t *testing.T) {
		id1 := instance("clear-1")
		id2 := instance("clear-2")
		defer func() { _ = repo.Clear(ctx, id2) }()

		require.NoError(t, repo.Put(ctx, id1, a, domain.TaskStateCompleted))
		require.NoError(t, repo.Put(ctx, id1, b, domain.TaskStateWaiting))
		require.NoError(t, repo.Put(ctx, id2, a, domain.TaskStateCompleted))

		require.NoError(t, repo.Clear(ctx, id1))

		for _, n := range []*domain.Node{a, b} {
			got, err := repo.Get(ctx, id1, n)
			require.NoError(t, err)
			assert.Equal(t, domain.TaskStateUnknown, got)
		}
		got, err := repo.Get(ctx, id2, a)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStateCompleted, got, "Clear must not touch other instances")

		assert.NoError(t, repo.Clear(ctx, instance("never-written")))
	})

	lister, ok := repo.(StateLister)
	if !ok {
		return
	}
	t.Run("Snapshot", func(t *testing.T) {
		id := instance("snapshot")
		defer func() { _ = repo.Clear(ctx, id) }()

		require.NoError(t, repo.Put(ctx, id, a, domain.TaskStateCompleted))
		require.NoError(t, repo.Put(ctx, id, b, domain.TaskStateWaiting))

		snap, err := lister.Snapshot(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, map[string]domain.TaskState{
			"contract:a": domain.TaskStateCompleted,
			"contract:b": domain.TaskStateWaiting,
		}, snap)

		empty, err := lister.Snapshot(ctx, instance("snapshot-empty"))
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/espalier/pkg/adapters/sqlite"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteRepository_Contract(t *testing.T) {
	repo, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "states.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	ports.RunStateRepositoryContract(t, repo)
}

func TestSQLiteRepository_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "states.db")
	g := domain.MustGraph("g", "", nil,
		domain.Node{ID: "s", Type: domain.NodeTypeStart, Links: []domain.Link{{NextID: "n1"}}},
		domain.Node{ID: "n1", Type: domain.NodeTypeActivity, Links: []domain.Link{{NextID: "e"}}},
		domain.Node{ID: "e", Type: domain.NodeTypeEnd},
	)
	n1, _ := g.Node("n1")

	repo, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, repo.Put(ctx, "inst", n1, domain.TaskStateCompleted))
	require.NoError(t, repo.Close())

	repo, err = sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer repo.Close()

	state, err := repo.Get(ctx, "inst", n1)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStateCompleted, state, "states survive a restart")
}

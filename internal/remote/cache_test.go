package remote_test

import (
	"context"
	"testing"

	"github.com/temportalflux/wishlist/internal/remote"
	"github.com/temportalflux/wishlist/internal/remote/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedRepository(t *testing.T) {
	ctx := context.Background()
	host := memory.New("octo")
	_, err := host.CreateRepository(ctx, "data", false)
	require.NoError(t, err)

	cached, err := remote.NewCachedRepository(host, 8)
	require.NoError(t, err)

	commit, err := cached.CreateOrUpdateFile(ctx, remote.FileWrite{
		Owner: "octo", Repo: "data", Path: "a.kdl", Message: "Create list a", Content: "list \"a\"\n",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, cached.Len())

	body, err := cached.GetFileContent(ctx, "octo", "data", "a.kdl", commit.Version)
	require.NoError(t, err)
	assert.Equal(t, "list \"a\"\n", body)
	assert.Equal(t, 0, host.Calls("GetFileContent"))

	v2, err := host.Commit("octo", "data", "edit", map[string]string{"a.kdl": "list \"A\"\n"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		body, err = cached.GetFileContent(ctx, "octo", "data", "a.kdl", v2)
		require.NoError(t, err)
		assert.Equal(t, "list \"A\"\n", body)
	}
	assert.Equal(t, 1, host.Calls("GetFileContent"))

	_, err = cached.GetFileContent(ctx, "octo", "data", "missing.kdl", v2)
	assert.True(t, remote.IsKind(err, remote.KindNotFound))
	assert.Equal(t, 2, cached.Len())
}

func TestChangeStatus(t *testing.T) {
	assert.True(t, remote.StatusRenamed.HasContent())
	assert.True(t, remote.StatusChanged.HasContent())
	assert.False(t, remote.StatusRemoved.HasContent())
	assert.False(t, remote.StatusUnchanged.HasContent())
}

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/temportalflux/wishlist/internal/remote"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) (*Host, context.Context) {
	ctx := context.Background()
	h := New("octo")
	owner, err := h.CreateRepository(ctx, "data", false)
	require.NoError(t, err)
	require.Equal(t, "octo", owner)
	return h, ctx
}

func TestHostRepository(t *testing.T) {
	h, ctx := setupRepo(t)

	t.Run("SearchEmpty", func(t *testing.T) {
		meta, err := h.SearchRepository(ctx, "octo", "data")
		require.NoError(t, err)
		require.NotNil(t, meta)
		assert.Empty(t, meta.Version)

		meta, err = h.SearchRepository(ctx, "octo", "absent")
		require.NoError(t, err)
		assert.Nil(t, meta)
	})

	t.Run("CreateTwice", func(t *testing.T) {
		_, err := h.CreateRepository(ctx, "data", false)
		assert.True(t, remote.IsKind(err, remote.KindConflict))
	})

	t.Run("WriteAndRead", func(t *testing.T) {
		commit, err := h.CreateOrUpdateFile(ctx, remote.FileWrite{
			Owner: "octo", Repo: "data", Path: "user.kdl", Message: "Initialize user data", Content: "user\n",
		})
		require.NoError(t, err)
		assert.Equal(t, "c1", commit.Version)
		assert.Equal(t, FileID("user\n"), commit.FileID)

		body, err := h.GetFileContent(ctx, "octo", "data", "user.kdl", "c1")
		require.NoError(t, err)
		assert.Equal(t, "user\n", body)

		meta, err := h.SearchRepository(ctx, "octo", "data")
		require.NoError(t, err)
		assert.Equal(t, "c1", meta.Version)

		tree, err := h.GetTree(ctx, "octo", "data", meta.TreeID)
		require.NoError(t, err)
		assert.Equal(t, []remote.TreeEntry{{Path: "user.kdl", FileID: commit.FileID}}, tree)
	})

	t.Run("StaleFileID", func(t *testing.T) {
		_, err := h.CreateOrUpdateFile(ctx, remote.FileWrite{
			Owner: "octo", Repo: "data", Path: "user.kdl", Message: "m", Content: "x", FileID: "wrong",
		})
		assert.True(t, remote.IsKind(err, remote.KindConflict))

		_, err = h.CreateOrUpdateFile(ctx, remote.FileWrite{
			Owner: "octo", Repo: "data", Path: "new.kdl", Message: "m", Content: "x", FileID: "wrong",
		})
		assert.True(t, remote.IsKind(err, remote.KindConflict))
	})

	t.Run("NestedTree", func(t *testing.T) {
		v, err := h.Commit("octo", "data", "nested", map[string]string{"docs/readme.md": "hi"})
		require.NoError(t, err)

		meta, err := h.SearchRepository(ctx, "octo", "data")
		require.NoError(t, err)
		assert.Equal(t, v, meta.Version)

		tree, err := h.GetTree(ctx, "octo", "data", meta.TreeID)
		require.NoError(t, err)
		require.Len(t, tree, 2)
		assert.Equal(t, remote.TreeEntry{Path: "docs", IsDir: true}, tree[0])
	})

	t.Run("FailNext", func(t *testing.T) {
		h.FailNext("Viewer", errors.New("offline"))
		_, err := h.Viewer(ctx)
		assert.True(t, remote.IsKind(err, remote.KindNetwork))

		login, err := h.Viewer(ctx)
		require.NoError(t, err)
		assert.Equal(t, "octo", login)
		assert.Equal(t, 2, h.Calls("Viewer"))
	})
}

func TestHostCompare(t *testing.T) {
	h, ctx := setupRepo(t)

	base, err := h.Commit("octo", "data", "seed", map[string]string{
		"user.kdl": "user\n",
		"a.kdl":    "list \"a\"\n",
		"b.kdl":    "list \"b\"\n",
		"c.kdl":    "list \"c\"\n",
	})
	require.NoError(t, err)

	head, err := h.Commit("octo", "data", "change", map[string]string{
		"a.kdl": "list \"a\"\nitem \"x\"\n",
		"d.kdl": "list \"c\"\n",
		"e.kdl": "list \"e\"\n",
	}, "b.kdl", "c.kdl")
	require.NoError(t, err)

	changes, err := h.Compare(ctx, "octo", "data", base, head)
	require.NoError(t, err)

	assert.Equal(t, []remote.ChangedFile{
		{Path: "a.kdl", FileID: FileID("list \"a\"\nitem \"x\"\n"), Status: remote.StatusModified},
		{Path: "b.kdl", FileID: FileID("list \"b\"\n"), Status: remote.StatusRemoved},
		{Path: "d.kdl", FileID: FileID("list \"c\"\n"), Status: remote.StatusRenamed, PreviousPath: "c.kdl"},
		{Path: "e.kdl", FileID: FileID("list \"e\"\n"), Status: remote.StatusAdded},
	}, changes)

	same, err := h.Compare(ctx, "octo", "data", head, head)
	require.NoError(t, err)
	assert.Empty(t, same)

	_, err = h.Compare(ctx, "octo", "data", "c99", head)
	assert.True(t, remote.IsKind(err, remote.KindNotFound))
}

func TestHostDelete(t *testing.T) {
	h, ctx := setupRepo(t)

	commit, err := h.CreateOrUpdateFile(ctx, remote.FileWrite{
		Owner: "octo", Repo: "data", Path: "a.kdl", Message: "Create list a", Content: "list \"a\"\n",
	})
	require.NoError(t, err)

	_, err = h.DeleteFile(ctx, remote.FileDelete{Owner: "octo", Repo: "data", Path: "a.kdl", Message: "Delete list a", FileID: "stale"})
	assert.True(t, remote.IsKind(err, remote.KindConflict))

	version, err := h.DeleteFile(ctx, remote.FileDelete{Owner: "octo", Repo: "data", Path: "a.kdl", Message: "Delete list a", FileID: commit.FileID})
	require.NoError(t, err)
	assert.Equal(t, version, h.Head("octo", "data"))

	_, ok := h.File("octo", "data", "a.kdl")
	assert.False(t, ok)
	assert.Equal(t, []string{"Create list a", "Delete list a"}, h.Messages("octo", "data"))
}

package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temportalflux/wishlist/internal/list"
	liststore "github.com/temportalflux/wishlist/internal/list/storage"
	"github.com/temportalflux/wishlist/internal/storage"
	"go.uber.org/zap"
)

type commit struct {
	id      list.ID
	message string
	body    string
}

type recorder struct {
	mu      sync.Mutex
	commits []commit
}

func (r *recorder) Commit(ctx context.Context, id list.ID, message, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, commit{id, message, body})
	return nil
}

func (r *recorder) all() []commit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]commit(nil), r.commits...)
}

func setupWorkspace(t *testing.T) (*LocalWorkspace, *recorder) {
	db, err := storage.Open(storage.Options{InMemory: true, SchemaVersion: 1})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	lists := liststore.NewStore(db)
	err = db.Update(func(tx *storage.Txn) error {
		for _, l := range []*list.List{
			{ID: list.ID{Owner: "octo", Slug: "gifts"}, Content: "list \"Gifts\"\n"},
			{ID: list.ID{Owner: "octo", Slug: "books"}, Content: "list \"Books\"\n"},
			{ID: list.ID{Owner: "other", Slug: "tools"}, Content: "list \"Tools\"\n"},
		} {
			if err := lists.Put(tx, l); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	rec := &recorder{}
	ws, err := NewLocalWorkspace(t.TempDir(), db, rec, zap.NewNop())
	require.NoError(t, err)
	return ws, rec
}

func TestExport(t *testing.T) {
	ws, _ := setupWorkspace(t)

	written, err := ws.Export("octo")
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	body, err := os.ReadFile(filepath.Join(ws.Root, "gifts.kdl"))
	require.NoError(t, err)
	assert.Equal(t, "list \"Gifts\"\n", string(body))
	assert.NoFileExists(t, filepath.Join(ws.Root, "tools.kdl"))

	written, err = ws.Export("octo")
	require.NoError(t, err)
	assert.Zero(t, written)
}

func TestHandleChange(t *testing.T) {
	ws, rec := setupWorkspace(t)
	ctx := context.Background()
	gifts := filepath.Join(ws.Root, "gifts.kdl")

	require.NoError(t, os.WriteFile(gifts, []byte("list \"Gifts\"\nitem \"kite\"\n"), 0o644))
	require.NoError(t, ws.HandleChange(ctx, gifts))
	assert.Empty(t, rec.all(), "no owner exported yet")

	_, err := ws.Export("octo")
	require.NoError(t, err)
	require.NoError(t, ws.HandleChange(ctx, gifts), "unchanged after export")
	assert.Empty(t, rec.all())

	require.NoError(t, os.WriteFile(gifts, []byte("list \"Gifts\"\nitem \"kite\"\n"), 0o644))
	require.NoError(t, ws.HandleChange(ctx, gifts))

	unknown := filepath.Join(ws.Root, "unknown.kdl")
	require.NoError(t, os.WriteFile(unknown, []byte("list \"?\"\n"), 0o644))
	require.NoError(t, ws.HandleChange(ctx, unknown))

	notes := filepath.Join(ws.Root, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("hi"), 0o644))
	require.NoError(t, ws.HandleChange(ctx, notes))

	swap := filepath.Join(ws.Root, ".gifts.kdl")
	require.NoError(t, os.WriteFile(swap, []byte("x"), 0o644))
	require.NoError(t, ws.HandleChange(ctx, swap))

	commits := rec.all()
	require.Len(t, commits, 1)
	assert.Equal(t, list.ID{Owner: "octo", Slug: "gifts"}, commits[0].id)
	assert.Equal(t, "Edit gifts", commits[0].message)
	assert.Equal(t, "list \"Gifts\"\nitem \"kite\"\n", commits[0].body)
}

func TestWatchCommitsEdits(t *testing.T) {
	ws, rec := setupWorkspace(t)
	_, err := ws.Export("octo")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Watch(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	body := "list \"Books\"\nitem \"dune\"\n"
	// The watcher may not be registered yet, so keep writing until it is seen.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(ws.Root, "books.kdl"), []byte(body), 0o644)
		return len(rec.all()) > 0
	}, 2*time.Second, 50*time.Millisecond)

	c := rec.all()[0]
	assert.Equal(t, "Edit books", c.message)
	assert.Equal(t, body, c.body)
}

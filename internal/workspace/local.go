// internal/workspace/local.go
package workspace

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/temportalflux/wishlist/internal/content"
	"github.com/temportalflux/wishlist/internal/list"
	liststore "github.com/temportalflux/wishlist/internal/list/storage"
	"github.com/temportalflux/wishlist/internal/storage"
	"go.uber.org/zap"
)

// Committer queues an edit to a list.
type Committer interface {
	Commit(ctx context.Context, id list.ID, message, body string) error
}

// LocalWorkspace mirrors one owner's lists into a directory as <slug>.kdl
// files and turns edits to those files into queued commits.
type LocalWorkspace struct {
	Root   string
	Logger *zap.Logger

	db    *storage.DB
	lists *liststore.Store
	queue Committer

	Mu    sync.RWMutex
	owner string
}

func NewLocalWorkspace(root string, db *storage.DB, queue Committer, logger *zap.Logger) (*LocalWorkspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}
	return &LocalWorkspace{
		Root:   abs,
		Logger: logger,
		db:     db,
		lists:  liststore.NewStore(db),
		queue:  queue,
	}, nil
}

// Owner returns the owner whose lists are mirrored, or "" before the first Export.
func (w *LocalWorkspace) Owner() string {
	w.Mu.RLock()
	defer w.Mu.RUnlock()
	return w.owner
}

// Export writes every list of owner into the workspace. Files whose content
// already matches are left alone. It returns the number of files written.
func (w *LocalWorkspace) Export(owner string) (int, error) {
	w.Mu.Lock()
	w.owner = owner
	w.Mu.Unlock()

	var lists []*list.List
	err := w.db.View(func(tx *storage.Txn) error {
		var err error
		lists, err = w.lists.ListByOwner(tx, owner)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reading lists: %w", err)
	}

	written := 0
	for _, l := range lists {
		path := filepath.Join(w.Root, content.ListPath(l.ID.Slug))
		existing, err := os.ReadFile(path)
		if err == nil && string(existing) == l.Content {
			continue
		}
		if err != nil && !os.IsNotExist(err) {
			return written, fmt.Errorf("reading %s: %w", path, err)
		}
		if err := writeFile(path, l.Content); err != nil {
			return written, err
		}
		written++
	}

	w.Logger.Debug("exported workspace",
		zap.String("owner", owner),
		zap.Int("lists", len(lists)),
		zap.Int("written", written),
	)
	return written, nil
}

// writeFile replaces path through a temporary file so a watcher never sees a
// partial document.
func writeFile(path, body string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".wishlist-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// Watch commits edits made to list files until ctx is done.
func (w *LocalWorkspace) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.Root); err != nil {
		return fmt.Errorf("watching %s: %w", w.Root, err)
	}
	w.Logger.Info("watching workspace", zap.String("root", w.Root))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := w.HandleChange(ctx, event.Name); err != nil {
				w.Logger.Warn("workspace edit not committed",
					zap.String("path", event.Name),
					zap.Error(err),
				)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.Logger.Error("watcher error", zap.Error(err))
		}
	}
}

// HandleChange commits the file at path if it is a known list of the current
// owner and its content differs from the stored record.
func (w *LocalWorkspace) HandleChange(ctx context.Context, path string) error {
	rel, err := filepath.Rel(w.Root, path)
	if err != nil || shouldIgnore(rel) {
		return nil
	}
	kind := content.Parse(filepath.ToSlash(rel))
	if kind.Type != content.ListFile {
		return nil
	}
	owner := w.Owner()
	if owner == "" {
		return nil
	}

	body, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", rel, err)
	}

	id := list.ID{Owner: owner, Slug: kind.Slug}
	l, err := w.lists.Load(id)
	if stderrors.Is(err, storage.ErrNotFound) {
		w.Logger.Debug("ignoring file without a list record", zap.String("path", rel))
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading list %s: %w", id, err)
	}
	if l.Content == string(body) {
		return nil
	}

	if err := w.queue.Commit(ctx, id, fmt.Sprintf("Edit %s", id.Slug), string(body)); err != nil {
		return err
	}
	w.Logger.Info("committed workspace edit", zap.String("list", id.String()))
	return nil
}

// shouldIgnore skips nested paths and hidden files such as editor swap files.
func shouldIgnore(rel string) bool {
	if rel == "" || rel == "." {
		return true
	}
	if strings.ContainsRune(rel, filepath.Separator) {
		return true
	}
	return strings.HasPrefix(rel, ".")
}

package reconcile

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/temportalflux/wishlist/internal/bootstrap"
	"github.com/temportalflux/wishlist/internal/content"
	"github.com/temportalflux/wishlist/internal/diff"
	"github.com/temportalflux/wishlist/internal/errors"
	"github.com/temportalflux/wishlist/internal/list"
	liststore "github.com/temportalflux/wishlist/internal/list/storage"
	"github.com/temportalflux/wishlist/internal/remote"
	"github.com/temportalflux/wishlist/internal/status"
	"github.com/temportalflux/wishlist/internal/storage"
	"github.com/temportalflux/wishlist/internal/user"
	userstore "github.com/temportalflux/wishlist/internal/user/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Mode string

const (
	ModeNoop        Mode = "noop"
	ModeInstall     Mode = "install"
	ModeIncremental Mode = "incremental"
)

// Outcome summarizes a completed sync attempt.
type Outcome struct {
	Mode         Mode   `json:"mode"`
	Owner        string `json:"owner"`
	Version      string `json:"version"`
	Fetched      int    `json:"fetched"`
	ListsUpdated int    `json:"lists_updated"`
	ListsDeleted int    `json:"lists_deleted"`
}

// errHistoryDiverged means the local version is no longer part of the remote history.
var errHistoryDiverged = stderrors.New("local version not found on remote")

type Options struct {
	// FetchConcurrency bounds parallel file downloads.
	FetchConcurrency int
}

// Engine brings the local record store up to date with the remote repository.
// Run must not be called concurrently with itself.
type Engine struct {
	repo     remote.Repository
	db       *storage.DB
	users    *userstore.Store
	lists    *liststore.Store
	resolver *bootstrap.Resolver
	status   *status.Reporter
	logger   *zap.Logger
	opts     Options
}

func NewEngine(repo remote.Repository, db *storage.DB, reporter *status.Reporter, logger *zap.Logger, opts Options) *Engine {
	if opts.FetchConcurrency < 1 {
		opts.FetchConcurrency = 1
	}
	return &Engine{
		repo:     repo,
		db:       db,
		users:    userstore.NewStore(db),
		lists:    liststore.NewStore(db),
		resolver: bootstrap.NewResolver(repo, reporter, logger),
		status:   reporter,
		logger:   logger,
		opts:     opts,
	}
}

type fetchJob struct {
	path   string
	fileID string
	kind   content.Kind
}

type fetchedFile struct {
	fetchJob
	body string
}

// plan is the set of writes one sync attempt commits together.
type plan struct {
	mode    Mode
	meta    remote.RepositoryMetadata
	login   string
	files   []fetchedFile
	removed []string
	// prune deletes local lists of the owner that are not in files.
	prune bool
	// touchUser is set when the user record must be written even without new content.
	touchUser bool
}

func (e *Engine) Run(ctx context.Context) (Outcome, error) {
	login, meta, created, err := e.resolve(ctx)
	if err != nil {
		return Outcome{}, err
	}

	var local *user.User
	err = e.db.View(func(tx *storage.Txn) error {
		var err error
		local, err = e.users.Find(tx, login)
		return err
	})
	if err != nil {
		return Outcome{}, errors.LocalStore("read user", err)
	}

	var p *plan
	switch {
	case local == nil || created:
		p, err = e.install(ctx, login, meta)
	case local.LocalVersion != meta.Version:
		p, err = e.incremental(ctx, login, local, meta)
		if stderrors.Is(err, errHistoryDiverged) {
			p, err = e.install(ctx, login, meta)
		}
	default:
		p = &plan{mode: ModeNoop, login: login, meta: meta, touchUser: local.RemoteVersion != meta.Version}
	}
	if err != nil {
		return Outcome{}, err
	}

	return e.commit(p, local)
}

func (e *Engine) resolve(ctx context.Context) (string, remote.RepositoryMetadata, bool, error) {
	e.status.PushStage("Checking authentication")
	defer e.status.PopStage()

	login, err := e.repo.Viewer(ctx)
	if err != nil {
		return "", remote.RepositoryMetadata{}, false, errors.RemoteHost("viewer", err)
	}

	e.status.PushStage("Finding data repository")
	defer e.status.PopStage()

	result, err := e.resolver.Resolve(ctx, login)
	if err != nil {
		return "", remote.RepositoryMetadata{}, false, err
	}
	return login, result.Metadata, result.Created, nil
}

func (e *Engine) install(ctx context.Context, login string, meta remote.RepositoryMetadata) (*plan, error) {
	e.status.PushStage("Installing lists")
	defer e.status.PopStage()

	tree, err := e.repo.GetTree(ctx, meta.Owner, meta.Name, meta.TreeID)
	if err != nil {
		return nil, errors.RemoteHost("get tree", err)
	}

	var jobs []fetchJob
	for _, entry := range tree {
		if entry.IsDir {
			continue
		}
		kind := content.Parse(entry.Path)
		if kind.Type == content.Ignored {
			continue
		}
		jobs = append(jobs, fetchJob{path: entry.Path, fileID: entry.FileID, kind: kind})
	}

	files, err := e.fetch(ctx, meta, jobs)
	if err != nil {
		return nil, err
	}

	e.logger.Info("installing repository snapshot",
		zap.String("owner", meta.Owner),
		zap.String("version", meta.Version),
		zap.Int("files", len(files)),
	)
	return &plan{
		mode:      ModeInstall,
		login:     login,
		meta:      meta,
		files:     files,
		prune:     true,
		touchUser: true,
	}, nil
}

func (e *Engine) incremental(ctx context.Context, login string, local *user.User, meta remote.RepositoryMetadata) (*plan, error) {
	e.status.PushStage("Updating lists")
	defer e.status.PopStage()

	changes, err := e.repo.Compare(ctx, meta.Owner, meta.Name, local.LocalVersion, meta.Version)
	if remote.IsKind(err, remote.KindNotFound) {
		e.logger.Warn("local version unknown to remote, reinstalling",
			zap.String("local_version", local.LocalVersion),
			zap.String("remote_version", meta.Version),
		)
		return nil, errHistoryDiverged
	}
	if err != nil {
		return nil, errors.RemoteHost("compare", err)
	}

	var jobs []fetchJob
	var removed []string
	for _, change := range changes {
		kind := content.Parse(change.Path)
		if change.Status == remote.StatusRenamed {
			if prev := content.Parse(change.PreviousPath); prev.Type == content.ListFile && prev.Slug != kind.Slug {
				removed = append(removed, prev.Slug)
			}
		}
		if kind.Type == content.Ignored {
			continue
		}

		switch {
		case change.Status.HasContent():
			jobs = append(jobs, fetchJob{path: change.Path, fileID: change.FileID, kind: kind})
		case change.Status == remote.StatusRemoved:
			if kind.Type == content.UserFile {
				e.logger.Warn("remote user document was removed, keeping local copy")
				continue
			}
			removed = append(removed, kind.Slug)
		}
	}

	files, err := e.fetch(ctx, meta, jobs)
	if err != nil {
		return nil, err
	}

	return &plan{
		mode:      ModeIncremental,
		login:     login,
		meta:      meta,
		files:     files,
		removed:   removed,
		touchUser: true,
	}, nil
}

func (e *Engine) fetch(ctx context.Context, meta remote.RepositoryMetadata, jobs []fetchJob) ([]fetchedFile, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	e.status.PushProgressStage("Downloading files", len(jobs))
	defer e.status.PopStage()

	files := make([]fetchedFile, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.FetchConcurrency)
	for i, job := range jobs {
		g.Go(func() error {
			body, err := e.repo.GetFileContent(gctx, meta.Owner, meta.Name, job.path, meta.Version)
			if err != nil {
				return errors.RemoteHost(fmt.Sprintf("fetch %s", job.path), err)
			}
			files[i] = fetchedFile{fetchJob: job, body: body}
			e.status.IncrementProgress()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// commit applies the plan in a single transaction. The user's LocalVersion
// advances only alongside the content fetched for it.
func (e *Engine) commit(p *plan, before *user.User) (Outcome, error) {
	outcome := Outcome{Mode: p.mode, Owner: p.meta.Owner, Version: p.meta.Version, Fetched: len(p.files)}
	if !p.touchUser && len(p.files) == 0 && len(p.removed) == 0 {
		return outcome, nil
	}

	e.status.PushStage("Saving")
	defer e.status.PopStage()

	err := e.db.Update(func(tx *storage.Txn) error {
		outcome.ListsUpdated, outcome.ListsDeleted = 0, 0

		u, err := e.users.Find(tx, p.login)
		if err != nil {
			return err
		}
		if u == nil {
			u = &user.User{Login: p.login}
		}

		seen := make(map[string]bool)
		for _, f := range p.files {
			switch f.kind.Type {
			case content.UserFile:
				u.FileID = f.fileID
				u.Content = f.body
			case content.ListFile:
				seen[f.kind.Slug] = true
				if err := e.upsertList(tx, p.meta, f); err != nil {
					return err
				}
				outcome.ListsUpdated++
			}
		}

		removed := p.removed
		if p.prune {
			existing, err := e.lists.ListByOwner(tx, p.meta.Owner)
			if err != nil {
				return err
			}
			for _, l := range existing {
				if !seen[l.ID.Slug] {
					removed = append(removed, l.ID.Slug)
				}
			}
		}
		for _, slug := range removed {
			deleted, err := e.removeList(tx, list.ID{Owner: p.meta.Owner, Slug: slug})
			if err != nil {
				return err
			}
			if deleted {
				outcome.ListsDeleted++
			}
		}

		if p.mode != ModeNoop {
			u.LocalVersion = p.meta.Version
		}
		u.RemoteVersion = p.meta.Version
		return e.users.Put(tx, u)
	})
	if err != nil {
		return Outcome{}, errors.LocalStore("commit sync", err)
	}

	fields := []zap.Field{
		zap.String("mode", string(outcome.Mode)),
		zap.String("owner", outcome.Owner),
		zap.String("version", outcome.Version),
		zap.Int("lists_updated", outcome.ListsUpdated),
		zap.Int("lists_deleted", outcome.ListsDeleted),
	}
	if before != nil {
		fields = append(fields, zap.String("previous_version", before.LocalVersion))
	}
	e.logger.Info("sync committed", fields...)
	return outcome, nil
}

func (e *Engine) upsertList(tx *storage.Txn, meta remote.RepositoryMetadata, f fetchedFile) error {
	id := list.ID{Owner: meta.Owner, Slug: f.kind.Slug}
	existing, err := e.lists.Get(tx, id)
	if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return err
	}

	if existing != nil && existing.Dirty() {
		// Pending edits win. Adopting the new file id lets the next push replace the remote copy.
		e.logger.Warn("remote change to list with pending edits, keeping local content",
			zap.String("list", id.String()),
			zap.Int("pending", len(existing.PendingChanges)),
		)
		existing.FileID = f.fileID
		return e.lists.Put(tx, existing)
	}

	var previous string
	if existing != nil {
		previous = existing.Content
	}
	e.logger.Debug("list updated",
		zap.String("list", id.String()),
		zap.Stringer("lines", diff.Stat(previous, f.body)),
	)
	return e.lists.Put(tx, &list.List{
		ID:           id,
		FileID:       f.fileID,
		Content:      f.body,
		LocalVersion: meta.Version,
	})
}

func (e *Engine) removeList(tx *storage.Txn, id list.ID) (bool, error) {
	existing, err := e.lists.Get(tx, id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if existing.Dirty() {
		e.logger.Warn("list removed remotely, dropping pending edits",
			zap.String("list", id.String()),
			zap.Int("pending", len(existing.PendingChanges)),
		)
	}
	return true, e.lists.Delete(tx, id)
}

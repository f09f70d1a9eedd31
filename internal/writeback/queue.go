package writeback

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/temportalflux/wishlist/internal/content"
	"github.com/temportalflux/wishlist/internal/errors"
	"github.com/temportalflux/wishlist/internal/list"
	liststore "github.com/temportalflux/wishlist/internal/list/storage"
	"github.com/temportalflux/wishlist/internal/remote"
	"github.com/temportalflux/wishlist/internal/storage"
	userstore "github.com/temportalflux/wishlist/internal/user/storage"
	"go.uber.org/zap"
)

const (
	DefaultFlushDelay = 30 * time.Second
	maxSlugAttempts   = 8
)

var errListGone = stderrors.New("list deleted during flush")

type Options struct {
	// FlushDelay is the quiet period after the last edit before a list is pushed.
	FlushDelay time.Duration
}

// timerState tracks the debounce timer of one list. gen is bumped on every
// schedule or cancel, and a firing timer only flushes if its gen is current.
type timerState struct {
	gen   uint64
	timer *time.Timer
}

// Queue persists list edits locally and pushes them to the remote in order,
// one commit per edit, after a debounce period.
type Queue struct {
	repo   remote.Repository
	db     *storage.DB
	lists  *liststore.Store
	users  *userstore.Store
	logger *zap.Logger
	delay  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	timers map[list.ID]*timerState
	drains map[list.ID]*sync.Mutex
	closed bool
}

func New(repo remote.Repository, db *storage.DB, logger *zap.Logger, opts Options) *Queue {
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = DefaultFlushDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		repo:   repo,
		db:     db,
		lists:  liststore.NewStore(db),
		users:  userstore.NewStore(db),
		logger: logger,
		delay:  opts.FlushDelay,
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[list.ID]*timerState),
		drains: make(map[list.ID]*sync.Mutex),
	}
}

// Commit queues an edit and persists it before returning. The push happens
// once the list has been quiet for the flush delay.
func (q *Queue) Commit(ctx context.Context, id list.ID, message, body string) error {
	if err := list.ValidateID(id); err != nil {
		return err
	}
	if err := list.ValidateChange(message); err != nil {
		return err
	}

	err := q.db.Update(func(tx *storage.Txn) error {
		l, err := q.lists.Get(tx, id)
		if err != nil {
			return err
		}
		l.Enqueue(message, body)
		return q.lists.Put(tx, l)
	})
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFound(fmt.Sprintf("list %s not found", id))
	}
	if err != nil {
		return errors.LocalStore("queue change", err)
	}

	q.schedule(id)
	return nil
}

func (q *Queue) schedule(id list.ID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	state, ok := q.timers[id]
	if !ok {
		state = &timerState{}
		q.timers[id] = state
	}
	if state.timer != nil {
		state.timer.Stop()
	}
	state.gen++
	gen := state.gen
	state.timer = time.AfterFunc(q.delay, func() {
		q.fire(id, gen)
	})
}

func (q *Queue) fire(id list.ID, gen uint64) {
	q.mu.Lock()
	state, ok := q.timers[id]
	if q.closed || !ok || state.gen != gen {
		q.mu.Unlock()
		return
	}
	state.timer = nil
	q.wg.Add(1)
	q.mu.Unlock()
	defer q.wg.Done()

	if err := q.drain(q.ctx, id); err != nil {
		q.logger.Warn("debounced flush failed, changes remain queued",
			zap.String("list", id.String()),
			zap.Error(err),
		)
	}
}

// cancelTimer invalidates any scheduled flush of the list.
func (q *Queue) cancelTimer(id list.ID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	state, ok := q.timers[id]
	if !ok {
		return
	}
	if state.timer != nil {
		state.timer.Stop()
		state.timer = nil
	}
	state.gen++
}

// Scheduled reports whether a debounced flush of the list is pending.
func (q *Queue) Scheduled(id list.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	state, ok := q.timers[id]
	return ok && state.timer != nil
}

// Flush cancels any pending timer and pushes the list's queued edits now.
func (q *Queue) Flush(ctx context.Context, id list.ID) error {
	q.cancelTimer(id)
	return q.drain(ctx, id)
}

// FlushAll pushes every list that has queued edits.
func (q *Queue) FlushAll(ctx context.Context) error {
	dirty, err := q.lists.Dirty()
	if err != nil {
		return errors.LocalStore("find dirty lists", err)
	}

	var errs []error
	for _, l := range dirty {
		if err := q.Flush(ctx, l.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (q *Queue) drainLock(id list.ID) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()
	lock, ok := q.drains[id]
	if !ok {
		lock = &sync.Mutex{}
		q.drains[id] = lock
	}
	return lock
}

// drain pushes queued edits oldest first. Each edit is removed from the queue
// only after the remote accepted it, so a failure leaves it and everything
// after it queued.
func (q *Queue) drain(ctx context.Context, id list.ID) error {
	lock := q.drainLock(id)
	lock.Lock()
	defer lock.Unlock()

	pushed := 0
	defer func() {
		if pushed > 0 {
			q.logger.Info("flushed list",
				zap.String("list", id.String()),
				zap.Int("pushed", pushed),
			)
		}
	}()

	for {
		l, err := q.lists.Load(id)
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return errors.LocalStore("read list", err)
		}
		head, ok := l.Head()
		if !ok {
			return nil
		}

		commit, err := q.repo.CreateOrUpdateFile(ctx, remote.FileWrite{
			Owner:   id.Owner,
			Repo:    remote.RepositoryName,
			Path:    id.Path(),
			Message: head.Message,
			Content: head.Content,
			FileID:  l.FileID,
		})
		if err != nil {
			return errors.RemoteHost(fmt.Sprintf("push %s", id), err)
		}

		err = q.db.Update(func(tx *storage.Txn) error {
			l, err := q.lists.Get(tx, id)
			if stderrors.Is(err, storage.ErrNotFound) {
				return errListGone
			}
			if err != nil {
				return err
			}
			l.Pop()
			l.FileID = commit.FileID
			l.LocalVersion = commit.Version
			if err := q.lists.Put(tx, l); err != nil {
				return err
			}
			return q.recordRemoteVersion(tx, id.Owner, commit.Version)
		})
		if stderrors.Is(err, errListGone) {
			return nil
		}
		if err != nil {
			return errors.LocalStore("record push", err)
		}
		pushed++
	}
}

// recordRemoteVersion notes a commit this client made so the next sync
// knows the remote has moved.
func (q *Queue) recordRemoteVersion(tx *storage.Txn, owner, version string) error {
	u, err := q.users.Find(tx, owner)
	if err != nil || u == nil {
		return err
	}
	u.RemoteVersion = version
	return q.users.Put(tx, u)
}

// Create pushes a new list document and stores its record.
func (q *Queue) Create(ctx context.Context, owner, name string) (*list.List, error) {
	id, err := q.allocateID(owner)
	if err != nil {
		return nil, err
	}

	body := content.ListSeed(name)
	commit, err := q.repo.CreateOrUpdateFile(ctx, remote.FileWrite{
		Owner:   owner,
		Repo:    remote.RepositoryName,
		Path:    id.Path(),
		Message: fmt.Sprintf("Create list %s", id.Slug),
		Content: body,
	})
	if err != nil {
		return nil, errors.RemoteHost("create list", err)
	}

	l := &list.List{
		ID:           id,
		FileID:       commit.FileID,
		Content:      body,
		LocalVersion: commit.Version,
	}
	err = q.db.Update(func(tx *storage.Txn) error {
		if err := q.lists.Put(tx, l); err != nil {
			return err
		}
		return q.recordRemoteVersion(tx, owner, commit.Version)
	})
	if err != nil {
		return nil, errors.LocalStore("store list", err)
	}

	q.logger.Info("created list", zap.String("list", id.String()))
	return l, nil
}

func (q *Queue) allocateID(owner string) (list.ID, error) {
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		id := list.ID{Owner: owner, Slug: list.NewSlug()}
		if err := list.ValidateID(id); err != nil {
			return list.ID{}, err
		}

		var exists bool
		err := q.db.View(func(tx *storage.Txn) error {
			var err error
			exists, err = q.lists.Exists(tx, id)
			return err
		})
		if err != nil {
			return list.ID{}, errors.LocalStore("allocate list id", err)
		}
		if !exists {
			return id, nil
		}
	}
	return list.ID{}, errors.LocalStore("allocate list id", fmt.Errorf("no free slug after %d attempts", maxSlugAttempts))
}

// Delete removes a list remotely and locally, discarding any queued edits.
func (q *Queue) Delete(ctx context.Context, id list.ID) error {
	q.cancelTimer(id)

	lock := q.drainLock(id)
	lock.Lock()
	defer lock.Unlock()

	l, err := q.lists.Load(id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return errors.NotFound(fmt.Sprintf("list %s not found", id))
	}
	if err != nil {
		return errors.LocalStore("read list", err)
	}

	var version string
	if l.FileID != "" {
		version, err = q.repo.DeleteFile(ctx, remote.FileDelete{
			Owner:   id.Owner,
			Repo:    remote.RepositoryName,
			Path:    id.Path(),
			Message: fmt.Sprintf("Delete list %s", id.Slug),
			FileID:  l.FileID,
		})
		if err != nil && !remote.IsKind(err, remote.KindNotFound) {
			return errors.RemoteHost("delete list", err)
		}
	}

	err = q.db.Update(func(tx *storage.Txn) error {
		if err := q.lists.Delete(tx, id); err != nil {
			return err
		}
		if version == "" {
			return nil
		}
		return q.recordRemoteVersion(tx, id.Owner, version)
	})
	if err != nil {
		return errors.LocalStore("delete list", err)
	}

	q.mu.Lock()
	delete(q.timers, id)
	q.mu.Unlock()

	q.logger.Info("deleted list", zap.String("list", id.String()), zap.Int("discarded", len(l.PendingChanges)))
	return nil
}

// Close stops every pending timer and waits for flushes already running.
// Queued edits stay in the store for the next FlushAll.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	for _, state := range q.timers {
		if state.timer != nil {
			state.timer.Stop()
			state.timer = nil
		}
		state.gen++
	}
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
}

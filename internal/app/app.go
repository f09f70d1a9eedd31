package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/temportalflux/wishlist/internal/api"
	"github.com/temportalflux/wishlist/internal/autosync"
	"github.com/temportalflux/wishlist/internal/config"
	"github.com/temportalflux/wishlist/internal/logging"
	"github.com/temportalflux/wishlist/internal/middleware"
	"github.com/temportalflux/wishlist/internal/reconcile"
	"github.com/temportalflux/wishlist/internal/remote"
	"github.com/temportalflux/wishlist/internal/remote/github"
	"github.com/temportalflux/wishlist/internal/remote/memory"
	"github.com/temportalflux/wishlist/internal/status"
	"github.com/temportalflux/wishlist/internal/storage"
	"github.com/temportalflux/wishlist/internal/workspace"
	"github.com/temportalflux/wishlist/internal/writeback"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	SchemaVersion = 1

	compressAbove   = 4 << 10
	shutdownTimeout = 10 * time.Second
	memoryViewer    = "local"
)

// App owns every long-lived component of a wishlist process.
type App struct {
	Config   *config.Config
	Logger   *logging.Logger
	DB       *storage.DB
	Remote   remote.Repository
	Reporter *status.Reporter
	Engine   *reconcile.Engine
	Queue    *writeback.Queue
	Sync     *autosync.Channel

	// Workspace is nil unless workspace.path is configured.
	Workspace *workspace.LocalWorkspace
}

func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.Database.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := storage.Open(storage.Options{
		Path:          cfg.Database.Path,
		SchemaVersion: SchemaVersion,
		CompressAbove: compressAbove,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	repo, err := NewRemote(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	reporter := status.NewReporter(logger.Named("status"))
	a := &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Remote:   repo,
		Reporter: reporter,
		Engine: reconcile.NewEngine(repo, db, reporter, logger.Named("reconcile"), reconcile.Options{
			FetchConcurrency: cfg.Sync.FetchConcurrency,
		}),
		Queue: writeback.New(repo, db, logger.Named("writeback"), writeback.Options{
			FlushDelay: cfg.Sync.FlushDelay,
		}),
		Sync: autosync.NewChannel(logger.Named("autosync")),
	}

	if cfg.Workspace.Path != "" {
		a.Workspace, err = workspace.NewLocalWorkspace(cfg.Workspace.Path, db, a.Queue, logger.Named("workspace"))
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// NewRemote builds the configured remote host, fronted by the content cache.
func NewRemote(cfg *config.Config) (remote.Repository, error) {
	var repo remote.Repository
	switch cfg.Remote.Kind {
	case config.RemoteGitHub:
		repo = github.New(github.Options{
			BaseURL:    cfg.Remote.APIURL,
			Token:      cfg.Remote.Token,
			RetryCount: cfg.Remote.RetryCount,
		})
	case config.RemoteMemory:
		repo = memory.New(memoryViewer)
	default:
		return nil, fmt.Errorf("unknown remote.kind %q", cfg.Remote.Kind)
	}

	if cfg.Remote.CacheSize <= 0 {
		return repo, nil
	}
	cached, err := remote.NewCachedRepository(repo, cfg.Remote.CacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// SyncOnce pushes queued edits and then reconciles with the remote. A failed
// push is logged and left queued; the reconcile still runs.
func (a *App) SyncOnce(ctx context.Context) (reconcile.Outcome, error) {
	log := a.Logger.WithRequestID(ctx)

	if err := a.Queue.FlushAll(ctx); err != nil {
		log.Warn("pushing queued edits before sync", zap.Error(err))
	}

	outcome, err := a.Engine.Run(ctx)
	if err != nil {
		return outcome, err
	}
	log.Info("sync complete",
		zap.String("mode", string(outcome.Mode)),
		zap.String("owner", outcome.Owner),
		zap.String("version", outcome.Version),
		zap.Int("fetched", outcome.Fetched),
		zap.Int("updated", outcome.ListsUpdated),
		zap.Int("deleted", outcome.ListsDeleted),
	)

	if a.Workspace != nil && outcome.Owner != "" {
		if _, err := a.Workspace.Export(outcome.Owner); err != nil {
			log.Warn("exporting workspace", zap.Error(err))
		}
	}
	return outcome, nil
}

// Handler is the daemon's HTTP surface with its middleware applied.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	api.Routes(mux,
		api.NewSyncHandler(a.Reporter, a.Sync, a.DB),
		api.NewListHandler(a.DB, a.Queue),
	)
	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.Logger(a.Logger),
		middleware.Recover(a.Logger),
	)
}

// Run serves the daemon until ctx is done. It syncs once at start, then on
// every API trigger and sync.interval tick.
func (a *App) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              a.Config.Addr(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Sync.Run(ctx, func(ctx context.Context, req autosync.Request) error {
			_, err := a.SyncOnce(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		a.Sync.Every(ctx, a.Config.Sync.Interval)
		return nil
	})
	if a.Workspace != nil {
		g.Go(func() error {
			return a.Workspace.Watch(ctx)
		})
	}
	g.Go(func() error {
		a.Logger.Info("starting server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	a.Sync.TrySend(autosync.NewRequest("startup"))

	err := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if ferr := a.Queue.FlushAll(flushCtx); ferr != nil {
		a.Logger.Warn("queued edits not pushed before shutdown", zap.Error(ferr))
	}
	return err
}

// Close stops the write-back timers and closes the store. Queued edits stay
// stored for the next run.
func (a *App) Close() error {
	a.Queue.Close()
	return a.DB.Close()
}

package bootstrap

import (
	"context"

	"github.com/temportalflux/wishlist/internal/content"
	"github.com/temportalflux/wishlist/internal/errors"
	"github.com/temportalflux/wishlist/internal/remote"
	"github.com/temportalflux/wishlist/internal/status"
	"go.uber.org/zap"
)

const seedMessage = "Initialize user data"

type Result struct {
	Metadata remote.RepositoryMetadata
	// Created is set when the repository was created or seeded during this call.
	Created bool
}

// Resolver finds a user's data repository, creating and seeding it when absent.
type Resolver struct {
	repo   remote.Repository
	status *status.Reporter
	logger *zap.Logger
}

func NewResolver(repo remote.Repository, reporter *status.Reporter, logger *zap.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		status: reporter,
		logger: logger,
	}
}

func (r *Resolver) Resolve(ctx context.Context, login string) (Result, error) {
	meta, err := r.repo.SearchRepository(ctx, login, remote.RepositoryName)
	if err != nil {
		return Result{}, errors.RemoteHost("find repository", err)
	}
	if meta != nil && meta.Version != "" {
		return Result{Metadata: *meta}, nil
	}

	r.status.PushStage("Initializing data repository")
	defer r.status.PopStage()

	owner := login
	if meta == nil {
		owner, err = r.repo.CreateRepository(ctx, remote.RepositoryName, false)
		if err != nil {
			return Result{}, errors.RemoteHost("create repository", err)
		}
		if err := r.repo.SetTopics(ctx, owner, remote.RepositoryName, []string{remote.RepositoryTopic}); err != nil {
			return Result{}, errors.RemoteHost("tag repository", err)
		}
		r.logger.Info("created data repository",
			zap.String("owner", owner),
			zap.String("repo", remote.RepositoryName),
		)
	} else {
		owner = meta.Owner
		r.logger.Warn("data repository has no commits, seeding",
			zap.String("owner", owner),
			zap.String("repo", remote.RepositoryName),
		)
	}

	_, err = r.repo.CreateOrUpdateFile(ctx, remote.FileWrite{
		Owner:   owner,
		Repo:    remote.RepositoryName,
		Path:    content.UserPath,
		Message: seedMessage,
		Content: content.UserSeed,
	})
	if err != nil {
		return Result{}, errors.RemoteHost("seed user data", err)
	}

	meta, err = r.repo.SearchRepository(ctx, owner, remote.RepositoryName)
	if err != nil {
		return Result{}, errors.RemoteHost("find repository", err)
	}
	if meta == nil {
		return Result{}, errors.InvalidResponse("bootstrap", "created repository is missing")
	}
	if meta.Version == "" {
		return Result{}, errors.InvalidResponse("bootstrap", "seeded repository has no commits")
	}
	return Result{Metadata: *meta, Created: true}, nil
}

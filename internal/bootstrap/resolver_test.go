package bootstrap

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/temportalflux/wishlist/internal/content"
	"github.com/temportalflux/wishlist/internal/errors"
	"github.com/temportalflux/wishlist/internal/remote"
	"github.com/temportalflux/wishlist/internal/remote/memory"
	"github.com/temportalflux/wishlist/internal/status"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newResolver(repo remote.Repository) (*Resolver, *status.Reporter) {
	reporter := status.NewReporter(zap.NewNop())
	return NewResolver(repo, reporter, zap.NewNop()), reporter
}

func TestResolveCreates(t *testing.T) {
	ctx := context.Background()
	host := memory.New("octo")
	resolver, reporter := newResolver(host)

	result, err := resolver.Resolve(ctx, "octo")
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, "octo", result.Metadata.Owner)
	assert.Equal(t, "c1", result.Metadata.Version)
	assert.NotEmpty(t, result.Metadata.TreeID)
	assert.False(t, reporter.IsActive())

	body, ok := host.File("octo", remote.RepositoryName, content.UserPath)
	require.True(t, ok)
	assert.Equal(t, content.UserSeed, body)
	assert.Equal(t, []string{"Initialize user data"}, host.Messages("octo", remote.RepositoryName))
	assert.Equal(t, []string{remote.RepositoryTopic}, host.Topics("octo", remote.RepositoryName))

	again, err := resolver.Resolve(ctx, "octo")
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, result.Metadata, again.Metadata)
	assert.Equal(t, 1, host.Calls("CreateRepository"))
}

func TestResolveSeedsEmptyRepository(t *testing.T) {
	ctx := context.Background()
	host := memory.New("octo")
	_, err := host.CreateRepository(ctx, remote.RepositoryName, false)
	require.NoError(t, err)

	resolver, _ := newResolver(host)
	result, err := resolver.Resolve(ctx, "octo")
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, 1, host.Calls("CreateRepository"))

	_, ok := host.File("octo", remote.RepositoryName, content.UserPath)
	assert.True(t, ok)
}

func TestResolveFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("SearchFails", func(t *testing.T) {
		host := memory.New("octo")
		host.FailNext("SearchRepository", stderrors.New("offline"))

		resolver, reporter := newResolver(host)
		_, err := resolver.Resolve(ctx, "octo")
		assert.True(t, errors.Is(err, errors.ErrorTypeRemoteHost))
		assert.False(t, reporter.IsActive())
	})

	t.Run("SeedFails", func(t *testing.T) {
		host := memory.New("octo")
		host.FailNext("CreateOrUpdateFile", stderrors.New("offline"))

		resolver, reporter := newResolver(host)
		_, err := resolver.Resolve(ctx, "octo")
		assert.True(t, errors.Is(err, errors.ErrorTypeRemoteHost))
		assert.False(t, reporter.IsActive())
	})

	t.Run("MissingAfterCreate", func(t *testing.T) {
		resolver, _ := newResolver(&vanishingRepo{Host: memory.New("octo")})
		_, err := resolver.Resolve(ctx, "octo")
		assert.True(t, errors.Is(err, errors.ErrorTypeInvalidResponse))
	})
}

// vanishingRepo never finds the repository, even after creating it.
type vanishingRepo struct {
	*memory.Host
}

func (v *vanishingRepo) SearchRepository(ctx context.Context, owner, name string) (*remote.RepositoryMetadata, error) {
	return nil, nil
}

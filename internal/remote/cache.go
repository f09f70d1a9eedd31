package remote

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedRepository memoizes file content by commit. Content at a given
// version never changes, so entries are only evicted for size.
type CachedRepository struct {
	Repository
	cache *lru.Cache[string, string]
}

func NewCachedRepository(repo Repository, size int) (*CachedRepository, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	return &CachedRepository{
		Repository: repo,
		cache:      cache,
	}, nil
}

func contentKey(owner, repo, path, version string) string {
	return fmt.Sprintf("%s/%s/%s@%s", owner, repo, path, version)
}

func (c *CachedRepository) GetFileContent(ctx context.Context, owner, repo, path, version string) (string, error) {
	key := contentKey(owner, repo, path, version)
	if body, ok := c.cache.Get(key); ok {
		return body, nil
	}

	body, err := c.Repository.GetFileContent(ctx, owner, repo, path, version)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, body)
	return body, nil
}

// CreateOrUpdateFile primes the cache with the content just written.
func (c *CachedRepository) CreateOrUpdateFile(ctx context.Context, req FileWrite) (FileCommit, error) {
	commit, err := c.Repository.CreateOrUpdateFile(ctx, req)
	if err != nil {
		return FileCommit{}, err
	}
	c.cache.Add(contentKey(req.Owner, req.Repo, req.Path, commit.Version), req.Content)
	return commit, nil
}

func (c *CachedRepository) Len() int {
	return c.cache.Len()
}

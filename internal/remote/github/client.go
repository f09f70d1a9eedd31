package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"github.com/temportalflux/wishlist/internal/remote"
)

const (
	DefaultBaseURL = "https://api.github.com"
	apiVersion     = "2022-11-28"
	userAgent      = "wishlist-sync"

	mediaTypeJSON = "application/vnd.github+json"
	mediaTypeRaw  = "application/vnd.github.raw+json"
)

type Options struct {
	BaseURL    string
	Token      string
	RetryCount int
}

// Client implements remote.Repository over the GitHub REST API.
type Client struct {
	client *req.Client
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}

	client := req.C().
		SetBaseURL(opts.BaseURL).
		SetUserAgent(userAgent).
		SetCommonBearerAuthToken(opts.Token).
		SetCommonHeader("Accept", mediaTypeJSON).
		SetCommonHeader("X-GitHub-Api-Version", apiVersion).
		SetCommonRetryCount(opts.RetryCount).
		SetCommonRetryBackoffInterval(500*time.Millisecond, 5*time.Second).
		SetCommonErrorResult(&apiError{}).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal)

	return &Client{client: client}
}

// handleAPIError maps a transport error or an error status onto a *remote.Error.
// Error statuses are classified even when the error body could not be decoded.
func handleAPIError(resp *req.Response, requestErr error, op string) error {
	if resp == nil || resp.Response == nil {
		if requestErr == nil {
			requestErr = errors.New("no response")
		}
		return remote.NewError(op, remote.KindNetwork, requestErr)
	}
	if !resp.IsErrorState() {
		if requestErr != nil {
			return remote.NewError(op, remote.KindAPI, fmt.Errorf("decoding response: %w", requestErr))
		}
		return nil
	}

	msg := resp.Status
	if apiErr, ok := resp.ErrorResult().(*apiError); ok && apiErr.Message != "" {
		msg = apiErr.Message
	}
	return &remote.Error{
		Op:         op,
		Kind:       errorKind(resp),
		StatusCode: resp.StatusCode,
		Err:        errors.New(msg),
	}
}

func errorKind(resp *req.Response) remote.ErrorKind {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return remote.KindNotFound
	case http.StatusTooManyRequests:
		return remote.KindRateLimited
	case http.StatusForbidden:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return remote.KindRateLimited
		}
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return remote.KindConflict
	}
	return remote.KindAPI
}

func (c *Client) Viewer(ctx context.Context) (string, error) {
	var viewer account
	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&viewer).
		Get("/user")
	if err := handleAPIError(resp, err, "viewer"); err != nil {
		return "", err
	}
	if viewer.Login == "" {
		return "", remote.NewError("viewer", remote.KindAPI, fmt.Errorf("response has no login"))
	}
	return viewer.Login, nil
}

func (c *Client) CreateRepository(ctx context.Context, name string, private bool) (string, error) {
	var repo repositoryResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&createRepositoryRequest{
			Name:        name,
			Description: "Wishlist data",
			Private:     private,
		}).
		SetSuccessResult(&repo).
		Post("/user/repos")
	if err := handleAPIError(resp, err, "create repository"); err != nil {
		return "", err
	}
	return repo.Owner.Login, nil
}

func (c *Client) SetTopics(ctx context.Context, owner, repo string, topics []string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"owner": owner, "repo": repo}).
		SetBody(&topicsRequest{Names: topics}).
		Put("/repos/{owner}/{repo}/topics")
	return handleAPIError(resp, err, "set topics")
}

// SearchRepository reads the repository and the head of its default branch.
// A repository without commits has no default branch head and is returned
// with an empty Version.
func (c *Client) SearchRepository(ctx context.Context, owner, name string) (*remote.RepositoryMetadata, error) {
	params := map[string]string{"owner": owner, "repo": name}

	var repo repositoryResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(params).
		SetSuccessResult(&repo).
		Get("/repos/{owner}/{repo}")
	if err := handleAPIError(resp, err, "search repository"); err != nil {
		if remote.IsKind(err, remote.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}

	meta := &remote.RepositoryMetadata{Owner: repo.Owner.Login, Name: repo.Name}
	if repo.DefaultBranch == "" {
		return meta, nil
	}

	var branch branchResponse
	resp, err = c.client.R().
		SetContext(ctx).
		SetPathParams(params).
		SetPathParam("branch", repo.DefaultBranch).
		SetSuccessResult(&branch).
		Get("/repos/{owner}/{repo}/branches/{branch}")
	if err := handleAPIError(resp, err, "search repository"); err != nil {
		if remote.IsKind(err, remote.KindNotFound) {
			return meta, nil
		}
		return nil, err
	}

	meta.Version = branch.Commit.SHA
	meta.TreeID = branch.Commit.Commit.Tree.SHA
	return meta, nil
}

func (c *Client) GetTree(ctx context.Context, owner, repo, treeID string) ([]remote.TreeEntry, error) {
	var tree treeResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"owner": owner, "repo": repo, "tree": treeID}).
		SetSuccessResult(&tree).
		Get("/repos/{owner}/{repo}/git/trees/{tree}")
	if err := handleAPIError(resp, err, "get tree"); err != nil {
		return nil, err
	}

	entries := make([]remote.TreeEntry, 0, len(tree.Tree))
	for _, e := range tree.Tree {
		entries = append(entries, remote.TreeEntry{
			Path:   e.Path,
			FileID: e.SHA,
			IsDir:  e.Type == "tree",
		})
	}
	return entries, nil
}

func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, version string) (string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", mediaTypeRaw).
		SetPathParams(map[string]string{"owner": owner, "repo": repo}).
		SetPathParam("path", path).
		SetQueryParam("ref", version).
		Get("/repos/{owner}/{repo}/contents/{path}")
	if err := handleAPIError(resp, err, "get file content"); err != nil {
		return "", err
	}
	return resp.String(), nil
}

func (c *Client) CreateOrUpdateFile(ctx context.Context, w remote.FileWrite) (remote.FileCommit, error) {
	var result contentCommitResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"owner": w.Owner, "repo": w.Repo, "path": w.Path}).
		SetBody(&putContentRequest{
			Message: w.Message,
			Content: base64.StdEncoding.EncodeToString([]byte(w.Content)),
			SHA:     w.FileID,
		}).
		SetSuccessResult(&result).
		Put("/repos/{owner}/{repo}/contents/{path}")
	if err := handleAPIError(resp, err, "create or update file"); err != nil {
		return remote.FileCommit{}, err
	}
	if result.Content == nil || result.Commit.SHA == "" {
		return remote.FileCommit{}, remote.NewError("create or update file", remote.KindAPI, fmt.Errorf("response has no commit"))
	}
	return remote.FileCommit{FileID: result.Content.SHA, Version: result.Commit.SHA}, nil
}

func (c *Client) DeleteFile(ctx context.Context, d remote.FileDelete) (string, error) {
	var result contentCommitResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"owner": d.Owner, "repo": d.Repo, "path": d.Path}).
		SetBody(&deleteContentRequest{Message: d.Message, SHA: d.FileID}).
		SetSuccessResult(&result).
		Delete("/repos/{owner}/{repo}/contents/{path}")
	if err := handleAPIError(resp, err, "delete file"); err != nil {
		return "", err
	}
	if result.Commit.SHA == "" {
		return "", remote.NewError("delete file", remote.KindAPI, fmt.Errorf("response has no commit"))
	}
	return result.Commit.SHA, nil
}

func (c *Client) Compare(ctx context.Context, owner, repo, base, head string) ([]remote.ChangedFile, error) {
	var cmp compareResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"owner": owner, "repo": repo, "base": base, "head": head}).
		SetSuccessResult(&cmp).
		Get("/repos/{owner}/{repo}/compare/{base}...{head}")
	if err := handleAPIError(resp, err, "compare"); err != nil {
		return nil, err
	}

	changes := make([]remote.ChangedFile, 0, len(cmp.Files))
	for _, f := range cmp.Files {
		changes = append(changes, remote.ChangedFile{
			Path:         f.Filename,
			FileID:       f.SHA,
			Status:       remote.ChangeStatus(f.Status),
			PreviousPath: f.PreviousFilename,
		})
	}
	return changes, nil
}

var _ remote.Repository = (*Client)(nil)

// internal/remote/types.go
package remote

import (
	"context"
	"errors"
	"fmt"
)

const (
	// RepositoryName is the repository that holds a user's wishlist data.
	RepositoryName = "wishlist-app-data"
	// RepositoryTopic tags the data repository so it can be discovered.
	RepositoryTopic = "wishlist-app-data"
)

// RepositoryMetadata describes the head of a data repository.
type RepositoryMetadata struct {
	Owner   string `json:"owner"`
	Name    string `json:"name"`
	Version string `json:"version"` // head commit, empty when the repository has no commits
	TreeID  string `json:"tree_id"`
}

type TreeEntry struct {
	Path   string `json:"path"`
	FileID string `json:"file_id"`
	IsDir  bool   `json:"is_dir"`
}

type ChangeStatus string

const (
	StatusAdded     ChangeStatus = "added"
	StatusModified  ChangeStatus = "modified"
	StatusRenamed   ChangeStatus = "renamed"
	StatusCopied    ChangeStatus = "copied"
	StatusChanged   ChangeStatus = "changed"
	StatusRemoved   ChangeStatus = "removed"
	StatusUnchanged ChangeStatus = "unchanged"
)

// ChangedFile is one entry of a comparison between two commits.
type ChangedFile struct {
	Path         string       `json:"path"`
	FileID       string       `json:"file_id"`
	Status       ChangeStatus `json:"status"`
	PreviousPath string       `json:"previous_path,omitempty"`
}

// HasContent reports whether the file exists at the head of the comparison
// with content that may differ from the base.
func (s ChangeStatus) HasContent() bool {
	switch s {
	case StatusAdded, StatusModified, StatusRenamed, StatusCopied, StatusChanged:
		return true
	}
	return false
}

type FileWrite struct {
	Owner   string
	Repo    string
	Path    string
	Message string
	Content string
	// FileID is the current id of the file being replaced, empty when creating.
	FileID string
}

type FileCommit struct {
	FileID  string `json:"file_id"`
	Version string `json:"version"`
}

type FileDelete struct {
	Owner   string
	Repo    string
	Path    string
	Message string
	FileID  string
}

// Repository is a commit-addressed file store hosting wishlist data. Every
// write produces a new commit whose version is returned.
type Repository interface {
	// Viewer returns the login the credentials belong to.
	Viewer(ctx context.Context) (string, error)
	// CreateRepository creates a repository owned by the viewer and returns the owner.
	CreateRepository(ctx context.Context, name string, private bool) (string, error)
	SetTopics(ctx context.Context, owner, repo string, topics []string) error
	// SearchRepository returns nil metadata and no error when the repository does not exist.
	SearchRepository(ctx context.Context, owner, name string) (*RepositoryMetadata, error)
	// GetTree lists the top level of a tree.
	GetTree(ctx context.Context, owner, repo, treeID string) ([]TreeEntry, error)
	GetFileContent(ctx context.Context, owner, repo, path, version string) (string, error)
	CreateOrUpdateFile(ctx context.Context, req FileWrite) (FileCommit, error)
	DeleteFile(ctx context.Context, req FileDelete) (string, error)
	Compare(ctx context.Context, owner, repo, base, head string) ([]ChangedFile, error)
}

type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindNotFound    ErrorKind = "not_found"
	KindRateLimited ErrorKind = "rate_limited"
	KindConflict    ErrorKind = "conflict"
	KindAPI         ErrorKind = "api"
)

// Error is returned by every Repository implementation.
type Error struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

package memory

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/temportalflux/wishlist/internal/remote"
)

type file struct {
	id      string
	content string
}

type commit struct {
	version string
	message string
	files   map[string]file
}

func (c *commit) treeID() string {
	return "tree-" + c.version
}

type repository struct {
	owner   string
	name    string
	private bool
	topics  []string
	commits []*commit
}

func (r *repository) head() *commit {
	if len(r.commits) == 0 {
		return nil
	}
	return r.commits[len(r.commits)-1]
}

func (r *repository) find(version string) *commit {
	for _, c := range r.commits {
		if c.version == version {
			return c
		}
	}
	return nil
}

// Host is an in-memory commit-addressed repository host. Versions are
// assigned sequentially across the host as c1, c2, and so on. It is safe for
// concurrent use.
type Host struct {
	viewer   string
	repos    map[string]*repository
	seq      int
	failures map[string]error
	calls    map[string]int
	mu       sync.Mutex
}

func New(viewer string) *Host {
	return &Host{
		viewer:   viewer,
		repos:    make(map[string]*repository),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func repoKey(owner, name string) string {
	return owner + "/" + name
}

// FileID derives a file id from content, the way a content-addressed host does.
func FileID(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// FailNext makes the next call to op fail with err.
func (h *Host) FailNext(op string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[op] = err
}

// Calls returns how many times op has been invoked.
func (h *Host) Calls(op string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[op]
}

// enter records the call and returns any injected failure. Callers hold mu.
func (h *Host) enter(ctx context.Context, op string) error {
	h.calls[op]++
	if err := ctx.Err(); err != nil {
		return remote.NewError(op, remote.KindNetwork, err)
	}
	if err, ok := h.failures[op]; ok {
		delete(h.failures, op)
		return remote.NewError(op, remote.KindNetwork, err)
	}
	return nil
}

func (h *Host) repo(op, owner, name string) (*repository, error) {
	r, ok := h.repos[repoKey(owner, name)]
	if !ok {
		return nil, remote.NewError(op, remote.KindNotFound, fmt.Errorf("repository %s/%s", owner, name))
	}
	return r, nil
}

// commitLocked appends a commit built from the head snapshot. Callers hold mu.
func (h *Host) commitLocked(r *repository, message string, writes map[string]string, deletes []string) *commit {
	files := make(map[string]file)
	if head := r.head(); head != nil {
		for path, f := range head.files {
			files[path] = f
		}
	}
	for path, body := range writes {
		files[path] = file{id: FileID(body), content: body}
	}
	for _, path := range deletes {
		delete(files, path)
	}

	h.seq++
	c := &commit{
		version: fmt.Sprintf("c%d", h.seq),
		message: message,
		files:   files,
	}
	r.commits = append(r.commits, c)
	return c
}

func (h *Host) Viewer(ctx context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter(ctx, "Viewer"); err != nil {
		return "", err
	}
	return h.viewer, nil
}

func (h *Host) CreateRepository(ctx context.Context, name string, private bool) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter(ctx, "CreateRepository"); err != nil {
		return "", err
	}

	key := repoKey(h.viewer, name)
	if _, exists := h.repos[key]; exists {
		return "", remote.NewError("CreateRepository", remote.KindConflict, fmt.Errorf("repository %s already exists", key))
	}
	h.repos[key] = &repository{owner: h.viewer, name: name, private: private}
	return h.viewer, nil
}

func (h *Host) SetTopics(ctx context.Context, owner, repo string, topics []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter(ctx, "SetTopics"); err != nil {
		return err
	}

	r, err := h.repo("SetTopics", owner, repo)
	if err != nil {
		return err
	}
	r.topics = append([]string(nil), topics...)
	return nil
}

func (h *Host) SearchRepository(ctx context.Context, owner, name string) (*remote.RepositoryMetadata, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter(ctx, "SearchRepository"); err != nil {
		return nil, err
	}

	r, ok := h.repos[repoKey(owner, name)]
	if !ok {
		return nil, nil
	}

	meta := &remote.RepositoryMetadata{Owner: r.owner, Name: r.name}
	if head := r.head(); head != nil {
		meta.Version = head.version
		meta.TreeID = head.treeID()
	}
	return meta, nil
}

func (h *Host) GetTree(ctx context.Context, owner, repo, treeID string) ([]remote.TreeEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter(ctx, "GetTree"); err != nil {
		return nil, err
	}

	r, err := h.repo("GetTree", owner, repo)
	if err != nil {
		return nil, err
	}

	var snapshot *commit
	for _, c := range r.commits {
		if c.treeID() == treeID {
			snapshot = c
			break
		}
	}
	if snapshot == nil {
		return nil, remote.NewError("GetTree", remote.KindNotFound, fmt.Errorf("tree %s", treeID))
	}

	dirs := make(map[string]bool)
	var entries []remote.TreeEntry
	for path, f := range snapshot.files {
		if dir, _, nested := strings.Cut(path, "/"); nested {
			if !dirs[dir] {
				dirs[dir] = true
				entries = append(entries, remote.TreeEntry{Path: dir, IsDir: true})
			}
			continue
		}
		entries = append(entries, remote.TreeEntry{Path: path, FileID: f.id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (h *Host) GetFileContent(ctx context.Context, owner, repo, path, version string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter(ctx, "GetFileContent"); err != nil {
		return "", err
	}

	r, err := h.repo("GetFileContent", owner, repo)
	if err != nil {
		return "", err
	}
	c := r.find(version)
	if c == nil {
		return "", remote.NewError("GetFileContent", remote.KindNotFound, fmt.Errorf("commit %s", version))
	}
	f, ok := c.files[path]
	if !ok {
		return "", remote.NewError("GetFileContent", remote.KindNotFound, fmt.Errorf("%s at %s", path, version))
	}
	return f.content, nil
}

func (h *Host) CreateOrUpdateFile(ctx context.Context, req remote.FileWrite) (remote.FileCommit, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter(ctx, "CreateOrUpdateFile"); err != nil {
		return remote.FileCommit{}, err
	}

	r, err := h.repo("CreateOrUpdateFile", req.Owner, req.Repo)
	if err != nil {
		return remote.FileCommit{}, err
	}

	var existing file
	var exists bool
	if head := r.head(); head != nil {
		existing, exists = head.files[req.Path]
	}
	if exists && existing.id != req.FileID {
		return remote.FileCommit{}, remote.NewError("CreateOrUpdateFile", remote.KindConflict,
			fmt.Errorf("%s is at %s, not %q", req.Path, existing.id, req.FileID))
	}
	if !exists && req.FileID != "" {
		return remote.FileCommit{}, remote.NewError("CreateOrUpdateFile", remote.KindConflict,
			fmt.Errorf("%s does not exist", req.Path))
	}

	c := h.commitLocked(r, req.Message, map[string]string{req.Path: req.Content}, nil)
	return remote.FileCommit{FileID: c.files[req.Path].id, Version: c.version}, nil
}

func (h *Host) DeleteFile(ctx context.Context, req remote.FileDelete) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter(ctx, "DeleteFile"); err != nil {
		return "", err
	}

	r, err := h.repo("DeleteFile", req.Owner, req.Repo)
	if err != nil {
		return "", err
	}
	head := r.head()
	if head == nil {
		return "", remote.NewError("DeleteFile", remote.KindNotFound, fmt.Errorf("%s", req.Path))
	}
	existing, ok := head.files[req.Path]
	if !ok {
		return "", remote.NewError("DeleteFile", remote.KindNotFound, fmt.Errorf("%s", req.Path))
	}
	if existing.id != req.FileID {
		return "", remote.NewError("DeleteFile", remote.KindConflict,
			fmt.Errorf("%s is at %s, not %q", req.Path, existing.id, req.FileID))
	}

	c := h.commitLocked(r, req.Message, nil, []string{req.Path})
	return c.version, nil
}

func (h *Host) Compare(ctx context.Context, owner, repo, base, head string) ([]remote.ChangedFile, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.enter(ctx, "Compare"); err != nil {
		return nil, err
	}

	r, err := h.repo("Compare", owner, repo)
	if err != nil {
		return nil, err
	}
	from, to := r.find(base), r.find(head)
	if from == nil || to == nil {
		return nil, remote.NewError("Compare", remote.KindNotFound, fmt.Errorf("%s...%s", base, head))
	}

	var added, removed []remote.ChangedFile
	var changes []remote.ChangedFile
	for path, f := range to.files {
		old, ok := from.files[path]
		switch {
		case !ok:
			added = append(added, remote.ChangedFile{Path: path, FileID: f.id, Status: remote.StatusAdded})
		case old.id != f.id:
			changes = append(changes, remote.ChangedFile{Path: path, FileID: f.id, Status: remote.StatusModified})
		}
	}
	for path, f := range from.files {
		if _, ok := to.files[path]; !ok {
			removed = append(removed, remote.ChangedFile{Path: path, FileID: f.id, Status: remote.StatusRemoved})
		}
	}

	// An added file whose content matches a removed one is reported as a rename.
	for i := range added {
		for j := range removed {
			if removed[j].Status == remote.StatusRemoved && removed[j].FileID == added[i].FileID {
				added[i].Status = remote.StatusRenamed
				added[i].PreviousPath = removed[j].Path
				removed[j].Status = ""
				break
			}
		}
	}

	changes = append(changes, added...)
	for _, rm := range removed {
		if rm.Status != "" {
			changes = append(changes, rm)
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

// Commit writes and deletes files directly, as another client of the host
// would. It returns the new version.
func (h *Host) Commit(owner, repo, message string, writes map[string]string, deletes ...string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.repo("Commit", owner, repo)
	if err != nil {
		return "", err
	}
	return h.commitLocked(r, message, writes, deletes).version, nil
}

// Head returns the latest version of a repository, or "" if it has none.
func (h *Host) Head(owner, repo string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.repos[repoKey(owner, repo)]
	if !ok || r.head() == nil {
		return ""
	}
	return r.head().version
}

// File returns a file's content at the head of a repository.
func (h *Host) File(owner, repo, path string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.repos[repoKey(owner, repo)]
	if !ok || r.head() == nil {
		return "", false
	}
	f, ok := r.head().files[path]
	return f.content, ok
}

// Messages returns the commit messages of a repository, oldest first.
func (h *Host) Messages(owner, repo string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.repos[repoKey(owner, repo)]
	if !ok {
		return nil
	}
	messages := make([]string, len(r.commits))
	for i, c := range r.commits {
		messages[i] = c.message
	}
	return messages
}

// Topics returns the topics set on a repository.
func (h *Host) Topics(owner, repo string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.repos[repoKey(owner, repo)]
	if !ok {
		return nil
	}
	return append([]string(nil), r.topics...)
}

var _ remote.Repository = (*Host)(nil)

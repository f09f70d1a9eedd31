// internal/list/types.go
package list

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/temportalflux/wishlist/internal/content"
)

const slugLength = 10

// ID addresses a list by the login that owns it and its file slug.
type ID struct {
	Owner string `json:"owner"`
	Slug  string `json:"slug"`
}

func (id ID) String() string {
	return id.Owner + "/" + id.Slug
}

func (id ID) Path() string {
	return content.ListPath(id.Slug)
}

func ParseID(s string) (ID, error) {
	owner, slug, ok := strings.Cut(s, "/")
	if !ok {
		return ID{}, fmt.Errorf("list id %q must be owner/slug", s)
	}
	id := ID{Owner: owner, Slug: slug}
	if err := ValidateID(id); err != nil {
		return ID{}, err
	}
	return id, nil
}

// NewSlug returns a random slug. Callers check it against existing lists.
func NewSlug() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:slugLength]
}

// PendingChange is a local edit that has not been pushed yet.
type PendingChange struct {
	Message string `json:"message"`
	Content string `json:"content"`
}

type List struct {
	ID      ID     `json:"id"`
	FileID  string `json:"file_id,omitempty"`
	Content string `json:"content"`

	// LocalVersion is the commit that last wrote this list's content.
	LocalVersion string `json:"local_version"`

	// PendingChanges is appended to by edits and drained oldest first by flushes.
	PendingChanges []PendingChange `json:"pending_changes,omitempty"`
}

func (l *List) GetID() string {
	return l.ID.String()
}

func (l *List) Dirty() bool {
	return len(l.PendingChanges) > 0
}

// Enqueue records an edit and makes it the locally visible content.
func (l *List) Enqueue(message, content string) {
	l.PendingChanges = append(l.PendingChanges, PendingChange{
		Message: message,
		Content: content,
	})
	l.Content = content
}

func (l *List) Head() (PendingChange, bool) {
	if len(l.PendingChanges) == 0 {
		return PendingChange{}, false
	}
	return l.PendingChanges[0], true
}

// Pop removes the oldest pending change.
func (l *List) Pop() {
	if len(l.PendingChanges) == 0 {
		return
	}
	l.PendingChanges = l.PendingChanges[1:]
	if len(l.PendingChanges) == 0 {
		l.PendingChanges = nil
	}
}

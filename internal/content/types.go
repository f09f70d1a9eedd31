package content

import (
	"strconv"
	"strings"
)

const (
	Extension = ".kdl"
	UserPath  = "user" + Extension

	// UserSeed is the document written when a user's data repository is first created.
	UserSeed = "user\n"
)

type KindType int

const (
	Ignored KindType = iota
	UserFile
	ListFile
)

// Kind classifies a repository path. Slug is set only for list files.
type Kind struct {
	Type KindType
	Slug string
}

// ValidSlug reports whether slug can name a list. Hidden names and names
// containing a path separator are rejected.
func ValidSlug(slug string) bool {
	return slug != "" && !strings.HasPrefix(slug, ".") && !strings.ContainsAny(slug, "/\\")
}

// Parse classifies a top-level repository path. Nested paths, files without
// the document extension and names that are not valid slugs are Ignored.
func Parse(path string) Kind {
	if path == "" || strings.Contains(path, "/") {
		return Kind{Type: Ignored}
	}

	name, ok := strings.CutSuffix(path, Extension)
	if !ok || name == "" {
		return Kind{Type: Ignored}
	}
	if path == UserPath {
		return Kind{Type: UserFile}
	}
	if !ValidSlug(name) {
		return Kind{Type: Ignored}
	}
	return Kind{Type: ListFile, Slug: name}
}

func ListPath(slug string) string {
	return slug + Extension
}

// ListSeed is the initial document for a newly created list.
func ListSeed(name string) string {
	return "list " + strconv.Quote(name) + "\n"
}

func (k Kind) String() string {
	switch k.Type {
	case UserFile:
		return "user"
	case ListFile:
		return "list:" + k.Slug
	default:
		return "ignored"
	}
}

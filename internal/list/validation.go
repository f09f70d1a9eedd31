package list

import (
	"strings"

	"github.com/temportalflux/wishlist/internal/content"
	"github.com/temportalflux/wishlist/internal/errors"
)

func ValidateID(id ID) error {
	if id.Owner == "" {
		return errors.ValidationError("list owner is required")
	}
	if id.Slug == "" {
		return errors.ValidationError("list slug is required")
	}
	if !content.ValidSlug(id.Slug) {
		return errors.ValidationError("invalid list slug: " + id.Slug)
	}
	return nil
}

func ValidateChange(message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.ValidationError("change message is required")
	}
	return nil
}

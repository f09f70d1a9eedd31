package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"user.kdl", Kind{Type: UserFile}},
		{"a1b2c3d4e5.kdl", Kind{Type: ListFile, Slug: "a1b2c3d4e5"}},
		{"README.md", Kind{Type: Ignored}},
		{"lists/nested.kdl", Kind{Type: Ignored}},
		{".kdl", Kind{Type: Ignored}},
		{"", Kind{Type: Ignored}},
		{"user.kdl.bak", Kind{Type: Ignored}},
		{".draft.kdl", Kind{Type: Ignored}},
		{`a\b.kdl`, Kind{Type: Ignored}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.path))
		})
	}
}

func TestListPathRoundTrip(t *testing.T) {
	kind := Parse(ListPath("groceries"))
	assert.Equal(t, ListFile, kind.Type)
	assert.Equal(t, "groceries", kind.Slug)
	assert.Equal(t, "list:groceries", kind.String())
}

func TestValidSlug(t *testing.T) {
	assert.True(t, ValidSlug("groceries"))
	assert.True(t, ValidSlug("a.b"))
	assert.False(t, ValidSlug(""))
	assert.False(t, ValidSlug(".draft"))
	assert.False(t, ValidSlug("a/b"))
	assert.False(t, ValidSlug(`a\b`))
}

func TestListSeed(t *testing.T) {
	assert.Equal(t, "list \"Birthday \\\"2026\\\"\"\n", ListSeed(`Birthday "2026"`))
}

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorWrapping(t *testing.T) {
	cause := stderrors.New("disk full")
	err := fmt.Errorf("committing sync: %w", LocalStore("commit", cause))

	assert.True(t, Is(err, ErrorTypeLocalStore))
	assert.False(t, Is(err, ErrorTypeRemoteHost))
	assert.Equal(t, ErrorTypeLocalStore, TypeOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "commit: local store failure: disk full")
}

func TestInvalidResponse(t *testing.T) {
	err := InvalidResponse("bootstrap", "created repository missing from search")

	assert.Equal(t, "bootstrap: created repository missing from search", err.Error())
	assert.Nil(t, err.Unwrap())
	assert.Equal(t, ErrorType(""), TypeOf(stderrors.New("plain")))
}

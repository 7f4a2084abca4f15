package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImmutable(t *testing.T) {
	changed := ErrValidation.Msg("%s is required", "name")
	assert.Equal(t, "invalid input", ErrValidation.Message)
	assert.Equal(t, "name is required", changed.Message)
	assert.True(t, errors.Is(changed, ErrValidation))
	assert.False(t, errors.Is(changed, ErrNotFound))
}

func TestStorageKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Storage(fmt.Errorf("insert entry: %w", cause))

	assert.True(t, errors.Is(err, ErrStorage))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
	assert.Nil(t, Storage(nil))
}

func TestStorageDoesNotRewrapTypedErrors(t *testing.T) {
	err := Storage(ErrDuplicateEntry)
	assert.True(t, errors.Is(err, ErrDuplicateEntry))
	assert.Equal(t, http.StatusConflict, StatusOf(err))
}

func TestStatusOfUnknown(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
	assert.Equal(t, http.StatusNotFound, StatusOf(ErrNotFound.Msg("drop not found")))
}

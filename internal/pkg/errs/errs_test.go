package errs

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewErrorKnownCode(t *testing.T) {
	err := NewError(ErrUnauthorized)

	assert.Equal(t, ErrUnauthorized, err.Code)
	assert.Equal(t, http.StatusUnauthorized, err.Status)
	assert.NotEmpty(t, err.Message)
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	err := NewError(ErrSessionKicked)
	assert.Equal(t, http.StatusOK, err.Status)
}

func TestNewErrorFormatsDetails(t *testing.T) {
	err := NewError(ErrFileSizeTooLarge, 20)
	assert.Equal(t, "File is too large (max 20 MB).", err.Message)
}

func TestNewErrorUnknownCodeFallsBack(t *testing.T) {
	err := NewError(987654)
	assert.Equal(t, ErrUnknown, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}

func TestNewErrorDoesNotMutateTemplate(t *testing.T) {
	_ = NewError(ErrFileSizeTooLarge, 1)
	err := NewError(ErrFileSizeTooLarge, 5)
	assert.Equal(t, "File is too large (max 5 MB).", err.Message)
}

func TestErrorsIsMatchesCode(t *testing.T) {
	var err error = NewError(ErrCanvasIsFull)
	assert.True(t, errors.Is(err, NewError(ErrCanvasIsFull)))
	assert.False(t, errors.Is(err, NewError(ErrUnauthorized)))
}

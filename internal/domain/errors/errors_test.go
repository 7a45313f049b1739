package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermanentMarker(t *testing.T) {
	err := Permanent(ErrInvalidInput)

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, ErrInvalidInput, "wrapped sentinel stays reachable")

	// Marker survives further wrapping.
	wrapped := fmt.Errorf("settle order: %w", err)
	assert.True(t, IsPermanent(wrapped))

	assert.False(t, IsPermanent(ErrInvalidInput))
	assert.False(t, IsPermanent(nil))
	assert.Nil(t, Permanent(nil))
}

func TestAppErrorUnwrap(t *testing.T) {
	appErr := NotFound("order missing")

	assert.Equal(t, 404, appErr.Code)
	assert.ErrorIs(t, appErr, ErrNotFound)

	inner := errors.New("db down")
	assert.ErrorIs(t, InternalError(inner), inner)
}

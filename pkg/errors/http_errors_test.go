package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestFromErrorPassesAppErrorThrough(t *testing.T) {
	appErr := NewBadRequestError("BAD_INPUT", "content is required")
	assert.Same(t, appErr, FromError(appErr))
}

func TestFromErrorMapsMissingRowTo404(t *testing.T) {
	wrapped := fmt.Errorf("loading session: %w", gorm.ErrRecordNotFound)
	appErr := FromError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestFromErrorWrapsUnknownErrors(t *testing.T) {
	appErr := FromError(stderrors.New("connection reset"))
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", appErr.Code)
	assert.Contains(t, appErr.Message, "connection reset")
}

func TestFromErrorNil(t *testing.T) {
	assert.Nil(t, FromError(nil))
}

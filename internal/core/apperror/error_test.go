package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterOverflow_Details(t *testing.T) {
	err := NewCounterOverflow("INV", 100000, 5)

	assert.Equal(t, CodeCounterOverflow, err.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus)
	assert.Equal(t, "INV", err.Details["sequence_code"])
	assert.Equal(t, int64(100000), err.Details["value"])
	assert.Equal(t, 5, err.Details["max_digits"])
}

func TestHelpers_SeeThroughWrapping(t *testing.T) {
	cause := errors.New("40001")
	wrapped := fmt.Errorf("increment: %w", NewConcurrentModification("sequence_counters", "INV").WithCause(cause))

	assert.True(t, IsConcurrentModification(wrapped))
	assert.False(t, IsCounterOverflow(wrapped))
	assert.ErrorIs(t, wrapped, cause)

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)
	assert.Equal(t, http.StatusConflict, GetHTTPStatus(wrapped))
}

func TestGetHTTPStatus_UnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("boom")))
	assert.False(t, IsNotFound(errors.New("boom")))
}

func TestError_Message(t *testing.T) {
	err := NewTimeout("counter increment").WithCause(errors.New("lock timeout"))
	assert.Equal(t, "TIMEOUT_ERROR: counter increment timed out (caused by: lock timeout)", err.Error())
	assert.True(t, IsTimeout(err))

	nf := NewNotFound("counter definition", "JE")
	assert.Equal(t, "NOT_FOUND: counter definition not found", nf.Error())
	assert.True(t, IsNotFound(nf))
}

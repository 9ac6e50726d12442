package contextutils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := &AppError{
		Code:     ErrorCodeInvalidInput,
		Severity: SeverityWarn,
		Message:  "Invalid input",
	}
	assert.Equal(t, "INVALID_INPUT: Invalid input", err.Error())

	err.Details = "similarity out of range"
	assert.Equal(t, "INVALID_INPUT: Invalid input - similarity out of range", err.Error())
}

func TestAppError_Is(t *testing.T) {
	wrapped := WrapError(ErrPhraseNotFound, "selecting practice entry")
	assert.True(t, errors.Is(wrapped, ErrPhraseNotFound))
	assert.False(t, errors.Is(wrapped, ErrSessionNotFound))
}

func TestWrapError(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.NoError(t, WrapError(nil, "context"))
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		wrapped := WrapError(errors.New("boom"), "loading card")
		var appErr *AppError
		require.True(t, errors.As(wrapped, &appErr))
		assert.Equal(t, ErrorCodeInternalError, appErr.Code)
		assert.Equal(t, "loading card", appErr.Message)
		assert.Equal(t, "boom", appErr.Details)
	})

	t.Run("app error keeps its code", func(t *testing.T) {
		wrapped := WrapError(ErrNoPhrasesAvailable, "starting session")
		var appErr *AppError
		require.True(t, errors.As(wrapped, &appErr))
		assert.Equal(t, ErrorCodeNoPhrasesAvailable, appErr.Code)
	})
}

func TestWrapErrorf_WithWrapVerb(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := WrapErrorf(cause, "flushing ledger: %w", cause)
	var appErr *AppError
	require.True(t, errors.As(wrapped, &appErr))
	assert.Contains(t, appErr.Message, "flushing ledger")
	assert.Equal(t, "disk full", appErr.Details)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrServiceUnavailable))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.False(t, IsRetryable(ErrPhraseNotFound))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestToJSON(t *testing.T) {
	payload := ErrInvalidCredentials.ToJSON()
	assert.Equal(t, "INVALID_CREDENTIALS", payload["code"])
	assert.Equal(t, false, payload["retryable"])
	assert.NotContains(t, payload, "details")
}

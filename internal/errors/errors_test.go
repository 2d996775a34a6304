package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("connection refused")

	pe := New(ErrCodeStoreUnavailable, "chromadb unreachable", originalErr)

	require.NotNil(t, pe)
	assert.Equal(t, originalErr, errors.Unwrap(pe))
	assert.True(t, errors.Is(pe, originalErr))
}

func TestPipelineError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeMissingAPIKey,
			message:  "OPENAI_API_KEY is not set",
			expected: "[ERR_101_MISSING_API_KEY] OPENAI_API_KEY is not set",
		},
		{
			name:     "embed error",
			code:     ErrCodeEmbedRateLimited,
			message:  "rate limited",
			expected: "[ERR_302_EMBED_RATE_LIMITED] rate limited",
		},
		{
			name:     "store error",
			code:     ErrCodeDimensionMismatch,
			message:  "collection has dimension 768, embedder produces 1536",
			expected: "[ERR_403_DIMENSION_MISMATCH] collection has dimension 768, embedder produces 1536",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, pe.Error())
		})
	}
}

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
	}{
		{ErrCodeMissingAPIKey, CategoryConfig},
		{ErrCodeRootNotFound, CategoryConfig},
		{ErrCodeFileUnreadable, CategoryLoad},
		{ErrCodeFileTooLarge, CategoryLoad},
		{ErrCodeEmbedTimeout, CategoryEmbed},
		{ErrCodeEmbedAuth, CategoryEmbed},
		{ErrCodeStoreUnavailable, CategoryStore},
		{ErrCodeDimensionMismatch, CategoryStore},
		{ErrCodeInternal, CategoryInternal},
		{ErrCodeRunLocked, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			pe := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, pe.Category)
		})
	}
}

func TestNew_DerivesSeverityFromCode(t *testing.T) {
	// Config problems abort the run before any network spend.
	assert.Equal(t, SeverityFatal, New(ErrCodeMissingAPIKey, "m", nil).Severity)
	assert.Equal(t, SeverityFatal, New(ErrCodeRootNotFound, "m", nil).Severity)

	// Per-file load failures only warn.
	assert.Equal(t, SeverityWarning, New(ErrCodeFileUnreadable, "m", nil).Severity)

	// Transient service conditions warn, permanent service failures error.
	assert.Equal(t, SeverityWarning, New(ErrCodeEmbedRateLimited, "m", nil).Severity)
	assert.Equal(t, SeverityError, New(ErrCodeEmbedAuth, "m", nil).Severity)
	assert.Equal(t, SeverityError, New(ErrCodeDimensionMismatch, "m", nil).Severity)
}

func TestNew_DerivesRetryableFromCode(t *testing.T) {
	retryable := []string{
		ErrCodeEmbedTimeout,
		ErrCodeEmbedRateLimited,
		ErrCodeEmbedService,
		ErrCodeStoreUnavailable,
		ErrCodeStoreUpsert,
	}
	permanent := []string{
		ErrCodeMissingAPIKey,
		ErrCodeEmbedAuth,
		ErrCodeEmbedRequest,
		ErrCodeDimensionMismatch,
		ErrCodeInternal,
	}

	for _, code := range retryable {
		assert.True(t, New(code, "m", nil).Retryable, "code %s should be retryable", code)
	}
	for _, code := range permanent {
		assert.False(t, New(code, "m", nil).Retryable, "code %s should be permanent", code)
	}
}

func TestWrap(t *testing.T) {
	t.Run("wraps existing error", func(t *testing.T) {
		cause := errors.New("dial tcp: connection refused")
		pe := Wrap(ErrCodeStoreUnavailable, cause)

		require.NotNil(t, pe)
		assert.Equal(t, cause.Error(), pe.Message)
		assert.Equal(t, cause, pe.Cause)
	})

	t.Run("nil error returns nil", func(t *testing.T) {
		assert.Nil(t, Wrap(ErrCodeInternal, nil))
	})
}

func TestPipelineError_Is_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("run failed: %w", New(ErrCodeRunLocked, "another run holds the lock", nil))

	assert.True(t, errors.Is(err, New(ErrCodeRunLocked, "", nil)))
	assert.False(t, errors.Is(err, New(ErrCodeInterrupted, "", nil)))
}

func TestPipelineError_WithDetail_And_WithSuggestion(t *testing.T) {
	pe := New(ErrCodeFileTooLarge, "skipping big.bin", nil).
		WithDetail("path", "big.bin").
		WithDetail("size", "20971520").
		WithSuggestion("raise max_file_size to index this file")

	assert.Equal(t, "big.bin", pe.Details["path"])
	assert.Equal(t, "20971520", pe.Details["size"])
	assert.Equal(t, "raise max_file_size to index this file", pe.Suggestion)
}

func TestHelpers_WalkWrappedChain(t *testing.T) {
	inner := New(ErrCodeEmbedAuth, "invalid api key", nil)
	wrapped := fmt.Errorf("batch 3: %w", inner)

	assert.Equal(t, ErrCodeEmbedAuth, GetCode(wrapped))
	assert.Equal(t, CategoryEmbed, GetCategory(wrapped))
	assert.False(t, IsRetryable(wrapped))
	assert.False(t, IsFatal(wrapped))

	fatal := fmt.Errorf("startup: %w", New(ErrCodeMissingAPIKey, "no key", nil))
	assert.True(t, IsFatal(fatal))
}

func TestHelpers_PlainErrors(t *testing.T) {
	plain := errors.New("something broke")

	assert.False(t, IsRetryable(plain))
	assert.False(t, IsFatal(plain))
	assert.Empty(t, GetCode(plain))
	assert.Empty(t, GetCategory(plain))
}

func TestLoadSkip_RecordsPath(t *testing.T) {
	pe := LoadSkip(ErrCodeFileNotText, "img/logo.png", nil)

	assert.Equal(t, ErrCodeFileNotText, pe.Code)
	assert.Contains(t, pe.Message, "img/logo.png")
	assert.Equal(t, "img/logo.png", pe.Details["path"])
	assert.Equal(t, SeverityWarning, pe.Severity)
}

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRAGError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("connection refused")

	// When: wrapping it as an embedding failure
	ragErr := Embedding("embed query", originalErr)

	// Then: unwrapping returns the original error
	require.NotNil(t, ragErr)
	assert.Equal(t, originalErr, errors.Unwrap(ragErr))
	assert.True(t, errors.Is(ragErr, originalErr))
}

func TestRAGError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *RAGError
		expected string
	}{
		{
			name:     "empty corpus",
			err:      New(ErrCodeEmptyCorpus, "no text extracted", nil),
			expected: "[ERR_406_EMPTY_CORPUS] no text extracted",
		},
		{
			name:     "malformed query",
			err:      MalformedQuery("k must be greater than 0"),
			expected: "[ERR_403_INVALID_QUERY] k must be greater than 0",
		},
		{
			name:     "index unavailable default message",
			err:      IndexUnavailable("", nil),
			expected: "[ERR_205_INDEX_UNAVAILABLE] vector index is unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestRAGError_Is_MatchesByCode(t *testing.T) {
	// Given: two empty-corpus errors with different messages
	err1 := EmptyCorpus("batch A", nil)
	err2 := EmptyCorpus("batch B", nil)

	// Then: they match by code
	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, Embedding("", nil)))
}

func TestRAGError_Is_ThroughFmtWrap(t *testing.T) {
	// Given: a RAGError wrapped with fmt.Errorf
	wrapped := fmt.Errorf("ingest: %w", IndexUnavailable("load failed", nil))

	// Then: code helpers see through the wrap
	assert.True(t, errors.Is(wrapped, IndexUnavailable("", nil)))
	assert.Equal(t, ErrCodeIndexUnavailable, GetCode(wrapped))
	assert.True(t, IsFatal(wrapped))
}

func TestRAGError_WithDetail_AddsContext(t *testing.T) {
	err := Embedding("chunk failed", nil).
		WithDetail("source", "invoice.pdf").
		WithDetail("position", "3")

	assert.Equal(t, "invoice.pdf", err.Details["source"])
	assert.Equal(t, "3", err.Details["position"])
}

func TestRAGError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeFileNotFound, CategoryIO},
		{ErrCodeIndexUnavailable, CategoryIO},
		{ErrCodeNetworkUnavailable, CategoryNetwork},
		{ErrCodeInvalidQuery, CategoryValidation},
		{ErrCodeEmptyCorpus, CategoryValidation},
		{ErrCodeEmbeddingFailed, CategoryInternal},
		{"short", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestRAGError_SeverityFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantSeverity Severity
	}{
		{ErrCodeIndexUnavailable, SeverityFatal},
		{ErrCodeDiskFull, SeverityFatal},
		{ErrCodeEmptyCorpus, SeverityError},
		{ErrCodeEmbeddingFailed, SeverityError},
		{ErrCodeNetworkUnavailable, SeverityWarning},
		{ErrCodeIndexLocked, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantSeverity, err.Severity)
		})
	}
}

func TestIsRetryable_ChecksRetryableFlag(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"network unavailable", New(ErrCodeNetworkUnavailable, "down", nil), true},
		{"empty corpus", EmptyCorpus("", nil), false},
		{"standard error", errors.New("standard error"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestHasCode(t *testing.T) {
	assert.True(t, HasCode(MalformedQuery("bad"), ErrCodeInvalidQuery))
	assert.False(t, HasCode(errors.New("plain"), ErrCodeInvalidQuery))
}

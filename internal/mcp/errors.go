// Package mcp exposes fieldrag to agents over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	ragerrors "github.com/Aman-CERP/fieldrag/internal/errors"
)

// Custom MCP error codes for fieldrag.
const (
	// ErrCodeIndexUnavailable indicates the index is missing or unreadable.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeEmbeddingFailed indicates the embedding provider failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a document does not exist.
	ErrCodeFileNotFound = -32004

	// ErrCodeEmptyCorpus indicates there was no text to index.
	ErrCodeEmptyCorpus = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is a protocol-level error with a JSON-RPC code.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors. Messages carry the
// error's suggestion so the agent can act on it.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var re *ragerrors.RAGError
	if errors.As(err, &re) {
		return mapRAGError(re)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid tool arguments.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

func mapRAGError(re *ragerrors.RAGError) *MCPError {
	message := re.Message
	if re.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", re.Message, re.Suggestion)
	}

	switch re.Code {
	case ragerrors.ErrCodeIndexUnavailable:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	case ragerrors.ErrCodeEmbeddingFailed:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case ragerrors.ErrCodeFileNotFound:
		return &MCPError{Code: ErrCodeFileNotFound, Message: message}
	case ragerrors.ErrCodeEmptyCorpus:
		return &MCPError{Code: ErrCodeEmptyCorpus, Message: message}
	}

	switch re.Category {
	case ragerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case ragerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}

package errors

import (
	stderrors "errors"
	"fmt"
)

// RAGError is the structured error type for fieldrag.
// It carries enough context to log it, map it to a protocol error code,
// and present it to a user without leaking a stack trace.
type RAGError struct {
	// Code is the unique error code (e.g., "ERR_406_EMPTY_CORPUS").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried by the caller.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *RAGError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RAGError) Unwrap() error {
	return e.Cause
}

// Is matches by code so that errors.Is(err, EmptyCorpus("", nil)) works
// regardless of message.
func (e *RAGError) Is(target error) bool {
	if t, ok := target.(*RAGError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *RAGError) WithDetail(key, value string) *RAGError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *RAGError) WithSuggestion(suggestion string) *RAGError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RAGError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RAGError {
	return &RAGError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RAGError from an existing error.
// The error's message becomes the RAGError message.
func Wrap(code string, err error) *RAGError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RAGError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *RAGError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RAGError {
	return New(ErrCodeInternal, message, cause)
}

// EmptyCorpus reports that no text could be extracted from any input document.
// It is a structured failure, not fatal to the host process.
func EmptyCorpus(message string, cause error) *RAGError {
	if message == "" {
		message = "no text could be extracted from the input documents"
	}
	return New(ErrCodeEmptyCorpus, message, cause).
		WithSuggestion("Check that the documents contain a text layer (OCR them first if they are scanned images)")
}

// Embedding reports an embedding provider failure for one chunk or query.
func Embedding(message string, cause error) *RAGError {
	if message == "" {
		message = "embedding provider failed"
	}
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// IndexUnavailable reports a missing or unreadable vector index.
// Searches keep failing with this error until the index is rebuilt.
func IndexUnavailable(message string, cause error) *RAGError {
	if message == "" {
		message = "vector index is unavailable"
	}
	return New(ErrCodeIndexUnavailable, message, cause).
		WithSuggestion("Rebuild the index with 'fieldrag index'")
}

// MalformedQuery reports invalid search parameters.
func MalformedQuery(message string) *RAGError {
	return New(ErrCodeInvalidQuery, message, nil)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var re *RAGError
	if stderrors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var re *RAGError
	if stderrors.As(err, &re) {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a RAGError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var re *RAGError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

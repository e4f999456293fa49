package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code and message,
// so sentinel errors below keep matching after being wrapped with a cause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes for the answering pipeline
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeConfiguration      = "CONFIGURATION_ERROR"
	ErrCodeEmbeddingService   = "EMBEDDING_SERVICE_ERROR"
	ErrCodeIndexUnavailable   = "INDEX_UNAVAILABLE"
	ErrCodeCompressionService = "COMPRESSION_SERVICE_ERROR"
	ErrCodeGenerationService  = "GENERATION_SERVICE_ERROR"
	ErrCodeInternalError      = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyQuery           = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrInvalidRankingRecord = NewDomainError(ErrCodeValidation, "invalid ranking record")
	ErrInvalidRankingFile   = NewDomainError(ErrCodeValidation, "invalid ranking file")
	ErrInvalidMetric        = NewDomainError(ErrCodeValidation, "invalid similarity metric")
)

// Index errors
var (
	ErrIndexNotFound    = NewDomainError(ErrCodeIndexUnavailable, "vector index does not exist")
	ErrIndexUnreachable = NewDomainError(ErrCodeIndexUnavailable, "vector index is unreachable")
)

// Configuration errors
var (
	ErrIndexDimensionMismatch = NewDomainError(ErrCodeConfiguration, "index dimensions do not match embedding dimensions")
	ErrIndexMetricMismatch    = NewDomainError(ErrCodeConfiguration, "index similarity metric does not match configuration")
)

// Stage errors
var (
	ErrEmbeddingFailed   = NewDomainError(ErrCodeEmbeddingService, "embedding request failed")
	ErrCompressionFailed = NewDomainError(ErrCodeCompressionService, "compression request failed")
	ErrGenerationFailed  = NewDomainError(ErrCodeGenerationService, "generation request failed")
	ErrEmptyGeneration   = NewDomainError(ErrCodeGenerationService, "model returned an empty answer")
)

// Capacity errors
var (
	ErrTooManyQueries = NewDomainError(ErrCodeInternalError, "too many queries in flight")
	ErrQueryCanceled  = NewDomainError(ErrCodeInternalError, "query canceled by caller")
)

// Wrap attaches cause to a sentinel DomainError, keeping its code and message.
func Wrap(sentinel *DomainError, cause error) *DomainError {
	return NewDomainErrorWithCause(sentinel.Code, sentinel.Message, cause)
}

// ErrorCode returns the code of the first DomainError in err's chain, or "" if none.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

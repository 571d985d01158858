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
// so a wrapped error still matches its sentinel.
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

// Wrap attaches cause to a sentinel DomainError, keeping its code and message.
func Wrap(sentinel *DomainError, cause error) *DomainError {
	return NewDomainErrorWithCause(sentinel.Code, sentinel.Message, cause)
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"

	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodeExtractionFailed = "EXTRACTION_FAILED"
	ErrCodeEmbeddingFailed  = "EMBEDDING_FAILED"
	ErrCodePersistence      = "PERSISTENCE_ERROR"
	ErrCodeCancelled        = "CANCELLED"
)

// Pipeline errors
var (
	ErrConfiguration     = NewDomainError(ErrCodeConfiguration, "invalid segmentation configuration")
	ErrExtractionFailed  = NewDomainError(ErrCodeExtractionFailed, "fact extraction failed")
	ErrEmbeddingFailed   = NewDomainError(ErrCodeEmbeddingFailed, "embedding generation failed")
	ErrDimensionMismatch = NewDomainError(ErrCodeEmbeddingFailed, "embedding dimensionality mismatch")
	ErrPersistence       = NewDomainError(ErrCodePersistence, "storage write failed")
	ErrInvalidInput      = NewDomainError(ErrCodeValidation, "invalid input")
	ErrCancelled         = NewDomainError(ErrCodeCancelled, "ingestion cancelled")
)

// Validation errors
var (
	ErrInvalidStage              = NewDomainError(ErrCodeValidation, "invalid processing stage")
	ErrInvalidIngestionJobStatus = NewDomainError(ErrCodeValidation, "invalid ingestion job status")
	ErrMissingRequiredField      = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidTransition         = NewDomainError(ErrCodeInvalidOperation, "invalid stage transition")
)

// Not found errors
var (
	ErrDocumentNotFound     = NewDomainError(ErrCodeNotFound, "document not found")
	ErrStatusNotFound       = NewDomainError(ErrCodeNotFound, "processing status not found")
	ErrIngestionJobNotFound = NewDomainError(ErrCodeNotFound, "ingestion job not found")
)

// Concurrency errors
var (
	ErrAlreadyRunning = NewDomainError(ErrCodeConflict, "ingestion already running for document")
	ErrStatusConflict = NewDomainError(ErrCodeConflict, "processing status owned by another run")
	ErrRunNotActive   = NewDomainError(ErrCodeConflict, "no active ingestion run for document")
)

// IsRetryable reports whether a failed run may succeed on another attempt.
// Configuration and input errors are deterministic and are not retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrAlreadyRunning),
		errors.Is(err, ErrCancelled),
		errors.Is(err, ErrDocumentNotFound):
		return false
	}
	return true
}

package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for Lineage errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
	CONFIG_NOT_FOUND         ErrorCode = "CONFIG_NOT_FOUND"
)

// Database error codes
const (
	DB_OPEN_FAILED      ErrorCode = "DB_OPEN_FAILED"
	DB_MIGRATION_FAILED ErrorCode = "DB_MIGRATION_FAILED"
	DB_QUERY_FAILED     ErrorCode = "DB_QUERY_FAILED"
)

// Plan and activity error codes
const (
	PLAN_NOT_FOUND     ErrorCode = "PLAN_NOT_FOUND"
	PLAN_INVALID       ErrorCode = "PLAN_INVALID"
	PLAN_NAME_TAKEN    ErrorCode = "PLAN_NAME_TAKEN"
	ACTIVITY_NOT_FOUND ErrorCode = "ACTIVITY_NOT_FOUND"
	ACTIVITY_UNORDERED ErrorCode = "ACTIVITY_UNORDERED"
)

// Provider and transfer error codes
const (
	PROVIDER_NOT_FOUND ErrorCode = "PROVIDER_NOT_FOUND"
	PROVIDER_FAILED    ErrorCode = "PROVIDER_FAILED"
	TRANSFER_FAILED    ErrorCode = "TRANSFER_FAILED"
)

// LineageError represents a structured error with error code, message, and optional cause.
// It supports error wrapping and retryability hints for error handling logic.
type LineageError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *LineageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
// This enables using errors.Is() and errors.As() with wrapped errors.
func (e *LineageError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is a LineageError with the same Code.
func (e *LineageError) Is(target error) bool {
	var lineageErr *LineageError
	if errors.As(target, &lineageErr) {
		return e.Code == lineageErr.Code
	}
	return false
}

// NewError creates a new non-retryable LineageError with the given code and message.
func NewError(code ErrorCode, message string) *LineageError {
	return &LineageError{
		Code:    code,
		Message: message,
	}
}

// NewRetryableError creates a new retryable LineageError with the given code and message.
// Use this for transient errors that may succeed on retry (e.g. storage timeouts).
// The graph and resolution core never produces retryable errors; retries belong
// to the storage and provider layers.
func NewRetryableError(code ErrorCode, message string) *LineageError {
	return &LineageError{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// WrapError creates a new non-retryable LineageError that wraps an existing error.
// The wrapped error is accessible via Unwrap() for error chain inspection.
func WrapError(code ErrorCode, message string, cause error) *LineageError {
	return &LineageError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

package apperrors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeValidation means the submission or query input is structurally invalid
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeStorage means the durable medium rejected or could not complete an operation
	ErrorTypeStorage ErrorType = "STORAGE"

	// ErrorTypeOutOfRange means a question index outside [1, N] reached the query layer
	ErrorTypeOutOfRange ErrorType = "OUT_OF_RANGE"

	// ErrorTypeUnauthorized indicates unauthorized access
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewStorageError creates a new storage error wrapping the driver error
func NewStorageError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeStorage,
		Message: message,
		Err:     err,
	}
}

// NewOutOfRangeError creates a new out of range error
func NewOutOfRangeError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeOutOfRange,
		Message: message,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or ""
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

func IsValidation(err error) bool { return TypeOf(err) == ErrorTypeValidation }

func IsStorage(err error) bool { return TypeOf(err) == ErrorTypeStorage }

func IsOutOfRange(err error) bool { return TypeOf(err) == ErrorTypeOutOfRange }

package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeOf(t *testing.T) {
	driverErr := errors.New("disk full")

	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{"Validation", NewValidationError("bad"), ErrorTypeValidation},
		{"Storage", NewStorageError("write failed", driverErr), ErrorTypeStorage},
		{"Wrapped storage", fmt.Errorf("insert: %w", NewStorageError("write failed", driverErr)), ErrorTypeStorage},
		{"Out of range", NewOutOfRangeError("q11"), ErrorTypeOutOfRange},
		{"Plain error", driverErr, ""},
		{"Nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TypeOf(tt.err))
		})
	}
}

func TestStorageErrorUnwrap(t *testing.T) {
	driverErr := errors.New("connection refused")
	err := NewStorageError("failed to list feedback", driverErr)

	assert.True(t, errors.Is(err, driverErr))
	assert.True(t, IsStorage(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, "STORAGE: failed to list feedback: connection refused", err.Error())
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError("member_name is required")
	assert.Equal(t, "VALIDATION: member_name is required", err.Error())
	assert.True(t, IsValidation(err))
	assert.False(t, IsOutOfRange(err))
}

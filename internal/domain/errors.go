package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorage indicates that the storage backend failed (connectivity,
	// serialization, constraint violation). Callers may retry; the store does not.
	ErrStorage = errors.New("storage failure")

	// ErrConflict indicates that an optimistic write lost every attempt to a
	// concurrent writer.
	ErrConflict = errors.New("write conflict")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// StorageError wraps a failure reported by a storage backend.
// errors.Is(err, ErrStorage) holds for every StorageError, and the
// driver error stays reachable through errors.As / errors.Is.
type StorageError struct {
	Backend string
	Op      string
	Cause   error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Cause)
}

// Unwrap returns both the storage sentinel and the driver error.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Cause}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, op string, cause error) *StorageError {
	return &StorageError{
		Backend: backend,
		Op:      op,
		Cause:   cause,
	}
}

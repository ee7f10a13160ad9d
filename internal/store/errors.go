package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// Entity-specific not found errors wrap it.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a device with the same hardware id).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrStaleTransition is returned by compare-and-set transitions when the
	// stored status no longer matches the expected one. Another writer won;
	// the caller should re-read and decide.
	ErrStaleTransition = errors.New("stale status transition")

	// Entity-specific "not found" errors

	// ErrTaskNotFound indicates that the requested task does not exist in the store.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrDeviceNotFound indicates that the requested device does not exist in the store.
	ErrDeviceNotFound = fmt.Errorf("%w: device", ErrNotFound)

	// ErrIdentityNotFound indicates that the requested identity does not exist in the store.
	ErrIdentityNotFound = fmt.Errorf("%w: identity", ErrNotFound)

	// ErrPairingTokenNotFound indicates that the requested pairing token does not exist in the store.
	ErrPairingTokenNotFound = fmt.Errorf("%w: pairing token", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrHardwareIDExists indicates that a device with the given hardware id already exists.
	ErrHardwareIDExists = fmt.Errorf("%w: hardware id", ErrDuplicate)

	// ErrExternalJobIDExists indicates that another task already carries the external job id.
	ErrExternalJobIDExists = fmt.Errorf("%w: external job id", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "task", "device")
	Operation string // The operation that failed (e.g., "create", "transition")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

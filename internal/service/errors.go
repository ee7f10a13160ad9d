package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/tryon-api/internal/pairing"
)

// Common service errors - sentinel errors used across service implementations.
// These errors represent common conditions that callers may want to check for with errors.Is().
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped in ServiceError
// 3. Callers use errors.Is/errors.As to check for specific error conditions
// 4. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrForbidden indicates a task belongs to a different device than the one asking.
	// API layer should map this to HTTP 403 Forbidden.
	ErrForbidden = errors.New("resource belongs to another device")

	// ErrTaskNotFound indicates the task does not exist.
	// API layer should map this to HTTP 404 Not Found.
	ErrTaskNotFound = errors.New("task not found")

	// ErrSubmissionUnavailable indicates the render worker could not be reached.
	// The task is left pending and will be swept; the client should create a new one.
	// API layer should map this to HTTP 503 Service Unavailable.
	ErrSubmissionUnavailable = errors.New("render worker unavailable")

	// ErrDeviceNotFound indicates the device is not registered.
	// API layer should map this to HTTP 404 Not Found.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceInactive indicates an operator disabled the device.
	// API layer should map this to HTTP 403 Forbidden.
	ErrDeviceInactive = pairing.ErrDeviceInactive
)

// ServiceError wraps unexpected failures with the service and operation they
// happened in, so logs say where a store or collaborator error surfaced.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s service %s operation failed: %v", e.Service, e.Op, e.Err)
	}
	return fmt.Sprintf("%s service %s operation failed", e.Service, e.Op)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(service, op string, err error) error {
	return &ServiceError{Service: service, Op: op, Err: err}
}

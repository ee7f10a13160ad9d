package worker

import (
	"errors"
	"fmt"
)

// Common errors returned by the worker package
var (
	// ErrUnavailable means the worker could not be reached or answered with a
	// transient failure. The submission may be retried later.
	ErrUnavailable = errors.New("render worker unavailable")

	// ErrRejected means the worker refused the request permanently.
	ErrRejected = errors.New("render worker rejected request")

	// ErrMalformedWebhook is returned when a webhook body cannot be interpreted.
	ErrMalformedWebhook = errors.New("malformed worker webhook")

	// ErrInvalidSignature is returned when a webhook signature does not match.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// RejectedError carries the worker's human-readable rejection reason.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRejected.Error(), e.Reason)
}

// Unwrap lets errors.Is(err, ErrRejected) match.
func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// RejectionReason extracts the worker's reason from err, falling back to the
// error text for rejections that carry no structured reason.
func RejectionReason(err error) string {
	var rejected *RejectedError
	if errors.As(err, &rejected) && rejected.Reason != "" {
		return rejected.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

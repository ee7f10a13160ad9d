package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Identity
var (
	ErrEmptyExternalID     = fmt.Errorf("%w: external identity ID cannot be empty", ErrValidation)
	ErrEmptyIdentityDevice = fmt.Errorf("%w: identity device ID cannot be empty", ErrValidation)
)

// Identity is an end user known to the messaging provider, linked to a device
// through a confirmed pairing. A device accumulates identities over time; the
// most recently linked verified one receives notifications.
type Identity struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id"`
	DeviceID   uuid.UUID `json:"device_id"`
	Verified   bool      `json:"verified"`
	LinkedAt   time.Time `json:"linked_at"`
}

// Validate checks if the Identity has valid data.
func (i *Identity) Validate() error {
	if i.ExternalID == "" {
		return ErrEmptyExternalID
	}
	if i.DeviceID == uuid.Nil {
		return ErrEmptyIdentityDevice
	}
	return nil
}

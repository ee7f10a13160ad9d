package pairing

import (
	"errors"
	"fmt"

	"github.com/phrazzld/tryon-api/internal/domain"
)

// Common errors returned by the Manager
var (
	// ErrTokenNotFound means the token was never issued.
	ErrTokenNotFound = errors.New("pairing token not found")

	// ErrPairingExpired means the token's lifetime elapsed before confirmation.
	ErrPairingExpired = errors.New("pairing token expired")

	// ErrPairingConflict means the token was already consumed by another identity.
	ErrPairingConflict = errors.New("pairing token already used by another identity")

	// ErrDeviceInactive means the device has been disabled by an operator.
	ErrDeviceInactive = errors.New("device is inactive")

	// ErrEmptyExternalID means the confirming identity was blank.
	ErrEmptyExternalID = fmt.Errorf("%w: external identity id cannot be empty", domain.ErrValidation)
)

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PairingStatus is the lifecycle state of a pairing token.
type PairingStatus string

// Possible pairing status values
const (
	PairingStatusActive  PairingStatus = "active"
	PairingStatusUsed    PairingStatus = "used"
	PairingStatusExpired PairingStatus = "expired"
)

// Common validation errors for PairingToken
var (
	ErrEmptyPairingToken    = fmt.Errorf("%w: pairing token cannot be empty", ErrValidation)
	ErrEmptyPairingDevice   = fmt.Errorf("%w: pairing device ID cannot be empty", ErrValidation)
	ErrInvalidPairingStatus = fmt.Errorf("%w: invalid pairing status", ErrValidation)
	ErrPairingExpiryOrder   = fmt.Errorf("%w: pairing token must expire after it is created", ErrValidation)
	ErrUsedPairingNoOwner   = fmt.Errorf("%w: used pairing token must record its identity", ErrValidation)
)

// PairingToken is a single-use scene string that links a device to the
// identity that scans it before ExpiresAt.
type PairingToken struct {
	Token              string        `json:"token"`
	DeviceID           uuid.UUID     `json:"device_id"`
	Status             PairingStatus `json:"status"`
	IdentityExternalID *string       `json:"identity_external_id,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	ExpiresAt          time.Time     `json:"expires_at"`
	UsedAt             *time.Time    `json:"used_at,omitempty"`
}

// NewPairingToken creates an active token for deviceID valid for ttl.
func NewPairingToken(token string, deviceID uuid.UUID, now time.Time, ttl time.Duration) (*PairingToken, error) {
	p := &PairingToken{
		Token:     token,
		DeviceID:  deviceID,
		Status:    PairingStatusActive,
		CreatedAt: now.UTC(),
		ExpiresAt: now.UTC().Add(ttl),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks if the PairingToken has valid data.
func (p *PairingToken) Validate() error {
	if p.Token == "" {
		return ErrEmptyPairingToken
	}
	if p.DeviceID == uuid.Nil {
		return ErrEmptyPairingDevice
	}
	if !p.Status.IsValid() {
		return ErrInvalidPairingStatus
	}
	if !p.ExpiresAt.After(p.CreatedAt) {
		return ErrPairingExpiryOrder
	}
	if p.Status == PairingStatusUsed && (p.IdentityExternalID == nil || p.UsedAt == nil) {
		return ErrUsedPairingNoOwner
	}
	return nil
}

// IsExpiredAt reports whether the token's lifetime has elapsed at now.
// A token is valid strictly before ExpiresAt.
func (p *PairingToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// EffectiveStatus is the status a reader should observe at now: an active
// token whose lifetime has elapsed reads as expired even before the sweep
// has persisted that.
func (p *PairingToken) EffectiveStatus(now time.Time) PairingStatus {
	if p.Status == PairingStatusActive && p.IsExpiredAt(now) {
		return PairingStatusExpired
	}
	return p.Status
}

// IsValid reports whether s is a known pairing status.
func (s PairingStatus) IsValid() bool {
	switch s {
	case PairingStatusActive, PairingStatusUsed, PairingStatusExpired:
		return true
	default:
		return false
	}
}

// CheckPairingTransition validates a pairing status change. Only active
// tokens change state; used and expired are terminal.
func CheckPairingTransition(from, to PairingStatus) error {
	if from == PairingStatusActive && (to == PairingStatusUsed || to == PairingStatusExpired) {
		return nil
	}
	return fmt.Errorf("%w: pairing %s -> %s", ErrInvalidTransition, from, to)
}

package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxHardwareIDLength bounds the kiosk-reported hardware identifier.
const MaxHardwareIDLength = 128

// MaxAffiliateIDLength bounds the operator-assigned affiliate id.
const MaxAffiliateIDLength = 64

// Common validation errors for Device
var (
	ErrEmptyDeviceID      = fmt.Errorf("%w: device ID cannot be empty", ErrValidation)
	ErrEmptyHardwareID    = fmt.Errorf("%w: hardware ID cannot be empty", ErrValidation)
	ErrHardwareIDTooLong  = fmt.Errorf("%w: hardware ID is too long", ErrValidation)
	ErrAffiliateIDTooLong = fmt.Errorf("%w: affiliate ID is too long", ErrValidation)
)

// Device is a kiosk, identified by the hardware id it reports on first contact.
// Devices are never deleted; operators deactivate them instead.
type Device struct {
	ID          uuid.UUID `json:"id"`
	HardwareID  string    `json:"hardware_id"`
	Label       string    `json:"label,omitempty"`
	Active      bool      `json:"active"`
	AffiliateID *string   `json:"affiliate_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewDevice creates an active Device for a hardware id seen for the first time.
func NewDevice(hardwareID, label string) (*Device, error) {
	now := time.Now().UTC()
	d := &Device{
		ID:         uuid.New(),
		HardwareID: strings.TrimSpace(hardwareID),
		Label:      strings.TrimSpace(label),
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks if the Device has valid data.
func (d *Device) Validate() error {
	if d.ID == uuid.Nil {
		return ErrEmptyDeviceID
	}
	if d.HardwareID == "" {
		return ErrEmptyHardwareID
	}
	if len(d.HardwareID) > MaxHardwareIDLength {
		return ErrHardwareIDTooLong
	}
	return ValidateAffiliateID(d.AffiliateID)
}

// ValidateAffiliateID checks an optional affiliate id.
func ValidateAffiliateID(id *string) error {
	if id != nil && len(*id) > MaxAffiliateIDLength {
		return ErrAffiliateIDTooLong
	}
	return nil
}

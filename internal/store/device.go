package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
)

// DeviceStore defines the interface for kiosk device persistence.
// Version: 1.0
type DeviceStore interface {
	// Create saves a new device.
	// Returns ErrHardwareIDExists if the hardware id is already registered.
	Create(ctx context.Context, device *domain.Device) error

	// GetByID retrieves a device by its unique ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Device, error)

	// GetByHardwareID retrieves a device by the hardware id it reported.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByHardwareID(ctx context.Context, hardwareID string) (*domain.Device, error)

	// List returns devices ordered by creation time.
	List(ctx context.Context, limit, offset int) ([]*domain.Device, error)

	// SetActive toggles whether the device may create tasks and pair.
	// Returns ErrDeviceNotFound if the device does not exist.
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Device, error)

	// SetAffiliateID sets or clears (nil) the device's affiliate id.
	// Returns ErrDeviceNotFound if the device does not exist.
	SetAffiliateID(ctx context.Context, id uuid.UUID, affiliateID *string) (*domain.Device, error)
}

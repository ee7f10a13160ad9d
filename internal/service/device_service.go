package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/store"
)

// Device cache defaults.
const (
	DefaultDeviceCacheSize = 1024
	DefaultDeviceCacheTTL  = time.Minute
)

// DeviceService registers kiosks and administers them. Lookups by hardware
// id, which every kiosk request makes, go through an expiring LRU cache that
// is invalidated on every write.
type DeviceService struct {
	devices store.DeviceStore
	cache   *expirable.LRU[string, *domain.Device]
	logger  *slog.Logger
}

// NewDeviceService creates a DeviceService. Non-positive cache settings use
// the defaults.
func NewDeviceService(
	devices store.DeviceStore,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) (*DeviceService, error) {
	if devices == nil {
		return nil, domain.NewValidationError("devices", "cannot be nil", domain.ErrValidation)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultDeviceCacheSize
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultDeviceCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceService{
		devices: devices,
		cache:   expirable.NewLRU[string, *domain.Device](cacheSize, nil, cacheTTL),
		logger:  logger.With(slog.String("component", "device_service")),
	}, nil
}

// Register returns the device with hardwareID, creating it on first contact.
// created reports whether this call created it.
func (s *DeviceService) Register(ctx context.Context, hardwareID, label string) (*domain.Device, bool, error) {
	hardwareID = strings.TrimSpace(hardwareID)
	if hardwareID == "" {
		return nil, false, domain.ErrEmptyHardwareID
	}

	device, err := s.GetByHardwareID(ctx, hardwareID)
	if err == nil {
		return device, false, nil
	}
	if !errors.Is(err, ErrDeviceNotFound) {
		return nil, false, err
	}

	device, err = domain.NewDevice(hardwareID, label)
	if err != nil {
		return nil, false, err
	}
	if err := s.devices.Create(ctx, device); err != nil {
		if errors.Is(err, store.ErrHardwareIDExists) {
			// Another first request from the same kiosk won.
			existing, gerr := s.GetByHardwareID(ctx, hardwareID)
			return existing, false, gerr
		}
		return nil, false, NewServiceError("device", "register", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("device registered",
		"device_id", device.ID, "hardware_id", hardwareID)
	s.remember(device)
	return copyDevice(device), true, nil
}

// Ensure returns the device with hardwareID, registering it if needed.
func (s *DeviceService) Ensure(ctx context.Context, hardwareID string) (*domain.Device, error) {
	device, _, err := s.Register(ctx, hardwareID, "")
	return device, err
}

// GetByHardwareID returns a registered device by the hardware id it reports.
func (s *DeviceService) GetByHardwareID(ctx context.Context, hardwareID string) (*domain.Device, error) {
	if cached, ok := s.cache.Get(hardwareID); ok {
		deviceCacheLookupsTotal.WithLabelValues("hit").Inc()
		return copyDevice(cached), nil
	}
	deviceCacheLookupsTotal.WithLabelValues("miss").Inc()

	device, err := s.devices.GetByHardwareID(ctx, hardwareID)
	if err != nil {
		return nil, s.mapError("get_device", err)
	}
	s.remember(device)
	return copyDevice(device), nil
}

// Get returns a device by id.
func (s *DeviceService) Get(ctx context.Context, id uuid.UUID) (*domain.Device, error) {
	device, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapError("get_device", err)
	}
	return device, nil
}

// List returns devices in registration order.
func (s *DeviceService) List(ctx context.Context, limit, offset int) ([]*domain.Device, error) {
	devices, err := s.devices.List(ctx, limit, offset)
	if err != nil {
		return nil, NewServiceError("device", "list", err)
	}
	return devices, nil
}

// SetActive enables or disables a device.
func (s *DeviceService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Device, error) {
	device, err := s.devices.SetActive(ctx, id, active)
	if err != nil {
		return nil, s.mapError("set_active", err)
	}
	s.cache.Remove(device.HardwareID)
	logger.FromContextOrDefault(ctx, s.logger).Info("device status changed",
		"device_id", id, "active", active)
	return device, nil
}

// SetAffiliateID sets or clears (nil) a device's affiliate id.
func (s *DeviceService) SetAffiliateID(ctx context.Context, id uuid.UUID, affiliateID *string) (*domain.Device, error) {
	if affiliateID != nil {
		trimmed := strings.TrimSpace(*affiliateID)
		if trimmed == "" {
			affiliateID = nil
		} else {
			affiliateID = &trimmed
		}
	}
	if err := domain.ValidateAffiliateID(affiliateID); err != nil {
		return nil, err
	}

	device, err := s.devices.SetAffiliateID(ctx, id, affiliateID)
	if err != nil {
		return nil, s.mapError("set_affiliate", err)
	}
	s.cache.Remove(device.HardwareID)
	return device, nil
}

func (s *DeviceService) remember(device *domain.Device) {
	s.cache.Add(device.HardwareID, copyDevice(device))
}

func (s *DeviceService) mapError(op string, err error) error {
	if errors.Is(err, store.ErrDeviceNotFound) {
		return ErrDeviceNotFound
	}
	return NewServiceError("device", op, err)
}

func copyDevice(d *domain.Device) *domain.Device {
	c := *d
	if d.AffiliateID != nil {
		id := *d.AffiliateID
		c.AffiliateID = &id
	}
	return &c
}

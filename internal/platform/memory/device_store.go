package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/store"
)

// DeviceStore implements store.DeviceStore in memory.
type DeviceStore struct {
	mu         sync.RWMutex
	devices    map[uuid.UUID]*domain.Device
	byHardware map[string]uuid.UUID
}

// NewDeviceStore creates an empty DeviceStore.
func NewDeviceStore() *DeviceStore {
	return &DeviceStore{
		devices:    make(map[uuid.UUID]*domain.Device),
		byHardware: make(map[string]uuid.UUID),
	}
}

var _ store.DeviceStore = (*DeviceStore)(nil)

// Create implements store.DeviceStore.
func (s *DeviceStore) Create(_ context.Context, device *domain.Device) error {
	if err := device.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHardware[device.HardwareID]; ok {
		return store.ErrHardwareIDExists
	}
	s.devices[device.ID] = cloneDevice(device)
	s.byHardware[device.HardwareID] = device.ID
	return nil
}

// GetByID implements store.DeviceStore.
func (s *DeviceStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, store.ErrDeviceNotFound
	}
	return cloneDevice(d), nil
}

// GetByHardwareID implements store.DeviceStore.
func (s *DeviceStore) GetByHardwareID(_ context.Context, hardwareID string) (*domain.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHardware[hardwareID]
	if !ok {
		return nil, store.ErrDeviceNotFound
	}
	return cloneDevice(s.devices[id]), nil
}

// List implements store.DeviceStore.
func (s *DeviceStore) List(_ context.Context, limit, offset int) ([]*domain.Device, error) {
	s.mu.RLock()
	out := make([]*domain.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, cloneDevice(d))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

// SetActive implements store.DeviceStore.
func (s *DeviceStore) SetActive(_ context.Context, id uuid.UUID, active bool) (*domain.Device, error) {
	return s.update(id, func(d *domain.Device) { d.Active = active })
}

// SetAffiliateID implements store.DeviceStore.
func (s *DeviceStore) SetAffiliateID(_ context.Context, id uuid.UUID, affiliateID *string) (*domain.Device, error) {
	return s.update(id, func(d *domain.Device) { d.AffiliateID = cloneString(affiliateID) })
}

func (s *DeviceStore) update(id uuid.UUID, fn func(*domain.Device)) (*domain.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, store.ErrDeviceNotFound
	}
	next := cloneDevice(d)
	fn(next)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	s.devices[id] = next
	return cloneDevice(next), nil
}

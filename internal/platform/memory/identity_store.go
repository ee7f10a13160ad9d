package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/store"
)

type identityKey struct {
	externalID string
	deviceID   uuid.UUID
}

// IdentityStore implements store.IdentityStore in memory.
type IdentityStore struct {
	mu         sync.RWMutex
	identities map[uuid.UUID]*domain.Identity
	byPair     map[identityKey]uuid.UUID
}

// NewIdentityStore creates an empty IdentityStore.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		identities: make(map[uuid.UUID]*domain.Identity),
		byPair:     make(map[identityKey]uuid.UUID),
	}
}

var _ store.IdentityStore = (*IdentityStore)(nil)

// Link implements store.IdentityStore.
func (s *IdentityStore) Link(_ context.Context, externalID string, deviceID uuid.UUID, linkedAt time.Time) (*domain.Identity, error) {
	candidate := &domain.Identity{ExternalID: externalID, DeviceID: deviceID}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := identityKey{externalID: externalID, deviceID: deviceID}
	if id, ok := s.byPair[key]; ok {
		existing := s.identities[id]
		existing.Verified = true
		if linkedAt.After(existing.LinkedAt) {
			existing.LinkedAt = linkedAt.UTC()
		}
		c := *existing
		return &c, nil
	}

	identity := &domain.Identity{
		ID:         uuid.New(),
		ExternalID: externalID,
		DeviceID:   deviceID,
		Verified:   true,
		LinkedAt:   linkedAt.UTC(),
	}
	s.identities[identity.ID] = identity
	s.byPair[key] = identity.ID
	c := *identity
	return &c, nil
}

// GetLink implements store.IdentityStore.
func (s *IdentityStore) GetLink(_ context.Context, externalID string, deviceID uuid.UUID) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[identityKey{externalID: externalID, deviceID: deviceID}]
	if !ok {
		return nil, store.ErrIdentityNotFound
	}
	c := *s.identities[id]
	return &c, nil
}

// GetByID implements store.IdentityStore.
func (s *IdentityStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[id]
	if !ok {
		return nil, store.ErrIdentityNotFound
	}
	c := *identity
	return &c, nil
}

// LatestVerifiedForDevice implements store.IdentityStore.
func (s *IdentityStore) LatestVerifiedForDevice(_ context.Context, deviceID uuid.UUID) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.Identity
	for _, identity := range s.identities {
		if identity.DeviceID != deviceID || !identity.Verified {
			continue
		}
		if latest == nil || identity.LinkedAt.After(latest.LinkedAt) {
			latest = identity
		}
	}
	if latest == nil {
		return nil, store.ErrIdentityNotFound
	}
	c := *latest
	return &c, nil
}

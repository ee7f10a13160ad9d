package memory

import (
	"context"
	"sync"
	"time"

	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/store"
)

// PairingStore implements store.PairingStore in memory.
type PairingStore struct {
	mu     sync.Mutex
	tokens map[string]*domain.PairingToken
}

// NewPairingStore creates an empty PairingStore.
func NewPairingStore() *PairingStore {
	return &PairingStore{tokens: make(map[string]*domain.PairingToken)}
}

var _ store.PairingStore = (*PairingStore)(nil)

// Issue implements store.PairingStore.
func (s *PairingStore) Issue(_ context.Context, token *domain.PairingToken) (int, error) {
	if err := token.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token.Token]; ok {
		return 0, store.ErrDuplicate
	}

	invalidated := 0
	for _, existing := range s.tokens {
		if existing.DeviceID == token.DeviceID && existing.Status == domain.PairingStatusActive {
			existing.Status = domain.PairingStatusExpired
			invalidated++
		}
	}
	s.tokens[token.Token] = clonePairing(token)
	return invalidated, nil
}

// Get implements store.PairingStore.
func (s *PairingStore) Get(_ context.Context, token string) (*domain.PairingToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.tokens[token]
	if !ok {
		return nil, store.ErrPairingTokenNotFound
	}
	return clonePairing(p), nil
}

// Transition implements store.PairingStore.
func (s *PairingStore) Transition(
	_ context.Context,
	token string,
	expected, next domain.PairingStatus,
	fields store.PairingFields,
	now time.Time,
) (*domain.PairingToken, error) {
	if err := domain.CheckPairingTransition(expected, next); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.tokens[token]
	if !ok {
		return nil, store.ErrPairingTokenNotFound
	}
	if p.Status != expected {
		return nil, store.ErrStaleTransition
	}
	if next == domain.PairingStatusUsed {
		if p.IsExpiredAt(now) {
			return nil, store.ErrStaleTransition
		}
		externalID := fields.IdentityExternalID
		usedAt := now.UTC()
		p.IdentityExternalID = &externalID
		p.UsedAt = &usedAt
	}
	p.Status = next
	return clonePairing(p), nil
}

// ExpireOverdue implements store.PairingStore.
func (s *PairingStore) ExpireOverdue(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.tokens {
		if p.Status == domain.PairingStatusActive && p.IsExpiredAt(now) {
			p.Status = domain.PairingStatusExpired
			n++
		}
	}
	return n, nil
}

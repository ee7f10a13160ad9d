package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairingStore_IssueInvalidatesPrevious(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPairingStore()
	device := uuid.New()
	now := time.Now()

	first, err := domain.NewPairingToken("first", device, now, 5*time.Minute)
	require.NoError(t, err)
	n, err := s.Issue(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	second, err := domain.NewPairingToken("second", device, now, 5*time.Minute)
	require.NoError(t, err)
	n, err = s.Issue(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, domain.PairingStatusExpired, got.Status)

	other, err := domain.NewPairingToken("other-device", uuid.New(), now, 5*time.Minute)
	require.NoError(t, err)
	n, err = s.Issue(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "other devices' tokens are untouched")
}

func TestPairingStore_UseRequiresUnexpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPairingStore()
	now := time.Now()
	tok, err := domain.NewPairingToken("scene", uuid.New(), now, time.Minute)
	require.NoError(t, err)
	_, err = s.Issue(ctx, tok)
	require.NoError(t, err)

	_, err = s.Transition(ctx, "scene", domain.PairingStatusActive, domain.PairingStatusUsed,
		store.PairingFields{IdentityExternalID: "openid-1"}, now.Add(time.Minute))
	assert.ErrorIs(t, err, store.ErrStaleTransition)

	used, err := s.Transition(ctx, "scene", domain.PairingStatusActive, domain.PairingStatusUsed,
		store.PairingFields{IdentityExternalID: "openid-1"}, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, domain.PairingStatusUsed, used.Status)
	assert.Equal(t, "openid-1", *used.IdentityExternalID)
	require.NotNil(t, used.UsedAt)

	_, err = s.Transition(ctx, "missing", domain.PairingStatusActive, domain.PairingStatusUsed,
		store.PairingFields{IdentityExternalID: "openid-1"}, now)
	assert.ErrorIs(t, err, store.ErrPairingTokenNotFound)
}

func TestPairingStore_ConcurrentUseHasOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPairingStore()
	now := time.Now()
	tok, err := domain.NewPairingToken("contested", uuid.New(), now, time.Minute)
	require.NoError(t, err)
	_, err = s.Issue(ctx, tok)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Transition(ctx, "contested", domain.PairingStatusActive, domain.PairingStatusUsed,
				store.PairingFields{IdentityExternalID: uuid.NewString()}, now)
			if err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestPairingStore_ExpireOverdue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewPairingStore()
	now := time.Now()

	for i, ttl := range []time.Duration{time.Second, time.Hour} {
		tok, err := domain.NewPairingToken([]string{"short", "long"}[i], uuid.New(), now, ttl)
		require.NoError(t, err)
		_, err = s.Issue(ctx, tok)
		require.NoError(t, err)
	}

	n, err := s.ExpireOverdue(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	short, _ := s.Get(ctx, "short")
	long, _ := s.Get(ctx, "long")
	assert.Equal(t, domain.PairingStatusExpired, short.Status)
	assert.Equal(t, domain.PairingStatusActive, long.Status)
}

func TestIdentityStore_LinkIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewIdentityStore()
	device := uuid.New()
	t0 := time.Now().UTC()

	first, err := s.Link(ctx, "openid-a", device, t0)
	require.NoError(t, err)
	again, err := s.Link(ctx, "openid-a", device, t0.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, t0, again.LinkedAt, "linked_at never moves backwards")

	_, err = s.Link(ctx, "openid-b", device, t0.Add(time.Minute))
	require.NoError(t, err)
	latest, err := s.LatestVerifiedForDevice(ctx, device)
	require.NoError(t, err)
	assert.Equal(t, "openid-b", latest.ExternalID)

	_, err = s.LatestVerifiedForDevice(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrIdentityNotFound)
}

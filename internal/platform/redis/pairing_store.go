package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/store"
	goredis "github.com/redis/go-redis/v9"
)

const (
	activeIndexKey = "pairing:active"

	// Used and expired tokens are kept this long past expiry for auditing.
	defaultRetention = 24 * time.Hour

	maxWatchRetries = 5
)

func tokenKey(token string) string        { return "pairing:token:" + token }
func deviceKey(deviceID uuid.UUID) string { return "pairing:device:" + deviceID.String() }

// PairingStore implements store.PairingStore on Redis.
type PairingStore struct {
	client    goredis.UniversalClient
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewPairingStore creates a Redis-backed pairing store.
func NewPairingStore(client goredis.UniversalClient, logger *slog.Logger) *PairingStore {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PairingStore{
		client:    client,
		retention: defaultRetention,
		logger:    logger.With(slog.String("component", "redis_pairing_store")),
		now:       time.Now,
	}
}

var _ store.PairingStore = (*PairingStore)(nil)

// Issue implements store.PairingStore.
func (s *PairingStore) Issue(ctx context.Context, token *domain.PairingToken) (int, error) {
	if err := token.Validate(); err != nil {
		return 0, err
	}
	payload, err := json.Marshal(token)
	if err != nil {
		return 0, fmt.Errorf("failed to encode pairing token: %w", err)
	}
	ttl := s.keyTTL(token.ExpiresAt)
	dKey, tKey := deviceKey(token.DeviceID), tokenKey(token.Token)

	var invalidated int
	err = s.watch(ctx, func(tx *goredis.Tx) error {
		invalidated = 0

		exists, err := tx.Exists(ctx, tKey).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return store.ErrDuplicate
		}

		var previous *domain.PairingToken
		prevToken, err := tx.Get(ctx, dKey).Result()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			// A confirm committing before EXEC must abort the supersede.
			if err := tx.Watch(ctx, tokenKey(prevToken)).Err(); err != nil {
				return err
			}
			previous, err = s.read(ctx, tx, prevToken)
			if err != nil && !errors.Is(err, store.ErrPairingTokenNotFound) {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if previous != nil && previous.Status == domain.PairingStatusActive {
				previous.Status = domain.PairingStatusExpired
				prevPayload, err := json.Marshal(previous)
				if err != nil {
					return err
				}
				pipe.SetArgs(ctx, tokenKey(previous.Token), prevPayload, goredis.SetArgs{KeepTTL: true})
				pipe.ZRem(ctx, activeIndexKey, previous.Token)
				invalidated = 1
			}
			pipe.Set(ctx, tKey, payload, ttl)
			pipe.Set(ctx, dKey, token.Token, ttl)
			pipe.ZAdd(ctx, activeIndexKey, goredis.Z{
				Score:  float64(token.ExpiresAt.UnixMilli()),
				Member: token.Token,
			})
			return nil
		})
		return err
	}, dKey, tKey)
	if err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to issue pairing token",
				slog.String("error", err.Error()),
				slog.String("device_id", token.DeviceID.String()))
		}
		return 0, err
	}
	return invalidated, nil
}

// Get implements store.PairingStore.
func (s *PairingStore) Get(ctx context.Context, token string) (*domain.PairingToken, error) {
	return s.read(ctx, s.client, token)
}

// Transition implements store.PairingStore.
func (s *PairingStore) Transition(
	ctx context.Context,
	token string,
	expected, next domain.PairingStatus,
	fields store.PairingFields,
	now time.Time,
) (*domain.PairingToken, error) {
	if err := domain.CheckPairingTransition(expected, next); err != nil {
		return nil, err
	}

	var updated *domain.PairingToken
	key := tokenKey(token)
	err := s.watch(ctx, func(tx *goredis.Tx) error {
		current, err := s.read(ctx, tx, token)
		if err != nil {
			return err
		}
		if current.Status != expected {
			return store.ErrStaleTransition
		}
		if next == domain.PairingStatusUsed {
			if current.IsExpiredAt(now) {
				return store.ErrStaleTransition
			}
			externalID := fields.IdentityExternalID
			usedAt := now.UTC()
			current.IdentityExternalID = &externalID
			current.UsedAt = &usedAt
		}
		current.Status = next

		payload, err := json.Marshal(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.SetArgs(ctx, key, payload, goredis.SetArgs{KeepTTL: true})
			pipe.ZRem(ctx, activeIndexKey, token)
			return nil
		})
		if err == nil {
			updated = current
		}
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ExpireOverdue implements store.PairingStore by walking the active index.
func (s *PairingStore) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	overdue, err := s.client.ZRangeByScore(ctx, activeIndexKey, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan active pairing index: %w", err)
	}

	expired := 0
	for _, token := range overdue {
		_, err := s.Transition(ctx, token, domain.PairingStatusActive, domain.PairingStatusExpired, store.PairingFields{}, now)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, store.ErrStaleTransition), errors.Is(err, store.ErrPairingTokenNotFound):
			// Already moved on, or the key aged out.
			s.client.ZRem(ctx, activeIndexKey, token)
		default:
			log.Warn("failed to expire pairing token", slog.String("error", err.Error()))
		}
	}
	return expired, nil
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func (s *PairingStore) read(ctx context.Context, c getter, token string) (*domain.PairingToken, error) {
	raw, err := c.Get(ctx, tokenKey(token)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrPairingTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pairing token: %w", err)
	}
	var p domain.PairingToken
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode pairing token: %w", err)
	}
	return &p, nil
}

// watch runs fn under WATCH, retrying when a concurrent writer touched the keys.
func (s *PairingStore) watch(ctx context.Context, fn func(*goredis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return store.ErrStaleTransition
}

func (s *PairingStore) keyTTL(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(s.now()) + s.retention
	if ttl < s.retention {
		ttl = s.retention
	}
	return ttl
}

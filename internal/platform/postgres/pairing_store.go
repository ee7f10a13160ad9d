package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/store"
)

const pairingColumns = `token, device_id, status, identity_external_id, created_at, expires_at, used_at`

// PostgresPairingStore implements the store.PairingStore interface.
// Issue runs in its own transaction, so it needs the pool rather than a DBTX.
type PostgresPairingStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresPairingStore creates a new PostgreSQL implementation of the PairingStore interface.
func NewPostgresPairingStore(db *sql.DB, logger *slog.Logger) *PostgresPairingStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPairingStore{
		db:     db,
		logger: logger.With(slog.String("component", "pairing_store")),
	}
}

var _ store.PairingStore = (*PostgresPairingStore)(nil)

// Issue implements store.PairingStore.Issue
func (s *PostgresPairingStore) Issue(ctx context.Context, token *domain.PairingToken) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := token.Validate(); err != nil {
		return 0, err
	}

	var invalidated int64
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE pairing_tokens SET status = 'expired' WHERE device_id = $1 AND status = 'active'`,
			token.DeviceID)
		if err != nil {
			return err
		}
		if invalidated, err = res.RowsAffected(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO pairing_tokens (token, device_id, status, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5)`,
			token.Token,
			token.DeviceID,
			token.Status,
			token.CreatedAt,
			token.ExpiresAt,
		)
		return err
	})
	if err != nil {
		log.Error("failed to issue pairing token",
			slog.String("error", err.Error()),
			slog.String("device_id", token.DeviceID.String()))
		return 0, MapError(err)
	}

	return int(invalidated), nil
}

// Get implements store.PairingStore.Get
func (s *PostgresPairingStore) Get(ctx context.Context, token string) (*domain.PairingToken, error) {
	p, err := scanPairing(s.db.QueryRowContext(ctx,
		`SELECT `+pairingColumns+` FROM pairing_tokens WHERE token = $1`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPairingTokenNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get pairing token",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return p, nil
}

// Transition implements store.PairingStore.Transition as a conditional UPDATE.
func (s *PostgresPairingStore) Transition(
	ctx context.Context,
	token string,
	expected, next domain.PairingStatus,
	fields store.PairingFields,
	now time.Time,
) (*domain.PairingToken, error) {
	if err := domain.CheckPairingTransition(expected, next); err != nil {
		return nil, err
	}

	var row *sql.Row
	if next == domain.PairingStatusUsed {
		if fields.IdentityExternalID == "" {
			return nil, fmt.Errorf("%w: used token needs an identity", store.ErrInvalidEntity)
		}
		row = s.db.QueryRowContext(ctx, `
			UPDATE pairing_tokens
			SET status = $3, identity_external_id = $4, used_at = $5
			WHERE token = $1 AND status = $2 AND expires_at > $5
			RETURNING `+pairingColumns,
			token, expected, next, fields.IdentityExternalID, now.UTC())
	} else {
		row = s.db.QueryRowContext(ctx, `
			UPDATE pairing_tokens
			SET status = $3
			WHERE token = $1 AND status = $2
			RETURNING `+pairingColumns,
			token, expected, next)
	}

	p, err := scanPairing(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to transition pairing token",
			slog.String("error", err.Error()),
			slog.String("to", string(next)))
		return nil, MapError(err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM pairing_tokens WHERE token = $1)`, token).Scan(&exists); err != nil {
		return nil, MapError(err)
	}
	if !exists {
		return nil, store.ErrPairingTokenNotFound
	}
	return nil, store.ErrStaleTransition
}

// ExpireOverdue implements store.PairingStore.ExpireOverdue
func (s *PostgresPairingStore) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pairing_tokens SET status = 'expired' WHERE status = 'active' AND expires_at <= $1`,
		now.UTC())
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to expire pairing tokens",
			slog.String("error", err.Error()))
		return 0, MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func scanPairing(row rowScanner) (*domain.PairingToken, error) {
	var (
		p          domain.PairingToken
		status     string
		externalID sql.NullString
		usedAt     sql.NullTime
	)
	if err := row.Scan(&p.Token, &p.DeviceID, &status, &externalID, &p.CreatedAt, &p.ExpiresAt, &usedAt); err != nil {
		return nil, err
	}
	p.Status = domain.PairingStatus(status)
	p.IdentityExternalID = nullString(externalID)
	if usedAt.Valid {
		p.UsedAt = &usedAt.Time
	}
	return &p, nil
}

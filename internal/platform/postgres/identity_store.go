package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/store"
)

const identityColumns = `id, external_id, device_id, verified, linked_at`

// PostgresIdentityStore implements the store.IdentityStore interface.
type PostgresIdentityStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresIdentityStore creates a new PostgreSQL implementation of the IdentityStore interface.
func NewPostgresIdentityStore(db store.DBTX, logger *slog.Logger) *PostgresIdentityStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresIdentityStore{
		db:     db,
		logger: logger.With(slog.String("component", "identity_store")),
	}
}

var _ store.IdentityStore = (*PostgresIdentityStore)(nil)

// Link implements store.IdentityStore.Link as an upsert on (external_id, device_id).
func (s *PostgresIdentityStore) Link(
	ctx context.Context,
	externalID string,
	deviceID uuid.UUID,
	linkedAt time.Time,
) (*domain.Identity, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	candidate := domain.Identity{ExternalID: externalID, DeviceID: deviceID}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO identities (id, external_id, device_id, verified, linked_at)
		VALUES ($1, $2, $3, TRUE, $4)
		ON CONFLICT (external_id, device_id) DO UPDATE
		SET verified = TRUE,
			linked_at = GREATEST(identities.linked_at, EXCLUDED.linked_at)
		RETURNING ` + identityColumns

	identity, err := scanIdentity(s.db.QueryRowContext(ctx, query, uuid.New(), externalID, deviceID, linkedAt.UTC()))
	if err != nil {
		log.Error("failed to link identity",
			slog.String("error", err.Error()),
			slog.String("device_id", deviceID.String()))
		return nil, MapError(err)
	}

	log.Info("identity linked",
		slog.String("identity_id", identity.ID.String()),
		slog.String("device_id", deviceID.String()))
	return identity, nil
}

// GetLink implements store.IdentityStore.GetLink
func (s *PostgresIdentityStore) GetLink(ctx context.Context, externalID string, deviceID uuid.UUID) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE external_id = $1 AND device_id = $2`
	return s.getOne(ctx, query, externalID, deviceID)
}

// GetByID implements store.IdentityStore.GetByID
func (s *PostgresIdentityStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error) {
	return s.getOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
}

// LatestVerifiedForDevice implements store.IdentityStore.LatestVerifiedForDevice
func (s *PostgresIdentityStore) LatestVerifiedForDevice(ctx context.Context, deviceID uuid.UUID) (*domain.Identity, error) {
	query := `SELECT ` + identityColumns + `
		FROM identities
		WHERE device_id = $1 AND verified
		ORDER BY linked_at DESC
		LIMIT 1`
	return s.getOne(ctx, query, deviceID)
}

func (s *PostgresIdentityStore) getOne(ctx context.Context, query string, args ...any) (*domain.Identity, error) {
	identity, err := scanIdentity(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrIdentityNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to read identity",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return identity, nil
}

func scanIdentity(row rowScanner) (*domain.Identity, error) {
	var i domain.Identity
	if err := row.Scan(&i.ID, &i.ExternalID, &i.DeviceID, &i.Verified, &i.LinkedAt); err != nil {
		return nil, err
	}
	return &i, nil
}

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

const deviceColumns = `id, hardware_id, label, active, affiliate_id, created_at, updated_at`

// PostgresDeviceStore implements the store.DeviceStore interface.
type PostgresDeviceStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresDeviceStore creates a new PostgreSQL implementation of the DeviceStore interface.
func NewPostgresDeviceStore(db store.DBTX, logger *slog.Logger) *PostgresDeviceStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDeviceStore{
		db:     db,
		logger: logger.With(slog.String("component", "device_store")),
	}
}

var _ store.DeviceStore = (*PostgresDeviceStore)(nil)

// Create implements store.DeviceStore.Create
func (s *PostgresDeviceStore) Create(ctx context.Context, device *domain.Device) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := device.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO devices (id, hardware_id, label, active, affiliate_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		device.ID,
		device.HardwareID,
		device.Label,
		device.Active,
		device.AffiliateID,
		device.CreatedAt,
		device.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("device already registered", slog.String("hardware_id", device.HardwareID))
		} else {
			log.Error("failed to create device",
				slog.String("error", err.Error()),
				slog.String("hardware_id", device.HardwareID))
		}
		return MapError(err)
	}

	log.Info("device registered",
		slog.String("device_id", device.ID.String()),
		slog.String("hardware_id", device.HardwareID))
	return nil
}

// GetByID implements store.DeviceStore.GetByID
func (s *PostgresDeviceStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Device, error) {
	return s.getOne(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id)
}

// GetByHardwareID implements store.DeviceStore.GetByHardwareID
func (s *PostgresDeviceStore) GetByHardwareID(ctx context.Context, hardwareID string) (*domain.Device, error) {
	return s.getOne(ctx, `SELECT `+deviceColumns+` FROM devices WHERE hardware_id = $1`, hardwareID)
}

// List implements store.DeviceStore.List
func (s *PostgresDeviceStore) List(ctx context.Context, limit, offset int) ([]*domain.Device, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices ORDER BY created_at ASC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		log.Error("failed to list devices", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	devices := []*domain.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// SetActive implements store.DeviceStore.SetActive
func (s *PostgresDeviceStore) SetActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Device, error) {
	query := `UPDATE devices SET active = $2, updated_at = $3 WHERE id = $1 RETURNING ` + deviceColumns
	return s.getOne(ctx, query, id, active, time.Now().UTC())
}

// SetAffiliateID implements store.DeviceStore.SetAffiliateID
func (s *PostgresDeviceStore) SetAffiliateID(ctx context.Context, id uuid.UUID, affiliateID *string) (*domain.Device, error) {
	if err := domain.ValidateAffiliateID(affiliateID); err != nil {
		return nil, err
	}
	query := `UPDATE devices SET affiliate_id = $2, updated_at = $3 WHERE id = $1 RETURNING ` + deviceColumns
	return s.getOne(ctx, query, id, affiliateID, time.Now().UTC())
}

func (s *PostgresDeviceStore) getOne(ctx context.Context, query string, args ...any) (*domain.Device, error) {
	d, err := scanDevice(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrDeviceNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to read device",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return d, nil
}

func scanDevice(row rowScanner) (*domain.Device, error) {
	var (
		d         domain.Device
		affiliate sql.NullString
	)
	if err := row.Scan(&d.ID, &d.HardwareID, &d.Label, &d.Active, &affiliate, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.AffiliateID = nullString(affiliate)
	return &d, nil
}

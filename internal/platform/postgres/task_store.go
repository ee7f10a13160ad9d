package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/store"
)

const taskColumns = `id, device_id, identity_id, garments, photo_ref, external_job_id,
	status, result_location, error_detail, created_at, updated_at`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
		now:    time.Now,
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}
	if task.Status != domain.TaskStatusPending {
		return fmt.Errorf("%w: new tasks must be pending", store.ErrInvalidEntity)
	}

	garments, err := json.Marshal(task.Garments)
	if err != nil {
		return fmt.Errorf("failed to encode garments: %w", err)
	}

	query := `
		INSERT INTO tasks (id, device_id, identity_id, garments, photo_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.DeviceID,
		task.IdentityID,
		string(garments),
		task.PhotoRef,
		task.Status,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()),
			slog.String("device_id", task.DeviceID.String()))
		return MapError(err)
	}

	log.Debug("task created", slog.String("task_id", task.ID.String()))
	return nil
}

// Transition implements store.TaskStore.Transition as a single conditional
// UPDATE. Zero affected rows means either the task is gone or another writer
// moved it first.
func (s *PostgresTaskStore) Transition(
	ctx context.Context,
	id uuid.UUID,
	expected, next domain.TaskStatus,
	fields domain.TransitionFields,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := domain.CheckTransition(expected, next, fields); err != nil {
		return nil, err
	}

	query := `
		UPDATE tasks
		SET status = $3,
			external_job_id = COALESCE($4, external_job_id),
			result_location = COALESCE($5, result_location),
			error_detail = COALESCE($6, error_detail),
			updated_at = $7
		WHERE id = $1 AND status = $2
		RETURNING ` + taskColumns

	task, err := scanTask(s.db.QueryRowContext(ctx, query,
		id,
		expected,
		next,
		fields.ExternalJobID,
		fields.ResultLocation,
		fields.ErrorDetail,
		s.now().UTC(),
	))
	if err == nil {
		log.Debug("task transitioned",
			slog.String("task_id", id.String()),
			slog.String("from", string(expected)),
			slog.String("to", string(next)))
		return task, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to transition task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()),
			slog.String("from", string(expected)),
			slog.String("to", string(next)))
		return nil, MapError(err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, MapError(err)
	}
	if !exists {
		return nil, store.ErrTaskNotFound
	}
	log.Debug("task transition lost compare-and-set",
		slog.String("task_id", id.String()),
		slog.String("expected", string(expected)))
	return nil, store.ErrStaleTransition
}

// Get implements store.TaskStore.Get
func (s *PostgresTaskStore) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return s.getOne(ctx, query, id)
}

// GetByExternalJobID implements store.TaskStore.GetByExternalJobID
func (s *PostgresTaskStore) GetByExternalJobID(ctx context.Context, jobID string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE external_job_id = $1`
	return s.getOne(ctx, query, jobID)
}

func (s *PostgresTaskStore) getOne(ctx context.Context, query string, arg any) (*domain.Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get task",
			slog.String("error", err.Error()),
			slog.Any("key", arg))
		return nil, MapError(err)
	}
	return task, nil
}

// ListByDevice implements store.TaskStore.ListByDevice
func (s *PostgresTaskStore) ListByDevice(
	ctx context.Context,
	deviceID uuid.UUID,
	filter store.TaskFilter,
) ([]*domain.Task, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	args := []any{deviceID}
	var where strings.Builder
	where.WriteString("device_id = $1")
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			args = append(args, st)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		where.WriteString(" AND status IN (" + strings.Join(placeholders, ", ") + ")")
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		taskColumns, where.String(), len(args)-1, len(args))
	return s.list(ctx, query, args...)
}

// ListStale implements store.TaskStore.ListStale
func (s *PostgresTaskStore) ListStale(
	ctx context.Context,
	status domain.TaskStatus,
	cutoff time.Time,
	limit int,
) ([]*domain.Task, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	query := `SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3`
	return s.list(ctx, query, status, cutoff, limit)
}

func (s *PostgresTaskStore) list(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", slog.String("error", err.Error()))
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows", slog.String("error", err.Error()))
		return nil, err
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t              domain.Task
		identityID     uuid.NullUUID
		garments       []byte
		externalJobID  sql.NullString
		status         string
		resultLocation sql.NullString
		errorDetail    sql.NullString
	)
	if err := row.Scan(
		&t.ID,
		&t.DeviceID,
		&identityID,
		&garments,
		&t.PhotoRef,
		&externalJobID,
		&status,
		&resultLocation,
		&errorDetail,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(garments, &t.Garments); err != nil {
		return nil, fmt.Errorf("failed to decode garments for task %s: %w", t.ID, err)
	}
	if identityID.Valid {
		t.IdentityID = &identityID.UUID
	}
	t.ExternalJobID = nullString(externalJobID)
	t.ResultLocation = nullString(resultLocation)
	t.ErrorDetail = nullString(errorDetail)
	t.Status = domain.TaskStatus(status)
	return &t, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
)

// TaskFilter narrows ListByDevice results. Zero Limit means the store default.
type TaskFilter struct {
	Statuses []domain.TaskStatus
	Limit    int
	Offset   int
}

// DefaultListLimit is applied when a filter carries no limit.
const DefaultListLimit = 50

// TaskStore defines the interface for try-on task persistence.
// Version: 1.0
type TaskStore interface {
	// Create saves a new task, which must be pending.
	// Returns validation errors from the domain Task if data is invalid.
	Create(ctx context.Context, task *domain.Task) error

	// Transition atomically moves the task from expected to next, writing
	// fields alongside the status, and returns the updated task.
	// Returns ErrStaleTransition if the stored status is not expected,
	// ErrTaskNotFound if the task does not exist, and an error wrapping
	// domain.ErrInvalidTransition if the edge or fields are not allowed.
	Transition(
		ctx context.Context,
		id uuid.UUID,
		expected, next domain.TaskStatus,
		fields domain.TransitionFields,
	) (*domain.Task, error)

	// Get retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// GetByExternalJobID retrieves the task a worker job was created for.
	// Returns ErrTaskNotFound if no task carries the job id.
	GetByExternalJobID(ctx context.Context, jobID string) (*domain.Task, error)

	// ListByDevice returns a device's tasks, newest first.
	ListByDevice(ctx context.Context, deviceID uuid.UUID, filter TaskFilter) ([]*domain.Task, error)

	// ListStale returns up to limit tasks in status created before cutoff,
	// oldest first.
	ListStale(ctx context.Context, status domain.TaskStatus, cutoff time.Time, limit int) ([]*domain.Task, error)
}

package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/pairing"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/store"
)

// PairingResolver reports the status of a pairing token.
type PairingResolver interface {
	Resolve(ctx context.Context, token string) (*pairing.Resolution, error)
}

// TaskView is a task as a kiosk sees it, with its result made fetchable.
type TaskView struct {
	Task *domain.Task
	// ResultURL is set for completed tasks.
	ResultURL string
}

// QueryService answers kiosk polling. It never changes state.
type QueryService struct {
	tasks    store.TaskStore
	urls     URLResolver
	pairings PairingResolver
	logger   *slog.Logger
}

// NewQueryService creates a QueryService.
func NewQueryService(
	tasks store.TaskStore,
	urls URLResolver,
	pairings PairingResolver,
	logger *slog.Logger,
) (*QueryService, error) {
	if tasks == nil {
		return nil, domain.NewValidationError("tasks", "cannot be nil", domain.ErrValidation)
	}
	if urls == nil {
		return nil, domain.NewValidationError("urls", "cannot be nil", domain.ErrValidation)
	}
	if pairings == nil {
		return nil, domain.NewValidationError("pairings", "cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{
		tasks:    tasks,
		urls:     urls,
		pairings: pairings,
		logger:   logger.With(slog.String("component", "query_service")),
	}, nil
}

// GetTaskStatus returns a task owned by requesterDeviceID.
func (q *QueryService) GetTaskStatus(ctx context.Context, taskID, requesterDeviceID uuid.UUID) (*TaskView, error) {
	task, err := q.tasks.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, NewServiceError("query", "get_task", err)
	}
	if task.DeviceID != requesterDeviceID {
		return nil, ErrForbidden
	}

	view := &TaskView{Task: task}
	if task.ResultLocation != nil {
		view.ResultURL, err = q.urls.ResolveURL(ctx, *task.ResultLocation)
		if err != nil {
			return nil, NewServiceError("query", "get_task", err)
		}
	}
	return view, nil
}

// ListTasks returns a device's tasks, newest first. A result that cannot be
// resolved is left without a URL rather than failing the listing.
func (q *QueryService) ListTasks(ctx context.Context, deviceID uuid.UUID, filter store.TaskFilter) ([]*TaskView, error) {
	tasks, err := q.tasks.ListByDevice(ctx, deviceID, filter)
	if err != nil {
		return nil, NewServiceError("query", "list_tasks", err)
	}

	views := make([]*TaskView, 0, len(tasks))
	for _, task := range tasks {
		view := &TaskView{Task: task}
		if task.ResultLocation != nil {
			u, err := q.urls.ResolveURL(ctx, *task.ResultLocation)
			if err != nil {
				logger.FromContextOrDefault(ctx, q.logger).Warn("failed to resolve task result",
					"task_id", task.ID, "error", err)
			}
			view.ResultURL = u
		}
		views = append(views, view)
	}
	return views, nil
}

// GetPairingStatus reports a pairing token's status.
func (q *QueryService) GetPairingStatus(ctx context.Context, token string) (*pairing.Resolution, error) {
	return q.pairings.Resolve(ctx, token)
}

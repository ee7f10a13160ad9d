package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/api/shared"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/service"
	"github.com/phrazzld/tryon-api/internal/store"
)

// TaskCommander changes task state.
type TaskCommander interface {
	CreateAndSubmit(ctx context.Context, in service.CreateTaskInput) (*domain.Task, error)
	Cancel(ctx context.Context, taskID, requesterDeviceID uuid.UUID) (*domain.Task, error)
}

// TaskReader answers task polling.
type TaskReader interface {
	GetTaskStatus(ctx context.Context, taskID, requesterDeviceID uuid.UUID) (*service.TaskView, error)
	ListTasks(ctx context.Context, deviceID uuid.UUID, filter store.TaskFilter) ([]*service.TaskView, error)
}

// TaskHandler handles try-on task requests from kiosks.
type TaskHandler struct {
	commands TaskCommander
	queries  TaskReader
	logger   *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(commands TaskCommander, queries TaskReader, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	return &TaskHandler{
		commands: commands,
		queries:  queries,
		logger:   logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /api/tasks. A submitted task answers 202, a task
// the worker refused answers 200 with its failure, and an unreachable worker
// answers 503 so the kiosk retries creation.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	device, ok := requireDevice(w, r, log)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		handleValidationError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		handleValidationError(w, r, err)
		return
	}

	task, err := h.commands.CreateAndSubmit(r.Context(), service.CreateTaskInput{
		DeviceID:   device.ID,
		IdentityID: shared.IdentityIDFromContext(r.Context()),
		Garments:   req.garments(),
		PhotoRef:   req.PhotoRef,
	})
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	status := http.StatusOK
	if task.Status == domain.TaskStatusProcessing {
		status = http.StatusAccepted
	}
	shared.RespondWithJSON(w, r, status, newTaskResponse(&service.TaskView{Task: task}))
}

// ListTasks handles GET /api/tasks?status=a,b&limit=&offset=.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	device, ok := requireDevice(w, r, logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}

	limit, offset, err := pagination(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	filter := store.TaskFilter{Limit: limit, Offset: offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.TaskStatus(strings.TrimSpace(s))
			if !status.IsValid() {
				HandleAPIError(w, r, domain.NewValidationError("status", "is not a task status", domain.ErrValidation))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	views, err := h.queries.ListTasks(r.Context(), device.ID, filter)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	resp := TaskListResponse{Tasks: make([]TaskResponse, 0, len(views)), Limit: limit, Offset: offset}
	for _, v := range views {
		resp.Tasks = append(resp.Tasks, newTaskResponse(v))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	device, taskID, ok := requireDeviceAndPathUUID(w, r, "id", logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}

	view, err := h.queries.GetTaskStatus(r.Context(), taskID, device.ID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newTaskResponse(view))
}

// CancelTask handles POST /api/tasks/{id}/cancel. Cancelling a finished task
// is not an error; the response carries whatever state the task is in.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	device, taskID, ok := requireDeviceAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	task, err := h.commands.Cancel(r.Context(), taskID, device.ID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	view := &service.TaskView{Task: task}
	if task.ResultLocation != nil {
		// Lost the race to a completion; report it with its result.
		if resolved, qerr := h.queries.GetTaskStatus(r.Context(), taskID, device.ID); qerr == nil {
			view = resolved
		} else {
			log.Warn("failed to resolve result of completed task", "task_id", taskID, "error", qerr)
		}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newTaskResponse(view))
}

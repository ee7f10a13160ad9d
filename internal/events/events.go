package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
)

// TaskTransitioned records a task status change that was actually persisted.
type TaskTransitioned struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	From domain.TaskStatus `json:"from"`
	To   domain.TaskStatus `json:"to"`

	// Task is the task as stored after the transition.
	Task *domain.Task `json:"task"`

	// Source names the path that won the transition (webhook, cancel, sweep, submit).
	Source string `json:"source"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewTaskTransitioned builds an event for a transition that has just been stored.
func NewTaskTransitioned(from domain.TaskStatus, task *domain.Task, source string) *TaskTransitioned {
	return &TaskTransitioned{
		ID:         uuid.New(),
		From:       from,
		To:         task.Status,
		Task:       task,
		Source:     source,
		OccurredAt: time.Now().UTC(),
	}
}

// Handler defines an interface for components that react to task transitions.
type Handler interface {
	// HandleTaskTransitioned processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleTaskTransitioned(ctx context.Context, event *TaskTransitioned) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event *TaskTransitioned) error

// HandleTaskTransitioned implements Handler.
func (f HandlerFunc) HandleTaskTransitioned(ctx context.Context, event *TaskTransitioned) error {
	return f(ctx, event)
}

// Emitter defines an interface for components that publish task transitions.
type Emitter interface {
	// Emit publishes the given event to all registered handlers.
	Emit(ctx context.Context, event *TaskTransitioned) error
}

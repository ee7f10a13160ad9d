package notify

import (
	"context"
	"log/slog"

	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/events"
	"github.com/phrazzld/tryon-api/internal/jobs"
)

// JobType identifies notification jobs in worker pool logs.
const JobType = "completion_notification"

// Notifier sends the notification for one completed task.
type Notifier interface {
	NotifyCompletion(ctx context.Context, task *domain.Task) error
}

// CompletionHandler queues a notification for every task that reaches
// completed. It never blocks or fails the transition that triggered it.
type CompletionHandler struct {
	notifier Notifier
	queue    jobs.QueueWriter
	logger   *slog.Logger
}

var _ events.Handler = (*CompletionHandler)(nil)

// NewCompletionHandler creates a CompletionHandler.
func NewCompletionHandler(notifier Notifier, queue jobs.QueueWriter, logger *slog.Logger) *CompletionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompletionHandler{
		notifier: notifier,
		queue:    queue,
		logger:   logger.With("component", "completion_handler"),
	}
}

// HandleTaskTransitioned implements events.Handler.
func (h *CompletionHandler) HandleTaskTransitioned(_ context.Context, event *events.TaskTransitioned) error {
	if event.To != domain.TaskStatusCompleted {
		return nil
	}

	task := event.Task
	job := jobs.NewFuncJob(JobType, func(ctx context.Context) error {
		return h.notifier.NotifyCompletion(ctx, task)
	})
	if err := h.queue.Enqueue(job); err != nil {
		notificationsTotal.WithLabelValues(resultDropped).Inc()
		h.logger.Error("dropping completion notification", "task_id", task.ID, "error", err)
	}
	return nil
}

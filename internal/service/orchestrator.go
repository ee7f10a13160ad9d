package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/events"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/store"
	"github.com/phrazzld/tryon-api/internal/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Sources recorded on emitted transitions.
const (
	SourceSubmit  = "submit"
	SourceWebhook = "webhook"
	SourceCancel  = "cancel"
	SourceSweep   = "sweep"
)

// Error details written by the orchestrator itself.
const (
	DetailTimeout             = "timeout"
	DetailAbandoned           = "submission abandoned"
	DetailMissingResult       = "worker reported completion without a result"
	DetailUnspecifiedFailure  = "render failed"
	defaultSweepBatchSize     = 100
	cancelAttempts            = 4
	upstreamCancelTimeout     = 10 * time.Second
	orchestratorTracerName    = "service"
	orchestratorComponentName = "orchestrator"
)

// URLResolver turns a stored reference (object key or URL) into a URL the
// receiver can fetch.
type URLResolver interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}

// OrchestratorConfig holds the orchestrator's tunables.
type OrchestratorConfig struct {
	// CallbackURL is where the render worker posts status webhooks.
	CallbackURL string
	// TaskTimeout is how long a task may stay pending or processing.
	TaskTimeout    time.Duration
	SweepBatchSize int
}

// CreateTaskInput is what a kiosk supplies to start a render.
type CreateTaskInput struct {
	DeviceID   uuid.UUID
	IdentityID *uuid.UUID
	Garments   []domain.Garment
	PhotoRef   string
}

// WebhookInput is a worker status report.
type WebhookInput struct {
	ExternalJobID string
	Outcome       worker.Outcome
	ResultRef     string
	ErrorDetail   string
	// TaskID is the task the worker says the job belongs to, when it echoes it.
	TaskID *uuid.UUID
}

// WebhookResult says whether a webhook changed a task. Task is the task as
// currently stored, nil when the job is unknown.
type WebhookResult struct {
	Applied bool
	Task    *domain.Task
}

// SweepResult counts the tasks a sweep failed.
type SweepResult struct {
	TimedOut  int
	Abandoned int
}

// Orchestrator drives try-on tasks from creation to a terminal state.
type Orchestrator struct {
	tasks   store.TaskStore
	gateway worker.Gateway
	urls    URLResolver
	emitter events.Emitter
	config  OrchestratorConfig
	logger  *slog.Logger

	now   func() time.Time
	async func(fn func())
}

// NewOrchestrator creates an Orchestrator.
// It returns an error if any of the required dependencies are nil.
func NewOrchestrator(
	tasks store.TaskStore,
	gateway worker.Gateway,
	urls URLResolver,
	emitter events.Emitter,
	config OrchestratorConfig,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if tasks == nil {
		return nil, domain.NewValidationError("tasks", "cannot be nil", domain.ErrValidation)
	}
	if gateway == nil {
		return nil, domain.NewValidationError("gateway", "cannot be nil", domain.ErrValidation)
	}
	if urls == nil {
		return nil, domain.NewValidationError("urls", "cannot be nil", domain.ErrValidation)
	}
	if emitter == nil {
		return nil, domain.NewValidationError("emitter", "cannot be nil", domain.ErrValidation)
	}
	if config.TaskTimeout <= 0 {
		return nil, domain.NewValidationError("config.TaskTimeout", "must be positive", domain.ErrValidation)
	}
	if config.SweepBatchSize <= 0 {
		config.SweepBatchSize = defaultSweepBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		tasks:   tasks,
		gateway: gateway,
		urls:    urls,
		emitter: emitter,
		config:  config,
		logger:  logger.With(slog.String("component", orchestratorComponentName)),
		now:     func() time.Time { return time.Now().UTC() },
		async:   func(fn func()) { go fn() },
	}, nil
}

// CreateAndSubmit stores a pending task and hands it to the render worker.
//
// An accepted submission moves the task to processing. A rejection fails the
// task and returns it without an error. An unreachable worker leaves the task
// pending (the sweep will fail it) and returns ErrSubmissionUnavailable.
func (o *Orchestrator) CreateAndSubmit(ctx context.Context, in CreateTaskInput) (*domain.Task, error) {
	ctx, span := otel.Tracer(orchestratorTracerName).Start(ctx, "Orchestrator.CreateAndSubmit")
	defer span.End()
	log := logger.FromContextOrDefault(ctx, o.logger)

	task, err := domain.NewTask(in.DeviceID, in.IdentityID, in.PhotoRef, in.Garments)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("task.id", task.ID.String()))

	// Inputs are resolved first so a storage failure leaves no orphan task.
	req, err := o.submitRequest(ctx, task)
	if err != nil {
		span.SetStatus(codes.Error, "resolve inputs")
		return nil, NewServiceError(orchestratorComponentName, "create_task", err)
	}

	if err := o.tasks.Create(ctx, task); err != nil {
		span.SetStatus(codes.Error, "store task")
		return nil, NewServiceError(orchestratorComponentName, "create_task", err)
	}
	log = log.With("task_id", task.ID, "device_id", task.DeviceID)
	log.Info("task created", "garments", len(task.Garments))

	jobID, err := o.gateway.Submit(ctx, req)
	switch {
	case err == nil:
		taskSubmissionsTotal.WithLabelValues("accepted").Inc()
		return o.markSubmitted(ctx, task, jobID)

	case errors.Is(err, worker.ErrRejected):
		taskSubmissionsTotal.WithLabelValues("rejected").Inc()
		reason := worker.RejectionReason(err)
		log.Info("render worker rejected task", "reason", reason)
		failed, terr := o.transition(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusFailed,
			domain.TransitionFields{ErrorDetail: &reason}, SourceSubmit)
		if terr != nil {
			if errors.Is(terr, store.ErrStaleTransition) {
				// Cancelled or swept meanwhile; the stored state stands.
				return o.current(ctx, task.ID, "create_task")
			}
			return nil, NewServiceError(orchestratorComponentName, "create_task", terr)
		}
		return failed, nil

	default:
		taskSubmissionsTotal.WithLabelValues("unavailable").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "worker unavailable")
		log.Warn("render worker unavailable, task left pending", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSubmissionUnavailable, err)
	}
}

// markSubmitted records the worker job on the task. If another path moved
// the task first, an early webhook may already have adopted this job; any
// other winner means the job is no longer wanted.
func (o *Orchestrator) markSubmitted(ctx context.Context, task *domain.Task, jobID string) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, o.logger).With("task_id", task.ID, "external_job_id", jobID)

	updated, err := o.transition(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusProcessing,
		domain.TransitionFields{ExternalJobID: &jobID}, SourceSubmit)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, store.ErrStaleTransition) {
		// The worker is now running a job nothing will track.
		o.cancelUpstream(ctx, jobID)
		return nil, NewServiceError(orchestratorComponentName, "create_task", err)
	}

	current, err := o.current(ctx, task.ID, "create_task")
	if err != nil {
		return nil, err
	}
	if current.ExternalJobID != nil && *current.ExternalJobID == jobID {
		return current, nil
	}
	log.Info("task left pending before submission was recorded, cancelling job", "status", current.Status)
	o.cancelUpstream(ctx, jobID)
	return current, nil
}

func (o *Orchestrator) submitRequest(ctx context.Context, task *domain.Task) (worker.SubmitRequest, error) {
	photoURL, err := o.urls.ResolveURL(ctx, task.PhotoRef)
	if err != nil {
		return worker.SubmitRequest{}, fmt.Errorf("resolve photo: %w", err)
	}
	garments := make([]worker.GarmentInput, 0, len(task.Garments))
	for i, g := range task.Garments {
		u, err := o.urls.ResolveURL(ctx, g.ImageRef)
		if err != nil {
			return worker.SubmitRequest{}, fmt.Errorf("resolve garment %d: %w", i, err)
		}
		garments = append(garments, worker.GarmentInput{ImageURL: u, Category: g.Category})
	}
	return worker.SubmitRequest{
		TaskID:      task.ID,
		PhotoURL:    photoURL,
		Garments:    garments,
		CallbackURL: o.config.CallbackURL,
	}, nil
}

// HandleWebhook applies a worker status report. Reports for unknown jobs,
// terminal tasks, progress updates and lost races are ignored without error,
// so redelivery is always safe.
func (o *Orchestrator) HandleWebhook(ctx context.Context, in WebhookInput) (*WebhookResult, error) {
	ctx, span := otel.Tracer(orchestratorTracerName).Start(ctx, "Orchestrator.HandleWebhook")
	defer span.End()
	span.SetAttributes(
		attribute.String("worker.job_id", in.ExternalJobID),
		attribute.String("worker.outcome", string(in.Outcome)))
	log := logger.FromContextOrDefault(ctx, o.logger).With("external_job_id", in.ExternalJobID)

	task, err := o.tasks.GetByExternalJobID(ctx, in.ExternalJobID)
	if errors.Is(err, store.ErrTaskNotFound) {
		task, err = o.adopt(ctx, in)
		if err == nil && task == nil {
			webhooksIgnoredTotal.WithLabelValues("unknown_job").Inc()
			log.Info("ignoring webhook for unknown job")
			return &WebhookResult{}, nil
		}
	}
	if err != nil {
		span.SetStatus(codes.Error, "load task")
		return nil, NewServiceError(orchestratorComponentName, "handle_webhook", err)
	}
	log = log.With("task_id", task.ID)

	if task.Status.IsTerminal() {
		webhooksIgnoredTotal.WithLabelValues("terminal").Inc()
		log.Debug("ignoring webhook for terminal task", "status", task.Status)
		return &WebhookResult{Task: task}, nil
	}
	if in.Outcome == worker.OutcomeProcessing {
		webhooksIgnoredTotal.WithLabelValues("progress").Inc()
		return &WebhookResult{Task: task}, nil
	}

	to, fields := outcomeTransition(in)
	updated, err := o.transition(ctx, task.ID, domain.TaskStatusProcessing, to, fields, SourceWebhook)
	if err != nil {
		if errors.Is(err, store.ErrStaleTransition) {
			webhooksIgnoredTotal.WithLabelValues("lost_race").Inc()
			log.Info("webhook lost transition race")
			current, cerr := o.current(ctx, task.ID, "handle_webhook")
			if cerr != nil {
				return nil, cerr
			}
			return &WebhookResult{Task: current}, nil
		}
		span.SetStatus(codes.Error, "transition")
		return nil, NewServiceError(orchestratorComponentName, "handle_webhook", err)
	}
	return &WebhookResult{Applied: true, Task: updated}, nil
}

// adopt handles a report that overtook the submit path: the job id is not
// recorded yet, but the worker echoed the task id of a still-pending task.
// Returns nil when the report cannot be tied to a task.
func (o *Orchestrator) adopt(ctx context.Context, in WebhookInput) (*domain.Task, error) {
	if in.TaskID == nil {
		return nil, nil
	}
	task, err := o.tasks.Get(ctx, *in.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if task.Status != domain.TaskStatusPending {
		return nil, nil
	}

	jobID := in.ExternalJobID
	adopted, err := o.transition(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusProcessing,
		domain.TransitionFields{ExternalJobID: &jobID}, SourceWebhook)
	if err == nil {
		logger.FromContextOrDefault(ctx, o.logger).Info("adopted job from early webhook",
			"task_id", task.ID, "external_job_id", jobID)
		return adopted, nil
	}
	if !errors.Is(err, store.ErrStaleTransition) {
		return nil, err
	}
	// The submit path may have recorded the same job in the meantime.
	task, err = o.tasks.GetByExternalJobID(ctx, jobID)
	if errors.Is(err, store.ErrTaskNotFound) {
		return nil, nil
	}
	return task, err
}

func outcomeTransition(in WebhookInput) (domain.TaskStatus, domain.TransitionFields) {
	if in.Outcome == worker.OutcomeCompleted {
		if in.ResultRef != "" {
			ref := in.ResultRef
			return domain.TaskStatusCompleted, domain.TransitionFields{ResultLocation: &ref}
		}
		detail := DetailMissingResult
		return domain.TaskStatusFailed, domain.TransitionFields{ErrorDetail: &detail}
	}
	detail := in.ErrorDetail
	if detail == "" {
		detail = DetailUnspecifiedFailure
	}
	return domain.TaskStatusFailed, domain.TransitionFields{ErrorDetail: &detail}
}

// HandleWorkerEvent applies an outcome delivered by an in-process worker.
func (o *Orchestrator) HandleWorkerEvent(ctx context.Context, event *worker.WebhookEvent) error {
	_, err := o.HandleWebhook(ctx, WebhookInput{
		ExternalJobID: event.ExternalJobID,
		Outcome:       event.Outcome,
		ResultRef:     event.ResultURL,
		ErrorDetail:   event.Error,
		TaskID:        event.TaskID,
	})
	return err
}

// Cancel cancels a task on behalf of the device that owns it. A task that is
// already terminal is returned as is. The worker job is cancelled only after
// the local cancellation won, and only on a best-effort basis.
func (o *Orchestrator) Cancel(ctx context.Context, taskID, requesterDeviceID uuid.UUID) (*domain.Task, error) {
	ctx, span := otel.Tracer(orchestratorTracerName).Start(ctx, "Orchestrator.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", taskID.String()))

	for attempt := 1; ; attempt++ {
		task, err := o.current(ctx, taskID, "cancel")
		if err != nil {
			return nil, err
		}
		if task.DeviceID != requesterDeviceID {
			return nil, ErrForbidden
		}
		if task.Status.IsTerminal() {
			return task, nil
		}

		from := task.Status
		cancelled, err := o.transition(ctx, task.ID, from, domain.TaskStatusCancelled,
			domain.TransitionFields{}, SourceCancel)
		if err != nil {
			if errors.Is(err, store.ErrStaleTransition) && attempt < cancelAttempts {
				continue
			}
			span.SetStatus(codes.Error, "transition")
			return nil, NewServiceError(orchestratorComponentName, "cancel", err)
		}

		if from == domain.TaskStatusProcessing && task.ExternalJobID != nil {
			o.cancelUpstream(ctx, *task.ExternalJobID)
		}
		return cancelled, nil
	}
}

// cancelUpstream asks the worker to drop a job without waiting for it.
func (o *Orchestrator) cancelUpstream(ctx context.Context, jobID string) {
	detached := logger.WithLogger(context.WithoutCancel(ctx), logger.FromContextOrDefault(ctx, o.logger))
	o.async(func() {
		cctx, cancel := context.WithTimeout(detached, upstreamCancelTimeout)
		defer cancel()
		o.gateway.Cancel(cctx, jobID)
	})
}

// SweepTimeouts fails tasks that outlived the task timeout: processing tasks
// whose webhook never came, and pending tasks whose submission never
// completed. Individual failures are logged and the sweep continues.
func (o *Orchestrator) SweepTimeouts(ctx context.Context) (SweepResult, error) {
	ctx, span := otel.Tracer(orchestratorTracerName).Start(ctx, "Orchestrator.SweepTimeouts")
	defer span.End()

	cutoff := o.now().Add(-o.config.TaskTimeout)
	var result SweepResult

	timedOut, err := o.sweep(ctx, domain.TaskStatusProcessing, cutoff, DetailTimeout)
	result.TimedOut = timedOut
	if err != nil {
		return result, err
	}
	abandoned, err := o.sweep(ctx, domain.TaskStatusPending, cutoff, DetailAbandoned)
	result.Abandoned = abandoned
	if err != nil {
		return result, err
	}

	if result.TimedOut+result.Abandoned > 0 {
		o.logger.Info("swept overdue tasks", "timed_out", result.TimedOut, "abandoned", result.Abandoned)
	}
	span.SetAttributes(
		attribute.Int("sweep.timed_out", result.TimedOut),
		attribute.Int("sweep.abandoned", result.Abandoned))
	return result, nil
}

func (o *Orchestrator) sweep(ctx context.Context, status domain.TaskStatus, cutoff time.Time, detail string) (int, error) {
	stale, err := o.tasks.ListStale(ctx, status, cutoff, o.config.SweepBatchSize)
	if err != nil {
		return 0, NewServiceError(orchestratorComponentName, "sweep", err)
	}

	swept := 0
	for _, task := range stale {
		d := detail
		_, err := o.transition(ctx, task.ID, status, domain.TaskStatusFailed,
			domain.TransitionFields{ErrorDetail: &d}, SourceSweep)
		switch {
		case err == nil:
			swept++
		case errors.Is(err, store.ErrStaleTransition):
			// A webhook or cancellation got there first.
		default:
			o.logger.Error("failed to sweep task", "task_id", task.ID, "status", status, "error", err)
		}
	}
	return swept, nil
}

// transition performs a compare-and-set and, only when it wins, records and
// emits the change. Handler failures are logged, never returned.
func (o *Orchestrator) transition(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.TaskStatus,
	fields domain.TransitionFields,
	source string,
) (*domain.Task, error) {
	updated, err := o.tasks.Transition(ctx, id, from, to, fields)
	if err != nil {
		return nil, err
	}

	taskTransitionsTotal.WithLabelValues(string(from), string(to), source).Inc()
	log := logger.FromContextOrDefault(ctx, o.logger)
	log.Info("task transitioned", "task_id", id, "from", from, "to", to, "source", source)

	if err := o.emitter.Emit(ctx, events.NewTaskTransitioned(from, updated, source)); err != nil {
		log.Error("task transition handler failed", "task_id", id, "error", err)
	}
	return updated, nil
}

func (o *Orchestrator) current(ctx context.Context, id uuid.UUID, op string) (*domain.Task, error) {
	task, err := o.tasks.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, NewServiceError(orchestratorComponentName, op, err)
	}
	return task, nil
}

package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/config"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/jobs"
	"github.com/phrazzld/tryon-api/internal/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"
)

// JobType identifies render jobs on the worker pool.
const JobType = "gemini_render"

// maxInputBytes bounds a downloaded input image.
const maxInputBytes = 20 << 20

// contentGenerator is the subset of *genai.Models used for rendering.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// renderStore persists rendered images.
type renderStore interface {
	SaveRender(ctx context.Context, taskID uuid.UUID, data []byte, contentType string) (string, error)
}

// CompletionSink receives render outcomes the same way an external worker's
// webhooks are received.
type CompletionSink interface {
	HandleWorkerEvent(ctx context.Context, event *worker.WebhookEvent) error
}

// RenderWorker is a worker.Gateway backed by Gemini.
type RenderWorker struct {
	models     contentGenerator
	model      string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	store      renderStore
	queue      jobs.QueueWriter
	logger     *slog.Logger

	mu        sync.Mutex
	sink      CompletionSink
	queued    map[string]bool
	inflight  map[string]context.CancelFunc
	cancelled map[string]bool
}

// NewRenderWorker creates a RenderWorker talking to the Gemini API.
func NewRenderWorker(
	ctx context.Context,
	cfg config.LLMConfig,
	store renderStore,
	queue jobs.QueueWriter,
	logger *slog.Logger,
) (*RenderWorker, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return newRenderWorker(client.Models, cfg, store, queue, &http.Client{Timeout: 30 * time.Second}, logger), nil
}

func newRenderWorker(
	models contentGenerator,
	cfg config.LLMConfig,
	store renderStore,
	queue jobs.QueueWriter,
	httpClient *http.Client,
	logger *slog.Logger,
) *RenderWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderWorker{
		models:     models,
		model:      cfg.ModelName,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		httpClient: httpClient,
		store:      store,
		queue:      queue,
		logger:     logger.With("component", "gemini_render_worker", "model", cfg.ModelName),
		queued:     make(map[string]bool),
		inflight:   make(map[string]context.CancelFunc),
		cancelled:  make(map[string]bool),
	}
}

// SetSink registers where outcomes are delivered. It must be called before
// the first Submit.
func (w *RenderWorker) SetSink(sink CompletionSink) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sink = sink
}

// Submit implements worker.Gateway.
func (w *RenderWorker) Submit(ctx context.Context, req worker.SubmitRequest) (string, error) {
	if len(req.Garments) == 0 {
		return "", &worker.RejectedError{Reason: "no garments to render"}
	}

	jobID := "gemini-" + uuid.NewString()
	job := &renderJob{id: uuid.New(), jobID: jobID, req: req, worker: w}

	w.mu.Lock()
	w.queued[jobID] = true
	w.mu.Unlock()
	if err := w.queue.Enqueue(job); err != nil {
		w.mu.Lock()
		delete(w.queued, jobID)
		w.mu.Unlock()
		return "", fmt.Errorf("%w: %v", worker.ErrUnavailable, err)
	}

	w.logger.Info("render job queued", "task_id", req.TaskID, "external_job_id", jobID)
	return jobID, nil
}

// Cancel implements worker.Gateway. A queued job is skipped when it is
// dequeued; a running job has its context cancelled. Finished and unknown
// jobs are ignored.
func (w *RenderWorker) Cancel(ctx context.Context, externalJobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cancel, running := w.inflight[externalJobID]
	if !running && !w.queued[externalJobID] {
		w.logger.Debug("ignoring cancel for finished or unknown render job", "external_job_id", externalJobID)
		return
	}
	w.cancelled[externalJobID] = true
	if running {
		cancel()
	}
	w.logger.Info("render job cancelled", "external_job_id", externalJobID)
}

// begin registers a running job, returning false when it was cancelled
// before it started.
func (w *RenderWorker) begin(jobID string, cancel context.CancelFunc) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.queued, jobID)
	if w.cancelled[jobID] {
		delete(w.cancelled, jobID)
		return false
	}
	w.inflight[jobID] = cancel
	return true
}

// finish unregisters jobID and reports whether it was cancelled while running.
func (w *RenderWorker) finish(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, jobID)
	wasCancelled := w.cancelled[jobID]
	delete(w.cancelled, jobID)
	return wasCancelled
}

func (w *RenderWorker) deliver(ctx context.Context, event *worker.WebhookEvent) {
	w.mu.Lock()
	sink := w.sink
	w.mu.Unlock()

	log := w.logger.With("external_job_id", event.ExternalJobID, "outcome", event.Outcome)
	if sink == nil {
		log.Error("no completion sink registered, dropping render outcome")
		return
	}
	if err := sink.HandleWorkerEvent(ctx, event); err != nil {
		log.Error("completion sink failed", "error", err)
	}
}

// render produces the try-on image and returns its storage key.
func (w *RenderWorker) render(ctx context.Context, req worker.SubmitRequest) (string, error) {
	ctx, span := otel.Tracer("gemini").Start(ctx, "gemini.Render")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", req.TaskID.String()))

	categories := make([]domain.GarmentCategory, 0, len(req.Garments))
	for _, g := range req.Garments {
		categories = append(categories, g.Category)
	}
	prompt, err := buildPrompt(categories)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{{Text: prompt}}
	urls := append([]string{req.PhotoURL}, garmentURLs(req.Garments)...)
	for _, u := range urls {
		data, mimeType, err := w.fetch(ctx, u)
		if err != nil {
			return "", err
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}})
	}

	blob, err := w.generateWithRetry(ctx, []*genai.Content{{Role: "user", Parts: parts}})
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	return w.store.SaveRender(ctx, req.TaskID, blob.Data, blob.MIMEType)
}

// generateWithRetry calls the model, retrying transient failures with
// exponential backoff and jitter. Safety blocks and image-less answers are
// permanent.
func (w *RenderWorker) generateWithRetry(ctx context.Context, contents []*genai.Content) (*genai.Blob, error) {
	cfg := &genai.GenerateContentConfig{ResponseModalities: []string{"TEXT", "IMAGE"}}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		resp, err := w.models.GenerateContent(ctx, w.model, contents, cfg)
		if err == nil {
			return imageFrom(resp)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		w.logger.WarnContext(ctx, "gemini call failed", "attempt", attempt+1, "error", err)
		if attempt >= w.maxRetries {
			return nil, fmt.Errorf("gemini call failed after %d attempts: %w", attempt+1, err)
		}

		backoff := float64(w.retryDelay) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoff * (0.5 + rng.Float64()*0.5))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func imageFrom(resp *genai.GenerateContentResponse) (*genai.Blob, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("%w: %s", ErrContentBlocked, resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("%w: no candidates", ErrNoImage)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, ErrContentBlocked
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content", ErrNoImage)
	}
	for _, part := range candidate.Content.Parts {
		if part != nil && part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "image/") &&
			len(part.InlineData.Data) > 0 {
			return part.InlineData, nil
		}
	}
	return nil, ErrNoImage
}

func (w *RenderWorker) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetchInput, err)
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetchInput, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: status %d", ErrFetchInput, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxInputBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetchInput, err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return data, mimeType, nil
}

func garmentURLs(garments []worker.GarmentInput) []string {
	urls := make([]string, 0, len(garments))
	for _, g := range garments {
		urls = append(urls, g.ImageURL)
	}
	return urls
}

// renderJob runs one render on the jobs worker pool.
type renderJob struct {
	id     uuid.UUID
	jobID  string
	req    worker.SubmitRequest
	worker *RenderWorker
}

func (j *renderJob) ID() uuid.UUID { return j.id }
func (j *renderJob) Type() string  { return JobType }

// Execute renders the task and reports the outcome. Failures are reported to
// the sink rather than returned, so only delivery problems surface as errors.
func (j *renderJob) Execute(ctx context.Context) error {
	w := j.worker
	renderCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !w.begin(j.jobID, cancel) {
		w.logger.Info("skipping cancelled render job", "external_job_id", j.jobID)
		return nil
	}

	key, err := w.render(renderCtx, j.req)
	if w.finish(j.jobID) {
		return nil
	}

	event := &worker.WebhookEvent{ExternalJobID: j.jobID, TaskID: &j.req.TaskID}
	switch {
	case err == nil:
		event.Outcome = worker.OutcomeCompleted
		event.ResultURL = key
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// Pool shutdown; the timeout sweep will fail the task.
		return err
	default:
		event.Outcome = worker.OutcomeFailed
		event.Error = err.Error()
	}

	// The pool context may be near its deadline; delivery gets its own.
	deliverCtx, cancelDeliver := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancelDeliver()
	w.deliver(deliverCtx, event)
	return nil
}

package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/tryon-api/internal/config"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// maxErrorBody bounds how much of an error response is read for a reason.
const maxErrorBody = 4 << 10

// HTTPGateway submits jobs to a prediction-style render API.
type HTTPGateway struct {
	baseURL string
	token   string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPGateway creates a gateway for cfg. A nil client gets one bounded by
// cfg.RequestTimeout.
func NewHTTPGateway(cfg config.WorkerConfig, client *http.Client, logger *slog.Logger) (*HTTPGateway, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("worker base URL cannot be empty")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid worker base URL: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.APIToken,
		model:   cfg.Model,
		client:  client,
		logger:  logger.With("component", "worker_gateway"),
	}, nil
}

type predictionInput struct {
	PersonImage   string   `json:"person_image"`
	GarmentImages []string `json:"garment_images"`
	Category      string   `json:"category"`
}

type predictionRequest struct {
	Model    string            `json:"model,omitempty"`
	Input    predictionInput   `json:"input"`
	Metadata map[string]string `json:"metadata"`
	Webhook  string            `json:"webhook,omitempty"`
}

type predictionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// Submit implements Gateway.
func (g *HTTPGateway) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	ctx, span := otel.Tracer("worker").Start(ctx, "worker.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", req.TaskID.String()))

	log := logger.FromContextOrDefault(ctx, g.logger).With("task_id", req.TaskID)

	body := predictionRequest{
		Model: g.model,
		Input: predictionInput{
			PersonImage:   req.PhotoURL,
			GarmentImages: make([]string, 0, len(req.Garments)),
			Category:      Category(req.Garments),
		},
		Metadata: map[string]string{"task_id": req.TaskID.String()},
		Webhook:  req.CallbackURL,
	}
	for _, garment := range req.Garments {
		body.Input.GarmentImages = append(body.Input.GarmentImages, garment.ImageURL)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode prediction request: %w", err)
	}

	resp, err := g.do(ctx, http.MethodPost, "/v1/predictions", payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		log.Warn("render worker unreachable", "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classifyStatus(resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit refused")
		log.Warn("render worker refused submission", "status", resp.StatusCode, "error", err)
		return "", err
	}

	var pr predictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("%w: undecodable response: %v", ErrUnavailable, err)
	}
	if pr.ID == "" {
		return "", fmt.Errorf("%w: response carried no job id", ErrUnavailable)
	}
	if normalizeStatus(pr.Status) == OutcomeFailed {
		reason := pr.Error
		if reason == "" {
			reason = "worker failed the job on submission"
		}
		return "", &RejectedError{Reason: reason}
	}

	span.SetAttributes(attribute.String("worker.job_id", pr.ID))
	log.Info("render job submitted", "external_job_id", pr.ID)
	return pr.ID, nil
}

// Cancel implements Gateway.
func (g *HTTPGateway) Cancel(ctx context.Context, externalJobID string) {
	log := logger.FromContextOrDefault(ctx, g.logger).With("external_job_id", externalJobID)

	resp, err := g.do(ctx, http.MethodPost, "/v1/predictions/"+url.PathEscape(externalJobID)+"/cancel", nil)
	if err != nil {
		log.Warn("failed to cancel render job", "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if err := classifyStatus(resp); err != nil {
		log.Warn("render worker refused cancellation", "status", resp.StatusCode, "error", err)
		return
	}
	log.Info("render job cancelled upstream")
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	g.logger.Debug("worker request finished",
		"method", method,
		"path", path,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err)
	return resp, err
}

// classifyStatus maps a non-2xx response onto ErrUnavailable or a RejectedError.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusRequestTimeout {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	reason := strings.TrimSpace(string(raw))
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil {
		switch {
		case er.Detail != "":
			reason = er.Detail
		case er.Error != "":
			reason = er.Error
		}
	}
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return &RejectedError{Reason: reason}
}

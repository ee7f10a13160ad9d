package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/phrazzld/tryon-api/internal/api/shared"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/platform/wechat"
	"github.com/phrazzld/tryon-api/internal/service"
	"github.com/phrazzld/tryon-api/internal/worker"
)

// maxWebhookBodyBytes bounds inbound callback bodies.
const maxWebhookBodyBytes = 1 << 20

// identityAck is the body the messaging platform expects for a handled push.
const identityAck = "success"

// WebhookApplier reconciles worker status reports.
type WebhookApplier interface {
	HandleWebhook(ctx context.Context, in service.WebhookInput) (*service.WebhookResult, error)
}

// WebhookVerifier authenticates worker callbacks.
type WebhookVerifier interface {
	Verify(header string, body []byte) error
}

// SubscriptionHandler confirms pairings from platform scan events.
type SubscriptionHandler interface {
	HandleSubscriptionEvent(ctx context.Context, event *wechat.Event) error
}

// WebhookHandler receives callbacks from the render worker and the
// messaging platform.
type WebhookHandler struct {
	tasks         WebhookApplier
	verifier      WebhookVerifier
	subscriptions SubscriptionHandler
	eventToken    string
	logger        *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler. eventToken is the token
// the messaging platform signs its pushes with.
func NewWebhookHandler(
	tasks WebhookApplier,
	verifier WebhookVerifier,
	subscriptions SubscriptionHandler,
	eventToken string,
	logger *slog.Logger,
) *WebhookHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for WebhookHandler")
	}
	return &WebhookHandler{
		tasks:         tasks,
		verifier:      verifier,
		subscriptions: subscriptions,
		eventToken:    eventToken,
		logger:        logger.With(slog.String("component", "webhook_handler")),
	}
}

// WorkerWebhook handles POST /webhooks/worker. Reports for unknown or
// finished jobs are acknowledged with 200 so the worker stops redelivering;
// only a bad signature or body is refused. A store failure answers 500 and
// the worker's redelivery is safe to apply.
func (h *WebhookHandler) WorkerWebhook(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	body, err := readBody(r)
	if err != nil {
		HandleAPIError(w, r, fmt.Errorf("%w: %v", worker.ErrMalformedWebhook, err))
		return
	}
	if err := h.verifier.Verify(r.Header.Get(worker.SignatureHeader), body); err != nil {
		HandleAPIError(w, r, err, shared.WithElevatedLogLevel())
		return
	}

	event, err := worker.ParseWebhook(body)
	if err != nil {
		HandleAPIError(w, r, err, shared.WithElevatedLogLevel())
		return
	}

	result, err := h.tasks.HandleWebhook(r.Context(), service.WebhookInput{
		ExternalJobID: event.ExternalJobID,
		Outcome:       event.Outcome,
		ResultRef:     event.ResultURL,
		ErrorDetail:   event.Error,
		TaskID:        event.TaskID,
	})
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	log.Debug("worker webhook handled",
		"external_job_id", event.ExternalJobID,
		"outcome", event.Outcome,
		"applied", result.Applied)
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]bool{"applied": result.Applied})
}

// VerifyIdentityEndpoint handles GET /webhooks/identity, the platform's
// endpoint ownership check: a correctly signed request gets its echostr back.
func (h *WebhookHandler) VerifyIdentityEndpoint(w http.ResponseWriter, r *http.Request) {
	if !h.identitySigned(r) {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid signature")
		return
	}
	shared.RespondWithText(w, http.StatusOK, r.URL.Query().Get("echostr"))
}

// IdentityEvent handles POST /webhooks/identity. Scan events confirm the
// pairing token in their scene. Every well-formed, signed push is
// acknowledged, including refused pairings.
func (h *WebhookHandler) IdentityEvent(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	if !h.identitySigned(r) {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid signature")
		return
	}

	body, err := readBody(r)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Malformed event", err)
		return
	}
	event, err := wechat.ParseEvent(body)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Malformed event", err)
		return
	}

	if err := h.subscriptions.HandleSubscriptionEvent(r.Context(), event); err != nil {
		// The platform redelivers on a non-success answer.
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, genericErrorMessage, err)
		return
	}

	log.Debug("identity event handled", "msg_type", event.MsgType, "event", event.Event)
	shared.RespondWithText(w, http.StatusOK, identityAck)
}

func (h *WebhookHandler) identitySigned(r *http.Request) bool {
	q := r.URL.Query()
	return wechat.VerifySignature(h.eventToken, q.Get("signature"), q.Get("timestamp"), q.Get("nonce"))
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxWebhookBodyBytes {
		return nil, errors.New("body too large")
	}
	return body, nil
}

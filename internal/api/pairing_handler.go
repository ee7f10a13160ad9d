package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/api/shared"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/pairing"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/service"
	"github.com/phrazzld/tryon-api/internal/store"
)

// PairingIssuer issues pairing tokens with scannable codes.
type PairingIssuer interface {
	Issue(ctx context.Context, hardwareID string) (*pairing.Issued, error)
}

// PairingStatusReader reports pairing token status.
type PairingStatusReader interface {
	GetPairingStatus(ctx context.Context, token string) (*pairing.Resolution, error)
}

// IdentityLookup finds the identity a device is paired with.
type IdentityLookup interface {
	LatestVerifiedForDevice(ctx context.Context, deviceID uuid.UUID) (*domain.Identity, error)
}

// SessionIssuer signs device session tokens.
type SessionIssuer interface {
	GenerateToken(ctx context.Context, deviceID, identityID uuid.UUID) (string, error)
}

// PairingHandler handles scan-code pairing for kiosks.
type PairingHandler struct {
	issuer     PairingIssuer
	status     PairingStatusReader
	identities IdentityLookup
	sessions   SessionIssuer
	logger     *slog.Logger
}

// NewPairingHandler creates a new PairingHandler
func NewPairingHandler(
	issuer PairingIssuer,
	status PairingStatusReader,
	identities IdentityLookup,
	sessions SessionIssuer,
	logger *slog.Logger,
) *PairingHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for PairingHandler")
	}
	return &PairingHandler{
		issuer:     issuer,
		status:     status,
		identities: identities,
		sessions:   sessions,
		logger:     logger.With(slog.String("component", "pairing_handler")),
	}
}

// IssueToken handles POST /api/pairing/tokens.
func (h *PairingHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	device, ok := requireDevice(w, r, logger.FromContextOrDefault(r.Context(), h.logger))
	if !ok {
		return
	}

	issued, err := h.issuer.Issue(r.Context(), device.HardwareID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, PairingTokenResponse{
		Token:        issued.Token,
		ExpiresAt:    issued.ExpiresAt,
		CodeURL:      issued.CodeURL,
		CodeImageURL: issued.CodeImageURL,
	})
}

// GetTokenStatus handles GET /api/pairing/tokens/{token}. Once the token is
// used, the device it was issued to receives a session token for the paired
// identity.
func (h *PairingHandler) GetTokenStatus(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	device, ok := requireDevice(w, r, log)
	if !ok {
		return
	}

	token := chi.URLParam(r, "token")
	if token == "" {
		HandleAPIError(w, r, domain.ErrEmptyPairingToken)
		return
	}

	res, err := h.status.GetPairingStatus(r.Context(), token)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if res.DeviceID != device.ID {
		HandleAPIError(w, r, service.ErrForbidden)
		return
	}

	resp := newPairingStatusResponse(res)
	if res.Status == domain.PairingStatusUsed {
		session, err := h.issueSession(r.Context(), device.ID)
		if err != nil {
			HandleAPIError(w, r, err)
			return
		}
		if session == "" {
			log.Warn("used pairing token has no verified identity", "device_id", device.ID)
		}
		resp.SessionToken = session
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// issueSession signs a session for the device's current identity. It returns
// an empty token when the device has no verified identity.
func (h *PairingHandler) issueSession(ctx context.Context, deviceID uuid.UUID) (string, error) {
	identity, err := h.identities.LatestVerifiedForDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			return "", nil
		}
		return "", err
	}
	return h.sessions.GenerateToken(ctx, deviceID, identity.ID)
}

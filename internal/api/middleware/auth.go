package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/api/shared"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/service"
	"github.com/phrazzld/tryon-api/internal/service/auth"
)

// DeviceIDHeader carries the hardware id of a kiosk without a session.
const DeviceIDHeader = "X-Device-ID"

// SessionValidator validates device session tokens.
type SessionValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (*auth.Claims, error)
}

// DeviceResolver finds the device behind a request.
type DeviceResolver interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Device, error)
	Ensure(ctx context.Context, hardwareID string) (*domain.Device, error)
}

// AuthMiddleware authenticates kiosk requests.
type AuthMiddleware struct {
	sessions SessionValidator
	devices  DeviceResolver
	logger   *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(sessions SessionValidator, devices DeviceResolver, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		sessions: sessions,
		devices:  devices,
		logger:   logger.With(slog.String("component", "auth_middleware")),
	}
}

// Authenticate accepts either a session token (Authorization: Bearer), which
// also carries the paired identity, or the X-Device-ID header of a kiosk that
// has not paired yet. Unknown hardware ids are registered on first contact.
// The device is added to the request context; inactive devices get 403.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.FromContextOrDefault(ctx, m.logger)

		var (
			device *domain.Device
			err    error
		)
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
				return
			}

			claims, verr := m.sessions.ValidateToken(ctx, strings.TrimSpace(token))
			if verr != nil {
				message := "Invalid token"
				if errors.Is(verr, auth.ErrExpiredToken) {
					message = "Session expired"
				}
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, message, verr)
				return
			}

			device, err = m.devices.Get(ctx, claims.DeviceID)
			if err == nil {
				ctx = shared.WithIdentityID(ctx, claims.IdentityID)
			}
		} else if hardwareID := strings.TrimSpace(r.Header.Get(DeviceIDHeader)); hardwareID != "" {
			device, err = m.devices.Ensure(ctx, hardwareID)
		} else {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Device authentication required")
			return
		}

		if err != nil {
			switch {
			case errors.Is(err, service.ErrDeviceNotFound):
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Unknown device", err)
			case errors.Is(err, domain.ErrValidation):
				shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid device id", err)
			default:
				shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Authentication error", err)
			}
			return
		}
		if !device.Active {
			log.Info("rejected request from inactive device", "device_id", device.ID)
			shared.RespondWithError(w, r, http.StatusForbidden, "Device is inactive")
			return
		}

		ctx = shared.WithDevice(ctx, device)
		ctx = logger.WithLogger(ctx, log.With(slog.String("device_id", device.ID.String())))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

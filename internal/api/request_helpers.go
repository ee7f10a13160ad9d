package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/api/shared"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
)

// Paging bounds for list endpoints.
const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// getPathUUID extracts a UUID from the URL path parameters.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrValidation)
	}
	return id, nil
}

// requireDevice returns the device the auth middleware placed in the
// context. It writes a 401 and returns false when there is none.
func requireDevice(w http.ResponseWriter, r *http.Request, log *slog.Logger) (*domain.Device, bool) {
	if log == nil {
		log = logger.FromContextOrDefault(r.Context(), slog.Default())
	}
	device, ok := shared.DeviceFromContext(r.Context())
	if !ok {
		log.Warn("device not found in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Device authentication required")
		return nil, false
	}
	return device, true
}

// requireDeviceAndPathUUID combines requireDevice and getPathUUID, writing
// the error response when either fails.
func requireDeviceAndPathUUID(
	w http.ResponseWriter,
	r *http.Request,
	paramName string,
	log *slog.Logger,
) (*domain.Device, uuid.UUID, bool) {
	device, ok := requireDevice(w, r, log)
	if !ok {
		return nil, uuid.Nil, false
	}
	id, err := getPathUUID(r, paramName)
	if err != nil {
		HandleAPIError(w, r, err)
		return nil, uuid.Nil, false
	}
	return device, id, true
}

// pagination reads limit and offset query parameters, clamping limit to
// maxPageLimit. Malformed values are a validation error.
func pagination(r *http.Request) (limit, offset int, err error) {
	limit, offset = defaultPageLimit, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, domain.NewValidationError("limit", "must be a positive integer", domain.ErrValidation)
		}
		if limit > maxPageLimit {
			limit = maxPageLimit
		}
	}
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, domain.NewValidationError("offset", "must be a non-negative integer", domain.ErrValidation)
		}
	}
	return limit, offset, nil
}

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/api/shared"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
)

// DeviceAdmin administers kiosks.
type DeviceAdmin interface {
	List(ctx context.Context, limit, offset int) ([]*domain.Device, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Device, error)
	SetAffiliateID(ctx context.Context, id uuid.UUID, affiliateID *string) (*domain.Device, error)
}

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	devices DeviceAdmin
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(devices DeviceAdmin, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for AdminHandler")
	}
	return &AdminHandler{
		devices: devices,
		logger:  logger.With(slog.String("component", "admin_handler")),
	}
}

// ListDevices handles GET /api/admin/devices.
func (h *AdminHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	devices, err := h.devices.List(r.Context(), limit, offset)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	resp := DeviceListResponse{Devices: make([]DeviceResponse, 0, len(devices)), Limit: limit, Offset: offset}
	for _, d := range devices {
		resp.Devices = append(resp.Devices, newDeviceResponse(d))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// SetDeviceStatus handles PATCH /api/admin/devices/{id}/status.
func (h *AdminHandler) SetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	var req SetDeviceStatusRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		handleValidationError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		handleValidationError(w, r, err)
		return
	}

	device, err := h.devices.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	log.Info("operator changed device status", "device_id", id, "active", *req.Active)
	shared.RespondWithJSON(w, r, http.StatusOK, newDeviceResponse(device))
}

// SetDeviceAffiliate handles PATCH /api/admin/devices/{id}/affiliate.
func (h *AdminHandler) SetDeviceAffiliate(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	var req SetAffiliateRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		handleValidationError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		handleValidationError(w, r, err)
		return
	}

	device, err := h.devices.SetAffiliateID(r.Context(), id, req.AffiliateID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newDeviceResponse(device))
}

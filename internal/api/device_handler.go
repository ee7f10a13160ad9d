package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/phrazzld/tryon-api/internal/api/shared"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
)

// DeviceRegistrar registers kiosks on first contact.
type DeviceRegistrar interface {
	Register(ctx context.Context, hardwareID, label string) (*domain.Device, bool, error)
}

// DeviceHandler handles kiosk registration.
type DeviceHandler struct {
	devices DeviceRegistrar
	logger  *slog.Logger
}

// NewDeviceHandler creates a new DeviceHandler
func NewDeviceHandler(devices DeviceRegistrar, logger *slog.Logger) *DeviceHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for DeviceHandler")
	}
	return &DeviceHandler{
		devices: devices,
		logger:  logger.With(slog.String("component", "device_handler")),
	}
}

// Register handles POST /api/devices. It answers 201 for a new device and
// 200 when the hardware id was already known.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req RegisterDeviceRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		handleValidationError(w, r, err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		handleValidationError(w, r, err)
		return
	}

	device, created, err := h.devices.Register(r.Context(), req.HardwareID, req.Label)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		log.Debug("device registered through api", "device_id", device.ID)
	}
	shared.RespondWithJSON(w, r, status, newDeviceResponse(device))
}

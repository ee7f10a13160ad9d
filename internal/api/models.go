package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/pairing"
	"github.com/phrazzld/tryon-api/internal/service"
)

// Common request/response structures

// RegisterDeviceRequest is the first-contact payload of a kiosk.
type RegisterDeviceRequest struct {
	HardwareID string `json:"hardware_id" validate:"required,max=128"`
	Label      string `json:"label"       validate:"max=128"`
}

// DeviceResponse describes a kiosk.
type DeviceResponse struct {
	ID          uuid.UUID `json:"id"`
	HardwareID  string    `json:"hardware_id"`
	Label       string    `json:"label,omitempty"`
	Active      bool      `json:"active"`
	AffiliateID *string   `json:"affiliate_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DeviceListResponse is a page of devices.
type DeviceListResponse struct {
	Devices []DeviceResponse `json:"devices"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// SetDeviceStatusRequest enables or disables a device.
type SetDeviceStatusRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// SetAffiliateRequest sets a device's affiliate id; null or blank clears it.
type SetAffiliateRequest struct {
	AffiliateID *string `json:"affiliate_id" validate:"omitempty,max=64"`
}

// PairingTokenResponse is returned when a kiosk asks for a new scan code.
type PairingTokenResponse struct {
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	CodeURL      string    `json:"code_url"`
	CodeImageURL string    `json:"code_image_url"`
}

// PairingStatusResponse reports a token's status to the polling kiosk.
// SessionToken is set once the token is used, and only for the device the
// token was issued to.
type PairingStatusResponse struct {
	Token        string               `json:"token"`
	Status       domain.PairingStatus `json:"status"`
	ExpiresAt    time.Time            `json:"expires_at"`
	SessionToken string               `json:"session_token,omitempty"`
}

// PhotoResponse carries the reference of an uploaded photo.
type PhotoResponse struct {
	PhotoRef string `json:"photo_ref"`
}

// GarmentRequest is one garment of a try-on request.
type GarmentRequest struct {
	ImageRef    string `json:"image_ref"              validate:"required"`
	Category    string `json:"category"               validate:"required,oneof=top bottom dress"`
	PurchaseURL string `json:"purchase_url,omitempty" validate:"omitempty,url"`
}

// CreateTaskRequest starts a try-on render.
type CreateTaskRequest struct {
	PhotoRef string           `json:"photo_ref" validate:"required"`
	Garments []GarmentRequest `json:"garments"  validate:"required,min=1,max=2,dive"`
}

// TaskResponse describes a try-on task as a kiosk sees it.
type TaskResponse struct {
	ID          uuid.UUID         `json:"id"`
	Status      domain.TaskStatus `json:"status"`
	Garments    []domain.Garment  `json:"garments"`
	ResultURL   string            `json:"result_url,omitempty"`
	ErrorDetail *string           `json:"error_detail,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TaskListResponse is a page of a device's tasks.
type TaskListResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func (req CreateTaskRequest) garments() []domain.Garment {
	garments := make([]domain.Garment, 0, len(req.Garments))
	for _, g := range req.Garments {
		garments = append(garments, domain.Garment{
			ImageRef:    g.ImageRef,
			Category:    domain.GarmentCategory(g.Category),
			PurchaseURL: g.PurchaseURL,
		})
	}
	return garments
}

func newDeviceResponse(d *domain.Device) DeviceResponse {
	return DeviceResponse{
		ID:          d.ID,
		HardwareID:  d.HardwareID,
		Label:       d.Label,
		Active:      d.Active,
		AffiliateID: d.AffiliateID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// newTaskResponse builds the kiosk view of a task. Storage references never
// leave the service; only the resolved result URL does.
func newTaskResponse(v *service.TaskView) TaskResponse {
	t := v.Task
	return TaskResponse{
		ID:          t.ID,
		Status:      t.Status,
		Garments:    t.Garments,
		ResultURL:   v.ResultURL,
		ErrorDetail: t.ErrorDetail,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func newPairingStatusResponse(res *pairing.Resolution) PairingStatusResponse {
	return PairingStatusResponse{
		Token:     res.Token,
		Status:    res.Status,
		ExpiresAt: res.ExpiresAt,
	}
}

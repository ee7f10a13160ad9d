package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a try-on task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// GarmentCategory is the body region a garment covers.
type GarmentCategory string

// Supported garment categories
const (
	GarmentTop    GarmentCategory = "top"
	GarmentBottom GarmentCategory = "bottom"
	GarmentDress  GarmentCategory = "dress"
)

// MaxGarmentsPerTask is the most garments a single render can combine.
const MaxGarmentsPerTask = 2

// Common validation errors for Task
var (
	ErrEmptyTaskID           = fmt.Errorf("%w: task ID cannot be empty", ErrValidation)
	ErrEmptyTaskDeviceID     = fmt.Errorf("%w: task device ID cannot be empty", ErrValidation)
	ErrEmptyPhotoRef         = fmt.Errorf("%w: photo reference cannot be empty", ErrValidation)
	ErrInvalidTaskStatus     = fmt.Errorf("%w: invalid task status", ErrValidation)
	ErrGarmentCount          = fmt.Errorf("%w: a task needs one or two garments", ErrValidation)
	ErrInvalidGarment        = fmt.Errorf("%w: invalid garment", ErrValidation)
	ErrGarmentCombination    = fmt.Errorf("%w: two garments must be one top and one bottom", ErrValidation)
	ErrResultOutsideComplete = fmt.Errorf("%w: result location is only set on completed tasks", ErrValidation)
)

// Garment is one clothing item to render onto the shopper's photo.
type Garment struct {
	ImageRef    string          `json:"image_ref"`
	Category    GarmentCategory `json:"category"`
	PurchaseURL string          `json:"purchase_url,omitempty"`
}

// Task is one try-on render request, owned by the device that created it.
// Its status only changes through the compare-and-set transition of the
// task store.
type Task struct {
	ID             uuid.UUID  `json:"id"`
	DeviceID       uuid.UUID  `json:"device_id"`
	IdentityID     *uuid.UUID `json:"identity_id,omitempty"`
	Garments       []Garment  `json:"garments"`
	PhotoRef       string     `json:"photo_ref"`
	ExternalJobID  *string    `json:"external_job_id,omitempty"`
	Status         TaskStatus `json:"status"`
	ResultLocation *string    `json:"result_location,omitempty"`
	ErrorDetail    *string    `json:"error_detail,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TransitionFields carries the data a transition writes alongside the status.
// Nil fields are left untouched.
type TransitionFields struct {
	ExternalJobID  *string
	ResultLocation *string
	ErrorDetail    *string
}

// NewTask creates a pending Task.
func NewTask(deviceID uuid.UUID, identityID *uuid.UUID, photoRef string, garments []Garment) (*Task, error) {
	now := time.Now().UTC()
	t := &Task{
		ID:         uuid.New(),
		DeviceID:   deviceID,
		IdentityID: identityID,
		Garments:   garments,
		PhotoRef:   strings.TrimSpace(photoRef),
		Status:     TaskStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.DeviceID == uuid.Nil {
		return ErrEmptyTaskDeviceID
	}
	if t.PhotoRef == "" {
		return ErrEmptyPhotoRef
	}
	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}
	if t.ResultLocation != nil && t.Status != TaskStatusCompleted {
		return ErrResultOutsideComplete
	}
	return ValidateGarments(t.Garments)
}

// ValidateGarments checks the garment set of a task.
func ValidateGarments(garments []Garment) error {
	if len(garments) == 0 || len(garments) > MaxGarmentsPerTask {
		return ErrGarmentCount
	}
	for i, g := range garments {
		if strings.TrimSpace(g.ImageRef) == "" {
			return fmt.Errorf("%w: garment %d has no image", ErrInvalidGarment, i)
		}
		if !g.Category.IsValid() {
			return fmt.Errorf("%w: garment %d has unknown category %q", ErrInvalidGarment, i, g.Category)
		}
		if g.PurchaseURL != "" {
			if u, err := url.Parse(g.PurchaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("%w: garment %d has a malformed purchase URL", ErrInvalidGarment, i)
			}
		}
	}
	if len(garments) == 2 {
		a, b := garments[0].Category, garments[1].Category
		if !((a == GarmentTop && b == GarmentBottom) || (a == GarmentBottom && b == GarmentTop)) {
			return ErrGarmentCombination
		}
	}
	return nil
}

// IsValid reports whether c is a supported garment category.
func (c GarmentCategory) IsValid() bool {
	switch c {
	case GarmentTop, GarmentBottom, GarmentDress:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is a known task status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition can leave s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusProcessing, TaskStatusFailed, TaskStatusCancelled},
	TaskStatusProcessing: {TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled},
}

// CheckTransition validates a task status change together with the fields it
// writes. Returns an error wrapping ErrInvalidTransition when the edge is not
// allowed or the fields do not match what the edge requires.
func CheckTransition(from, to TaskStatus, f TransitionFields) error {
	allowed := false
	for _, next := range taskTransitions[from] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: task %s -> %s", ErrInvalidTransition, from, to)
	}

	switch {
	case to == TaskStatusProcessing && (f.ExternalJobID == nil || *f.ExternalJobID == ""):
		return fmt.Errorf("%w: processing requires an external job id", ErrInvalidTransition)
	case to != TaskStatusProcessing && f.ExternalJobID != nil:
		return fmt.Errorf("%w: external job id is only assigned on submission", ErrInvalidTransition)
	case to == TaskStatusCompleted && (f.ResultLocation == nil || *f.ResultLocation == ""):
		return fmt.Errorf("%w: completed requires a result location", ErrInvalidTransition)
	case to != TaskStatusCompleted && f.ResultLocation != nil:
		return fmt.Errorf("%w: result location on %s", ErrInvalidTransition, to)
	case to == TaskStatusFailed && (f.ErrorDetail == nil || *f.ErrorDetail == ""):
		return fmt.Errorf("%w: failed requires an error detail", ErrInvalidTransition)
	}
	return nil
}

// Apply writes a transition onto t. Callers check the transition first.
func (t *Task) Apply(to TaskStatus, f TransitionFields, at time.Time) {
	t.Status = to
	if f.ExternalJobID != nil {
		t.ExternalJobID = f.ExternalJobID
	}
	if f.ResultLocation != nil {
		t.ResultLocation = f.ResultLocation
	}
	if f.ErrorDetail != nil {
		t.ErrorDetail = f.ErrorDetail
	}
	t.UpdatedAt = at.UTC()
}

// PrimaryPurchaseURL returns the first purchase link among the garments.
func (t *Task) PrimaryPurchaseURL() string {
	for _, g := range t.Garments {
		if g.PurchaseURL != "" {
			return g.PurchaseURL
		}
	}
	return ""
}

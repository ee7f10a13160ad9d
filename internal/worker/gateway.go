package worker

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
)

// GarmentInput is one garment image the worker can fetch.
type GarmentInput struct {
	ImageURL string
	Category domain.GarmentCategory
}

// SubmitRequest is everything the worker needs to render one task.
type SubmitRequest struct {
	TaskID      uuid.UUID
	PhotoURL    string
	Garments    []GarmentInput
	CallbackURL string
}

// Gateway submits render jobs to an external worker.
// Version: 1.0
type Gateway interface {
	// Submit starts a render job and returns the worker's job id.
	// Errors wrap ErrUnavailable or ErrRejected.
	Submit(ctx context.Context, req SubmitRequest) (string, error)

	// Cancel asks the worker to stop a job. It is best effort: failures are
	// logged by the implementation and never returned.
	Cancel(ctx context.Context, externalJobID string)
}

// Category collapses the garments of one request into the single body region
// the worker should replace.
func Category(garments []GarmentInput) string {
	if len(garments) > 1 {
		return "full_body"
	}
	if len(garments) == 0 {
		return ""
	}
	switch garments[0].Category {
	case domain.GarmentTop:
		return "upper_body"
	case domain.GarmentBottom:
		return "lower_body"
	case domain.GarmentDress:
		return "dresses"
	default:
		return string(garments[0].Category)
	}
}

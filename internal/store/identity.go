package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
)

// IdentityStore defines the interface for identity persistence.
// Version: 1.0
type IdentityStore interface {
	// Link records that externalID verified ownership of a pairing on
	// deviceID at linkedAt. Linking the same pair again is idempotent and
	// never moves linked_at backwards.
	Link(ctx context.Context, externalID string, deviceID uuid.UUID, linkedAt time.Time) (*domain.Identity, error)

	// GetLink returns the identity linking externalID to deviceID.
	// Returns ErrIdentityNotFound if the pair was never linked.
	GetLink(ctx context.Context, externalID string, deviceID uuid.UUID) (*domain.Identity, error)

	// GetByID retrieves an identity by its unique ID.
	// Returns ErrIdentityNotFound if the identity does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error)

	// LatestVerifiedForDevice returns the most recently linked verified
	// identity of a device.
	// Returns ErrIdentityNotFound if the device has never been paired.
	LatestVerifiedForDevice(ctx context.Context, deviceID uuid.UUID) (*domain.Identity, error)
}

package store

import (
	"context"
	"time"

	"github.com/phrazzld/tryon-api/internal/domain"
)

// PairingFields carries the data written by the active -> used edge.
type PairingFields struct {
	IdentityExternalID string
}

// PairingStore defines the interface for pairing token persistence.
// Version: 1.0
type PairingStore interface {
	// Issue stores a new active token, atomically expiring any token still
	// active for the same device. Returns how many tokens it expired.
	Issue(ctx context.Context, token *domain.PairingToken) (int, error)

	// Get retrieves a token.
	// Returns ErrPairingTokenNotFound if the token does not exist.
	Get(ctx context.Context, token string) (*domain.PairingToken, error)

	// Transition atomically moves the token from expected to next.
	// The active -> used edge only succeeds while the token is unexpired at
	// now. Returns ErrStaleTransition when either condition fails and
	// ErrPairingTokenNotFound if the token does not exist.
	Transition(
		ctx context.Context,
		token string,
		expected, next domain.PairingStatus,
		fields PairingFields,
		now time.Time,
	) (*domain.PairingToken, error)

	// ExpireOverdue marks every active token whose lifetime has elapsed at
	// now as expired and returns how many it changed.
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

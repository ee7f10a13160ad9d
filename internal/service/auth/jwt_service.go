package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JWTService issues and validates device session tokens. A session is
// issued to a kiosk once a shopper has paired with it and ties the device's
// subsequent requests to that shopper's identity.
type JWTService interface {
	// GenerateToken creates a signed session token for deviceID acting on
	// behalf of identityID.
	GenerateToken(ctx context.Context, deviceID, identityID uuid.UUID) (string, error)

	// ValidateToken validates the provided token string and extracts the claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid or ErrInvalidToken on failure.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the validated content of a device session token.
type Claims struct {
	DeviceID   uuid.UUID `json:"did"`
	IdentityID uuid.UUID `json:"iid"`

	// Standard registered JWT claims
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

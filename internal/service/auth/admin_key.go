package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyVerifier checks operator keys against a bcrypt hash produced by
// cmd/hash-generator.
type AdminKeyVerifier struct {
	hash []byte
}

// NewAdminKeyVerifier creates a verifier for hash. An empty hash rejects
// every key, which disables the admin API.
func NewAdminKeyVerifier(hash string) *AdminKeyVerifier {
	return &AdminKeyVerifier{hash: []byte(hash)}
}

// Enabled reports whether an admin key hash is configured.
func (v *AdminKeyVerifier) Enabled() bool {
	return len(v.hash) > 0
}

// Verify returns nil when key matches the configured hash.
func (v *AdminKeyVerifier) Verify(key string) error {
	if !v.Enabled() || key == "" {
		return ErrInvalidAdminKey
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(key)); err != nil {
		return ErrInvalidAdminKey
	}
	return nil
}

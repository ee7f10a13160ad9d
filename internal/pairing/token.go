package pairing

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// tokenBytes of entropy encode to a 32 character URL-safe scene string,
// within the provider's 64 character scene limit.
const tokenBytes = 24

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate pairing token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAdminKeyVerifier(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("operator-key"), bcrypt.MinCost)
	require.NoError(t, err)

	v := NewAdminKeyVerifier(string(hash))
	assert.True(t, v.Enabled())
	assert.NoError(t, v.Verify("operator-key"))
	assert.ErrorIs(t, v.Verify("guess"), ErrInvalidAdminKey)
	assert.ErrorIs(t, v.Verify(""), ErrInvalidAdminKey)

	disabled := NewAdminKeyVerifier("")
	assert.False(t, disabled.Enabled())
	assert.ErrorIs(t, disabled.Verify("operator-key"), ErrInvalidAdminKey)
}

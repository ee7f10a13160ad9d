package worker

import (
	"testing"

	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
)

func TestSignatureVerifier(t *testing.T) {
	body := []byte(`{"id":"job-1","status":"succeeded"}`)

	t.Run("valid signature", func(t *testing.T) {
		v := NewSignatureVerifier("shh", nil)
		assert.NoError(t, v.Verify(Sign("shh", body), body))
	})

	t.Run("tampered body", func(t *testing.T) {
		v := NewSignatureVerifier("shh", nil)
		assert.ErrorIs(t, v.Verify(Sign("shh", body), []byte(`{}`)), ErrInvalidSignature)
	})

	t.Run("wrong secret", func(t *testing.T) {
		v := NewSignatureVerifier("shh", nil)
		assert.ErrorIs(t, v.Verify(Sign("other", body), body), ErrInvalidSignature)
	})

	t.Run("missing header", func(t *testing.T) {
		v := NewSignatureVerifier("shh", nil)
		assert.ErrorIs(t, v.Verify("", body), ErrInvalidSignature)
	})

	t.Run("not hex", func(t *testing.T) {
		v := NewSignatureVerifier("shh", nil)
		assert.ErrorIs(t, v.Verify("sha256=zz", body), ErrInvalidSignature)
	})

	t.Run("no secret accepts with warning", func(t *testing.T) {
		buf, log := logger.NewTestLogger(t)
		v := NewSignatureVerifier("", log)

		assert.False(t, v.Enabled())
		assert.NoError(t, v.Verify("", body))
		logger.AssertLogContains(t, buf, "verification disabled")
	})
}

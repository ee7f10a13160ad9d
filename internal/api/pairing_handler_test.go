package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) pairingHandler() *PairingHandler {
	return NewPairingHandler(f.pairings, f.queries, f.identities, f.jwt, f.log)
}

func (f *fixture) issueToken(t *testing.T, h *PairingHandler, device *domain.Device) PairingTokenResponse {
	t.Helper()
	req := asDevice(httptest.NewRequest(http.MethodPost, "/api/pairing/tokens", nil), device)
	rec := httptest.NewRecorder()
	h.IssueToken(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[PairingTokenResponse](t, rec)
}

func tokenStatus(h *PairingHandler, device *domain.Device, token string) *httptest.ResponseRecorder {
	req := asDevice(httptest.NewRequest(http.MethodGet, "/api/pairing/tokens/"+token, nil), device)
	return serve(http.MethodGet, "/api/pairing/tokens/{token}", h.GetTokenStatus, req)
}

func TestPairingHandler_IssueToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := f.pairingHandler()

	issued := f.issueToken(t, h, f.device)

	assert.NotEmpty(t, issued.Token)
	assert.Equal(t, "https://qr.test/"+issued.Token, issued.CodeURL)
	assert.False(t, issued.ExpiresAt.IsZero())
}

func TestPairingHandler_IssueTokenInactiveDevice(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := f.pairingHandler()
	ctx := context.Background()

	inactive, err := f.devices.SetActive(ctx, f.device.ID, false)
	require.NoError(t, err)

	req := asDevice(httptest.NewRequest(http.MethodPost, "/api/pairing/tokens", nil), inactive)
	rec := httptest.NewRecorder()
	h.IssueToken(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPairingHandler_GetTokenStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := f.pairingHandler()
	ctx := context.Background()

	var sessionFor struct{ device, identity uuid.UUID }
	f.jwt.GenerateTokenFn = func(_ context.Context, deviceID, identityID uuid.UUID) (string, error) {
		sessionFor.device, sessionFor.identity = deviceID, identityID
		return "session-token", nil
	}

	issued := f.issueToken(t, h, f.device)

	rec := tokenStatus(h, f.device, issued.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	active := decode[PairingStatusResponse](t, rec)
	assert.Equal(t, domain.PairingStatusActive, active.Status)
	assert.Empty(t, active.SessionToken)

	identity, err := f.pairings.Confirm(ctx, issued.Token, "openid-1")
	require.NoError(t, err)

	rec = tokenStatus(h, f.device, issued.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	used := decode[PairingStatusResponse](t, rec)
	assert.Equal(t, domain.PairingStatusUsed, used.Status)
	assert.Equal(t, "session-token", used.SessionToken)
	assert.Equal(t, f.device.ID, sessionFor.device)
	assert.Equal(t, identity.ID, sessionFor.identity)
	assert.NotContains(t, rec.Body.String(), "openid-1", "external identity stays internal")
}

func TestPairingHandler_GetTokenStatusRefusals(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := f.pairingHandler()

	issued := f.issueToken(t, h, f.device)
	other, err := f.devices.Ensure(context.Background(), "kiosk-2")
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, tokenStatus(h, other, issued.Token).Code)
	assert.Equal(t, http.StatusNotFound, tokenStatus(h, f.device, "no-such-token").Code)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/tryon-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRequireAdminKey(t *testing.T) {
	t.Parallel()

	hash, err := bcrypt.GenerateFromPassword([]byte("operator-key"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name           string
		hash           string
		key            string
		expectedStatus int
	}{
		{name: "valid key", hash: string(hash), key: "operator-key", expectedStatus: http.StatusOK},
		{name: "wrong key", hash: string(hash), key: "guess", expectedStatus: http.StatusUnauthorized},
		{name: "missing key", hash: string(hash), expectedStatus: http.StatusUnauthorized},
		{name: "admin not configured", key: "operator-key", expectedStatus: http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			handler := RequireAdminKey(auth.NewAdminKeyVerifier(tc.hash))(
				http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusOK)
				}))

			req := httptest.NewRequest(http.MethodGet, "/api/admin/devices", nil)
			if tc.key != "" {
				req.Header.Set(AdminKeyHeader, tc.key)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.expectedStatus, rec.Code)
		})
	}
}

package middleware

import (
	"net/http"

	"github.com/phrazzld/tryon-api/internal/api/shared"
)

// AdminKeyHeader carries the operator key on admin routes.
const AdminKeyHeader = "X-Admin-Key"

// AdminKeyChecker verifies an operator key.
type AdminKeyChecker interface {
	Enabled() bool
	Verify(key string) error
}

// RequireAdminKey rejects requests without a valid X-Admin-Key. When no
// admin key is configured, admin routes are closed.
func RequireAdminKey(checker AdminKeyChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !checker.Enabled() {
				shared.RespondWithError(w, r, http.StatusServiceUnavailable, "Admin access is not configured")
				return
			}
			if err := checker.Verify(r.Header.Get(AdminKeyHeader)); err != nil {
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid admin key", err,
					shared.WithElevatedLogLevel())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

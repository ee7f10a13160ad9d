package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/tryon-api/internal/api/shared"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
)

func TestTraceMiddleware(t *testing.T) {
	buf, log := logger.NewTestLogger(t)

	var seen string
	handler := TraceMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

	assert.Len(t, seen, 32)
	assert.Equal(t, seen, rec.Header().Get("X-Trace-ID"))
	logger.AssertLogContains(t, buf, `"trace_id":"`+seen+`"`)
	logger.AssertLogContains(t, buf, "inside handler")
}

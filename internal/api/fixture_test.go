package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/tryon-api/internal/api/shared"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/events"
	"github.com/phrazzld/tryon-api/internal/mocks"
	"github.com/phrazzld/tryon-api/internal/pairing"
	"github.com/phrazzld/tryon-api/internal/platform/memory"
	"github.com/phrazzld/tryon-api/internal/service"
	"github.com/phrazzld/tryon-api/internal/worker"
	"github.com/stretchr/testify/require"
)

// fixture wires the real services over in-memory stores.
type fixture struct {
	log        *slog.Logger
	devices    *service.DeviceService
	identities *memory.IdentityStore
	tasks      *memory.TaskStore
	gateway    *mocks.MockGateway
	jwt        *mocks.MockJWTService
	orch       *service.Orchestrator
	queries    *service.QueryService
	pairings   *pairing.Manager
	device     *domain.Device
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		log:        log,
		identities: memory.NewIdentityStore(),
		tasks:      memory.NewTaskStore(),
		gateway: &mocks.MockGateway{
			SubmitFn: func(_ context.Context, req worker.SubmitRequest) (string, error) {
				return "job-" + req.TaskID.String(), nil
			},
		},
		jwt: &mocks.MockJWTService{Token: "session-token"},
	}

	var err error
	f.devices, err = service.NewDeviceService(memory.NewDeviceStore(), 0, 0, log)
	require.NoError(t, err)

	urls := &mocks.MockURLResolver{}
	f.orch, err = service.NewOrchestrator(f.tasks, f.gateway, urls, events.NewInMemoryEmitter(log),
		service.OrchestratorConfig{CallbackURL: "https://api.test/webhooks/worker", TaskTimeout: time.Minute}, log)
	require.NoError(t, err)

	f.pairings, err = pairing.NewManager(memory.NewPairingStore(), f.identities, f.devices,
		&mocks.MockCodeIssuer{}, 5*time.Minute, log)
	require.NoError(t, err)

	f.queries, err = service.NewQueryService(f.tasks, urls, f.pairings, log)
	require.NoError(t, err)

	f.device, err = f.devices.Ensure(ctx, "kiosk-1")
	require.NoError(t, err)
	return f
}

// asDevice authenticates req as device, as the auth middleware would.
func asDevice(req *http.Request, device *domain.Device) *http.Request {
	return req.WithContext(shared.WithDevice(req.Context(), device))
}

// serve routes req through a router holding only pattern, so chi URL
// parameters resolve.
func serve(method, pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

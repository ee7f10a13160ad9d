package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/tryon-api/internal/api"
	apiMiddleware "github.com/phrazzld/tryon-api/internal/api/middleware"
	"github.com/phrazzld/tryon-api/internal/platform/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routes holds everything the router mounts.
type routes struct {
	devices   *api.DeviceHandler
	pairings  *api.PairingHandler
	photos    *api.PhotoHandler
	tasks     *api.TaskHandler
	webhooks  *api.WebhookHandler
	admin     *api.AdminHandler
	auth      *apiMiddleware.AuthMiddleware
	adminKeys apiMiddleware.AdminKeyChecker
	logger    *slog.Logger
}

// setupRouter creates the API handlers from the application's services and
// mounts them.
func (app *application) setupRouter() http.Handler {
	logger := app.logger
	return newRouter(routes{
		devices:  api.NewDeviceHandler(app.devices, logger),
		pairings: api.NewPairingHandler(app.pairings, app.queries, app.identityStore, app.jwtService, logger),
		photos: api.NewPhotoHandler(app.objects, storage.PhotoLimits{
			MaxBytes:  app.config.Storage.MaxPhotoBytes,
			MaxPixels: app.config.Storage.MaxPhotoPixels,
		}, logger),
		tasks:     api.NewTaskHandler(app.orchestrator, app.queries, logger),
		webhooks:  api.NewWebhookHandler(app.orchestrator, app.webhookVerify, app.pairings, app.config.Identity.EventToken, logger),
		admin:     api.NewAdminHandler(app.devices, logger),
		auth:      apiMiddleware.NewAuthMiddleware(app.jwtService, app.devices, logger),
		adminKeys: app.adminKeys,
		logger:    logger,
	})
}

// newRouter builds the chi router with all routes and middleware.
func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(rt.logger))
	r.Use(apiMiddleware.MetricsMiddleware())

	r.Route("/api", func(r chi.Router) {
		r.Post("/devices", rt.devices.Register)

		// Kiosk routes
		r.Group(func(r chi.Router) {
			r.Use(rt.auth.Authenticate)

			r.Post("/pairing/tokens", rt.pairings.IssueToken)
			r.Get("/pairing/tokens/{token}", rt.pairings.GetTokenStatus)

			r.Post("/photos", rt.photos.Upload)

			r.Post("/tasks", rt.tasks.CreateTask)
			r.Get("/tasks", rt.tasks.ListTasks)
			r.Get("/tasks/{id}", rt.tasks.GetTask)
			r.Post("/tasks/{id}/cancel", rt.tasks.CancelTask)
		})

		// Operator routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(apiMiddleware.RequireAdminKey(rt.adminKeys))

			r.Get("/devices", rt.admin.ListDevices)
			r.Patch("/devices/{id}/status", rt.admin.SetDeviceStatus)
			r.Patch("/devices/{id}/affiliate", rt.admin.SetDeviceAffiliate)
		})
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/worker", rt.webhooks.WorkerWebhook)
		r.Get("/identity", rt.webhooks.VerifyIdentityEndpoint)
		r.Post("/identity", rt.webhooks.IdentityEvent)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			rt.logger.Error("failed to write health check response", "error", err)
		}
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

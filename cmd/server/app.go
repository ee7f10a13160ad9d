package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/phrazzld/tryon-api/internal/config"
	"github.com/phrazzld/tryon-api/internal/events"
	"github.com/phrazzld/tryon-api/internal/jobs"
	"github.com/phrazzld/tryon-api/internal/notify"
	"github.com/phrazzld/tryon-api/internal/pairing"
	"github.com/phrazzld/tryon-api/internal/platform/gemini"
	"github.com/phrazzld/tryon-api/internal/platform/postgres"
	"github.com/phrazzld/tryon-api/internal/platform/redis"
	"github.com/phrazzld/tryon-api/internal/platform/storage"
	"github.com/phrazzld/tryon-api/internal/platform/telemetry"
	"github.com/phrazzld/tryon-api/internal/platform/wechat"
	"github.com/phrazzld/tryon-api/internal/service"
	"github.com/phrazzld/tryon-api/internal/service/auth"
	"github.com/phrazzld/tryon-api/internal/store"
	"github.com/phrazzld/tryon-api/internal/worker"
	goredis "github.com/redis/go-redis/v9"
)

// WebhookPath is where the render worker posts status callbacks.
const WebhookPath = "/webhooks/worker"

// drainTimeout bounds how long shutdown waits for queued background jobs.
const drainTimeout = 20 * time.Second

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *goredis.Client

	// Stores
	deviceStore   store.DeviceStore
	identityStore store.IdentityStore
	pairingStore  store.PairingStore
	taskStore     store.TaskStore

	// Adapters to external systems
	objects       *storage.S3Store
	identity      *wechat.Client
	gateway       worker.Gateway
	webhookVerify *worker.SignatureVerifier

	// Services
	jwtService    auth.JWTService
	adminKeys     *auth.AdminKeyVerifier
	devices       *service.DeviceService
	orchestrator  *service.Orchestrator
	queries       *service.QueryService
	pairings      *pairing.Manager
	eventEmitter  *events.InMemoryEmitter
	notifications *notify.Dispatcher

	// Background execution
	notifyQueue *jobs.Queue
	notifyPool  *jobs.WorkerPool
	renderQueue *jobs.Queue
	renderPool  *jobs.WorkerPool
	runners     []*jobs.PeriodicRunner

	shutdownTelemetry telemetry.ShutdownFunc
}

// newApplication creates a new application instance with all dependencies initialized.
// It accepts core dependencies like configuration, logger, and database connection that
// must be established before application initialization.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	app.adminKeys = auth.NewAdminKeyVerifier(cfg.Auth.AdminKeyHash)
	if !app.adminKeys.Enabled() {
		logger.Warn("no admin key hash configured, admin routes are disabled")
	}

	if err := app.setupStores(ctx); err != nil {
		return nil, err
	}

	app.objects, err = storage.NewS3Store(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage: %w", err)
	}

	app.identity = wechat.NewClient(ctx, cfg.Identity, &http.Client{Timeout: 10 * time.Second}, logger)
	app.webhookVerify = worker.NewSignatureVerifier(cfg.Worker.WebhookSecret, logger)

	var renderWorker *gemini.RenderWorker
	app.gateway, renderWorker, err = app.setupGateway(ctx)
	if err != nil {
		return nil, err
	}

	app.devices, err = service.NewDeviceService(app.deviceStore, 0, 0, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create device service: %w", err)
	}

	app.eventEmitter = events.NewInMemoryEmitter(logger)
	app.notifications, err = notify.NewDispatcher(app.identityStore, app.objects, app.identity, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification dispatcher: %w", err)
	}
	app.notifyQueue = jobs.NewQueue(cfg.Task.NotifyQueueSize, logger.With("queue", "notify"))
	app.eventEmitter.RegisterHandler(notify.NewCompletionHandler(app.notifications, app.notifyQueue, logger))

	app.orchestrator, err = service.NewOrchestrator(
		app.taskStore,
		app.gateway,
		app.objects,
		app.eventEmitter,
		service.OrchestratorConfig{
			CallbackURL:    callbackURL(cfg.Server.PublicBaseURL),
			TaskTimeout:    cfg.Task.Timeout,
			SweepBatchSize: cfg.Task.SweepBatchSize,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	if renderWorker != nil {
		renderWorker.SetSink(app.orchestrator)
	}

	app.pairings, err = pairing.NewManager(
		app.pairingStore,
		app.identityStore,
		app.devices,
		app.identity,
		cfg.Pairing.TokenTTL,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pairing manager: %w", err)
	}

	app.queries, err = service.NewQueryService(app.taskStore, app.objects, app.pairings, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create query service: %w", err)
	}

	app.setupBackground()

	logger.Info("application initialized successfully")
	return app, nil
}

// setupStores builds the durable stores. Pairing tokens live in Redis when
// that backend is selected, everything else in Postgres.
func (app *application) setupStores(ctx context.Context) error {
	app.deviceStore = postgres.NewPostgresDeviceStore(app.db, app.logger)
	app.identityStore = postgres.NewPostgresIdentityStore(app.db, app.logger)
	app.taskStore = postgres.NewPostgresTaskStore(app.db, app.logger)

	switch app.config.Pairing.Backend {
	case "redis":
		client, err := setupRedis(ctx, app.config.Redis, app.logger)
		if err != nil {
			return err
		}
		app.redis = client
		app.pairingStore = redis.NewPairingStore(client, app.logger)
	default:
		app.pairingStore = postgres.NewPostgresPairingStore(app.db, app.logger)
	}
	return nil
}

// setupGateway selects the render worker. The in-process Gemini worker is
// also returned so its completion sink can be set once the orchestrator exists.
func (app *application) setupGateway(ctx context.Context) (worker.Gateway, *gemini.RenderWorker, error) {
	cfg := app.config
	switch cfg.Worker.Mode {
	case "gemini":
		app.renderQueue = jobs.NewQueue(cfg.LLM.QueueSize, app.logger.With("queue", "render"))
		rw, err := gemini.NewRenderWorker(ctx, cfg.LLM, app.objects, app.renderQueue, app.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize gemini render worker: %w", err)
		}
		app.renderPool = jobs.NewWorkerPool(app.renderQueue, jobs.WorkerPoolConfig{
			WorkerCount: cfg.LLM.WorkerCount,
			JobTimeout:  cfg.Task.Timeout,
		}, app.logger.With("pool", "render"))
		app.logger.Info("render worker initialized", "mode", "gemini", "model", cfg.LLM.ModelName)
		return rw, rw, nil
	default:
		gw, err := worker.NewHTTPGateway(cfg.Worker, &http.Client{Timeout: cfg.Worker.RequestTimeout}, app.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize worker gateway: %w", err)
		}
		app.logger.Info("render worker initialized", "mode", "http")
		return gw, nil, nil
	}
}

// setupBackground creates the worker pools and periodic sweeps. Nothing
// runs until Run starts them.
func (app *application) setupBackground() {
	app.notifyPool = jobs.NewWorkerPool(app.notifyQueue, jobs.WorkerPoolConfig{
		WorkerCount: app.config.Task.NotifyWorkers,
		JobTimeout:  30 * time.Second,
	}, app.logger.With("pool", "notify"))

	app.runners = []*jobs.PeriodicRunner{
		jobs.NewPeriodicRunner("task_timeouts", app.config.Task.SweepInterval, 0,
			func(ctx context.Context) error {
				_, err := app.orchestrator.SweepTimeouts(ctx)
				return err
			}, app.logger),
		jobs.NewPeriodicRunner("pairing_expiry", app.config.Pairing.SweepInterval, 0,
			func(ctx context.Context) error {
				_, err := app.pairings.SweepExpired(ctx)
				return err
			}, app.logger),
	}
}

// Run starts the background workers and serves HTTP until interrupted.
func (app *application) Run(ctx context.Context) error {
	app.notifyPool.Start()
	if app.renderPool != nil {
		app.renderPool.Start()
	}
	for _, r := range app.runners {
		r.Start(ctx)
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources. Renders are
// drained before notifications because a finishing render can still queue one.
func (app *application) cleanup() {
	for _, r := range app.runners {
		r.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if app.renderQueue != nil {
		app.renderQueue.Close()
		app.renderPool.Drain(ctx)
	}
	if app.notifyQueue != nil {
		app.notifyQueue.Close()
		app.notifyPool.Drain(ctx)
	}

	if app.shutdownTelemetry != nil {
		if err := app.shutdownTelemetry(ctx); err != nil {
			app.logger.Error("error shutting down telemetry", "error", err)
		}
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis connection", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}

// callbackURL joins the public base URL and the worker webhook path.
func callbackURL(base string) string {
	return strings.TrimRight(base, "/") + WebhookPath
}

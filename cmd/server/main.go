// Package main is the entry point for the try-on API server, which accepts
// kiosk render requests, drives them through the render worker and pairs
// kiosks with shoppers' messaging accounts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"github.com/phrazzld/tryon-api/internal/config"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/platform/postgres"
	"github.com/phrazzld/tryon-api/internal/platform/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status, version) and exit")
	flag.Parse()

	if err := run(*migrateCmd); err != nil {
		log.Fatalf("tryon-api: %v", err)
	}
}

// run loads configuration, connects the infrastructure and either executes a
// migration command or serves until interrupted.
func run(migrateCmd string) error {
	ctx := context.Background()

	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	db, err := setupAppDatabase(ctx, cfg.Database, appLogger)
	if err != nil {
		return err
	}

	if migrateCmd != "" {
		defer func() { _ = db.Close() }()
		appLogger.Info("executing migrations", "command", migrateCmd)
		return postgres.Migrate(ctx, db, migrateCmd, appLogger)
	}

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry, version, appLogger)
	if err != nil {
		_ = db.Close()
		return err
	}

	app, err := newApplication(ctx, cfg, appLogger, db)
	if err != nil {
		_ = db.Close()
		_ = shutdownTelemetry(ctx)
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	app.shutdownTelemetry = shutdownTelemetry

	return app.Run(ctx)
}

// loadAppConfig loads the application configuration from the environment,
// an optional .env file and an optional config.yaml.
func loadAppConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	slog.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"worker_mode", cfg.Worker.Mode,
		"pairing_backend", cfg.Pairing.Backend)
	return cfg, nil
}

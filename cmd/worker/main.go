package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/andre-fig/backoffice/internal/app"
	"github.com/andre-fig/backoffice/internal/config"
	"github.com/andre-fig/backoffice/internal/logging"
)

func main() {
	log.Println("Starting workers...")

	// Load Config
	if err := config.LoadConfig(os.Getenv("BACKOFFICE_CONFIG_PATH")); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(config.App.LogLevel, config.App.DevMode)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, config.App, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer a.Close()

	if !config.App.Reconcile.Enabled {
		logger.Warn("Reconciliation is disabled by config, nothing to run")
		return
	}

	logger.Info("Starting redirect reconciliation worker...",
		zap.Duration("interval", a.Worker.Options.Interval),
		zap.Int("concurrency", a.Worker.Options.Concurrency))

	// Blocks until ctx is cancelled
	a.Worker.StartRedirectWorker(ctx)

	logger.Info("Shutting down workers...")
}

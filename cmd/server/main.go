package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/andre-fig/backoffice/handlers"
	"github.com/andre-fig/backoffice/internal/app"
	"github.com/andre-fig/backoffice/internal/config"
	"github.com/andre-fig/backoffice/internal/logging"
	"github.com/andre-fig/backoffice/router"
	"github.com/andre-fig/backoffice/services"
)

func main() {
	if err := config.LoadConfig(os.Getenv("BACKOFFICE_CONFIG_PATH")); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(config.App.LogLevel, config.App.DevMode)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if !config.App.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, config.App, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer a.Close()

	auth := services.NewOperatorAuthService(config.App.JWTSecret)
	if !auth.Enabled() {
		logger.Warn("JWT_SECRET is empty, operator authentication is disabled")
	}

	r := router.NewGinRouter(router.Handlers{
		Redirects: handlers.NewRedirectHandler(a.Redirects, a.Worker, logger.Named("http")),
		Directory: handlers.NewDirectoryHandler(a.Redirects),
		Health:    handlers.NewHealthHandler(a.HealthChecks()),
		Auth:      handlers.NewOperatorAuthMiddleware(auth, logger.Named("auth")),
	})

	if config.App.Reconcile.Enabled {
		go a.Worker.StartRedirectWorker(ctx)
	} else {
		logger.Info("Reconciliation loop disabled")
	}

	srv := &http.Server{
		Addr:              ":" + config.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Backoffice API listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// Package main is the entry point for the ledgerd API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ledgerd/internal/app"
	"ledgerd/internal/core/clock"
	"ledgerd/internal/infrastructure/config"
	v1 "ledgerd/internal/infrastructure/http/v1"
	"ledgerd/internal/infrastructure/http/v1/handlers"
	"ledgerd/internal/infrastructure/telemetry"
	"ledgerd/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
		Service:     cfg.Telemetry.ServiceName,
		Version:     version,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting ledgerd server", "version", version, "storage", cfg.App.Storage, "env", cfg.App.Env)

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		Version:        version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SamplingRatio:  cfg.Telemetry.SamplingRatio,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		log.Fatalw("failed to set up telemetry", "error", err)
	}

	a, err := app.Build(ctx, cfg, clock.System{})
	if err != nil {
		log.Fatalw("failed to build application", "error", err)
	}
	defer a.Close()

	routerCfg := v1.RouterConfig{
		Inventory:     a.Inventory,
		Invoices:      a.Invoices,
		Subscriptions: a.Subscriptions,
		Reports:       a.Reports,
		Storage:       a.Storage,
		ServiceName:   cfg.Telemetry.ServiceName,
		Logger:        log,
		Clock:         clock.System{},
		Debug:         cfg.App.IsDevelopment(),
	}
	// Typed nils must not reach the interface fields.
	if a.Idempotency != nil {
		routerCfg.Idempotency = a.Idempotency
	}
	if a.Pool != nil {
		routerCfg.DB = handlers.Pinger(a.Pool)
	}
	router := v1.NewRouter(routerCfg)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Infow("server listening", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownTimeout := cfg.HTTP.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		log.Warnw("telemetry shutdown failed", "error", err)
	}

	log.Info("server stopped")
}

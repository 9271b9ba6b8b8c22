// Package main is the entry point for the ledgerd background worker.
// It runs billing, recurring invoices, overdue and reminder sweeps, and
// relays outbox notifications.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ledgerd/internal/app"
	"ledgerd/internal/core/clock"
	"ledgerd/internal/infrastructure/config"
	"ledgerd/internal/infrastructure/lock"
	"ledgerd/internal/infrastructure/telemetry"
	"ledgerd/internal/worker"
	"ledgerd/pkg/logger"
)

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
		Service:     cfg.Telemetry.ServiceName + "-worker",
		Version:     version,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log = log.WithComponent("worker")

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Infow("starting ledgerd worker", "version", version, "storage", cfg.App.Storage)

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName + "-worker",
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

	locker, closeLocker, err := lock.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.LockTTL)
	if err != nil {
		log.Fatalw("failed to connect to redis", "error", err)
	}
	defer func() { _ = closeLocker() }()
	if cfg.Redis.Addr == "" {
		log.Warn("redis not configured, job locks are process-local")
	}

	scheduler, err := worker.NewScheduler(locker, clock.System{}, cfg.Worker.Tick)
	if err != nil {
		log.Fatalw("failed to create scheduler", "error", err)
	}
	worker.RegisterJobs(scheduler, a, cfg.Worker)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	wg.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		log.Warnw("telemetry shutdown failed", "error", err)
	}

	log.Info("worker stopped")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelnote/internal/app"
	"github.com/dunamismax/pixelnote/internal/config"
	"github.com/dunamismax/pixelnote/internal/logging"
	"github.com/dunamismax/pixelnote/internal/telemetry"
	"github.com/dunamismax/pixelnote/internal/worker"
)

const metricsAddr = ":9091"

func main() {
	cfg, err := config.Load()
	bootLogger := logging.New(logging.Config{Level: "info"}, "worker")
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "pixelnote-worker",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("setup tracing")
	}

	registry := telemetry.NewRegistry()
	application, err := app.Build(ctx, cfg, logger, registry, app.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("build application")
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error().Err(err).Msg("close application")
		}
	}()

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, application.Images, registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("create worker")
	}

	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           telemetry.MetricsHandler(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	logger.Info().
		Int("concurrency", cfg.Worker.Concurrency).
		Str("queue", cfg.Queue.Name).
		Str("redis", cfg.Queue.RedisAddr).
		Msg("starting worker")

	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown tracing")
	}
}

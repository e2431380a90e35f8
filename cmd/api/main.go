package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dunamismax/pixelnote/internal/api"
	"github.com/dunamismax/pixelnote/internal/app"
	"github.com/dunamismax/pixelnote/internal/config"
	"github.com/dunamismax/pixelnote/internal/logging"
	"github.com/dunamismax/pixelnote/internal/ratelimit"
	"github.com/dunamismax/pixelnote/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	bootLogger := logging.New(logging.Config{Level: "info"}, "api")
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, "api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "pixelnote-api",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("setup tracing")
	}

	registry := telemetry.NewRegistry()
	application, err := app.Build(ctx, cfg, logger, registry, app.Options{Enqueue: true})
	if err != nil {
		logger.Fatal().Err(err).Msg("build application")
	}

	var limiter api.RateLimiter
	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		bucket, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
		if err != nil {
			logger.Fatal().Err(err).Msg("create rate limiter")
		}
		limiter = bucket
	}

	server := api.NewServer(logger, application.Images, application.Store, api.Options{
		MaxUploadBytes: cfg.API.MaxUploadBytes,
		RateLimiter:    limiter,
		ClientHeader:   cfg.RateLimit.ClientHeader,
		Registry:       registry,
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.API.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := application.Images.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("image commits still running at shutdown")
	}
	if err := application.Close(); err != nil {
		logger.Error().Err(err).Msg("close application")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown tracing")
	}
}

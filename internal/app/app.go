// Package app wires the configured stores, clients and the image service
// shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/dunamismax/pixelnote/internal/config"
	"github.com/dunamismax/pixelnote/internal/images"
	"github.com/dunamismax/pixelnote/internal/options"
	"github.com/dunamismax/pixelnote/internal/pipeline"
	"github.com/dunamismax/pixelnote/internal/protect"
	"github.com/dunamismax/pixelnote/internal/queue"
	"github.com/dunamismax/pixelnote/internal/storage"
	"github.com/dunamismax/pixelnote/internal/store"
	"github.com/dunamismax/pixelnote/internal/telemetry"
	"github.com/dunamismax/pixelnote/internal/webhook"
)

type Options struct {
	// Enqueue hands commits to the worker queue when the queue is enabled.
	// The worker itself applies commits and leaves this off.
	Enqueue bool
}

type App struct {
	Config   config.Config
	Logger   zerolog.Logger
	Store    *store.SQLNoteStore
	Options  options.Provider
	Session  *protect.Session
	Archive  *storage.Client
	Images   *images.Service
	Registry *prometheus.Registry

	closers []func() error
}

// Build opens everything cfg enables. Close releases it again.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger, registry *prometheus.Registry, opts Options) (*App, error) {
	if err := pipeline.Startup(); err != nil {
		return nil, fmt.Errorf("start image runtime: %w", err)
	}
	if registry == nil {
		registry = telemetry.NewRegistry()
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Session:  protect.NewSession(),
		Registry: registry,
	}
	a.closers = append(a.closers, func() error {
		pipeline.Shutdown()
		return nil
	})

	noteStore, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.Store = noteStore
	a.closers = append(a.closers, noteStore.Close)

	a.Options = options.NewStored(noteStore, options.NewStatic(cfg.Image.OptionValues()))

	if cfg.Protection.SecretKey != "" {
		if err := a.Session.Unlock(cfg.Protection.SecretKey); err != nil {
			return nil, errors.Join(fmt.Errorf("unlock protected session: %w", err), a.Close())
		}
		logger.Info().Msg("protected session unlocked")
	}

	serviceCfg := images.Config{
		Store:    noteStore,
		Pipeline: pipeline.New(nil, a.Options, logger),
		Options:  a.Options,
		Session:  a.Session,
		Logger:   logger,
		Metrics:  images.NewMetrics(registry),
	}

	if cfg.Storage.Enabled {
		archive, err := storage.NewClient(storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("create archive client: %w", err), a.Close())
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			return nil, errors.Join(fmt.Errorf("ensure archive bucket: %w", err), a.Close())
		}
		a.Archive = archive
		serviceCfg.Archive = archive
		logger.Info().Str("bucket", archive.Bucket()).Msg("original upload archive enabled")
	}

	if cfg.Webhook.URL != "" {
		serviceCfg.Notifier = webhook.NewClient(webhook.Config{
			SigningSecret:  cfg.Webhook.SigningSecret,
			Timeout:        cfg.Webhook.Timeout,
			MaxAttempts:    cfg.Webhook.MaxAttempts,
			InitialBackoff: cfg.Webhook.InitialBackoff,
			MaxBackoff:     cfg.Webhook.MaxBackoff,
		})
		serviceCfg.WebhookURL = cfg.Webhook.URL
	}

	if opts.Enqueue && cfg.Queue.Enabled {
		queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
		a.closers = append(a.closers, queueClient.Close)
		serviceCfg.Enqueuer = queueClient
		logger.Info().Str("queue", cfg.Queue.Name).Str("redis", cfg.Queue.RedisAddr).Msg("image commits go through the queue")
	}

	a.Images, err = images.NewService(serviceCfg)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}

	logger.Info().
		Str("resizer", pipeline.ResizerName()).
		Str("database", cfg.Database.Driver).
		Msg("image service ready")
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

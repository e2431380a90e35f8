package main

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/dunamismax/pixelnote/internal/app"
	"github.com/dunamismax/pixelnote/internal/config"
	"github.com/dunamismax/pixelnote/internal/logging"
)

// commandContext builds the application lazily so that commands which do
// not touch the store never open it.
type commandContext struct {
	dbDriver *string
	dbDSN    *string
	logLevel *string

	once   sync.Once
	app    *app.App
	appErr error
}

func newCommandContext(dbDriver, dbDSN, logLevel *string) *commandContext {
	return &commandContext{dbDriver: dbDriver, dbDSN: dbDSN, logLevel: logLevel}
}

func (c *commandContext) application(ctx context.Context) (*app.App, error) {
	c.once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.appErr = err
			return
		}
		if v := strings.TrimSpace(*c.dbDriver); v != "" {
			cfg.Database.Driver = v
		}
		if v := strings.TrimSpace(*c.dbDSN); v != "" {
			cfg.Database.DSN = v
		}

		logger := logging.NewWithWriter(logging.Config{Level: *c.logLevel, Format: "console"}, "imagectl", os.Stderr)
		c.app, c.appErr = app.Build(ctx, cfg, logger, nil, app.Options{})
	})
	return c.app, c.appErr
}

func (c *commandContext) close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}

// Command server-lite runs the HTTP API with no external services: audit
// entries go to SQLite in the data directory and stored-encounter analysis
// is disabled.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/cds-reasoning-server/internal/api"
	"github.com/cds-reasoning-server/internal/app"
	"github.com/cds-reasoning-server/internal/config"
	"github.com/cds-reasoning-server/internal/domain"
	"github.com/cds-reasoning-server/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadLiteConfig()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server failed")
		os.Exit(1)
	}
}

func run(cfg *config.LiteConfig, logger *logrus.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewLite(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("Failed to release resources")
		}
	}()

	server := api.NewServer(api.Options{
		Server: domain.ServerConfig{
			Host:         "127.0.0.1",
			Port:         cfg.HTTPPort,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		RequestTimeout: 30 * time.Second,
		HealthChecks:   a.HealthChecks,
	}, a.Service, logger)

	logger.WithField("port", cfg.HTTPPort).Info("Starting standalone clinical decision support server")
	return server.Start(ctx)
}

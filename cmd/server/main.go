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
	"github.com/spf13/cobra"

	"github.com/cds-reasoning-server/internal/api"
	"github.com/cds-reasoning-server/internal/app"
	"github.com/cds-reasoning-server/internal/audit"
	"github.com/cds-reasoning-server/internal/config"
	"github.com/cds-reasoning-server/internal/database"
	"github.com/cds-reasoning-server/internal/logging"
)

const requestTimeout = 30 * time.Second

var (
	configFile  string
	autoMigrate bool
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cds-server",
		Short:         "Clinical decision support HTTP server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	serve.Flags().BoolVar(&autoMigrate, "migrate", true, "apply pending migrations before serving")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	migrateCmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all pending migrations", Args: cobra.NoArgs, RunE: runMigrate("up")},
		&cobra.Command{Use: "down", Short: "Roll back all migrations", Args: cobra.NoArgs, RunE: runMigrate("down")},
		&cobra.Command{Use: "version", Short: "Print the schema version", Args: cobra.NoArgs, RunE: runMigrate("version")},
	)

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Export or import the analysis audit log",
	}
	auditCmd.AddCommand(
		&cobra.Command{Use: "export <file>", Short: "Write every audit entry to a JSON file", Args: cobra.ExactArgs(1), RunE: runAuditExport},
		&cobra.Command{Use: "import <file>", Short: "Load audit entries from a JSON export", Args: cobra.ExactArgs(1), RunE: runAuditImport},
	)

	root.AddCommand(serve, migrateCmd, auditCmd)
	return root
}

func loadConfig() (*config.Manager, *logrus.Logger, error) {
	manager, err := config.NewManagerFromFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := manager.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := manager.GetConfig()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if cfg.Logging.Output == "stdout" {
		logger.SetOutput(os.Stdout)
	}
	return manager, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, _ []string) error {
	manager, logger, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := manager.GetConfig()

	ctx, cancel := signalContext()
	defer cancel()

	if autoMigrate {
		if err := migrate(ctx, manager, logger, "up"); err != nil {
			return err
		}
	}

	a, err := app.New(ctx, cfg, manager.GetDatabaseURL(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("Failed to release resources")
		}
	}()

	server := api.NewServer(api.Options{
		Server:         cfg.Server,
		Auth:           cfg.Auth,
		RateLimit:      cfg.RateLimit,
		RequestTimeout: requestTimeout,
		Debug:          manager.IsDevelopment(),
		HealthChecks:   a.HealthChecks,
	}, a.Service, logger)

	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
		"version":     api.Version,
	}).Info("Starting clinical decision support server")

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func runMigrate(direction string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		manager, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		return migrate(ctx, manager, logger, direction)
	}
}

func migrate(ctx context.Context, manager *config.Manager, logger *logrus.Logger, direction string) error {
	runner, err := database.NewMigrationRunner(manager.GetDatabaseURL(), manager.GetDatabaseConfig().MigrationsPath, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	switch direction {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx)
	default:
		version, dirty, err := runner.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		return nil
	}
}

func openAuditStore(manager *config.Manager) (audit.Store, error) {
	return app.OpenAuditStore(manager.GetConfig().Audit, manager.GetDatabaseURL())
}

func runAuditExport(cmd *cobra.Command, args []string) error {
	manager, logger, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openAuditStore(manager)
	if err != nil {
		return err
	}
	defer store.Close()

	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := store.ExportJSON(cmd.Context(), f); err != nil {
		return err
	}
	logger.WithField("file", args[0]).Info("Exported audit log")
	return nil
}

func runAuditImport(cmd *cobra.Command, args []string) error {
	manager, logger, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openAuditStore(manager)
	if err != nil {
		return err
	}
	defer store.Close()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	imported, skipped, err := store.ImportJSON(cmd.Context(), f)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"file":     args[0],
		"imported": imported,
		"skipped":  skipped,
	}).Info("Imported audit log")
	return nil
}

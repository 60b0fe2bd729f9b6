// Package app assembles the analysis service and its storage for the
// command-line entrypoints.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cds-reasoning-server/internal/api"
	"github.com/cds-reasoning-server/internal/audit"
	"github.com/cds-reasoning-server/internal/cache"
	"github.com/cds-reasoning-server/internal/config"
	"github.com/cds-reasoning-server/internal/database"
	"github.com/cds-reasoning-server/internal/domain"
	"github.com/cds-reasoning-server/internal/repository"
	"github.com/cds-reasoning-server/internal/service"
)

// App holds the wired service and everything that must be closed with it.
type App struct {
	Service      *service.AnalysisService
	Store        audit.Store
	Recorder     *audit.Recorder
	HealthChecks map[string]api.HealthCheck

	logger  *logrus.Logger
	closers []func() error
}

// Close waits for background writes and releases resources in reverse order
// of acquisition.
func (a *App) Close() error {
	if a.Service != nil {
		a.Service.Wait()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// NewLite wires the standalone service: a SQLite audit store in the data
// directory, an in-process cache and no encounter repository.
func NewLite(cfg *config.LiteConfig, logger *logrus.Logger) (*App, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a := &App{logger: logger, HealthChecks: make(map[string]api.HealthCheck)}

	store, err := audit.NewSQLiteStore(cfg.AuditDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	a.onClose(store.Close)
	a.Store = store
	a.HealthChecks["audit_store"] = func(ctx context.Context) error {
		_, err := store.Count(ctx)
		return err
	}

	memory := cache.NewMemoryCache(cfg.CacheSize, cfg.CacheTTL)
	a.onClose(memory.Close)

	ranges, err := service.LoadReferenceRanges(cfg.ReferenceRangesFile)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Recorder = audit.NewRecorder(store, logger, audit.DefaultRecorderConfig())

	svc, err := service.NewAnalysisService(service.AnalysisServiceConfig{
		Reasoner: service.NewClinicalReasoner(logger),
		Labs:     service.NewLabInterpreter(logger, ranges),
		Store:    store,
		Recorder: a.Recorder,
		Cache:    memory,
		Logger:   logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Service = svc

	logger.WithFields(logrus.Fields{
		"data_dir":   cfg.DataDir,
		"audit_db":   cfg.AuditDBPath(),
		"cache_size": cfg.CacheSize,
		"lab_tests":  len(ranges),
	}).Info("Standalone analysis service ready")

	return a, nil
}

// New wires the full service: the PostgreSQL encounter repository, the
// audit store selected by cfg.Audit and a memory cache optionally backed by
// Redis.
func New(ctx context.Context, cfg *domain.Config, databaseURL string, logger *logrus.Logger) (*App, error) {
	a := &App{logger: logger, HealthChecks: make(map[string]api.HealthCheck)}

	db, err := database.NewConnection(ctx, database.ConfigFromDomain(cfg.Database), logger)
	if err != nil {
		return nil, err
	}
	a.onClose(func() error {
		db.Close()
		return nil
	})
	a.HealthChecks["database"] = db.Health

	store, err := OpenAuditStore(cfg.Audit, databaseURL)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to open audit store: %w", err)
	}
	a.onClose(store.Close)
	a.Store = store
	a.HealthChecks["audit_store"] = func(ctx context.Context) error {
		_, err := store.Count(ctx)
		return err
	}

	analysisCache, err := a.openCache(cfg.Cache)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	ranges, err := service.LoadReferenceRanges(cfg.Lab.ReferenceRangesFile)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Recorder = audit.NewRecorder(store, logger, audit.RecorderConfig{
		WriteTimeout:    cfg.Audit.WriteTimeout,
		BreakerFailures: cfg.Audit.BreakerFailures,
		BreakerCooldown: cfg.Audit.BreakerCooldown,
	})

	svc, err := service.NewAnalysisService(service.AnalysisServiceConfig{
		Reasoner:   service.NewClinicalReasoner(logger),
		Labs:       service.NewLabInterpreter(logger, ranges),
		Store:      store,
		Recorder:   a.Recorder,
		Cache:      analysisCache,
		Repository: repository.NewEncounterRepository(db.Pool, logger),
		Logger:     logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Service = svc

	return a, nil
}

// OpenAuditStore opens the PostgreSQL audit store at databaseURL, or the
// SQLite store at cfg.SQLitePath when cfg.UsePostgres is off.
func OpenAuditStore(cfg domain.AuditConfig, databaseURL string) (audit.Store, error) {
	if cfg.UsePostgres {
		return audit.NewPostgresStoreFromURL(databaseURL)
	}
	return audit.NewSQLiteStore(cfg.SQLitePath)
}

func (a *App) openCache(cfg domain.CacheConfig) (cache.Cache, error) {
	memory := cache.NewMemoryCache(cfg.MemorySize, cfg.DefaultTTL)
	if cfg.RedisURL == "" {
		a.onClose(memory.Close)
		return memory, nil
	}

	redis, err := cache.NewRedisCache(cfg)
	if err != nil {
		_ = memory.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.HealthChecks["redis"] = redis.Health

	tiered := cache.NewTiered(memory, redis)
	a.onClose(tiered.Close)
	return tiered, nil
}

// Package api exposes the analysis service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cds-reasoning-server/internal/audit"
	"github.com/cds-reasoning-server/internal/domain"
	"github.com/cds-reasoning-server/internal/middleware"
	"github.com/cds-reasoning-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// AnalysisService is the behaviour the handlers need from the service layer.
type AnalysisService interface {
	AnalyzeEncounter(ctx context.Context, req service.AnalysisRequest) (*service.AnalysisResponse, error)
	AnalyzeStoredEncounter(ctx context.Context, userID, encounterID string) (*service.AnalysisResponse, error)
	InterpretLab(ctx context.Context, test domain.LabTest) (domain.LabInterpretation, error)
	InterpretPanel(ctx context.Context, req service.PanelRequest) (*service.PanelResponse, error)
	ReferenceRanges() map[string]domain.LabReferenceRange
	GetAnalysis(ctx context.Context, userID, id string) (*audit.Entry, error)
	ListAnalyses(ctx context.Context, userID string, limit, offset int) ([]*audit.Entry, error)
	DeleteUserHistory(ctx context.Context, userID string) (int64, error)
}

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// Options configures the HTTP server.
type Options struct {
	Server         domain.ServerConfig
	Auth           domain.AuthConfig
	RateLimit      domain.RateLimitConfig
	RequestTimeout time.Duration
	Debug          bool
	HealthChecks   map[string]HealthCheck
}

// Server represents the HTTP server
type Server struct {
	opts    Options
	service AnalysisService
	logger  *logrus.Logger
	router  *gin.Engine
	server  *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(opts Options, svc AnalysisService, logger *logrus.Logger) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.WithFields(logrus.Fields{
			"correlation_id": middleware.RequestID(c),
			"panic":          fmt.Sprint(recovered),
		}).Error("Recovered from handler panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			domain.NewAPIError(domain.ErrInternalServer, "Internal server error", "", middleware.RequestID(c)))
	}))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.RequestTimeout(opts.RequestTimeout))

	s := &Server{
		opts:    opts,
		service: svc,
		logger:  logger,
		router:  router,
	}
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.opts.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	if s.opts.RateLimit.Enabled {
		v1.Use(middleware.RateLimit(middleware.NewRateLimiter(s.opts.RateLimit.RequestsPerSecond, s.opts.RateLimit.Burst)))
	}
	v1.Use(middleware.Auth(s.opts.Auth, s.logger))
	{
		v1.POST("/analyses", s.handleAnalyze)
		v1.GET("/analyses", s.handleListAnalyses)
		v1.DELETE("/analyses", s.handleDeleteHistory)
		v1.GET("/analyses/:id", s.handleGetAnalysis)
		v1.POST("/encounters/:id/analyze", s.handleAnalyzeStoredEncounter)

		v1.POST("/labs/interpret", s.handleInterpretLab)
		v1.POST("/labs/panel", s.handleInterpretPanel)
		v1.GET("/labs/reference-ranges", s.handleReferenceRanges)

		v1.GET("/red-flags", s.handleRedFlags)
	}
}

// handleHealth runs the dependency checks.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	checks := make(map[string]string, len(s.opts.HealthChecks))
	for name, check := range s.opts.HealthChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC(),
		"version":   Version,
	})
}

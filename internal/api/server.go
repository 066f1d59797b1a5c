// Package api exposes the laboratory core over HTTP. Authentication
// lives upstream; the acting user arrives pre-resolved in the
// X-Actor-ID and X-Actor-Role headers.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/waterlab-lims-server/internal/audit"
	"github.com/waterlab-lims-server/internal/domain"
	"github.com/waterlab-lims-server/internal/middleware"
	"github.com/waterlab-lims-server/internal/service"
)

// HealthChecker reports backend liveness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// OverrideInvalidator evicts cached override lookups after writes.
type OverrideInvalidator interface {
	Invalidate(ctx context.Context, parameterID *uuid.UUID, normalizedValue string)
}

// Deps carries everything the server needs. Nil optional fields
// (Invalidator, AuditStore, Events) disable the matching endpoints.
type Deps struct {
	Samples     *service.SampleService
	Results     *service.ResultService
	Lifecycle   *service.LifecycleService
	Reviews     *service.ReviewService
	Resolver    *service.Resolver
	Seed        *service.SeedService
	Parameters  domain.ParameterStore
	Categories  domain.CategoryStore
	Overrides   domain.OverrideStore
	Invalidator OverrideInvalidator
	AuditStore  audit.Store
	Events      *EventHub
	Sink        domain.AuditSink
	Health      HealthChecker
}

// Server represents the HTTP server
type Server struct {
	cfg    *domain.ServerConfig
	log    *logrus.Logger
	deps   Deps
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.ServerConfig, deps Deps, logger *logrus.Logger, debug bool) *Server {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(middleware.RequestLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	if cfg.RateLimitRPS > 0 {
		router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	server := &Server{
		cfg:    cfg,
		log:    logger,
		deps:   deps,
		router: router,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Router exposes the underlying handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.deps.Events != nil {
		s.router.GET("/ws/events", s.deps.Events.ServeWS)
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/customers", s.handleCreateCustomer)
		v1.GET("/customers", s.handleListCustomers)

		v1.POST("/samples", s.handleCreateSample)
		v1.GET("/samples", s.handleListSamples)
		v1.GET("/samples/:id", s.handleGetSample)
		v1.GET("/samples/display/:displayID", s.handleGetSampleByDisplayID)
		v1.POST("/samples/:id/transition", s.handleTransitionSample)

		v1.POST("/samples/:id/results", s.handleRecordResult)
		v1.POST("/samples/:id/results/batch", s.handleRecordResultBatch)
		v1.GET("/samples/:id/results", s.handleListResults)
		v1.GET("/samples/:id/results/:parameterID/status", s.handleResolveResultStatus)
		v1.GET("/samples/:id/report", s.handleSampleReport)

		v1.GET("/samples/:id/review", s.handleGetReview)
		v1.PUT("/samples/:id/review", s.handleSaveReview)

		v1.GET("/parameters", s.handleListParameters)
		v1.POST("/parameters", s.handleCreateParameter)
		v1.PUT("/parameters/:id", s.handleUpdateParameter)
		v1.DELETE("/parameters/:id", s.handleDeleteParameter)

		v1.GET("/categories", s.handleListCategories)
		v1.POST("/categories", s.handleCreateCategory)

		v1.GET("/overrides", s.handleListOverrides)
		v1.POST("/overrides", s.handleSaveOverride)
		v1.DELETE("/overrides/:id", s.handleDeleteOverride)

		admin := v1.Group("/admin")
		{
			admin.POST("/seed/parameters", s.handleSeedParameters)
			admin.POST("/seed/categories", s.handleSeedCategories)
		}

		if s.deps.AuditStore != nil {
			v1.GET("/audit", s.handleListAudit)
			v1.GET("/audit/export", s.handleExportAudit)
		}
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if s.deps.Health != nil {
		if err := s.deps.Health.Health(c.Request.Context()); err != nil {
			s.log.WithError(err).Error("Health check failed")
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-Correlation-ID, X-Actor-ID, X-Actor-Role, X-Actor-Name")
		c.Header("Access-Control-Expose-Headers", "Content-Length")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

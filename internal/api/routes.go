// Package api provides the HTTP API for the Slawatch server.
package api

import (
	"time"

	"github.com/MacJediWizard/slawatch/internal/api/handlers"
	"github.com/MacJediWizard/slawatch/internal/api/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Config holds configuration for the API router.
type Config struct {
	// RateLimitRequests is the number of requests allowed per period and organization.
	RateLimitRequests int64
	// RateLimitPeriod is the rate limit window.
	RateLimitPeriod time.Duration
	// AdminAPIToken guards the SLA API. Empty disables token checks.
	AdminAPIToken string
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		RateLimitRequests: 100,
		RateLimitPeriod:   time.Minute,
		Version:           "dev",
		Commit:            "unknown",
		BuildDate:         "unknown",
	}
}

// Store is the persistence surface the API needs.
type Store interface {
	handlers.DatabaseHealthChecker
	handlers.SLAStore
	handlers.CalendarStore
	handlers.EscalationRuleStore
	handlers.ViolationStore
}

// Engine runs escalation passes and manual action retries.
type Engine interface {
	handlers.EscalationProcessor
	handlers.ActionRetrier
}

// Dependencies are the services the router wires into its handlers.
type Dependencies struct {
	Store    Store
	Detector handlers.ViolationChecker
	Engine   Engine
	Monitor  handlers.TenantRunner
	// Lock is optional; nil means no shared lock backend is configured.
	Lock     handlers.LockHealthChecker
	Gatherer prometheus.Gatherer
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(cfg Config, deps Dependencies, logger zerolog.Logger) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))

	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitPeriod)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)

	// Public endpoints
	healthHandler := handlers.NewHealthHandler(deps.Store, deps.Lock, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	metricsHandler := handlers.NewMetricsHandler(gatherer, logger)
	metricsHandler.RegisterPublicRoutes(r.Engine)

	versionHandler := handlers.NewVersionHandler(cfg.Version, cfg.Commit, cfg.BuildDate, logger)
	versionHandler.RegisterPublicRoutes(r.Engine)

	// SLA API, scoped to the calling organization
	slaGroup := r.Engine.Group("/api/v1/sla")
	slaGroup.Use(middleware.TokenAuth(cfg.AdminAPIToken, logger))
	slaGroup.Use(middleware.TenantMiddleware(logger))

	versionHandler.RegisterRoutes(slaGroup)

	handlers.NewSLAHandler(deps.Store, logger).RegisterRoutes(slaGroup)
	handlers.NewCalendarsHandler(deps.Store, logger).RegisterRoutes(slaGroup)
	handlers.NewEscalationRulesHandler(deps.Store, logger).RegisterRoutes(slaGroup)
	handlers.NewViolationsHandler(deps.Store, deps.Engine, logger).RegisterRoutes(slaGroup)
	handlers.NewMonitorHandler(deps.Monitor, deps.Detector, deps.Engine, logger).RegisterRoutes(slaGroup)

	r.logger.Info().Msg("API router initialized")

	return r, nil
}

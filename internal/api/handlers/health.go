package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

const healthCheckTimeout = 5 * time.Second

// HealthCheckResult represents the result of a health check.
type HealthCheckResult struct {
	Status   HealthStatus   `json:"status"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status HealthStatus                  `json:"status"`
	Checks map[string]*HealthCheckResult `json:"checks,omitempty"`
	Error  string                        `json:"error,omitempty"`
}

// DatabaseHealthChecker defines the interface for database health checking.
type DatabaseHealthChecker interface {
	Ping(ctx context.Context) error
	Health() map[string]any
	CurrentVersion(ctx context.Context) (int, error)
}

// LockHealthChecker defines the interface for checking the distributed lock backend.
type LockHealthChecker interface {
	Ping(ctx context.Context) error
}

type componentCheck func(ctx context.Context) *HealthCheckResult

// HealthHandler handles health-related HTTP endpoints.
type HealthHandler struct {
	db     DatabaseHealthChecker
	lock   LockHealthChecker
	checks map[string]componentCheck
	logger zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
// A nil lock checker means the scheduler runs without a shared lock.
func NewHealthHandler(db DatabaseHealthChecker, lock LockHealthChecker, logger zerolog.Logger) *HealthHandler {
	h := &HealthHandler{
		db:     db,
		lock:   lock,
		logger: logger.With().Str("component", "health_handler").Logger(),
	}
	h.checks = map[string]componentCheck{
		"database": h.checkDatabase,
		"lock":     h.checkLock,
	}
	return h
}

// RegisterPublicRoutes registers health check routes that don't require authentication.
func (h *HealthHandler) RegisterPublicRoutes(r *gin.Engine) {
	health := r.Group("/health")
	{
		health.GET("", h.Overall)
		health.GET("/live", h.Live)
		health.GET("/:component", h.Component)
	}
}

// Live reports that the process is serving requests. It checks no dependencies.
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, &HealthResponse{Status: HealthStatusHealthy})
}

// Overall runs every component check.
// GET /health
func (h *HealthHandler) Overall(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	response := &HealthResponse{
		Status: HealthStatusHealthy,
		Checks: make(map[string]*HealthCheckResult, len(h.checks)),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		result := h.checks[name](ctx)
		response.Checks[name] = result
		if result.Status == HealthStatusUnhealthy {
			response.Status = HealthStatusUnhealthy
		}
	}

	if response.Status == HealthStatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// Component runs a single named check. "db" is accepted for "database".
// GET /health/:component
func (h *HealthHandler) Component(c *gin.Context) {
	name := c.Param("component")
	if name == "db" {
		name = "database"
	}
	check, ok := h.checks[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown health component"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	result := check(ctx)
	response := &HealthResponse{
		Status: result.Status,
		Checks: map[string]*HealthCheckResult{name: result},
	}

	if result.Status == HealthStatusUnhealthy {
		response.Error = result.Error
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// checkDatabase pings the database and reports pool stats and schema version.
func (h *HealthHandler) checkDatabase(ctx context.Context) *HealthCheckResult {
	start := time.Now()
	result := &HealthCheckResult{Status: HealthStatusHealthy}
	defer func() { result.Duration = time.Since(start).String() }()

	if h.db == nil {
		result.Status = HealthStatusUnhealthy
		result.Error = "database not configured"
		return result
	}

	if err := h.db.Ping(ctx); err != nil {
		result.Status = HealthStatusUnhealthy
		result.Error = "database ping failed"
		h.logger.Warn().Err(err).Msg("database health check failed")
		return result
	}

	result.Details = h.db.Health()
	if result.Details == nil {
		result.Details = map[string]any{}
	}
	version, err := h.db.CurrentVersion(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("schema version lookup failed")
		return result
	}
	result.Details["schema_version"] = version

	return result
}

// checkLock pings the lock backend when one is configured.
func (h *HealthHandler) checkLock(ctx context.Context) *HealthCheckResult {
	start := time.Now()
	result := &HealthCheckResult{Status: HealthStatusHealthy}
	defer func() { result.Duration = time.Since(start).String() }()

	if h.lock == nil {
		result.Details = map[string]any{"configured": false}
		return result
	}

	if err := h.lock.Ping(ctx); err != nil {
		result.Status = HealthStatusUnhealthy
		result.Error = "lock backend unreachable"
		h.logger.Warn().Err(err).Msg("lock health check failed")
		return result
	}

	result.Details = map[string]any{"configured": true}
	return result
}

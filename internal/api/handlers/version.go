package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ServiceName identifies this service in version responses.
const ServiceName = "slawatch"

// VersionInfo describes the running build.
type VersionInfo struct {
	Service       string    `json:"service"`
	Version       string    `json:"version"`
	Commit        string    `json:"commit,omitempty"`
	BuildDate     string    `json:"build_date,omitempty"`
	GoVersion     string    `json:"go_version"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
}

// VersionHandler serves build and uptime information.
type VersionHandler struct {
	info   VersionInfo
	now    func() time.Time
	logger zerolog.Logger
}

// NewVersionHandler creates a new VersionHandler. Uptime counts from this call.
func NewVersionHandler(version, commit, buildDate string, logger zerolog.Logger) *VersionHandler {
	if version == "" {
		version = "dev"
	}
	return &VersionHandler{
		info: VersionInfo{
			Service:   ServiceName,
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
			GoVersion: runtime.Version(),
			StartedAt: time.Now().UTC(),
		},
		now:    time.Now,
		logger: logger.With().Str("component", "version_handler").Logger(),
	}
}

// RegisterRoutes registers version routes on the given router group.
func (h *VersionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/version", h.Get)
}

// RegisterPublicRoutes registers version routes that don't require authentication.
func (h *VersionHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/version", h.Get)
}

// Get returns the build information and uptime.
// GET /api/v1/sla/version or GET /version
func (h *VersionHandler) Get(c *gin.Context) {
	info := h.info
	info.UptimeSeconds = int64(h.now().Sub(info.StartedAt) / time.Second)
	c.JSON(http.StatusOK, info)
}

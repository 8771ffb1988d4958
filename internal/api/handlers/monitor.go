package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/MacJediWizard/slawatch/internal/api/middleware"
	"github.com/MacJediWizard/slawatch/internal/escalation"
	"github.com/MacJediWizard/slawatch/internal/monitoring"
	"github.com/MacJediWizard/slawatch/internal/sla"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TenantRunner runs a full monitoring pass for one organization. Exclusive
// serializes on-demand passes with the scheduled cycle.
type TenantRunner interface {
	RunTenant(ctx context.Context, orgID uuid.UUID) (*monitoring.TenantResult, error)
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
}

// ViolationChecker runs violation detection for one organization.
type ViolationChecker interface {
	DetectAndRecord(ctx context.Context, orgID uuid.UUID) (*sla.DetectionResult, error)
}

// EscalationProcessor runs escalation for one organization.
type EscalationProcessor interface {
	ProcessTenant(ctx context.Context, orgID uuid.UUID) (*escalation.ProcessResult, error)
}

// MonitorHandler exposes on-demand monitoring passes for the calling organization.
type MonitorHandler struct {
	runner    TenantRunner
	detector  ViolationChecker
	escalator EscalationProcessor
	logger    zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(runner TenantRunner, detector ViolationChecker, escalator EscalationProcessor, logger zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		runner:    runner,
		detector:  detector,
		escalator: escalator,
		logger:    logger.With().Str("component", "monitor_handler").Logger(),
	}
}

// RegisterRoutes registers monitoring routes on the given router group.
func (h *MonitorHandler) RegisterRoutes(r *gin.RouterGroup) {
	monitor := r.Group("/monitor")
	{
		monitor.POST("/run", h.Run)
		monitor.POST("/check-violations", h.CheckViolations)
		monitor.POST("/process-escalations", h.ProcessEscalations)
	}
}

// Run performs detection followed by escalation.
// POST /api/v1/sla/monitor/run
func (h *MonitorHandler) Run(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}

	var result *monitoring.TenantResult
	err := h.runner.Exclusive(c.Request.Context(), func(ctx context.Context) error {
		var err error
		result, err = h.runner.RunTenant(ctx, orgID)
		return err
	})
	if err != nil {
		h.fail(c, orgID, err, "monitoring pass failed", result)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CheckViolations performs violation detection only.
// POST /api/v1/sla/monitor/check-violations
func (h *MonitorHandler) CheckViolations(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}

	var result *sla.DetectionResult
	err := h.runner.Exclusive(c.Request.Context(), func(ctx context.Context) error {
		var err error
		result, err = h.detector.DetectAndRecord(ctx, orgID)
		return err
	})
	if err != nil {
		h.fail(c, orgID, err, "violation check failed", nil)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ProcessEscalations advances open violations and runs due actions.
// POST /api/v1/sla/monitor/process-escalations
func (h *MonitorHandler) ProcessEscalations(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}

	var result *escalation.ProcessResult
	err := h.runner.Exclusive(c.Request.Context(), func(ctx context.Context) error {
		var err error
		result, err = h.escalator.ProcessTenant(ctx, orgID)
		return err
	})
	if err != nil {
		h.fail(c, orgID, err, "escalation processing failed", nil)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *MonitorHandler) fail(c *gin.Context, orgID uuid.UUID, err error, msg string, result any) {
	if errors.Is(err, monitoring.ErrLockHeld) {
		c.JSON(http.StatusConflict, gin.H{"error": "monitoring cycle in progress"})
		return
	}
	h.logger.Error().Err(err).Str("org_id", orgID.String()).Msg(msg)
	body := gin.H{"error": msg}
	if result != nil {
		body["result"] = result
	}
	c.JSON(http.StatusInternalServerError, body)
}

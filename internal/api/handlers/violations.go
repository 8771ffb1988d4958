package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/MacJediWizard/slawatch/internal/api/middleware"
	"github.com/MacJediWizard/slawatch/internal/db"
	"github.com/MacJediWizard/slawatch/internal/escalation"
	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ViolationStore defines the persistence operations for violation reporting.
type ViolationStore interface {
	ListSLAViolations(ctx context.Context, orgID uuid.UUID, filter models.ViolationFilter) ([]*models.SLAViolation, int, error)
	GetSLAViolation(ctx context.Context, orgID, id uuid.UUID) (*models.SLAViolation, error)
	ResolveSLAViolation(ctx context.Context, v *models.SLAViolation) error
	ListEscalationActionsByViolation(ctx context.Context, orgID, violationID uuid.UUID) ([]*models.EscalationAction, error)
	ListEscalationActions(ctx context.Context, orgID uuid.UUID, filter models.ActionFilter) ([]*models.EscalationAction, int, error)
}

// ActionRetrier executes an escalation action on demand.
type ActionRetrier interface {
	RetryAction(ctx context.Context, orgID, actionID uuid.UUID) (*models.EscalationAction, error)
}

// ViolationDetail is a violation together with its escalation actions.
type ViolationDetail struct {
	*models.SLAViolation
	Actions []*models.EscalationAction `json:"actions"`
}

// ViolationsHandler handles violation and action reporting endpoints.
type ViolationsHandler struct {
	store   ViolationStore
	retrier ActionRetrier
	logger  zerolog.Logger
}

// NewViolationsHandler creates a new ViolationsHandler.
func NewViolationsHandler(store ViolationStore, retrier ActionRetrier, logger zerolog.Logger) *ViolationsHandler {
	return &ViolationsHandler{
		store:   store,
		retrier: retrier,
		logger:  logger.With().Str("component", "violations_handler").Logger(),
	}
}

// RegisterRoutes registers violation and action routes on the given router group.
func (h *ViolationsHandler) RegisterRoutes(r *gin.RouterGroup) {
	violations := r.Group("/violations")
	{
		violations.GET("", h.List)
		violations.GET("/:id", h.Get)
		violations.POST("/:id/resolve", h.Resolve)
	}

	actions := r.Group("/actions")
	{
		actions.GET("", h.ListActions)
		actions.POST("/:id/retry", h.RetryAction)
	}
}

// List returns violations filtered by status and policy.
// GET /api/v1/sla/violations?status&policy_id&page&page_size
func (h *ViolationsHandler) List(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}

	filter := models.ViolationFilter{
		Status: models.ViolationStatus(c.Query("status")),
		Page:   pageFromQuery(c),
	}
	switch filter.Status {
	case "", models.ViolationStatusOpen, models.ViolationStatusResolved, models.ViolationStatusClosed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if filter.PolicyID, ok = parseOptionalUUIDQuery(c, "policy_id"); !ok {
		return
	}

	violations, total, err := h.store.ListSLAViolations(c.Request.Context(), orgID, filter)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", orgID.String()).Msg("failed to list violations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list violations"})
		return
	}

	c.JSON(http.StatusOK, newListResponse(violations, total, filter.Page))
}

// Get returns a violation with its escalation actions.
// GET /api/v1/sla/violations/:id
func (h *ViolationsHandler) Get(c *gin.Context) {
	v, ok := h.loadViolation(c)
	if !ok {
		return
	}

	actions, err := h.store.ListEscalationActionsByViolation(c.Request.Context(), v.OrgID, v.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("violation_id", v.ID.String()).Msg("failed to list violation actions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list violation actions"})
		return
	}
	if actions == nil {
		actions = []*models.EscalationAction{}
	}

	c.JSON(http.StatusOK, ViolationDetail{SLAViolation: v, Actions: actions})
}

// Resolve closes an open violation. Pending actions are left to run.
// POST /api/v1/sla/violations/:id/resolve
func (h *ViolationsHandler) Resolve(c *gin.Context) {
	var req models.ResolveViolationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.Status == "" {
		req.Status = models.ViolationStatusResolved
	}
	if req.Status != models.ViolationStatusResolved && req.Status != models.ViolationStatusClosed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be resolved or closed"})
		return
	}

	v, ok := h.loadViolation(c)
	if !ok {
		return
	}
	if !v.IsOpen() {
		c.JSON(http.StatusConflict, gin.H{"error": "violation is not open"})
		return
	}

	v.Resolve(req.Status, req.Resolution)
	if err := h.store.ResolveSLAViolation(c.Request.Context(), v); err != nil {
		if errors.Is(err, db.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "violation is not open"})
			return
		}
		h.logger.Error().Err(err).Str("violation_id", v.ID.String()).Msg("failed to resolve violation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve violation"})
		return
	}

	h.logger.Info().
		Str("org_id", v.OrgID.String()).
		Str("violation_id", v.ID.String()).
		Str("status", string(v.Status)).
		Msg("violation resolved")

	c.JSON(http.StatusOK, v)
}

// ListActions returns escalation actions filtered by violation and status.
// GET /api/v1/sla/actions?violation_id&status&page&page_size
func (h *ViolationsHandler) ListActions(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}

	filter := models.ActionFilter{
		Status: models.ActionStatus(c.Query("status")),
		Page:   pageFromQuery(c),
	}
	switch filter.Status {
	case "", models.ActionStatusPending, models.ActionStatusExecuting, models.ActionStatusExecuted, models.ActionStatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if filter.ViolationID, ok = parseOptionalUUIDQuery(c, "violation_id"); !ok {
		return
	}

	actions, total, err := h.store.ListEscalationActions(c.Request.Context(), orgID, filter)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", orgID.String()).Msg("failed to list escalation actions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list escalation actions"})
		return
	}

	c.JSON(http.StatusOK, newListResponse(actions, total, filter.Page))
}

// RetryAction executes a pending or failed action immediately.
// POST /api/v1/sla/actions/:id/retry
func (h *ViolationsHandler) RetryAction(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "action")
	if !ok {
		return
	}

	action, err := h.retrier.RetryAction(c.Request.Context(), orgID, id)
	if err != nil {
		switch {
		case isNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "escalation action not found"})
		case errors.Is(err, escalation.ErrNotRetryable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error().Err(err).Str("action_id", id.String()).Msg("failed to retry action")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retry action"})
		}
		return
	}

	c.JSON(http.StatusOK, action)
}

func (h *ViolationsHandler) loadViolation(c *gin.Context) (*models.SLAViolation, bool) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return nil, false
	}
	id, ok := parseIDParam(c, "id", "violation")
	if !ok {
		return nil, false
	}

	v, err := h.store.GetSLAViolation(c.Request.Context(), orgID, id)
	if err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "violation not found"})
			return nil, false
		}
		h.logger.Error().Err(err).Str("violation_id", id.String()).Msg("failed to get violation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get violation"})
		return nil, false
	}
	return v, true
}

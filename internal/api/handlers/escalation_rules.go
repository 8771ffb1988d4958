package handlers

import (
	"context"
	"net/http"

	"github.com/MacJediWizard/slawatch/internal/api/middleware"
	"github.com/MacJediWizard/slawatch/internal/escalation"
	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EscalationRuleStore defines the persistence operations for escalation rules.
type EscalationRuleStore interface {
	ListEscalationRules(ctx context.Context, orgID uuid.UUID, policyID *uuid.UUID, page models.Page) ([]*models.EscalationRule, int, error)
	GetEscalationRule(ctx context.Context, orgID, id uuid.UUID) (*models.EscalationRule, error)
	CreateEscalationRule(ctx context.Context, r *models.EscalationRule) error
	UpdateEscalationRule(ctx context.Context, r *models.EscalationRule) error
	DeleteEscalationRule(ctx context.Context, orgID, id uuid.UUID) error
	GetSLAPolicy(ctx context.Context, orgID, id uuid.UUID) (*models.SLAPolicy, error)
}

// EscalationRulesHandler handles escalation rule HTTP endpoints.
type EscalationRulesHandler struct {
	store  EscalationRuleStore
	logger zerolog.Logger
}

// NewEscalationRulesHandler creates a new EscalationRulesHandler.
func NewEscalationRulesHandler(store EscalationRuleStore, logger zerolog.Logger) *EscalationRulesHandler {
	return &EscalationRulesHandler{
		store:  store,
		logger: logger.With().Str("component", "escalation_rules_handler").Logger(),
	}
}

// RegisterRoutes registers escalation rule routes on the given router group.
func (h *EscalationRulesHandler) RegisterRoutes(r *gin.RouterGroup) {
	rules := r.Group("/rules")
	{
		rules.GET("", h.List)
		rules.POST("", h.Create)
		rules.GET("/:id", h.Get)
		rules.PUT("/:id", h.Update)
		rules.DELETE("/:id", h.Delete)
	}
}

// List returns escalation rules, optionally for one policy.
// GET /api/v1/sla/rules?policy_id&page&page_size
func (h *EscalationRulesHandler) List(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}
	policyID, ok := parseOptionalUUIDQuery(c, "policy_id")
	if !ok {
		return
	}
	page := pageFromQuery(c)

	rules, total, err := h.store.ListEscalationRules(c.Request.Context(), orgID, policyID, page)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", orgID.String()).Msg("failed to list escalation rules")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list escalation rules"})
		return
	}

	c.JSON(http.StatusOK, newListResponse(rules, total, page))
}

// Create creates an escalation rule after validating its action config.
// POST /api/v1/sla/rules
func (h *EscalationRulesHandler) Create(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}

	var req models.CreateEscalationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := escalation.ValidateRule(req.ActionType, req.ActionConfig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.store.GetSLAPolicy(c.Request.Context(), orgID, req.PolicyID); err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "SLA policy not found"})
			return
		}
		h.logger.Error().Err(err).Str("policy_id", req.PolicyID.String()).Msg("failed to get SLA policy")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify SLA policy"})
		return
	}

	rule := models.NewEscalationRule(orgID, req.PolicyID, req.Level, req.TriggerAfterMinutes, req.ActionType, req.ActionConfig)
	if err := h.store.CreateEscalationRule(c.Request.Context(), rule); err != nil {
		h.logger.Error().Err(err).Str("policy_id", req.PolicyID.String()).Msg("failed to create escalation rule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create escalation rule"})
		return
	}

	h.logger.Info().
		Str("org_id", orgID.String()).
		Str("rule_id", rule.ID.String()).
		Str("policy_id", rule.PolicyID.String()).
		Int("level", rule.Level).
		Str("action_type", string(rule.ActionType)).
		Msg("escalation rule created")

	c.JSON(http.StatusCreated, rule)
}

// Get returns one escalation rule.
// GET /api/v1/sla/rules/:id
func (h *EscalationRulesHandler) Get(c *gin.Context) {
	rule, ok := h.loadRule(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rule)
}

// Update updates an escalation rule. Actions already created keep the
// config they were created with.
// PUT /api/v1/sla/rules/:id
func (h *EscalationRulesHandler) Update(c *gin.Context) {
	var req models.UpdateEscalationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	rule, ok := h.loadRule(c)
	if !ok {
		return
	}

	if req.Level != nil {
		if *req.Level < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "level must be at least 1"})
			return
		}
		rule.Level = *req.Level
	}
	if req.TriggerAfterMinutes != nil {
		if *req.TriggerAfterMinutes < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "trigger_after_minutes must not be negative"})
			return
		}
		rule.TriggerAfterMinutes = *req.TriggerAfterMinutes
	}
	if req.ActionType != nil {
		rule.ActionType = *req.ActionType
	}
	if req.ActionConfig != nil {
		rule.ActionConfig = req.ActionConfig
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := escalation.ValidateRule(rule.ActionType, rule.ActionConfig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.UpdateEscalationRule(c.Request.Context(), rule); err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "escalation rule not found"})
			return
		}
		h.logger.Error().Err(err).Str("rule_id", rule.ID.String()).Msg("failed to update escalation rule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update escalation rule"})
		return
	}

	h.logger.Info().
		Str("org_id", rule.OrgID.String()).
		Str("rule_id", rule.ID.String()).
		Msg("escalation rule updated")

	c.JSON(http.StatusOK, rule)
}

// Delete soft-deletes an escalation rule.
// DELETE /api/v1/sla/rules/:id
func (h *EscalationRulesHandler) Delete(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "rule")
	if !ok {
		return
	}

	if err := h.store.DeleteEscalationRule(c.Request.Context(), orgID, id); err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "escalation rule not found"})
			return
		}
		h.logger.Error().Err(err).Str("rule_id", id.String()).Msg("failed to delete escalation rule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete escalation rule"})
		return
	}

	h.logger.Info().
		Str("org_id", orgID.String()).
		Str("rule_id", id.String()).
		Msg("escalation rule deleted")

	c.JSON(http.StatusOK, gin.H{"message": "escalation rule deleted"})
}

func (h *EscalationRulesHandler) loadRule(c *gin.Context) (*models.EscalationRule, bool) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return nil, false
	}
	id, ok := parseIDParam(c, "id", "rule")
	if !ok {
		return nil, false
	}

	rule, err := h.store.GetEscalationRule(c.Request.Context(), orgID, id)
	if err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "escalation rule not found"})
			return nil, false
		}
		h.logger.Error().Err(err).Str("rule_id", id.String()).Msg("failed to get escalation rule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get escalation rule"})
		return nil, false
	}
	return rule, true
}

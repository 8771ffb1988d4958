package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MacJediWizard/slawatch/internal/api/middleware"
	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/MacJediWizard/slawatch/internal/sla"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SLAStore defines the interface for SLA policy persistence operations.
type SLAStore interface {
	ListSLAPoliciesByOrg(ctx context.Context, orgID uuid.UUID, search string, page models.Page) ([]*models.SLAPolicy, int, error)
	GetSLAPolicy(ctx context.Context, orgID, id uuid.UUID) (*models.SLAPolicy, error)
	CreateSLAPolicy(ctx context.Context, policy *models.SLAPolicy) error
	UpdateSLAPolicy(ctx context.Context, policy *models.SLAPolicy) error
	DeleteSLAPolicy(ctx context.Context, orgID, id uuid.UUID) error
	GetBusinessCalendar(ctx context.Context, orgID, id uuid.UUID) (*models.BusinessCalendar, error)
}

// DueDateResponse is the result of a due date preview.
type DueDateResponse struct {
	PolicyID      uuid.UUID  `json:"policy_id"`
	Start         time.Time  `json:"start"`
	ResponseDue   time.Time  `json:"response_due"`
	ResolutionDue *time.Time `json:"resolution_due,omitempty"`
	CalendarID    *uuid.UUID `json:"calendar_id,omitempty"`
}

// SLAHandler handles SLA policy HTTP endpoints.
type SLAHandler struct {
	store      SLAStore
	calculator *sla.Calculator
	logger     zerolog.Logger
}

// NewSLAHandler creates a new SLAHandler.
func NewSLAHandler(store SLAStore, logger zerolog.Logger) *SLAHandler {
	return &SLAHandler{
		store:      store,
		calculator: sla.NewCalculator(),
		logger:     logger.With().Str("component", "sla_handler").Logger(),
	}
}

// RegisterRoutes registers SLA policy routes on the given router group.
func (h *SLAHandler) RegisterRoutes(r *gin.RouterGroup) {
	policies := r.Group("/policies")
	{
		policies.GET("", h.List)
		policies.POST("", h.Create)
		policies.GET("/:id", h.Get)
		policies.PUT("/:id", h.Update)
		policies.DELETE("/:id", h.Delete)
		policies.GET("/:id/due-date", h.DueDate)
	}
}

// List returns the organization's live SLA policies.
// GET /api/v1/sla/policies?page&page_size&search
func (h *SLAHandler) List(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}

	page := pageFromQuery(c)
	search := strings.TrimSpace(c.Query("search"))

	policies, total, err := h.store.ListSLAPoliciesByOrg(c.Request.Context(), orgID, search, page)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", orgID.String()).Msg("failed to list SLA policies")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list SLA policies"})
		return
	}

	c.JSON(http.StatusOK, newListResponse(policies, total, page))
}

// Create creates a new SLA policy.
// POST /api/v1/sla/policies
func (h *SLAHandler) Create(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}

	var req models.CreateSLAPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	policy := models.NewSLAPolicy(orgID, req.Name, req.ResponseTimeHours, req.ResolutionTimeHours)
	policy.Description = req.Description
	policy.TaskType = req.TaskType
	policy.Priority = req.Priority

	if req.CalendarID != nil {
		if !h.attachCalendar(c, policy, *req.CalendarID) {
			return
		}
	}

	if err := h.store.CreateSLAPolicy(c.Request.Context(), policy); err != nil {
		h.logger.Error().Err(err).Str("name", req.Name).Msg("failed to create SLA policy")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create SLA policy"})
		return
	}

	h.logger.Info().
		Str("org_id", orgID.String()).
		Str("policy_id", policy.ID.String()).
		Str("name", policy.Name).
		Msg("SLA policy created")

	c.JSON(http.StatusCreated, policy)
}

// Get returns a specific SLA policy by ID.
// GET /api/v1/sla/policies/:id
func (h *SLAHandler) Get(c *gin.Context) {
	policy, ok := h.loadPolicy(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, policy)
}

// Update updates an existing SLA policy.
// PUT /api/v1/sla/policies/:id
func (h *SLAHandler) Update(c *gin.Context) {
	var req models.UpdateSLAPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	policy, ok := h.loadPolicy(c)
	if !ok {
		return
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be empty"})
			return
		}
		policy.Name = *req.Name
	}
	if req.Description != nil {
		policy.Description = *req.Description
	}
	if req.TaskType != nil {
		policy.TaskType = *req.TaskType
	}
	if req.Priority != nil {
		policy.Priority = *req.Priority
	}
	if req.ResponseTimeHours != nil {
		if *req.ResponseTimeHours <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "response_time_hours must be positive"})
			return
		}
		policy.ResponseTimeHours = *req.ResponseTimeHours
	}
	if req.ResolutionTimeHours != nil {
		if *req.ResolutionTimeHours < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "resolution_time_hours must not be negative"})
			return
		}
		policy.ResolutionTimeHours = *req.ResolutionTimeHours
	}
	if req.IsActive != nil {
		policy.IsActive = *req.IsActive
	}
	switch {
	case req.ClearCalendar:
		policy.CalendarID = nil
		policy.Calendar = nil
	case req.CalendarID != nil:
		if !h.attachCalendar(c, policy, *req.CalendarID) {
			return
		}
	}

	if err := h.store.UpdateSLAPolicy(c.Request.Context(), policy); err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "SLA policy not found"})
			return
		}
		h.logger.Error().Err(err).Str("policy_id", policy.ID.String()).Msg("failed to update SLA policy")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update SLA policy"})
		return
	}

	h.logger.Info().
		Str("org_id", policy.OrgID.String()).
		Str("policy_id", policy.ID.String()).
		Msg("SLA policy updated")

	c.JSON(http.StatusOK, policy)
}

// Delete soft-deletes an SLA policy. Existing violations keep their history.
// DELETE /api/v1/sla/policies/:id
func (h *SLAHandler) Delete(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "policy")
	if !ok {
		return
	}

	if err := h.store.DeleteSLAPolicy(c.Request.Context(), orgID, id); err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "SLA policy not found"})
			return
		}
		h.logger.Error().Err(err).Str("policy_id", id.String()).Msg("failed to delete SLA policy")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete SLA policy"})
		return
	}

	h.logger.Info().
		Str("org_id", orgID.String()).
		Str("policy_id", id.String()).
		Msg("SLA policy deleted")

	c.JSON(http.StatusOK, gin.H{"message": "SLA policy deleted"})
}

// DueDate previews the deadlines of a task created at start under the policy.
// GET /api/v1/sla/policies/:id/due-date?start=RFC3339
func (h *SLAHandler) DueDate(c *gin.Context) {
	start := time.Now()
	if raw := c.Query("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be an RFC3339 timestamp"})
			return
		}
		start = t
	}

	policy, ok := h.loadPolicy(c)
	if !ok {
		return
	}

	resp := DueDateResponse{PolicyID: policy.ID, Start: start, CalendarID: policy.CalendarID}

	due, err := h.calculator.DueDate(policy, models.ViolationTypeResponse, start)
	if err != nil {
		h.respondCalendarError(c, policy, err)
		return
	}
	resp.ResponseDue = due

	if policy.ResolutionTimeHours > 0 {
		due, err := h.calculator.DueDate(policy, models.ViolationTypeResolution, start)
		if err != nil {
			h.respondCalendarError(c, policy, err)
			return
		}
		resp.ResolutionDue = &due
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SLAHandler) loadPolicy(c *gin.Context) (*models.SLAPolicy, bool) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return nil, false
	}
	id, ok := parseIDParam(c, "id", "policy")
	if !ok {
		return nil, false
	}

	policy, err := h.store.GetSLAPolicy(c.Request.Context(), orgID, id)
	if err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "SLA policy not found"})
			return nil, false
		}
		h.logger.Error().Err(err).Str("policy_id", id.String()).Msg("failed to get SLA policy")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get SLA policy"})
		return nil, false
	}
	return policy, true
}

// attachCalendar links a calendar of the same organization to the policy.
func (h *SLAHandler) attachCalendar(c *gin.Context, policy *models.SLAPolicy, calendarID uuid.UUID) bool {
	cal, err := h.store.GetBusinessCalendar(c.Request.Context(), policy.OrgID, calendarID)
	if err != nil {
		if isNotFound(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "calendar not found"})
			return false
		}
		h.logger.Error().Err(err).Str("calendar_id", calendarID.String()).Msg("failed to get calendar")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify calendar"})
		return false
	}
	policy.CalendarID = &cal.ID
	policy.Calendar = cal
	return true
}

func (h *SLAHandler) respondCalendarError(c *gin.Context, policy *models.SLAPolicy, err error) {
	if errors.Is(err, sla.ErrInvalidCalendar) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error().Err(err).Str("policy_id", policy.ID.String()).Msg("failed to compute due date")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute due date"})
}

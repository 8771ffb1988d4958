package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/MacJediWizard/slawatch/internal/api/middleware"
	"github.com/MacJediWizard/slawatch/internal/db"
	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CalendarStore defines the persistence operations for business calendars.
type CalendarStore interface {
	ListBusinessCalendarsByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.BusinessCalendar, error)
	GetBusinessCalendar(ctx context.Context, orgID, id uuid.UUID) (*models.BusinessCalendar, error)
	CreateBusinessCalendar(ctx context.Context, c *models.BusinessCalendar) error
	UpdateBusinessCalendar(ctx context.Context, c *models.BusinessCalendar) error
	DeleteBusinessCalendar(ctx context.Context, orgID, id uuid.UUID) error
}

// CalendarsHandler handles business calendar HTTP endpoints.
type CalendarsHandler struct {
	store  CalendarStore
	logger zerolog.Logger
}

// NewCalendarsHandler creates a new CalendarsHandler.
func NewCalendarsHandler(store CalendarStore, logger zerolog.Logger) *CalendarsHandler {
	return &CalendarsHandler{
		store:  store,
		logger: logger.With().Str("component", "calendars_handler").Logger(),
	}
}

// RegisterRoutes registers calendar routes on the given router group.
func (h *CalendarsHandler) RegisterRoutes(r *gin.RouterGroup) {
	calendars := r.Group("/calendars")
	{
		calendars.GET("", h.List)
		calendars.POST("", h.Create)
		calendars.GET("/:id", h.Get)
		calendars.PUT("/:id", h.Update)
		calendars.DELETE("/:id", h.Delete)
	}
}

// List returns the organization's calendars.
// GET /api/v1/sla/calendars
func (h *CalendarsHandler) List(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}

	calendars, err := h.store.ListBusinessCalendarsByOrg(c.Request.Context(), orgID)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", orgID.String()).Msg("failed to list calendars")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list calendars"})
		return
	}
	if calendars == nil {
		calendars = []*models.BusinessCalendar{}
	}

	c.JSON(http.StatusOK, gin.H{"calendars": calendars})
}

// Create creates a calendar.
// POST /api/v1/sla/calendars
func (h *CalendarsHandler) Create(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}

	var req models.CalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	cal := models.NewBusinessCalendar(orgID, req.Name)
	req.Apply(cal)
	if err := cal.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.CreateBusinessCalendar(c.Request.Context(), cal); err != nil {
		h.logger.Error().Err(err).Str("org_id", orgID.String()).Msg("failed to create calendar")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create calendar"})
		return
	}

	h.logger.Info().
		Str("org_id", orgID.String()).
		Str("calendar_id", cal.ID.String()).
		Str("name", cal.Name).
		Msg("business calendar created")

	c.JSON(http.StatusCreated, cal)
}

// Get returns one calendar.
// GET /api/v1/sla/calendars/:id
func (h *CalendarsHandler) Get(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "calendar")
	if !ok {
		return
	}

	cal, err := h.store.GetBusinessCalendar(c.Request.Context(), orgID, id)
	if err != nil {
		h.respondError(c, err, id, "failed to get calendar")
		return
	}

	c.JSON(http.StatusOK, cal)
}

// Update replaces a calendar's definition.
// PUT /api/v1/sla/calendars/:id
func (h *CalendarsHandler) Update(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "calendar")
	if !ok {
		return
	}

	var req models.CalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	cal, err := h.store.GetBusinessCalendar(c.Request.Context(), orgID, id)
	if err != nil {
		h.respondError(c, err, id, "failed to get calendar")
		return
	}

	req.Apply(cal)
	if err := cal.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.UpdateBusinessCalendar(c.Request.Context(), cal); err != nil {
		h.respondError(c, err, id, "failed to update calendar")
		return
	}

	h.logger.Info().
		Str("org_id", orgID.String()).
		Str("calendar_id", id.String()).
		Msg("business calendar updated")

	c.JSON(http.StatusOK, cal)
}

// Delete removes a calendar that no live policy references.
// DELETE /api/v1/sla/calendars/:id
func (h *CalendarsHandler) Delete(c *gin.Context) {
	orgID, ok := middleware.RequireOrgID(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id", "calendar")
	if !ok {
		return
	}

	if err := h.store.DeleteBusinessCalendar(c.Request.Context(), orgID, id); err != nil {
		if errors.Is(err, db.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "calendar is used by an active SLA policy"})
			return
		}
		h.respondError(c, err, id, "failed to delete calendar")
		return
	}

	h.logger.Info().
		Str("org_id", orgID.String()).
		Str("calendar_id", id.String()).
		Msg("business calendar deleted")

	c.JSON(http.StatusOK, gin.H{"message": "calendar deleted"})
}

func (h *CalendarsHandler) respondError(c *gin.Context, err error, id uuid.UUID, msg string) {
	if isNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "calendar not found"})
		return
	}
	h.logger.Error().Err(err).Str("calendar_id", id.String()).Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

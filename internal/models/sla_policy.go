package models

import (
	"time"

	"github.com/google/uuid"
)

// SLAPolicy defines response and resolution budgets for a class of tasks.
type SLAPolicy struct {
	ID                  uuid.UUID         `json:"id"`
	OrgID               uuid.UUID         `json:"org_id"`
	Name                string            `json:"name"`
	Description         string            `json:"description,omitempty"`
	TaskType            string            `json:"task_type,omitempty"`
	Priority            string            `json:"priority,omitempty"`
	ResponseTimeHours   float64           `json:"response_time_hours"`
	ResolutionTimeHours float64           `json:"resolution_time_hours"`
	CalendarID          *uuid.UUID        `json:"calendar_id,omitempty"`
	Calendar            *BusinessCalendar `json:"calendar,omitempty"`
	IsActive            bool              `json:"is_active"`
	DeletedAt           *time.Time        `json:"deleted_at,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// NewSLAPolicy creates a new active SLAPolicy with the given details.
func NewSLAPolicy(orgID uuid.UUID, name string, responseHours, resolutionHours float64) *SLAPolicy {
	now := time.Now()
	return &SLAPolicy{
		ID:                  uuid.New(),
		OrgID:               orgID,
		Name:                name,
		ResponseTimeHours:   responseHours,
		ResolutionTimeHours: resolutionHours,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Budget returns the time budget in hours the policy grants for a violation type.
func (p *SLAPolicy) Budget(vt ViolationType) float64 {
	if vt == ViolationTypeResolution {
		return p.ResolutionTimeHours
	}
	return p.ResponseTimeHours
}

// Applies reports whether the policy's task filter matches the given task.
// Empty filters match any value.
func (p *SLAPolicy) Applies(t *Task) bool {
	if p.TaskType != "" && p.TaskType != t.TaskType {
		return false
	}
	if p.Priority != "" && p.Priority != t.Priority {
		return false
	}
	return true
}

// IsDeleted reports whether the policy has been soft-deleted.
func (p *SLAPolicy) IsDeleted() bool {
	return p.DeletedAt != nil
}

// CreateSLAPolicyRequest is the request body for creating an SLA policy.
type CreateSLAPolicyRequest struct {
	Name                string     `json:"name" binding:"required,min=1,max=255"`
	Description         string     `json:"description,omitempty"`
	TaskType            string     `json:"task_type,omitempty"`
	Priority            string     `json:"priority,omitempty"`
	ResponseTimeHours   float64    `json:"response_time_hours" binding:"required,gt=0"`
	ResolutionTimeHours float64    `json:"resolution_time_hours" binding:"gte=0"`
	CalendarID          *uuid.UUID `json:"calendar_id,omitempty"`
}

// UpdateSLAPolicyRequest is the request body for updating an SLA policy.
type UpdateSLAPolicyRequest struct {
	Name                *string    `json:"name,omitempty"`
	Description         *string    `json:"description,omitempty"`
	TaskType            *string    `json:"task_type,omitempty"`
	Priority            *string    `json:"priority,omitempty"`
	ResponseTimeHours   *float64   `json:"response_time_hours,omitempty"`
	ResolutionTimeHours *float64   `json:"resolution_time_hours,omitempty"`
	CalendarID          *uuid.UUID `json:"calendar_id,omitempty"`
	ClearCalendar       bool       `json:"clear_calendar,omitempty"`
	IsActive            *bool      `json:"is_active,omitempty"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// ViolationType identifies which policy budget was missed.
type ViolationType string

const (
	// ViolationTypeResponse means the task received no response within the response budget.
	ViolationTypeResponse ViolationType = "response"
	// ViolationTypeResolution means the task was not completed within the resolution budget.
	ViolationTypeResolution ViolationType = "resolution"
)

// ViolationStatus is the lifecycle state of an SLA violation.
type ViolationStatus string

const (
	ViolationStatusOpen     ViolationStatus = "open"
	ViolationStatusResolved ViolationStatus = "resolved"
	ViolationStatusClosed   ViolationStatus = "closed"
)

// SLAViolation records a missed policy deadline for a task.
type SLAViolation struct {
	ID              uuid.UUID       `json:"id"`
	OrgID           uuid.UUID       `json:"org_id"`
	PolicyID        uuid.UUID       `json:"policy_id"`
	TaskID          uuid.UUID       `json:"task_id"`
	ViolationType   ViolationType   `json:"violation_type"`
	DueAt           time.Time       `json:"due_at"`
	ViolatedAt      time.Time       `json:"violated_at"`
	Status          ViolationStatus `json:"status"`
	EscalationLevel int             `json:"escalation_level"`
	Resolution      string          `json:"resolution,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewSLAViolation creates an open, not yet escalated violation.
func NewSLAViolation(orgID, policyID, taskID uuid.UUID, vt ViolationType, dueAt, violatedAt time.Time) *SLAViolation {
	return &SLAViolation{
		ID:            uuid.New(),
		OrgID:         orgID,
		PolicyID:      policyID,
		TaskID:        taskID,
		ViolationType: vt,
		DueAt:         dueAt,
		ViolatedAt:    violatedAt,
		Status:        ViolationStatusOpen,
		CreatedAt:     violatedAt,
		UpdatedAt:     violatedAt,
	}
}

// IsOpen reports whether the violation still awaits resolution.
func (v *SLAViolation) IsOpen() bool {
	return v.Status == ViolationStatusOpen
}

// MinutesOpen returns the minutes elapsed since the violation was recorded.
func (v *SLAViolation) MinutesOpen(now time.Time) float64 {
	return now.Sub(v.ViolatedAt).Minutes()
}

// Resolve moves the violation to a terminal status with resolution notes.
func (v *SLAViolation) Resolve(status ViolationStatus, notes string) {
	now := time.Now()
	v.Status = status
	v.Resolution = notes
	v.ResolvedAt = &now
	v.UpdatedAt = now
}

// ViolationFilter narrows violation listings.
type ViolationFilter struct {
	Status   ViolationStatus
	PolicyID *uuid.UUID
	Page     Page
}

// ResolveViolationRequest is the request body for resolving a violation.
type ResolveViolationRequest struct {
	Status     ViolationStatus `json:"status,omitempty"`
	Resolution string          `json:"resolution" binding:"max=2000"`
}

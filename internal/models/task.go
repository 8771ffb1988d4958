package models

import (
	"time"

	"github.com/google/uuid"
)

// Task statuses that end SLA tracking.
const (
	TaskStatusCompleted = "completed"
	TaskStatusCancelled = "cancelled"
)

// Task is a work item tracked against SLA policies.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	OrgID       uuid.UUID  `json:"org_id"`
	Title       string     `json:"title"`
	TaskType    string     `json:"task_type,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Status      string     `json:"status"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewTask creates a new open task.
func NewTask(orgID uuid.UUID, title, taskType, priority string) *Task {
	now := time.Now()
	return &Task{
		ID:        uuid.New(),
		OrgID:     orgID,
		Title:     title,
		TaskType:  taskType,
		Priority:  priority,
		Status:    "open",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsComplete reports whether the task no longer counts against SLAs.
func (t *Task) IsComplete() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusCancelled
}

// Tracks reports whether the task is still subject to the given violation type.
func (t *Task) Tracks(vt ViolationType) bool {
	if t.IsComplete() {
		return false
	}
	if vt == ViolationTypeResponse {
		return t.RespondedAt == nil
	}
	return true
}

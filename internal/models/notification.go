package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NotificationPriority ranks in-app notifications.
type NotificationPriority string

const (
	NotificationPriorityNormal NotificationPriority = "normal"
	NotificationPriorityHigh   NotificationPriority = "high"
)

// NotificationTypeSLAEscalation marks notifications raised by escalation rules.
const NotificationTypeSLAEscalation = "sla_escalation"

// Notification is a user-facing notification handed to the platform's
// delivery channels.
type Notification struct {
	ID          uuid.UUID            `json:"id"`
	OrgID       uuid.UUID            `json:"org_id"`
	UserID      uuid.UUID            `json:"user_id"`
	Type        string               `json:"type"`
	Title       string               `json:"title"`
	Message     string               `json:"message"`
	Priority    NotificationPriority `json:"priority"`
	Correlation map[string]string    `json:"correlation,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// NewNotification creates a notification for a single recipient.
func NewNotification(orgID, userID uuid.UUID, notifType, title, message string, priority NotificationPriority) *Notification {
	return &Notification{
		ID:        uuid.New(),
		OrgID:     orgID,
		UserID:    userID,
		Type:      notifType,
		Title:     title,
		Message:   message,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}

// CorrelationJSON returns the correlation data as JSON bytes
func (n *Notification) CorrelationJSON() ([]byte, error) {
	if n.Correlation == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(n.Correlation)
}

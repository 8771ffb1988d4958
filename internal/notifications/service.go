// Package notifications hands user notifications raised by escalations to
// the platform's notification store.
package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrRecipientRequired is returned for a notification without a recipient.
var ErrRecipientRequired = errors.New("notification recipient required")

// NotificationStore defines the interface for notification persistence.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Request describes one notification to create.
type Request struct {
	OrgID       uuid.UUID
	RecipientID uuid.UUID
	Type        string
	Title       string
	Message     string
	Priority    models.NotificationPriority
	Correlation map[string]string
}

// Service creates notifications for escalation recipients.
type Service struct {
	store  NotificationStore
	logger zerolog.Logger
}

// NewService creates a new notification service.
func NewService(store NotificationStore, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "notification_service").Logger(),
	}
}

// CreateNotification stores a notification for one recipient. Delivery to
// email, chat or in-app channels is done by the platform.
func (s *Service) CreateNotification(ctx context.Context, req Request) (*models.Notification, error) {
	if req.RecipientID == uuid.Nil {
		return nil, ErrRecipientRequired
	}
	if req.Type == "" {
		req.Type = models.NotificationTypeSLAEscalation
	}
	if req.Priority == "" {
		req.Priority = models.NotificationPriorityNormal
	}

	n := models.NewNotification(req.OrgID, req.RecipientID, req.Type, req.Title, req.Message, req.Priority)
	if len(req.Correlation) > 0 {
		n.Correlation = make(map[string]string, len(req.Correlation))
		for k, v := range req.Correlation {
			n.Correlation[k] = v
		}
	}

	if err := s.store.CreateNotification(ctx, n); err != nil {
		s.logger.Error().Err(err).
			Str("org_id", req.OrgID.String()).
			Str("user_id", req.RecipientID.String()).
			Msg("failed to create notification")
		return nil, fmt.Errorf("create notification: %w", err)
	}

	s.logger.Debug().
		Str("org_id", req.OrgID.String()).
		Str("user_id", req.RecipientID.String()).
		Str("notification_id", n.ID.String()).
		Str("priority", string(n.Priority)).
		Msg("notification created")
	return n, nil
}

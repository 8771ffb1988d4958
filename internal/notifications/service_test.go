package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// mockNotificationStore implements NotificationStore for testing.
type mockNotificationStore struct {
	mu            sync.Mutex
	notifications []*models.Notification
	err           error
}

func (m *mockNotificationStore) CreateNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.notifications = append(m.notifications, n)
	return nil
}

func TestService_CreateNotification(t *testing.T) {
	store := &mockNotificationStore{}
	svc := NewService(store, zerolog.Nop())

	orgID := uuid.New()
	userID := uuid.New()
	correlation := map[string]string{"violation_id": "v1", "action_id": "a1"}

	n, err := svc.CreateNotification(context.Background(), Request{
		OrgID:       orgID,
		RecipientID: userID,
		Title:       "SLA escalation",
		Message:     "task overdue",
		Priority:    models.NotificationPriorityHigh,
		Correlation: correlation,
	})
	if err != nil {
		t.Fatalf("CreateNotification() error: %v", err)
	}

	if len(store.notifications) != 1 {
		t.Fatalf("expected 1 stored notification, got %d", len(store.notifications))
	}
	if n.OrgID != orgID || n.UserID != userID {
		t.Error("expected notification scoped to org and recipient")
	}
	if n.Type != models.NotificationTypeSLAEscalation {
		t.Errorf("expected default type %q, got %q", models.NotificationTypeSLAEscalation, n.Type)
	}
	if n.Priority != models.NotificationPriorityHigh {
		t.Errorf("expected high priority, got %q", n.Priority)
	}
	if n.Correlation["violation_id"] != "v1" || n.Correlation["action_id"] != "a1" {
		t.Errorf("unexpected correlation: %v", n.Correlation)
	}

	correlation["violation_id"] = "mutated"
	if n.Correlation["violation_id"] != "v1" {
		t.Error("expected correlation data to be copied")
	}
}

func TestService_CreateNotificationDefaults(t *testing.T) {
	store := &mockNotificationStore{}
	svc := NewService(store, zerolog.Nop())

	n, err := svc.CreateNotification(context.Background(), Request{OrgID: uuid.New(), RecipientID: uuid.New(), Title: "t"})
	if err != nil {
		t.Fatalf("CreateNotification() error: %v", err)
	}
	if n.Priority != models.NotificationPriorityNormal {
		t.Errorf("expected normal priority, got %q", n.Priority)
	}
}

func TestService_CreateNotificationRequiresRecipient(t *testing.T) {
	svc := NewService(&mockNotificationStore{}, zerolog.Nop())

	_, err := svc.CreateNotification(context.Background(), Request{OrgID: uuid.New()})
	if !errors.Is(err, ErrRecipientRequired) {
		t.Errorf("expected ErrRecipientRequired, got %v", err)
	}
}

func TestService_CreateNotificationStoreError(t *testing.T) {
	store := &mockNotificationStore{err: errors.New("db down")}
	svc := NewService(store, zerolog.Nop())

	_, err := svc.CreateNotification(context.Background(), Request{OrgID: uuid.New(), RecipientID: uuid.New()})
	if err == nil {
		t.Fatal("expected error")
	}
}

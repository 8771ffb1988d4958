// Package escalation advances open SLA violations through their policy's
// escalation levels and executes the resulting remediation actions.
package escalation

import (
	"context"
	"errors"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/MacJediWizard/slawatch/internal/notifications"
	"github.com/MacJediWizard/slawatch/internal/webhooks"
	"github.com/google/uuid"
)

var (
	// ErrInvalidConfig marks an action whose configuration cannot be decoded
	// or does not name a usable target.
	ErrInvalidConfig = errors.New("invalid action configuration")
	// ErrTaskNotFound is returned when the violation's task no longer exists.
	ErrTaskNotFound = errors.New("task not found")
	// ErrViolationNotFound is returned when an action's violation no longer exists.
	ErrViolationNotFound = errors.New("violation not found")
	// ErrNotRetryable is returned when a manual retry targets an action that
	// is executing or already executed.
	ErrNotRetryable = errors.New("action is not retryable")
)

// Store defines the persistence operations the engine needs.
type Store interface {
	ListOpenSLAViolationsByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.SLAViolation, error)
	ListActiveEscalationRulesByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.EscalationRule, error)
	EscalateSLAViolation(ctx context.Context, v *models.SLAViolation, fromLevel int, actions []*models.EscalationAction) error
	GetSLAViolation(ctx context.Context, orgID, id uuid.UUID) (*models.SLAViolation, error)
	ListDueEscalationActions(ctx context.Context, orgID uuid.UUID, now time.Time) ([]*models.EscalationAction, error)
	ListStaleEscalationActions(ctx context.Context, orgID uuid.UUID, before time.Time) ([]*models.EscalationAction, error)
	GetEscalationAction(ctx context.Context, orgID, id uuid.UUID) (*models.EscalationAction, error)
	ClaimEscalationAction(ctx context.Context, a *models.EscalationAction, from models.ActionStatus) (bool, error)
	UpdateEscalationAction(ctx context.Context, a *models.EscalationAction) error
}

// TaskStore reads and mutates the work items escalations act on.
type TaskStore interface {
	GetTask(ctx context.Context, orgID, id uuid.UUID) (*models.Task, error)
	UpdateTaskAssignee(ctx context.Context, orgID, taskID, assigneeID uuid.UUID) error
	UpdateTaskStatus(ctx context.Context, orgID, taskID uuid.UUID, status string) error
}

// Directory resolves users of a tenant.
type Directory interface {
	GetActiveUser(ctx context.Context, orgID, userID uuid.UUID) (*models.User, error)
	FindActiveUserByRole(ctx context.Context, orgID uuid.UUID, role string) (*models.User, error)
}

// Notifier creates user notifications.
type Notifier interface {
	CreateNotification(ctx context.Context, req notifications.Request) (*models.Notification, error)
}

// WebhookSender posts signed webhooks.
type WebhookSender interface {
	Send(ctx context.Context, delivery webhooks.Delivery) (*webhooks.Response, error)
}

// Config holds engine settings.
type Config struct {
	// ActionTimeout bounds a single action execution. Executions are detached
	// from the caller's cancellation so shutdown never strands an action in
	// the executing state.
	ActionTimeout time.Duration
	// DefaultWebhookSecret signs webhooks whose rule config has no secret.
	DefaultWebhookSecret string
}

// DefaultConfig returns default engine configuration.
func DefaultConfig() Config {
	return Config{ActionTimeout: 30 * time.Second}
}

// ProcessResult summarizes one engine pass over a tenant.
type ProcessResult struct {
	ViolationsChecked int `json:"violations_checked"`
	Escalated         int `json:"escalated"`
	ActionsCreated    int `json:"actions_created"`
	ActionsExecuted   int `json:"actions_executed"`
	ActionsRetrying   int `json:"actions_retrying"`
	ActionsFailed     int `json:"actions_failed"`
	ActionsRecovered  int `json:"actions_recovered"`
	Conflicts         int `json:"conflicts"`
	Errors            int `json:"errors"`
}

// Add accumulates another result.
func (r *ProcessResult) Add(o *ProcessResult) {
	if o == nil {
		return
	}
	r.ViolationsChecked += o.ViolationsChecked
	r.Escalated += o.Escalated
	r.ActionsCreated += o.ActionsCreated
	r.ActionsExecuted += o.ActionsExecuted
	r.ActionsRetrying += o.ActionsRetrying
	r.ActionsFailed += o.ActionsFailed
	r.ActionsRecovered += o.ActionsRecovered
	r.Conflicts += o.Conflicts
	r.Errors += o.Errors
}

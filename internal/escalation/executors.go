package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MacJediWizard/slawatch/internal/db"
	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/MacJediWizard/slawatch/internal/notifications"
	"github.com/MacJediWizard/slawatch/internal/webhooks"
)

// WebhookEvent is the event name sent with escalation webhooks.
const WebhookEvent = "sla.escalation"

// dispatch decodes the action configuration and runs the matching executor.
// It returns the result text and, on failure, the error to record.
func (e *Engine) dispatch(ctx context.Context, a *models.EscalationAction, v *models.SLAViolation) (string, error) {
	cfg, err := DecodeConfig(a.ActionType, a.ActionConfig)
	if err != nil {
		return "", err
	}

	switch c := cfg.(type) {
	case NotifyConfig:
		return e.executeNotify(ctx, a, v, c)
	case ReassignConfig:
		return e.executeReassign(ctx, v, c)
	case TransitionConfig:
		return e.executeTransition(ctx, v, c)
	case WebhookConfig:
		return e.executeWebhook(ctx, a, v, c)
	default:
		return "", fmt.Errorf("%w: unhandled config %T", ErrInvalidConfig, cfg)
	}
}

func (e *Engine) executeNotify(ctx context.Context, a *models.EscalationAction, v *models.SLAViolation, cfg NotifyConfig) (string, error) {
	for _, m := range cfg.Malformed {
		e.logger.Debug().
			Str("action_id", a.ID.String()).
			Str("recipient", m).
			Msg("skipping malformed recipient")
	}

	correlation := map[string]string{
		"violation_id": v.ID.String(),
		"action_id":    a.ID.String(),
		"policy_id":    v.PolicyID.String(),
		"task_id":      v.TaskID.String(),
	}
	title := fmt.Sprintf("SLA %s violation escalated to level %d", v.ViolationType, a.Level)

	var attempted, notified, unknown int
	var lastErr error
	for _, recipient := range cfg.Recipients {
		if _, err := e.directory.GetActiveUser(ctx, v.OrgID, recipient); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				unknown++
				e.logger.Debug().
					Str("action_id", a.ID.String()).
					Str("user_id", recipient.String()).
					Msg("skipping unknown recipient")
				continue
			}
			attempted++
			lastErr = err
			e.logger.Warn().Err(err).
				Str("action_id", a.ID.String()).
				Str("user_id", recipient.String()).
				Msg("failed to resolve recipient")
			continue
		}

		attempted++
		_, err := e.notifier.CreateNotification(ctx, notifications.Request{
			OrgID:       v.OrgID,
			RecipientID: recipient,
			Type:        models.NotificationTypeSLAEscalation,
			Title:       title,
			Message:     cfg.Message,
			Priority:    models.NotificationPriorityHigh,
			Correlation: correlation,
		})
		if err != nil {
			lastErr = err
			e.logger.Warn().Err(err).
				Str("action_id", a.ID.String()).
				Str("user_id", recipient.String()).
				Msg("failed to notify recipient")
			continue
		}
		notified++
	}

	skipped := unknown + len(cfg.Malformed)
	if attempted == 0 {
		return fmt.Sprintf("notified 0 recipients, skipped %d", skipped),
			fmt.Errorf("%w: no valid recipients", ErrInvalidConfig)
	}
	if notified == 0 {
		return fmt.Sprintf("notified 0 of %d recipients", attempted),
			fmt.Errorf("all %d recipients failed: %w", attempted, lastErr)
	}

	result := fmt.Sprintf("notified %d recipients", notified)
	if skipped > 0 {
		result += fmt.Sprintf(", skipped %d", skipped)
	}
	if failed := attempted - notified; failed > 0 {
		result += fmt.Sprintf(", %d failed", failed)
	}
	return result, nil
}

func (e *Engine) executeReassign(ctx context.Context, v *models.SLAViolation, cfg ReassignConfig) (string, error) {
	task, err := e.loadTask(ctx, v)
	if err != nil {
		return "", err
	}

	var assignee *models.User
	if cfg.AssigneeID != nil {
		u, err := e.directory.GetActiveUser(ctx, v.OrgID, *cfg.AssigneeID)
		switch {
		case err == nil:
			assignee = u
		case errors.Is(err, db.ErrNotFound):
			e.logger.Debug().
				Str("violation_id", v.ID.String()).
				Str("user_id", cfg.AssigneeID.String()).
				Msg("configured assignee not found, trying backup role")
		default:
			return "", fmt.Errorf("resolve assignee: %w", err)
		}
	}

	if assignee == nil && cfg.BackupRole != "" {
		u, err := e.directory.FindActiveUserByRole(ctx, v.OrgID, cfg.BackupRole)
		switch {
		case err == nil:
			assignee = u
		case errors.Is(err, db.ErrNotFound):
		default:
			return "", fmt.Errorf("resolve backup role %q: %w", cfg.BackupRole, err)
		}
	}

	if assignee == nil {
		return "", fmt.Errorf("%w: no active assignee resolvable", ErrInvalidConfig)
	}

	if err := e.tasks.UpdateTaskAssignee(ctx, v.OrgID, task.ID, assignee.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrTaskNotFound, task.ID)
		}
		return "", fmt.Errorf("update assignee: %w", err)
	}
	return fmt.Sprintf("task reassigned to %s", assignee.ID), nil
}

func (e *Engine) executeTransition(ctx context.Context, v *models.SLAViolation, cfg TransitionConfig) (string, error) {
	task, err := e.loadTask(ctx, v)
	if err != nil {
		return "", err
	}

	if err := e.tasks.UpdateTaskStatus(ctx, v.OrgID, task.ID, cfg.Status); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrTaskNotFound, task.ID)
		}
		return "", fmt.Errorf("update task status: %w", err)
	}
	return fmt.Sprintf("task status changed from %s to %s", task.Status, cfg.Status), nil
}

func (e *Engine) executeWebhook(ctx context.Context, a *models.EscalationAction, v *models.SLAViolation, cfg WebhookConfig) (string, error) {
	secret := cfg.Secret
	if secret == "" {
		secret = e.cfg.DefaultWebhookSecret
	}

	payload := map[string]any{
		"violation_id":   v.ID.String(),
		"action_id":      a.ID.String(),
		"action_type":    string(a.ActionType),
		"org_id":         v.OrgID.String(),
		"policy_id":      v.PolicyID.String(),
		"task_id":        v.TaskID.String(),
		"violation_type": string(v.ViolationType),
		"level":          a.Level,
		"timestamp":      e.now().UTC().Format(time.RFC3339),
		"config":         cfg.Extra,
	}

	resp, err := e.webhooks.Send(ctx, webhooks.Delivery{
		ID:      a.ID.String(),
		URL:     cfg.URL,
		Event:   WebhookEvent,
		Secret:  []byte(secret),
		Payload: payload,
	})
	if err != nil {
		if resp != nil {
			return fmt.Sprintf("HTTP %d", resp.StatusCode), err
		}
		return "", err
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode), nil
}

func (e *Engine) loadTask(ctx context.Context, v *models.SLAViolation) (*models.Task, error) {
	task, err := e.tasks.GetTask(ctx, v.OrgID, v.TaskID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, v.TaskID)
		}
		return nil, fmt.Errorf("load task: %w", err)
	}
	if task.OrgID != v.OrgID {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, v.TaskID)
	}
	return task, nil
}


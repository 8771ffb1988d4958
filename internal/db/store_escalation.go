package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Escalation rule methods

const ruleColumns = `id, org_id, policy_id, level, trigger_after_minutes, action_type, action_config,
	       is_active, deleted_at, created_at, updated_at`

// ListActiveEscalationRulesByOrg returns the live, active rules of an
// organization ordered by policy and level.
func (db *DB) ListActiveEscalationRulesByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.EscalationRule, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+ruleColumns+`
		FROM escalation_rules
		WHERE org_id = $1 AND is_active AND deleted_at IS NULL
		ORDER BY policy_id, level, created_at
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list active escalation rules: %w", err)
	}
	return collectEscalationRules(rows)
}

// ListEscalationRules returns a page of live rules, optionally for a single
// policy, and the total count.
func (db *DB) ListEscalationRules(ctx context.Context, orgID uuid.UUID, policyID *uuid.UUID, page models.Page) ([]*models.EscalationRule, int, error) {
	where := ` WHERE org_id = $1 AND deleted_at IS NULL`
	args := []any{orgID}
	if policyID != nil {
		args = append(args, *policyID)
		where += fmt.Sprintf(` AND policy_id = $%d`, len(args))
	}

	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM escalation_rules`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count escalation rules: %w", err)
	}

	query := `SELECT ` + ruleColumns + ` FROM escalation_rules` + where +
		fmt.Sprintf(` ORDER BY policy_id, level, created_at LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, page.Limit(), page.Offset())

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list escalation rules: %w", err)
	}
	rules, err := collectEscalationRules(rows)
	if err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

// GetEscalationRule returns a live rule scoped to an organization.
func (db *DB) GetEscalationRule(ctx context.Context, orgID, id uuid.UUID) (*models.EscalationRule, error) {
	r, err := scanEscalationRule(db.Pool.QueryRow(ctx, `
		SELECT `+ruleColumns+`
		FROM escalation_rules
		WHERE id = $1 AND org_id = $2 AND deleted_at IS NULL
	`, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

// CreateEscalationRule creates a new rule.
func (db *DB) CreateEscalationRule(ctx context.Context, r *models.EscalationRule) error {
	config, err := r.ConfigJSON()
	if err != nil {
		return fmt.Errorf("marshal action config: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO escalation_rules (id, org_id, policy_id, level, trigger_after_minutes,
		            action_type, action_config, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.ID, r.OrgID, r.PolicyID, r.Level, r.TriggerAfterMinutes,
		string(r.ActionType), config, r.IsActive, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create escalation rule: %w", err)
	}
	return nil
}

// UpdateEscalationRule updates a live rule. Actions already created from it
// keep their copied configuration.
func (db *DB) UpdateEscalationRule(ctx context.Context, r *models.EscalationRule) error {
	r.UpdatedAt = time.Now()
	config, err := r.ConfigJSON()
	if err != nil {
		return fmt.Errorf("marshal action config: %w", err)
	}
	tag, err := db.Pool.Exec(ctx, `
		UPDATE escalation_rules
		SET level = $3, trigger_after_minutes = $4, action_type = $5, action_config = $6,
		    is_active = $7, updated_at = $8
		WHERE id = $1 AND org_id = $2 AND deleted_at IS NULL
	`, r.ID, r.OrgID, r.Level, r.TriggerAfterMinutes, string(r.ActionType), config,
		r.IsActive, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update escalation rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEscalationRule soft-deletes a rule.
func (db *DB) DeleteEscalationRule(ctx context.Context, orgID, id uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE escalation_rules
		SET deleted_at = $3, is_active = false, updated_at = $3
		WHERE id = $1 AND org_id = $2 AND deleted_at IS NULL
	`, id, orgID, time.Now())
	if err != nil {
		return fmt.Errorf("delete escalation rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectEscalationRules(rows pgx.Rows) ([]*models.EscalationRule, error) {
	defer rows.Close()

	var rules []*models.EscalationRule
	for rows.Next() {
		r, err := scanEscalationRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalation rules: %w", err)
	}
	return rules, nil
}

// scanEscalationRule scans a row into an EscalationRule.
func scanEscalationRule(row rowScanner) (*models.EscalationRule, error) {
	var r models.EscalationRule
	var actionType string
	var configBytes []byte
	err := row.Scan(
		&r.ID, &r.OrgID, &r.PolicyID, &r.Level, &r.TriggerAfterMinutes, &actionType, &configBytes,
		&r.IsActive, &r.DeletedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan escalation rule: %w", err)
	}
	r.ActionType = models.ActionType(actionType)
	if err := r.SetConfig(configBytes); err != nil {
		return nil, fmt.Errorf("parse action config: %w", err)
	}
	return &r, nil
}

// Escalation action methods

const actionColumns = `id, org_id, violation_id, rule_id, level, action_type, action_config, status,
	       result, error_message, retry_count, next_retry_at, executed_at, created_at, updated_at`

// ListDueEscalationActions returns pending actions whose retry time has
// elapsed, oldest first.
func (db *DB) ListDueEscalationActions(ctx context.Context, orgID uuid.UUID, now time.Time) ([]*models.EscalationAction, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+actionColumns+`
		FROM escalation_actions
		WHERE org_id = $1 AND status = 'pending'
		  AND (next_retry_at IS NULL OR next_retry_at <= $2)
		ORDER BY created_at, id
	`, orgID, now)
	if err != nil {
		return nil, fmt.Errorf("list due escalation actions: %w", err)
	}
	return collectEscalationActions(rows)
}

// ListStaleEscalationActions returns actions still executing whose claim is
// older than before.
func (db *DB) ListStaleEscalationActions(ctx context.Context, orgID uuid.UUID, before time.Time) ([]*models.EscalationAction, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+actionColumns+`
		FROM escalation_actions
		WHERE org_id = $1 AND status = 'executing' AND updated_at < $2
		ORDER BY updated_at, id
	`, orgID, before)
	if err != nil {
		return nil, fmt.Errorf("list stale escalation actions: %w", err)
	}
	return collectEscalationActions(rows)
}

// ListEscalationActions returns a filtered page of actions and the total count.
func (db *DB) ListEscalationActions(ctx context.Context, orgID uuid.UUID, filter models.ActionFilter) ([]*models.EscalationAction, int, error) {
	where := ` WHERE org_id = $1`
	args := []any{orgID}
	if filter.ViolationID != nil {
		args = append(args, *filter.ViolationID)
		where += fmt.Sprintf(` AND violation_id = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}

	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM escalation_actions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count escalation actions: %w", err)
	}

	query := `SELECT ` + actionColumns + ` FROM escalation_actions` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, filter.Page.Limit(), filter.Page.Offset())

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list escalation actions: %w", err)
	}
	actions, err := collectEscalationActions(rows)
	if err != nil {
		return nil, 0, err
	}
	return actions, total, nil
}

// ListEscalationActionsByViolation returns all actions of a violation by level.
func (db *DB) ListEscalationActionsByViolation(ctx context.Context, orgID, violationID uuid.UUID) ([]*models.EscalationAction, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+actionColumns+`
		FROM escalation_actions
		WHERE org_id = $1 AND violation_id = $2
		ORDER BY level, created_at, id
	`, orgID, violationID)
	if err != nil {
		return nil, fmt.Errorf("list violation actions: %w", err)
	}
	return collectEscalationActions(rows)
}

// GetEscalationAction returns an action scoped to an organization.
func (db *DB) GetEscalationAction(ctx context.Context, orgID, id uuid.UUID) (*models.EscalationAction, error) {
	a, err := scanEscalationAction(db.Pool.QueryRow(ctx, `
		SELECT `+actionColumns+`
		FROM escalation_actions
		WHERE id = $1 AND org_id = $2
	`, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// ClaimEscalationAction moves an action from the given status to Executing.
// It returns false when another worker changed the action first.
func (db *DB) ClaimEscalationAction(ctx context.Context, a *models.EscalationAction, from models.ActionStatus) (bool, error) {
	now := time.Now()
	tag, err := db.Pool.Exec(ctx, `
		UPDATE escalation_actions
		SET status = $4, updated_at = $5
		WHERE id = $1 AND org_id = $2 AND status = $3
	`, a.ID, a.OrgID, string(from), string(models.ActionStatusExecuting), now)
	if err != nil {
		return false, fmt.Errorf("claim escalation action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	a.MarkExecuting(now)
	return true, nil
}

// UpdateEscalationAction persists the outcome of an execution attempt.
func (db *DB) UpdateEscalationAction(ctx context.Context, a *models.EscalationAction) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE escalation_actions
		SET status = $3, result = $4, error_message = $5, retry_count = $6,
		    next_retry_at = $7, executed_at = $8, updated_at = $9
		WHERE id = $1 AND org_id = $2
	`, a.ID, a.OrgID, string(a.Status), a.Result, a.ErrorMessage, a.RetryCount,
		a.NextRetryAt, a.ExecutedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update escalation action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func insertEscalationAction(ctx context.Context, tx pgx.Tx, a *models.EscalationAction) error {
	config, err := a.ConfigJSON()
	if err != nil {
		return fmt.Errorf("marshal action config: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO escalation_actions (id, org_id, violation_id, rule_id, level, action_type,
		            action_config, status, result, error_message, retry_count, next_retry_at,
		            executed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, a.ID, a.OrgID, a.ViolationID, a.RuleID, a.Level, string(a.ActionType), config,
		string(a.Status), a.Result, a.ErrorMessage, a.RetryCount, a.NextRetryAt,
		a.ExecutedAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create escalation action: %w", err)
	}
	return nil
}

func collectEscalationActions(rows pgx.Rows) ([]*models.EscalationAction, error) {
	defer rows.Close()

	var actions []*models.EscalationAction
	for rows.Next() {
		a, err := scanEscalationAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escalation actions: %w", err)
	}
	return actions, nil
}

// scanEscalationAction scans a row into an EscalationAction.
func scanEscalationAction(row rowScanner) (*models.EscalationAction, error) {
	var a models.EscalationAction
	var actionType, statusStr string
	var configBytes []byte
	err := row.Scan(
		&a.ID, &a.OrgID, &a.ViolationID, &a.RuleID, &a.Level, &actionType, &configBytes, &statusStr,
		&a.Result, &a.ErrorMessage, &a.RetryCount, &a.NextRetryAt, &a.ExecutedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan escalation action: %w", err)
	}
	a.ActionType = models.ActionType(actionType)
	a.Status = models.ActionStatus(statusStr)
	if err := a.SetConfig(configBytes); err != nil {
		return nil, fmt.Errorf("parse action config: %w", err)
	}
	return &a, nil
}

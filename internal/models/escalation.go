package models

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// ActionType is the kind of remediation an escalation rule performs.
type ActionType string

const (
	ActionTypeNotify         ActionType = "notify"
	ActionTypeReassign       ActionType = "reassign"
	ActionTypeAutoTransition ActionType = "auto_transition"
	ActionTypeWebhook        ActionType = "webhook"
)

// ActionTypes lists every supported action type.
var ActionTypes = []ActionType{
	ActionTypeNotify,
	ActionTypeReassign,
	ActionTypeAutoTransition,
	ActionTypeWebhook,
}

// Valid reports whether t is a supported action type.
func (t ActionType) Valid() bool {
	for _, at := range ActionTypes {
		if t == at {
			return true
		}
	}
	return false
}

// EscalationRule fires an action once a violation has been open long enough
// to reach the rule's level.
type EscalationRule struct {
	ID                  uuid.UUID      `json:"id"`
	OrgID               uuid.UUID      `json:"org_id"`
	PolicyID            uuid.UUID      `json:"policy_id"`
	Level               int            `json:"level"`
	TriggerAfterMinutes int            `json:"trigger_after_minutes"`
	ActionType          ActionType     `json:"action_type"`
	ActionConfig        map[string]any `json:"action_config"`
	IsActive            bool           `json:"is_active"`
	DeletedAt           *time.Time     `json:"deleted_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// NewEscalationRule creates a new active EscalationRule.
func NewEscalationRule(orgID, policyID uuid.UUID, level, triggerAfter int, actionType ActionType, config map[string]any) *EscalationRule {
	now := time.Now()
	if config == nil {
		config = map[string]any{}
	}
	return &EscalationRule{
		ID:                  uuid.New(),
		OrgID:               orgID,
		PolicyID:            policyID,
		Level:               level,
		TriggerAfterMinutes: triggerAfter,
		ActionType:          actionType,
		ActionConfig:        config,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// CreateEscalationRuleRequest is the request body for creating an escalation rule.
type CreateEscalationRuleRequest struct {
	PolicyID            uuid.UUID      `json:"policy_id" binding:"required"`
	Level               int            `json:"level" binding:"required,gte=1"`
	TriggerAfterMinutes int            `json:"trigger_after_minutes" binding:"gte=0"`
	ActionType          ActionType     `json:"action_type" binding:"required"`
	ActionConfig        map[string]any `json:"action_config"`
}

// UpdateEscalationRuleRequest is the request body for updating an escalation rule.
type UpdateEscalationRuleRequest struct {
	Level               *int           `json:"level,omitempty"`
	TriggerAfterMinutes *int           `json:"trigger_after_minutes,omitempty"`
	ActionType          *ActionType    `json:"action_type,omitempty"`
	ActionConfig        map[string]any `json:"action_config,omitempty"`
	IsActive            *bool          `json:"is_active,omitempty"`
}

// ActionStatus is the execution state of an escalation action.
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusExecuting ActionStatus = "executing"
	ActionStatusExecuted  ActionStatus = "executed"
	ActionStatusFailed    ActionStatus = "failed"
)

// MaxActionRetries caps how many times a failed action is rescheduled.
const MaxActionRetries = 3

// EscalationAction is one concrete remediation step created from a rule.
// The rule's config is copied at creation so later rule edits do not
// change actions already in flight.
type EscalationAction struct {
	ID           uuid.UUID      `json:"id"`
	OrgID        uuid.UUID      `json:"org_id"`
	ViolationID  uuid.UUID      `json:"violation_id"`
	RuleID       *uuid.UUID     `json:"rule_id,omitempty"`
	Level        int            `json:"level"`
	ActionType   ActionType     `json:"action_type"`
	ActionConfig map[string]any `json:"action_config"`
	Status       ActionStatus   `json:"status"`
	Result       string         `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	RetryCount   int            `json:"retry_count"`
	NextRetryAt  *time.Time     `json:"next_retry_at,omitempty"`
	ExecutedAt   *time.Time     `json:"executed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewEscalationAction creates a pending action for a violation from a rule.
func NewEscalationAction(v *SLAViolation, rule *EscalationRule) *EscalationAction {
	now := time.Now()
	ruleID := rule.ID
	config := make(map[string]any, len(rule.ActionConfig))
	for k, val := range rule.ActionConfig {
		config[k] = val
	}
	return &EscalationAction{
		ID:           uuid.New(),
		OrgID:        v.OrgID,
		ViolationID:  v.ID,
		RuleID:       &ruleID,
		Level:        rule.Level,
		ActionType:   rule.ActionType,
		ActionConfig: config,
		Status:       ActionStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsDue reports whether a pending action may run at now.
func (a *EscalationAction) IsDue(now time.Time) bool {
	if a.Status != ActionStatusPending {
		return false
	}
	return a.NextRetryAt == nil || !a.NextRetryAt.After(now)
}

// MarkExecuting marks the action as in flight.
func (a *EscalationAction) MarkExecuting(now time.Time) {
	a.Status = ActionStatusExecuting
	a.UpdatedAt = now
}

// MarkExecuted marks the action as successfully executed.
func (a *EscalationAction) MarkExecuted(result string, now time.Time) {
	a.Status = ActionStatusExecuted
	a.Result = result
	a.ErrorMessage = ""
	a.NextRetryAt = nil
	a.ExecutedAt = &now
	a.UpdatedAt = now
}

// MarkFailed records a failed attempt. While retries remain the action goes
// back to pending with an exponential backoff of 2^retryCount minutes;
// afterwards it stays failed with no further retry scheduled.
func (a *EscalationAction) MarkFailed(result, errMsg string, now time.Time) {
	a.Result = result
	a.ErrorMessage = errMsg
	a.ExecutedAt = &now
	a.UpdatedAt = now

	if !a.ShouldRetry() {
		a.Status = ActionStatusFailed
		a.NextRetryAt = nil
		return
	}

	a.RetryCount++
	next := now.Add(RetryBackoff(a.RetryCount))
	a.Status = ActionStatusPending
	a.NextRetryAt = &next
}

// ShouldRetry returns true if another failure would still be rescheduled.
func (a *EscalationAction) ShouldRetry() bool {
	return a.RetryCount < MaxActionRetries
}

// RetryBackoff returns the delay before retry number n (1-based).
func RetryBackoff(n int) time.Duration {
	return time.Duration(math.Pow(2, float64(n))) * time.Minute
}

// ActionFilter narrows action listings.
type ActionFilter struct {
	ViolationID *uuid.UUID
	Status      ActionStatus
	Page        Page
}

// ConfigJSON returns the action configuration as JSON bytes
func (r *EscalationRule) ConfigJSON() ([]byte, error) {
	return marshalConfig(r.ActionConfig)
}

// SetConfig sets the action configuration from JSON bytes
func (r *EscalationRule) SetConfig(data []byte) error {
	return unmarshalConfig(data, &r.ActionConfig)
}

// IsDeleted reports whether the rule has been soft-deleted.
func (r *EscalationRule) IsDeleted() bool {
	return r.DeletedAt != nil
}

// ConfigJSON returns the action configuration as JSON bytes
func (a *EscalationAction) ConfigJSON() ([]byte, error) {
	return marshalConfig(a.ActionConfig)
}

// SetConfig sets the action configuration from JSON bytes
func (a *EscalationAction) SetConfig(data []byte) error {
	return unmarshalConfig(data, &a.ActionConfig)
}

func marshalConfig(config map[string]any) ([]byte, error) {
	if config == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(config)
}

func unmarshalConfig(data []byte, dst *map[string]any) error {
	if len(data) == 0 {
		*dst = map[string]any{}
		return nil
	}
	return json.Unmarshal(data, dst)
}

package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MacJediWizard/slawatch/internal/db"
	"github.com/MacJediWizard/slawatch/internal/metrics"
	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// persistTimeout bounds saving an action outcome after the run itself has
// used up its own deadline.
const persistTimeout = 5 * time.Second

// Engine drives the escalation state machine for open violations.
type Engine struct {
	store     Store
	tasks     TaskStore
	directory Directory
	notifier  Notifier
	webhooks  WebhookSender
	cfg       Config
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEngine creates a new escalation Engine.
func NewEngine(store Store, tasks TaskStore, directory Directory, notifier Notifier, sender WebhookSender, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultConfig().ActionTimeout
	}
	return &Engine{
		store:     store,
		tasks:     tasks,
		directory: directory,
		notifier:  notifier,
		webhooks:  sender,
		cfg:       cfg,
		logger:    logger.With().Str("component", "escalation_engine").Logger(),
		now:       time.Now,
	}
}

// SetMetrics attaches Prometheus metrics to the engine.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// ShouldEscalate reports whether the violation is due to advance to its next
// level. rules may hold any rules of the tenant; only active rules of the
// violation's policy at level+1 count. With several rules at that level the
// earliest trigger wins and all of them fire together.
func ShouldEscalate(v *models.SLAViolation, rules []*models.EscalationRule, now time.Time) bool {
	next := rulesForLevel(v, rules, v.EscalationLevel+1)
	if !v.IsOpen() || len(next) == 0 {
		return false
	}
	return v.MinutesOpen(now) >= float64(minTrigger(next))
}

// ProcessTenant runs one escalation pass for an organization: it escalates
// the open violations that crossed their next threshold and then executes the
// due actions.
func (e *Engine) ProcessTenant(ctx context.Context, orgID uuid.UUID) (*ProcessResult, error) {
	result, err := e.EscalateViolations(ctx, orgID)
	if err != nil {
		return result, err
	}

	execResult, err := e.ExecutePending(ctx, orgID)
	result.Add(execResult)
	return result, err
}

// EscalateViolations takes a snapshot of the tenant's open violations and
// advances each one that is due by exactly one level, creating one pending
// action per active rule of the new level.
func (e *Engine) EscalateViolations(ctx context.Context, orgID uuid.UUID) (*ProcessResult, error) {
	result := &ProcessResult{}

	violations, err := e.store.ListOpenSLAViolationsByOrg(ctx, orgID)
	if err != nil {
		return result, fmt.Errorf("list open violations: %w", err)
	}
	if len(violations) == 0 {
		return result, nil
	}

	rules, err := e.store.ListActiveEscalationRulesByOrg(ctx, orgID)
	if err != nil {
		return result, fmt.Errorf("list escalation rules: %w", err)
	}

	now := e.now()
	for _, v := range violations {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if v.OrgID != orgID {
			e.logger.Warn().
				Str("org_id", orgID.String()).
				Str("violation_id", v.ID.String()).
				Msg("skipping violation owned by another organization")
			continue
		}

		result.ViolationsChecked++
		if !ShouldEscalate(v, rules, now) {
			continue
		}

		fromLevel := v.EscalationLevel
		next := rulesForLevel(v, rules, fromLevel+1)
		actions := make([]*models.EscalationAction, 0, len(next))
		for _, rule := range next {
			actions = append(actions, models.NewEscalationAction(v, rule))
		}

		if err := e.store.EscalateSLAViolation(ctx, v, fromLevel, actions); err != nil {
			if errors.Is(err, db.ErrConflict) {
				result.Conflicts++
				e.logger.Debug().
					Str("violation_id", v.ID.String()).
					Int("level", fromLevel).
					Msg("violation changed concurrently, skipping escalation")
				continue
			}
			result.Errors++
			e.logger.Error().Err(err).
				Str("org_id", orgID.String()).
				Str("violation_id", v.ID.String()).
				Msg("failed to escalate violation")
			continue
		}

		result.Escalated++
		result.ActionsCreated += len(actions)
		e.metrics.RecordEscalation()
		e.logger.Info().
			Str("org_id", orgID.String()).
			Str("violation_id", v.ID.String()).
			Str("policy_id", v.PolicyID.String()).
			Int("level", fromLevel+1).
			Int("actions", len(actions)).
			Msg("violation escalated")
	}

	return result, nil
}

// ExecutePending executes every pending action of the tenant whose retry
// time has elapsed. Cancellation is observed between actions only.
func (e *Engine) ExecutePending(ctx context.Context, orgID uuid.UUID) (*ProcessResult, error) {
	result := &ProcessResult{}

	if err := e.recoverStale(ctx, orgID, result); err != nil {
		return result, err
	}

	actions, err := e.store.ListDueEscalationActions(ctx, orgID, e.now())
	if err != nil {
		return result, fmt.Errorf("list due actions: %w", err)
	}

	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if a.OrgID != orgID {
			e.logger.Warn().
				Str("org_id", orgID.String()).
				Str("action_id", a.ID.String()).
				Msg("skipping action owned by another organization")
			continue
		}

		claimed, err := e.store.ClaimEscalationAction(ctx, a, models.ActionStatusPending)
		if err != nil {
			result.Errors++
			e.logger.Error().Err(err).Str("action_id", a.ID.String()).Msg("failed to claim action")
			continue
		}
		if !claimed {
			result.Conflicts++
			continue
		}

		e.execute(ctx, a, result)
	}

	return result, nil
}

// staleAfter is how long an action may stay executing before it is treated
// as abandoned by a crashed or stuck worker.
func (e *Engine) staleAfter() time.Duration {
	return 2*e.cfg.ActionTimeout + persistTimeout
}

func (e *Engine) isStale(a *models.EscalationAction, now time.Time) bool {
	return a.Status == models.ActionStatusExecuting && a.UpdatedAt.Before(now.Add(-e.staleAfter()))
}

// recoverStale records abandoned executing actions as failed attempts so the
// normal retry schedule picks them up again.
func (e *Engine) recoverStale(ctx context.Context, orgID uuid.UUID, result *ProcessResult) error {
	now := e.now()
	stale, err := e.store.ListStaleEscalationActions(ctx, orgID, now.Add(-e.staleAfter()))
	if err != nil {
		return fmt.Errorf("list stale actions: %w", err)
	}

	for _, a := range stale {
		if a.OrgID != orgID {
			continue
		}
		a.MarkFailed(a.Result, "execution did not complete", now)
		if err := e.store.UpdateEscalationAction(ctx, a); err != nil {
			result.Errors++
			e.logger.Error().Err(err).Str("action_id", a.ID.String()).Msg("failed to recover stale action")
			continue
		}
		result.ActionsRecovered++
		e.logger.Warn().
			Str("org_id", orgID.String()).
			Str("action_id", a.ID.String()).
			Str("status", string(a.Status)).
			Int("retry_count", a.RetryCount).
			Msg("recovered stale executing action")
	}
	return nil
}

// RetryAction executes a pending or failed action immediately, ignoring its
// retry schedule. An action left executing past the stale threshold is
// retried as well.
func (e *Engine) RetryAction(ctx context.Context, orgID, actionID uuid.UUID) (*models.EscalationAction, error) {
	a, err := e.store.GetEscalationAction(ctx, orgID, actionID)
	if err != nil {
		return nil, err
	}
	switch {
	case a.Status == models.ActionStatusPending, a.Status == models.ActionStatusFailed:
	case e.isStale(a, e.now()):
	default:
		return a, fmt.Errorf("%w: status is %s", ErrNotRetryable, a.Status)
	}

	claimed, err := e.store.ClaimEscalationAction(ctx, a, a.Status)
	if err != nil {
		return nil, fmt.Errorf("claim action: %w", err)
	}
	if !claimed {
		return a, fmt.Errorf("%w: action changed concurrently", ErrNotRetryable)
	}

	e.logger.Info().
		Str("org_id", orgID.String()).
		Str("action_id", a.ID.String()).
		Msg("manual action retry")
	e.execute(ctx, a, &ProcessResult{})
	return a, nil
}

// execute runs a claimed action and persists its outcome. The run is
// detached from ctx cancellation and bounded by the action timeout; the
// outcome is saved under its own deadline so a timed out run still leaves
// the executing state.
func (e *Engine) execute(ctx context.Context, a *models.EscalationAction, result *ProcessResult) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.ActionTimeout)
	defer cancel()

	start := time.Now()
	outcome, err := e.run(runCtx, a)
	now := e.now()

	log := e.logger.With().
		Str("org_id", a.OrgID.String()).
		Str("action_id", a.ID.String()).
		Str("violation_id", a.ViolationID.String()).
		Str("action_type", string(a.ActionType)).
		Int("level", a.Level).
		Logger()

	var metricOutcome string
	if err != nil {
		a.MarkFailed(outcome, err.Error(), now)
		event := log.Warn().Err(err).Int("retry_count", a.RetryCount)
		if a.Status == models.ActionStatusFailed {
			result.ActionsFailed++
			metricOutcome = "failed"
			event.Msg("escalation action failed permanently")
		} else {
			result.ActionsRetrying++
			metricOutcome = "retry"
			event.Time("next_retry_at", *a.NextRetryAt).Msg("escalation action failed, scheduling retry")
		}
	} else {
		a.MarkExecuted(outcome, now)
		result.ActionsExecuted++
		metricOutcome = "executed"
		log.Info().Str("result", outcome).Msg("escalation action executed")
	}
	e.metrics.RecordAction(string(a.ActionType), metricOutcome, time.Since(start))

	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()
	if err := e.store.UpdateEscalationAction(persistCtx, a); err != nil {
		result.Errors++
		log.Error().Err(err).Msg("failed to persist action outcome")
	}
}

func (e *Engine) run(ctx context.Context, a *models.EscalationAction) (string, error) {
	v, err := e.store.GetSLAViolation(ctx, a.OrgID, a.ViolationID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrViolationNotFound, a.ViolationID)
		}
		return "", fmt.Errorf("load violation: %w", err)
	}
	if v.OrgID != a.OrgID {
		return "", fmt.Errorf("%w: %s", ErrViolationNotFound, a.ViolationID)
	}
	return e.dispatch(ctx, a, v)
}

func rulesForLevel(v *models.SLAViolation, rules []*models.EscalationRule, level int) []*models.EscalationRule {
	var out []*models.EscalationRule
	for _, r := range rules {
		if r.OrgID == v.OrgID && r.PolicyID == v.PolicyID && r.Level == level && r.IsActive && !r.IsDeleted() {
			out = append(out, r)
		}
	}
	return out
}

func minTrigger(rules []*models.EscalationRule) int {
	m := rules[0].TriggerAfterMinutes
	for _, r := range rules[1:] {
		if r.TriggerAfterMinutes < m {
			m = r.TriggerAfterMinutes
		}
	}
	return m
}

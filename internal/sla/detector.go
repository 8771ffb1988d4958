package sla

import (
	"context"
	"fmt"
	"time"

	"github.com/MacJediWizard/slawatch/internal/metrics"
	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// trackedTypes lists the violation types evaluated on every pass.
var trackedTypes = []models.ViolationType{
	models.ViolationTypeResponse,
	models.ViolationTypeResolution,
}

// DetectionResult summarizes one detection pass for a tenant.
type DetectionResult struct {
	PoliciesChecked   int
	TasksChecked      int
	ViolationsCreated int
	PolicyErrors      int
}

// Detector scans incomplete tasks against active policies and records
// violations for missed deadlines.
type Detector struct {
	store      Store
	calculator *Calculator
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	now        func() time.Time
}

// NewDetector creates a new violation Detector.
func NewDetector(store Store, calculator *Calculator, logger zerolog.Logger) *Detector {
	return &Detector{
		store:      store,
		calculator: calculator,
		logger:     logger.With().Str("component", "sla_detector").Logger(),
		now:        time.Now,
	}
}

// SetMetrics attaches Prometheus metrics to the detector.
func (d *Detector) SetMetrics(m *metrics.Metrics) {
	d.metrics = m
}

// DetectAndRecord evaluates every active policy of the tenant. A failure in
// one policy is logged and does not stop the remaining policies.
func (d *Detector) DetectAndRecord(ctx context.Context, orgID uuid.UUID) (*DetectionResult, error) {
	policies, err := d.store.ListActiveSLAPoliciesByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list active SLA policies: %w", err)
	}

	result := &DetectionResult{}
	for _, policy := range policies {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if policy.OrgID != orgID {
			d.logger.Warn().
				Str("org_id", orgID.String()).
				Str("policy_id", policy.ID.String()).
				Msg("skipping policy owned by another organization")
			continue
		}

		result.PoliciesChecked++
		if err := d.checkPolicy(ctx, policy, result); err != nil {
			result.PolicyErrors++
			d.metrics.RecordDetectorError()
			d.logger.Warn().Err(err).
				Str("org_id", orgID.String()).
				Str("policy_id", policy.ID.String()).
				Msg("failed to check SLA policy")
		}
	}

	if result.ViolationsCreated > 0 {
		d.logger.Info().
			Str("org_id", orgID.String()).
			Int("violations", result.ViolationsCreated).
			Msg("SLA violations recorded")
	}
	return result, nil
}

func (d *Detector) checkPolicy(ctx context.Context, policy *models.SLAPolicy, result *DetectionResult) error {
	for _, vt := range trackedTypes {
		if policy.Budget(vt) <= 0 {
			continue
		}

		tasks, err := d.store.ListUntrackedTasks(ctx, policy.OrgID, policy, vt)
		if err != nil {
			return fmt.Errorf("list %s tasks: %w", vt, err)
		}

		for _, task := range tasks {
			result.TasksChecked++
			if task.OrgID != policy.OrgID || !policy.Applies(task) || !task.Tracks(vt) {
				continue
			}

			due, err := d.calculator.DueDate(policy, vt, task.CreatedAt)
			if err != nil {
				return fmt.Errorf("compute due date: %w", err)
			}

			now := d.now()
			if !now.After(due) {
				continue
			}

			violation := models.NewSLAViolation(policy.OrgID, policy.ID, task.ID, vt, due, now)
			created, err := d.store.CreateSLAViolation(ctx, violation)
			if err != nil {
				return fmt.Errorf("create SLA violation for task %s: %w", task.ID, err)
			}
			if !created {
				continue
			}

			result.ViolationsCreated++
			d.metrics.RecordViolation(string(vt))
			d.logger.Debug().
				Str("violation_id", violation.ID.String()).
				Str("policy_id", policy.ID.String()).
				Str("task_id", task.ID.String()).
				Str("violation_type", string(vt)).
				Time("due_at", due).
				Msg("SLA violation created")
		}
	}
	return nil
}

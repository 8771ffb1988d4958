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

const violationColumns = `id, org_id, policy_id, task_id, violation_type, due_at, violated_at, status,
	       escalation_level, resolution, resolved_at, created_at, updated_at`

// CreateSLAViolation inserts an open violation. It returns false without an
// error when an open violation already exists for the same task, policy and
// type.
func (db *DB) CreateSLAViolation(ctx context.Context, v *models.SLAViolation) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO sla_violations (id, org_id, policy_id, task_id, violation_type, due_at,
		            violated_at, status, escalation_level, resolution, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (task_id, policy_id, violation_type) WHERE status = 'open' DO NOTHING
	`, v.ID, v.OrgID, v.PolicyID, v.TaskID, string(v.ViolationType), v.DueAt,
		v.ViolatedAt, string(v.Status), v.EscalationLevel, v.Resolution, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("create SLA violation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListOpenSLAViolationsByOrg returns every open violation of an organization,
// oldest first.
func (db *DB) ListOpenSLAViolationsByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.SLAViolation, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+violationColumns+`
		FROM sla_violations
		WHERE org_id = $1 AND status = 'open'
		ORDER BY violated_at, id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list open SLA violations: %w", err)
	}
	return collectSLAViolations(rows)
}

// ListSLAViolations returns a filtered page of violations and the total count.
func (db *DB) ListSLAViolations(ctx context.Context, orgID uuid.UUID, filter models.ViolationFilter) ([]*models.SLAViolation, int, error) {
	where := ` WHERE org_id = $1`
	args := []any{orgID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.PolicyID != nil {
		args = append(args, *filter.PolicyID)
		where += fmt.Sprintf(` AND policy_id = $%d`, len(args))
	}

	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM sla_violations`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count SLA violations: %w", err)
	}

	query := `SELECT ` + violationColumns + ` FROM sla_violations` + where +
		fmt.Sprintf(` ORDER BY violated_at DESC, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, filter.Page.Limit(), filter.Page.Offset())

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list SLA violations: %w", err)
	}
	violations, err := collectSLAViolations(rows)
	if err != nil {
		return nil, 0, err
	}
	return violations, total, nil
}

// GetSLAViolation returns a violation scoped to an organization.
func (db *DB) GetSLAViolation(ctx context.Context, orgID, id uuid.UUID) (*models.SLAViolation, error) {
	v, err := scanSLAViolation(db.Pool.QueryRow(ctx, `
		SELECT `+violationColumns+`
		FROM sla_violations
		WHERE id = $1 AND org_id = $2
	`, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// ResolveSLAViolation persists a manual resolution. It returns ErrConflict
// when the violation is no longer open.
func (db *DB) ResolveSLAViolation(ctx context.Context, v *models.SLAViolation) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE sla_violations
		SET status = $3, resolution = $4, resolved_at = $5, updated_at = $6
		WHERE id = $1 AND org_id = $2 AND status = 'open'
	`, v.ID, v.OrgID, string(v.Status), v.Resolution, v.ResolvedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("resolve SLA violation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// EscalateSLAViolation advances a violation from fromLevel to fromLevel+1 and
// inserts the actions for the new level in one transaction. It returns
// ErrConflict, with nothing written, when the violation is no longer open at
// fromLevel.
func (db *DB) EscalateSLAViolation(ctx context.Context, v *models.SLAViolation, fromLevel int, actions []*models.EscalationAction) error {
	now := time.Now()
	err := db.ExecTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE sla_violations
			SET escalation_level = $4, updated_at = $5
			WHERE id = $1 AND org_id = $2 AND escalation_level = $3 AND status = 'open'
		`, v.ID, v.OrgID, fromLevel, fromLevel+1, now)
		if err != nil {
			return fmt.Errorf("advance escalation level: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrConflict
		}

		for _, a := range actions {
			if a.OrgID != v.OrgID || a.ViolationID != v.ID {
				return fmt.Errorf("action %s does not belong to violation %s", a.ID, v.ID)
			}
			if err := insertEscalationAction(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	v.EscalationLevel = fromLevel + 1
	v.UpdatedAt = now
	return nil
}

func collectSLAViolations(rows pgx.Rows) ([]*models.SLAViolation, error) {
	defer rows.Close()

	var violations []*models.SLAViolation
	for rows.Next() {
		v, err := scanSLAViolation(rows)
		if err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate SLA violations: %w", err)
	}
	return violations, nil
}

// scanSLAViolation scans a row into an SLAViolation.
func scanSLAViolation(row rowScanner) (*models.SLAViolation, error) {
	var v models.SLAViolation
	var typeStr, statusStr string
	err := row.Scan(
		&v.ID, &v.OrgID, &v.PolicyID, &v.TaskID, &typeStr, &v.DueAt, &v.ViolatedAt, &statusStr,
		&v.EscalationLevel, &v.Resolution, &v.ResolvedAt, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan SLA violation: %w", err)
	}
	v.ViolationType = models.ViolationType(typeStr)
	v.Status = models.ViolationStatus(statusStr)
	return &v, nil
}

package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const policyColumns = `id, org_id, name, description, task_type, priority, response_time_hours,
	       resolution_time_hours, calendar_id, is_active, deleted_at, created_at, updated_at`

// ListActiveSLAPoliciesByOrg returns the live, active policies of an
// organization with their calendars attached.
func (db *DB) ListActiveSLAPoliciesByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.SLAPolicy, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+policyColumns+`
		FROM sla_policies
		WHERE org_id = $1 AND is_active AND deleted_at IS NULL
		ORDER BY created_at
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list active SLA policies: %w", err)
	}
	policies, err := collectSLAPolicies(rows)
	if err != nil {
		return nil, err
	}
	if err := db.loadCalendars(ctx, orgID, policies); err != nil {
		return nil, err
	}
	return policies, nil
}

// ListSLAPoliciesByOrg returns a page of live policies and the total count.
// A non-empty search matches name or description.
func (db *DB) ListSLAPoliciesByOrg(ctx context.Context, orgID uuid.UUID, search string, page models.Page) ([]*models.SLAPolicy, int, error) {
	where := ` WHERE org_id = $1 AND deleted_at IS NULL`
	args := []any{orgID}
	if search != "" {
		where += ` AND (name ILIKE $2 OR description ILIKE $2)`
		args = append(args, "%"+strings.ReplaceAll(search, "%", "\\%")+"%")
	}

	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM sla_policies`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count SLA policies: %w", err)
	}

	query := `SELECT ` + policyColumns + ` FROM sla_policies` + where +
		fmt.Sprintf(` ORDER BY name LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, page.Limit(), page.Offset())

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list SLA policies: %w", err)
	}
	policies, err := collectSLAPolicies(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := db.loadCalendars(ctx, orgID, policies); err != nil {
		return nil, 0, err
	}
	return policies, total, nil
}

// GetSLAPolicy returns a live policy scoped to an organization.
func (db *DB) GetSLAPolicy(ctx context.Context, orgID, id uuid.UUID) (*models.SLAPolicy, error) {
	p, err := scanSLAPolicy(db.Pool.QueryRow(ctx, `
		SELECT `+policyColumns+`
		FROM sla_policies
		WHERE id = $1 AND org_id = $2 AND deleted_at IS NULL
	`, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := db.loadCalendars(ctx, orgID, []*models.SLAPolicy{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateSLAPolicy creates a new SLA policy.
func (db *DB) CreateSLAPolicy(ctx context.Context, p *models.SLAPolicy) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO sla_policies (id, org_id, name, description, task_type, priority,
		            response_time_hours, resolution_time_hours, calendar_id, is_active,
		            created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.ID, p.OrgID, p.Name, p.Description, p.TaskType, p.Priority,
		p.ResponseTimeHours, p.ResolutionTimeHours, p.CalendarID, p.IsActive,
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create SLA policy: %w", err)
	}
	return nil
}

// UpdateSLAPolicy updates a live SLA policy.
func (db *DB) UpdateSLAPolicy(ctx context.Context, p *models.SLAPolicy) error {
	p.UpdatedAt = time.Now()
	tag, err := db.Pool.Exec(ctx, `
		UPDATE sla_policies
		SET name = $3, description = $4, task_type = $5, priority = $6,
		    response_time_hours = $7, resolution_time_hours = $8, calendar_id = $9,
		    is_active = $10, updated_at = $11
		WHERE id = $1 AND org_id = $2 AND deleted_at IS NULL
	`, p.ID, p.OrgID, p.Name, p.Description, p.TaskType, p.Priority,
		p.ResponseTimeHours, p.ResolutionTimeHours, p.CalendarID, p.IsActive, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update SLA policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSLAPolicy soft-deletes a policy. Violations keep referencing it.
func (db *DB) DeleteSLAPolicy(ctx context.Context, orgID, id uuid.UUID) error {
	now := time.Now()
	tag, err := db.Pool.Exec(ctx, `
		UPDATE sla_policies
		SET deleted_at = $3, is_active = false, updated_at = $3
		WHERE id = $1 AND org_id = $2 AND deleted_at IS NULL
	`, id, orgID, now)
	if err != nil {
		return fmt.Errorf("delete SLA policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectSLAPolicies(rows pgx.Rows) ([]*models.SLAPolicy, error) {
	defer rows.Close()

	var policies []*models.SLAPolicy
	for rows.Next() {
		p, err := scanSLAPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate SLA policies: %w", err)
	}
	return policies, nil
}

// scanSLAPolicy scans a row into an SLAPolicy.
func scanSLAPolicy(row rowScanner) (*models.SLAPolicy, error) {
	var p models.SLAPolicy
	err := row.Scan(
		&p.ID, &p.OrgID, &p.Name, &p.Description, &p.TaskType, &p.Priority,
		&p.ResponseTimeHours, &p.ResolutionTimeHours, &p.CalendarID, &p.IsActive,
		&p.DeletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan SLA policy: %w", err)
	}
	return &p, nil
}

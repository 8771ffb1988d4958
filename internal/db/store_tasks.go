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

// Work items, the user directory and notifications belong to the wider
// platform. These methods cover only what SLA monitoring reads and writes.

const taskColumns = `t.id, t.org_id, t.title, t.task_type, t.priority, t.status, t.assignee_id,
	       t.responded_at, t.completed_at, t.created_at, t.updated_at`

// ListUntrackedTasks returns incomplete tasks that match the policy filter
// and have no open violation of the given type under that policy.
func (db *DB) ListUntrackedTasks(ctx context.Context, orgID uuid.UUID, policy *models.SLAPolicy, vt models.ViolationType) ([]*models.Task, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		WHERE t.org_id = $1
		  AND t.status NOT IN ($2, $3)
		  AND ($4 = '' OR t.task_type = $4)
		  AND ($5 = '' OR t.priority = $5)
		  AND ($7 <> 'response' OR t.responded_at IS NULL)
		  AND NOT EXISTS (
		      SELECT 1 FROM sla_violations v
		      WHERE v.task_id = t.id AND v.policy_id = $6
		        AND v.violation_type = $7 AND v.status = 'open'
		  )
		ORDER BY t.created_at
	`, orgID, models.TaskStatusCompleted, models.TaskStatusCancelled,
		policy.TaskType, policy.Priority, policy.ID, string(vt))
	if err != nil {
		return nil, fmt.Errorf("list untracked tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// GetTask returns a task scoped to an organization.
func (db *DB) GetTask(ctx context.Context, orgID, id uuid.UUID) (*models.Task, error) {
	t, err := scanTask(db.Pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		WHERE t.id = $1 AND t.org_id = $2
	`, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// CreateTask inserts a task. Used by tooling and tests; the platform owns
// task creation in production.
func (db *DB) CreateTask(ctx context.Context, t *models.Task) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO tasks (id, org_id, title, task_type, priority, status, assignee_id,
		                   responded_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.OrgID, t.Title, t.TaskType, t.Priority, t.Status, t.AssigneeID,
		t.RespondedAt, t.CompletedAt, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// UpdateTaskAssignee sets the assignee of a task.
func (db *DB) UpdateTaskAssignee(ctx context.Context, orgID, taskID, assigneeID uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE tasks SET assignee_id = $3, updated_at = $4
		WHERE id = $1 AND org_id = $2
	`, taskID, orgID, assigneeID, time.Now())
	if err != nil {
		return fmt.Errorf("update task assignee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTaskStatus forces the status of a task.
func (db *DB) UpdateTaskStatus(ctx context.Context, orgID, taskID uuid.UUID, status string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE tasks SET status = $3, updated_at = $4
		WHERE id = $1 AND org_id = $2
	`, taskID, orgID, status, time.Now())
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanTask scans a row into a Task.
func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	err := row.Scan(
		&t.ID, &t.OrgID, &t.Title, &t.TaskType, &t.Priority, &t.Status, &t.AssigneeID,
		&t.RespondedAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &t, nil
}

// User directory

const userColumns = `u.id, u.org_id, u.email, u.name, u.active, u.created_at,
	       COALESCE(array_agg(r.role ORDER BY r.role) FILTER (WHERE r.role IS NOT NULL), '{}')`

// GetActiveUser returns an active user of the organization.
func (db *DB) GetActiveUser(ctx context.Context, orgID, userID uuid.UUID) (*models.User, error) {
	u, err := scanUser(db.Pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users u
		LEFT JOIN user_roles r ON r.user_id = u.id
		WHERE u.id = $1 AND u.org_id = $2 AND u.active
		GROUP BY u.id
	`, userID, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// FindActiveUserByRole returns the earliest created active user holding the
// role within the organization.
func (db *DB) FindActiveUserByRole(ctx context.Context, orgID uuid.UUID, role string) (*models.User, error) {
	u, err := scanUser(db.Pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users u
		LEFT JOIN user_roles r ON r.user_id = u.id
		WHERE u.org_id = $1 AND u.active
		  AND EXISTS (SELECT 1 FROM user_roles x WHERE x.user_id = u.id AND x.role = $2)
		GROUP BY u.id
		ORDER BY u.created_at, u.id
		LIMIT 1
	`, orgID, role))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// CreateUser inserts a directory user with roles.
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, org_id, email, name, active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, u.ID, u.OrgID, u.Email, u.Name, u.Active, u.CreatedAt)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		for _, role := range u.Roles {
			if _, err := tx.Exec(ctx, `
				INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, u.ID, role); err != nil {
				return fmt.Errorf("assign role %s: %w", role, err)
			}
		}
		return nil
	})
}

// scanUser scans a row into a User.
func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.OrgID, &u.Email, &u.Name, &u.Active, &u.CreatedAt, &u.Roles)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// Notifications

// CreateNotification stores an in-app notification for delivery by the
// platform's notification channels.
func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	correlation, err := n.CorrelationJSON()
	if err != nil {
		return fmt.Errorf("marshal correlation: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO notifications (id, org_id, user_id, type, title, message, priority,
		                           correlation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.ID, n.OrgID, n.UserID, n.Type, n.Title, n.Message, string(n.Priority),
		correlation, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// CountNotificationsByUser returns how many notifications a user has.
func (db *DB) CountNotificationsByUser(ctx context.Context, orgID, userID uuid.UUID) (int, error) {
	var count int
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE org_id = $1 AND user_id = $2
	`, orgID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}

// Tenants

// ListMonitoredOrgIDs returns organizations with at least one active policy
// or one pending escalation action.
func (db *DB) ListMonitoredOrgIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT org_id FROM sla_policies WHERE is_active AND deleted_at IS NULL
		UNION
		SELECT org_id FROM escalation_actions WHERE status = 'pending'
		ORDER BY org_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list monitored organizations: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan organization id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}
	return ids, nil
}

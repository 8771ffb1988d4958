// Package sla computes business-calendar deadlines and detects SLA violations.
package sla

import (
	"context"
	"errors"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
)

// ErrInvalidCalendar is returned when a calendar cannot produce a deadline,
// either because it has no working time or the walk hit its iteration cap.
var ErrInvalidCalendar = errors.New("invalid business calendar")

// Store defines the database operations needed for violation detection.
type Store interface {
	// ListActiveSLAPoliciesByOrg returns live, active policies with their calendar loaded.
	ListActiveSLAPoliciesByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.SLAPolicy, error)
	// ListUntrackedTasks returns incomplete tasks matching the policy filter that
	// have no open violation of the given type for that policy.
	ListUntrackedTasks(ctx context.Context, orgID uuid.UUID, policy *models.SLAPolicy, vt models.ViolationType) ([]*models.Task, error)
	// CreateSLAViolation inserts the violation unless an open one already exists
	// for the same task, policy and type. It reports whether a row was created.
	CreateSLAViolation(ctx context.Context, v *models.SLAViolation) (bool, error)
}

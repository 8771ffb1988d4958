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

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const calendarColumns = `id, org_id, name, description, time_zone, work_days, work_start_minute,
	       work_end_minute, holidays, is_default, is_active, created_at, updated_at`

// ListBusinessCalendarsByOrg returns all calendars for an organization.
func (db *DB) ListBusinessCalendarsByOrg(ctx context.Context, orgID uuid.UUID) ([]*models.BusinessCalendar, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+calendarColumns+`
		FROM business_calendars
		WHERE org_id = $1
		ORDER BY name
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list business calendars: %w", err)
	}
	defer rows.Close()

	var calendars []*models.BusinessCalendar
	for rows.Next() {
		c, err := scanBusinessCalendar(rows)
		if err != nil {
			return nil, err
		}
		calendars = append(calendars, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate business calendars: %w", err)
	}
	return calendars, nil
}

// GetBusinessCalendar returns a calendar scoped to an organization.
func (db *DB) GetBusinessCalendar(ctx context.Context, orgID, id uuid.UUID) (*models.BusinessCalendar, error) {
	c, err := scanBusinessCalendar(db.Pool.QueryRow(ctx, `
		SELECT `+calendarColumns+`
		FROM business_calendars
		WHERE id = $1 AND org_id = $2
	`, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// CreateBusinessCalendar creates a new calendar. Marking it default clears
// the flag on the organization's other calendars.
func (db *DB) CreateBusinessCalendar(ctx context.Context, c *models.BusinessCalendar) error {
	holidays, err := c.HolidaysJSON()
	if err != nil {
		return fmt.Errorf("marshal holidays: %w", err)
	}

	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		if c.IsDefault {
			if err := clearDefaultCalendar(ctx, tx, c.OrgID, c.ID); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO business_calendars (id, org_id, name, description, time_zone, work_days,
			            work_start_minute, work_end_minute, holidays, is_default, is_active,
			            created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, c.ID, c.OrgID, c.Name, c.Description, c.TimeZone, c.WorkDayNumbers(),
			c.WorkStart, c.WorkEnd, holidays, c.IsDefault, c.IsActive, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("create business calendar: %w", err)
		}
		return nil
	})
}

// UpdateBusinessCalendar replaces a calendar's definition.
func (db *DB) UpdateBusinessCalendar(ctx context.Context, c *models.BusinessCalendar) error {
	c.UpdatedAt = time.Now()
	holidays, err := c.HolidaysJSON()
	if err != nil {
		return fmt.Errorf("marshal holidays: %w", err)
	}

	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		if c.IsDefault {
			if err := clearDefaultCalendar(ctx, tx, c.OrgID, c.ID); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `
			UPDATE business_calendars
			SET name = $3, description = $4, time_zone = $5, work_days = $6,
			    work_start_minute = $7, work_end_minute = $8, holidays = $9,
			    is_default = $10, is_active = $11, updated_at = $12
			WHERE id = $1 AND org_id = $2
		`, c.ID, c.OrgID, c.Name, c.Description, c.TimeZone, c.WorkDayNumbers(),
			c.WorkStart, c.WorkEnd, holidays, c.IsDefault, c.IsActive, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update business calendar: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteBusinessCalendar deletes a calendar. It returns ErrConflict while a
// live policy still references it.
func (db *DB) DeleteBusinessCalendar(ctx context.Context, orgID, id uuid.UUID) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		var inUse bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM sla_policies
				WHERE calendar_id = $1 AND org_id = $2 AND deleted_at IS NULL
			)
		`, id, orgID).Scan(&inUse)
		if err != nil {
			return fmt.Errorf("check calendar usage: %w", err)
		}
		if inUse {
			return ErrConflict
		}

		// Soft-deleted policies keep their history but lose the calendar link.
		if _, err := tx.Exec(ctx, `
			UPDATE sla_policies SET calendar_id = NULL
			WHERE calendar_id = $1 AND org_id = $2
		`, id, orgID); err != nil {
			return fmt.Errorf("detach calendar from deleted policies: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM business_calendars WHERE id = $1 AND org_id = $2`, id, orgID)
		if err != nil {
			return fmt.Errorf("delete business calendar: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// loadCalendars fetches the calendars referenced by the given policies and
// attaches them in place.
func (db *DB) loadCalendars(ctx context.Context, orgID uuid.UUID, policies []*models.SLAPolicy) error {
	ids := make([]uuid.UUID, 0, len(policies))
	seen := make(map[uuid.UUID]bool)
	for _, p := range policies {
		if p.CalendarID != nil && !seen[*p.CalendarID] {
			seen[*p.CalendarID] = true
			ids = append(ids, *p.CalendarID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT `+calendarColumns+`
		FROM business_calendars
		WHERE org_id = $1 AND id = ANY($2)
	`, orgID, ids)
	if err != nil {
		return fmt.Errorf("load policy calendars: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*models.BusinessCalendar, len(ids))
	for rows.Next() {
		c, err := scanBusinessCalendar(rows)
		if err != nil {
			return err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate policy calendars: %w", err)
	}

	for _, p := range policies {
		if p.CalendarID == nil {
			continue
		}
		c, ok := byID[*p.CalendarID]
		if !ok {
			db.logger.Warn().
				Str("policy_id", p.ID.String()).
				Str("calendar_id", p.CalendarID.String()).
				Msg("policy references a calendar outside its organization")
			continue
		}
		p.Calendar = c
	}
	return nil
}

func clearDefaultCalendar(ctx context.Context, tx pgx.Tx, orgID, keepID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE business_calendars SET is_default = false, updated_at = NOW()
		WHERE org_id = $1 AND id <> $2 AND is_default
	`, orgID, keepID)
	if err != nil {
		return fmt.Errorf("clear default calendar: %w", err)
	}
	return nil
}

// scanBusinessCalendar scans a row into a BusinessCalendar.
func scanBusinessCalendar(row rowScanner) (*models.BusinessCalendar, error) {
	var c models.BusinessCalendar
	var workDays []int32
	var holidaysBytes []byte

	err := row.Scan(
		&c.ID, &c.OrgID, &c.Name, &c.Description, &c.TimeZone, &workDays,
		&c.WorkStart, &c.WorkEnd, &holidaysBytes, &c.IsDefault, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan business calendar: %w", err)
	}

	c.SetWorkDayNumbers(workDays)
	if err := c.SetHolidays(holidaysBytes); err != nil {
		return nil, fmt.Errorf("parse holidays: %w", err)
	}
	return &c, nil
}

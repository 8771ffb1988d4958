package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Default work window used when a calendar is created without explicit hours.
const (
	DefaultWorkStartMinute = 9 * 60
	DefaultWorkEndMinute   = 17 * 60
)

// BusinessCalendar defines the working days, daily work window and holidays
// used to compute business-time deadlines.
type BusinessCalendar struct {
	ID          uuid.UUID         `json:"id"`
	OrgID       uuid.UUID         `json:"org_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	TimeZone    string            `json:"time_zone"`
	WorkDays    []time.Weekday    `json:"work_days"`
	WorkStart   int               `json:"work_start_minute"` // minutes after midnight
	WorkEnd     int               `json:"work_end_minute"`
	Holidays    []CalendarHoliday `json:"holidays"`
	IsDefault   bool              `json:"is_default"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// CalendarHoliday is a non-working date. Recurring holidays repeat every year
// on the same month and day.
type CalendarHoliday struct {
	Name      string    `json:"name"`
	Date      time.Time `json:"date"`
	Recurring bool      `json:"recurring"`
}

// NewBusinessCalendar creates a Monday to Friday 09:00-17:00 calendar in UTC.
func NewBusinessCalendar(orgID uuid.UUID, name string) *BusinessCalendar {
	now := time.Now()
	return &BusinessCalendar{
		ID:        uuid.New(),
		OrgID:     orgID,
		Name:      name,
		TimeZone:  "UTC",
		WorkDays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		WorkStart: DefaultWorkStartMinute,
		WorkEnd:   DefaultWorkEndMinute,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Location resolves the calendar time zone, falling back to UTC.
func (c *BusinessCalendar) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WorkStartOffset returns the work-start time of day as a duration.
func (c *BusinessCalendar) WorkStartOffset() time.Duration {
	return time.Duration(c.WorkStart) * time.Minute
}

// WorkEndOffset returns the work-end time of day as a duration.
func (c *BusinessCalendar) WorkEndOffset() time.Duration {
	return time.Duration(c.WorkEnd) * time.Minute
}

// Validate checks the calendar invariants.
func (c *BusinessCalendar) Validate() error {
	if c.Name == "" {
		return errors.New("calendar name is required")
	}
	if len(c.WorkDays) == 0 {
		return errors.New("calendar needs at least one work day")
	}
	for _, d := range c.WorkDays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid work day %d", d)
		}
	}
	if c.WorkStart < 0 || c.WorkEnd > 24*60 {
		return errors.New("work hours must fall within a single day")
	}
	if c.WorkEnd <= c.WorkStart {
		return errors.New("work end must be after work start")
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid time zone %q: %w", c.TimeZone, err)
	}
	return nil
}

// CalendarRequest is the request body for creating or replacing a calendar.
type CalendarRequest struct {
	Name        string            `json:"name" binding:"required,min=1,max=255"`
	Description string            `json:"description,omitempty"`
	TimeZone    string            `json:"time_zone,omitempty"`
	WorkDays    []int             `json:"work_days" binding:"required"`
	WorkStart   *int              `json:"work_start_minute,omitempty"`
	WorkEnd     *int              `json:"work_end_minute,omitempty"`
	Holidays    []CalendarHoliday `json:"holidays,omitempty"`
	IsDefault   bool              `json:"is_default"`
	IsActive    *bool             `json:"is_active,omitempty"`
}

// Apply copies the request onto the calendar.
func (r *CalendarRequest) Apply(c *BusinessCalendar) {
	c.Name = r.Name
	c.Description = r.Description
	if r.TimeZone != "" {
		c.TimeZone = r.TimeZone
	}
	c.WorkDays = make([]time.Weekday, 0, len(r.WorkDays))
	for _, d := range r.WorkDays {
		c.WorkDays = append(c.WorkDays, time.Weekday(d))
	}
	if r.WorkStart != nil {
		c.WorkStart = *r.WorkStart
	}
	if r.WorkEnd != nil {
		c.WorkEnd = *r.WorkEnd
	}
	c.Holidays = r.Holidays
	c.IsDefault = r.IsDefault
	if r.IsActive != nil {
		c.IsActive = *r.IsActive
	}
	c.UpdatedAt = time.Now()
}

// HolidaysJSON returns the holidays as JSON bytes
func (c *BusinessCalendar) HolidaysJSON() ([]byte, error) {
	if c.Holidays == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Holidays)
}

// SetHolidays sets the holidays from JSON bytes
func (c *BusinessCalendar) SetHolidays(data []byte) error {
	if len(data) == 0 {
		c.Holidays = []CalendarHoliday{}
		return nil
	}
	return json.Unmarshal(data, &c.Holidays)
}

// WorkDayNumbers returns the work days as plain integers for storage.
func (c *BusinessCalendar) WorkDayNumbers() []int32 {
	days := make([]int32, 0, len(c.WorkDays))
	for _, d := range c.WorkDays {
		days = append(days, int32(d))
	}
	return days
}

// SetWorkDayNumbers sets the work days from stored integers.
func (c *BusinessCalendar) SetWorkDayNumbers(days []int32) {
	c.WorkDays = make([]time.Weekday, 0, len(days))
	for _, d := range days {
		c.WorkDays = append(c.WorkDays, time.Weekday(d))
	}
}

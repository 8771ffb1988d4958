package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// CalendarFile is a YAML document holding business calendar definitions.
//
//	calendars:
//	  - name: Support
//	    time_zone: Europe/Berlin
//	    work_days: [mon, tue, wed, thu, fri]
//	    work_start: "09:00"
//	    work_end: "17:00"
//	    holidays:
//	      - {name: New Year, date: 2025-01-01, recurring: true}
type CalendarFile struct {
	Calendars []CalendarDefinition `yaml:"calendars"`
}

// CalendarDefinition is one calendar as written in a calendar file.
type CalendarDefinition struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description,omitempty"`
	TimeZone    string              `yaml:"time_zone,omitempty"`
	WorkDays    []string            `yaml:"work_days"`
	WorkStart   string              `yaml:"work_start,omitempty"`
	WorkEnd     string              `yaml:"work_end,omitempty"`
	IsDefault   bool                `yaml:"is_default,omitempty"`
	Holidays    []HolidayDefinition `yaml:"holidays,omitempty"`
}

// HolidayDefinition is one holiday of a calendar file.
type HolidayDefinition struct {
	Name      string `yaml:"name"`
	Date      string `yaml:"date"`
	Recurring bool   `yaml:"recurring,omitempty"`
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// LoadCalendarFile reads and parses a calendar file.
func LoadCalendarFile(path string) (*CalendarFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calendar file: %w", err)
	}
	return ParseCalendarFile(data)
}

// ParseCalendarFile parses calendar file contents.
func ParseCalendarFile(data []byte) (*CalendarFile, error) {
	var f CalendarFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse calendar file: %w", err)
	}
	if len(f.Calendars) == 0 {
		return nil, errors.New("calendar file defines no calendars")
	}
	return &f, nil
}

// Find returns the calendar with the given name, or the only calendar when
// name is empty.
func (f *CalendarFile) Find(name string) (*CalendarDefinition, error) {
	if name == "" {
		if len(f.Calendars) != 1 {
			return nil, fmt.Errorf("calendar file defines %d calendars, pick one by name", len(f.Calendars))
		}
		return &f.Calendars[0], nil
	}
	for i := range f.Calendars {
		if strings.EqualFold(f.Calendars[i].Name, name) {
			return &f.Calendars[i], nil
		}
	}
	return nil, fmt.Errorf("calendar %q not found", name)
}

// ToModel converts the definition into a validated BusinessCalendar owned by orgID.
func (d *CalendarDefinition) ToModel(orgID uuid.UUID) (*models.BusinessCalendar, error) {
	c := models.NewBusinessCalendar(orgID, strings.TrimSpace(d.Name))
	c.Description = d.Description
	c.IsDefault = d.IsDefault
	if d.TimeZone != "" {
		c.TimeZone = d.TimeZone
	}

	if len(d.WorkDays) > 0 {
		c.WorkDays = c.WorkDays[:0]
		for _, s := range d.WorkDays {
			day, err := parseWeekday(s)
			if err != nil {
				return nil, fmt.Errorf("calendar %q: %w", d.Name, err)
			}
			c.WorkDays = append(c.WorkDays, day)
		}
	}

	var err error
	if d.WorkStart != "" {
		if c.WorkStart, err = parseClock(d.WorkStart); err != nil {
			return nil, fmt.Errorf("calendar %q: work_start: %w", d.Name, err)
		}
	}
	if d.WorkEnd != "" {
		if c.WorkEnd, err = parseClock(d.WorkEnd); err != nil {
			return nil, fmt.Errorf("calendar %q: work_end: %w", d.Name, err)
		}
	}

	c.Holidays = make([]models.CalendarHoliday, 0, len(d.Holidays))
	for _, h := range d.Holidays {
		date, err := time.Parse("2006-01-02", strings.TrimSpace(h.Date))
		if err != nil {
			return nil, fmt.Errorf("calendar %q: holiday %q: invalid date %q", d.Name, h.Name, h.Date)
		}
		c.Holidays = append(c.Holidays, models.CalendarHoliday{Name: h.Name, Date: date, Recurring: h.Recurring})
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("calendar %q: %w", d.Name, err)
	}
	return c, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if day, ok := weekdayNames[s]; ok {
		return day, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 6 {
		return 0, fmt.Errorf("invalid work day %q", s)
	}
	return time.Weekday(n), nil
}

// parseClock converts "HH:MM" into minutes after midnight. "24:00" is
// accepted as the end of the day.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || h < 0 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return h*60 + m, nil
}

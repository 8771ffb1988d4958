package sla

import (
	"fmt"
	"time"

	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/rickar/cal/v2"
)

// MaxCalendarDays bounds the calendar walk. A deadline further than this
// many calendar days away is treated as a configuration error.
const MaxCalendarDays = 3660

// Calculator computes SLA deadlines.
type Calculator struct {
	maxDays int
}

// NewCalculator creates a new deadline Calculator.
func NewCalculator() *Calculator {
	return &Calculator{maxDays: MaxCalendarDays}
}

// ComputeDueDate returns the response deadline for a task started at start.
func (c *Calculator) ComputeDueDate(policy *models.SLAPolicy, start time.Time) (time.Time, error) {
	return c.DueDate(policy, models.ViolationTypeResponse, start)
}

// DueDate returns the deadline for the given violation type. Without a
// calendar the budget is wall-clock time.
func (c *Calculator) DueDate(policy *models.SLAPolicy, vt models.ViolationType, start time.Time) (time.Time, error) {
	budget := hoursToDuration(policy.Budget(vt))
	if policy.Calendar == nil {
		return start.Add(budget), nil
	}
	return c.AddWorkingTime(policy.Calendar, start, budget)
}

// AddWorkingTime walks forward from start through the calendar's working
// windows until budget working time has been consumed.
func (c *Calculator) AddWorkingTime(calendar *models.BusinessCalendar, start time.Time, budget time.Duration) (time.Time, error) {
	if len(calendar.WorkDays) == 0 {
		return time.Time{}, fmt.Errorf("%w: calendar %s has no work days", ErrInvalidCalendar, calendar.ID)
	}
	if calendar.WorkEnd <= calendar.WorkStart {
		return time.Time{}, fmt.Errorf("%w: calendar %s has an empty work window", ErrInvalidCalendar, calendar.ID)
	}
	if budget <= 0 {
		return start, nil
	}

	bc := BuildCalendar(calendar)
	loc := calendar.Location()
	current := start.In(loc)
	remaining := budget

	for day := 0; day < c.maxDays; day++ {
		workStart := timeOfDay(current, calendar.WorkStart)
		workEnd := timeOfDay(current, calendar.WorkEnd)

		if !bc.IsWorkday(current) || !current.Before(workEnd) {
			current = nextWorkStart(current, calendar.WorkStart)
			continue
		}
		if current.Before(workStart) {
			current = workStart
		}

		available := workEnd.Sub(current)
		if remaining <= available {
			return current.Add(remaining).In(start.Location()), nil
		}
		remaining -= available
		current = nextWorkStart(current, calendar.WorkStart)
	}

	return time.Time{}, fmt.Errorf("%w: no deadline within %d days for calendar %s", ErrInvalidCalendar, c.maxDays, calendar.ID)
}

// BuildCalendar converts a stored calendar into a rickar/cal business calendar
// with the same work days, work hours and holidays.
func BuildCalendar(calendar *models.BusinessCalendar) *cal.BusinessCalendar {
	bc := cal.NewBusinessCalendar()
	for d := time.Sunday; d <= time.Saturday; d++ {
		bc.SetWorkday(d, false)
	}
	for _, d := range calendar.WorkDays {
		bc.SetWorkday(d, true)
	}
	bc.SetWorkHours(calendar.WorkStartOffset(), calendar.WorkEndOffset())

	for _, h := range calendar.Holidays {
		holiday := &cal.Holiday{
			Name:  h.Name,
			Type:  cal.ObservancePublic,
			Month: h.Date.Month(),
			Day:   h.Date.Day(),
			Func:  cal.CalcDayOfMonth,
		}
		if !h.Recurring {
			holiday.StartYear = h.Date.Year()
			holiday.EndYear = h.Date.Year()
		}
		bc.AddHoliday(holiday)
	}
	return bc
}

func timeOfDay(t time.Time, minute int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, minute, 0, 0, t.Location())
}

func nextWorkStart(t time.Time, minute int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, minute, 0, 0, t.Location())
}

func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}

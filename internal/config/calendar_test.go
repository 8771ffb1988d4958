package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCalendars = `
calendars:
  - name: Support
    description: first line support
    time_zone: Europe/Berlin
    work_days: [mon, tue, wed, thu, fri]
    work_start: "08:30"
    work_end: "17:00"
    is_default: true
    holidays:
      - name: New Year
        date: "2025-01-01"
        recurring: true
      - name: Company offsite
        date: "2025-06-13"
  - name: Follow the sun
    work_days: ["0", "1", "2", "3", "4", "5", "6"]
    work_start: "00:00"
    work_end: "24:00"
`

func TestParseCalendarFile(t *testing.T) {
	f, err := ParseCalendarFile([]byte(sampleCalendars))
	require.NoError(t, err)
	require.Len(t, f.Calendars, 2)

	def, err := f.Find("support")
	require.NoError(t, err)

	orgID := uuid.New()
	c, err := def.ToModel(orgID)
	require.NoError(t, err)
	assert.Equal(t, orgID, c.OrgID)
	assert.Equal(t, "Support", c.Name)
	assert.Equal(t, "Europe/Berlin", c.TimeZone)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, c.WorkDays)
	assert.Equal(t, 8*60+30, c.WorkStart)
	assert.Equal(t, 17*60, c.WorkEnd)
	assert.True(t, c.IsDefault)
	require.Len(t, c.Holidays, 2)
	assert.True(t, c.Holidays[0].Recurring)
	assert.Equal(t, time.Date(2025, 6, 13, 0, 0, 0, 0, time.UTC), c.Holidays[1].Date)

	def, err = f.Find("Follow the sun")
	require.NoError(t, err)
	c, err = def.ToModel(orgID)
	require.NoError(t, err)
	assert.Len(t, c.WorkDays, 7)
	assert.Equal(t, 0, c.WorkStart)
	assert.Equal(t, 24*60, c.WorkEnd)
	assert.Equal(t, "UTC", c.TimeZone)
}

func TestCalendarFile_Find(t *testing.T) {
	f, err := ParseCalendarFile([]byte(sampleCalendars))
	require.NoError(t, err)

	_, err = f.Find("")
	assert.Error(t, err, "ambiguous without a name")

	_, err = f.Find("missing")
	assert.Error(t, err)

	single := &CalendarFile{Calendars: f.Calendars[:1]}
	def, err := single.Find("")
	require.NoError(t, err)
	assert.Equal(t, "Support", def.Name)
}

func TestCalendarDefinition_Invalid(t *testing.T) {
	tests := []struct {
		name string
		def  CalendarDefinition
	}{
		{"unknown day", CalendarDefinition{Name: "x", WorkDays: []string{"funday"}}},
		{"day out of range", CalendarDefinition{Name: "x", WorkDays: []string{"7"}}},
		{"bad clock", CalendarDefinition{Name: "x", WorkStart: "9am"}},
		{"minutes out of range", CalendarDefinition{Name: "x", WorkEnd: "17:75"}},
		{"end before start", CalendarDefinition{Name: "x", WorkStart: "17:00", WorkEnd: "09:00"}},
		{"bad holiday", CalendarDefinition{Name: "x", Holidays: []HolidayDefinition{{Name: "h", Date: "01/01/2025"}}}},
		{"bad zone", CalendarDefinition{Name: "x", TimeZone: "Mars/Olympus"}},
		{"no name", CalendarDefinition{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.def.ToModel(uuid.New())
			assert.Error(t, err)
		})
	}
}

func TestLoadCalendarFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendars.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCalendars), 0600))

	f, err := LoadCalendarFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Calendars, 2)

	_, err = LoadCalendarFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseCalendarFile([]byte("calendars: []"))
	assert.Error(t, err)

	_, err = ParseCalendarFile([]byte("calendars: [unclosed"))
	assert.Error(t, err)
}

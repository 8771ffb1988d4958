package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCalendars = `calendars:
  - name: Support
    time_zone: UTC
    work_days: [mon, tue, wed, thu, fri]
    work_start: "09:00"
    work_end: "17:00"
    holidays:
      - {name: Epiphany, date: "2024-01-08", recurring: false}
  - name: Always
    work_days: [sun, mon, tue, wed, thu, fri, sat]
    work_start: "00:00"
    work_end: "24:00"
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeCalendarFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calendars.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCalendars), 0o600))
	return path
}

func TestDueDateCmd(t *testing.T) {
	path := writeCalendarFile(t)

	t.Run("skips weekend and holiday", func(t *testing.T) {
		// Friday 15:00 + 4h: 2h on Friday, Monday is a holiday, 2h on Tuesday.
		out, err := execute(t, "due-date", "--calendar", path, "--name", "support",
			"--start", "2024-01-05T15:00:00Z", "--hours", "4")
		require.NoError(t, err)
		assert.Equal(t, "2024-01-09T11:00:00Z", strings.TrimSpace(out))
	})

	t.Run("round the clock calendar", func(t *testing.T) {
		out, err := execute(t, "due-date", "--calendar", path, "--name", "Always",
			"--start", "2024-01-06T22:00:00Z", "--hours", "3")
		require.NoError(t, err)
		assert.Equal(t, "2024-01-07T01:00:00Z", strings.TrimSpace(out))
	})

	t.Run("ambiguous calendar", func(t *testing.T) {
		_, err := execute(t, "due-date", "--calendar", path, "--hours", "1")
		assert.Error(t, err)
	})

	t.Run("invalid start", func(t *testing.T) {
		_, err := execute(t, "due-date", "--calendar", path, "--name", "Support", "--start", "tomorrow")
		assert.Error(t, err)
	})

	t.Run("calendar flag required", func(t *testing.T) {
		_, err := execute(t, "due-date", "--hours", "1")
		assert.Error(t, err)
	})
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "slawatchctl "+Version)
}

func TestMigrateListCmd(t *testing.T) {
	out, err := execute(t, "migrate", "--list")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "001"), "expected first migration to be listed, got %q", out)
}

func TestCalendarsImportRequiresOrg(t *testing.T) {
	path := writeCalendarFile(t)

	_, err := execute(t, "calendars", "import", path)
	assert.Error(t, err)

	_, err = execute(t, "calendars", "import", path, "--org", "not-a-uuid")
	assert.Error(t, err)
}

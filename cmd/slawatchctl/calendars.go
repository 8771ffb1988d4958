package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/MacJediWizard/slawatch/internal/config"
	"github.com/MacJediWizard/slawatch/internal/models"
	"github.com/MacJediWizard/slawatch/internal/sla"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newCalendarsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendars",
		Short: "Manage business calendars",
	}
	cmd.AddCommand(newCalendarsImportCmd())
	return cmd
}

func newCalendarsImportCmd() *cobra.Command {
	var orgFlag string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Create or replace calendars from a YAML file",
		Long: `Import every calendar defined in a YAML file into an organization.
A calendar whose name matches an existing one (ignoring case) replaces it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := uuid.Parse(orgFlag)
			if err != nil {
				return fmt.Errorf("invalid --org: %w", err)
			}

			file, err := config.LoadCalendarFile(args[0])
			if err != nil {
				return err
			}
			imported := make([]*models.BusinessCalendar, 0, len(file.Calendars))
			for i := range file.Calendars {
				cal, err := file.Calendars[i].ToModel(orgID)
				if err != nil {
					return err
				}
				imported = append(imported, cal)
			}

			cfg := config.LoadServerConfig()
			logger := newLogger().Level(cfg.LogLevel)
			ctx := cmd.Context()

			database, err := openDatabase(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			existing, err := database.ListBusinessCalendarsByOrg(ctx, orgID)
			if err != nil {
				return fmt.Errorf("list calendars: %w", err)
			}
			byName := make(map[string]*models.BusinessCalendar, len(existing))
			for _, c := range existing {
				byName[strings.ToLower(c.Name)] = c
			}

			out := cmd.OutOrStdout()
			for _, cal := range imported {
				if prev, ok := byName[strings.ToLower(cal.Name)]; ok {
					cal.ID = prev.ID
					cal.CreatedAt = prev.CreatedAt
					if err := database.UpdateBusinessCalendar(ctx, cal); err != nil {
						return fmt.Errorf("update calendar %q: %w", cal.Name, err)
					}
					fmt.Fprintf(out, "updated  %s  %s\n", cal.ID, cal.Name)
					continue
				}
				if err := database.CreateBusinessCalendar(ctx, cal); err != nil {
					return fmt.Errorf("create calendar %q: %w", cal.Name, err)
				}
				fmt.Fprintf(out, "created  %s  %s\n", cal.ID, cal.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&orgFlag, "org", "", "Organization ID (required)")
	_ = cmd.MarkFlagRequired("org")

	return cmd
}

func newDueDateCmd() *cobra.Command {
	var (
		calendarPath string
		name         string
		start        string
		hours        float64
	)

	cmd := &cobra.Command{
		Use:   "due-date",
		Short: "Compute a business-hours deadline offline",
		Long: `Add a budget of working hours to a start time using a calendar from
a YAML file. Nothing is read from the database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours < 0 {
				return fmt.Errorf("--hours must not be negative")
			}
			startAt := time.Now()
			if start != "" {
				t, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				startAt = t
			}

			file, err := config.LoadCalendarFile(calendarPath)
			if err != nil {
				return err
			}
			def, err := file.Find(name)
			if err != nil {
				return err
			}
			cal, err := def.ToModel(uuid.Nil)
			if err != nil {
				return err
			}

			budget := time.Duration(hours * float64(time.Hour))
			due, err := sla.NewCalculator().AddWorkingTime(cal, startAt, budget)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), due.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&calendarPath, "calendar", "", "Calendar YAML file (required)")
	cmd.Flags().StringVar(&name, "name", "", "Calendar name when the file defines several")
	cmd.Flags().StringVar(&start, "start", "", "Start time in RFC3339 (default: now)")
	cmd.Flags().Float64Var(&hours, "hours", 0, "Working hours to add")
	_ = cmd.MarkFlagRequired("calendar")

	return cmd
}

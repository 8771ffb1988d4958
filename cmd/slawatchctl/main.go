// Package main is the Slawatch operator CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"
	_ "time/tzdata"

	"github.com/MacJediWizard/slawatch/internal/config"
	"github.com/MacJediWizard/slawatch/internal/db"
	"github.com/MacJediWizard/slawatch/internal/escalation"
	"github.com/MacJediWizard/slawatch/internal/monitoring"
	"github.com/MacJediWizard/slawatch/internal/notifications"
	"github.com/MacJediWizard/slawatch/internal/sla"
	"github.com/MacJediWizard/slawatch/internal/webhooks"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "slawatchctl",
		Short: "Operate a Slawatch deployment",
		Long: `slawatchctl runs maintenance tasks against the Slawatch database:
schema migrations, on-demand monitoring cycles and calendar imports.

Database commands read DATABASE_URL and the other server settings from
the environment.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newMigrateCmd(),
		newRunCycleCmd(),
		newCalendarsCmd(),
		newDueDateCmd(),
	)

	return rootCmd
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "slawatchctl %s\n", Version)
			fmt.Fprintf(out, "  Commit:     %s\n", Commit)
			fmt.Fprintf(out, "  Built:      %s\n", BuildDate)
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
		},
	}
}

// openDatabase connects with a small pool suited to one-shot commands.
func openDatabase(ctx context.Context, cfg config.ServerConfig, logger zerolog.Logger) (*db.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	dbCfg := db.DefaultConfig(cfg.DatabaseURL)
	dbCfg.MaxConns = 5
	dbCfg.MinConns = 1
	return db.New(ctx, dbCfg, logger)
}

func newMigrateCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return listMigrations(cmd.OutOrStdout())
			}

			logger := newLogger()
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			database, err := openDatabase(ctx, config.LoadServerConfig(), logger)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			version, err := database.CurrentVersion(ctx)
			if err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}
			logger.Info().Int("version", version).Msg("migrations complete")

			applied, err := database.AppliedMigrations(ctx)
			if err != nil {
				return err
			}
			for _, m := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "%03d  %s  applied %s\n", m.Version, m.Name, m.AppliedAt.UTC().Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List embedded migrations without connecting")

	return cmd
}

func listMigrations(out io.Writer) error {
	migrations, err := db.GetMigrations()
	if err != nil {
		return err
	}
	for _, m := range migrations {
		fmt.Fprintf(out, "%03d  %s\n", m.Version, m.Name)
	}
	return nil
}

func newRunCycleCmd() *cobra.Command {
	var orgFlag string

	cmd := &cobra.Command{
		Use:   "run-cycle",
		Short: "Run one monitoring cycle now",
		Long: `Run violation detection and escalation once, either for every
monitored organization or for the one given with --org. A full cycle
honors the shared Redis lock when REDIS_URL is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var orgID uuid.UUID
			if orgFlag != "" {
				id, err := uuid.Parse(orgFlag)
				if err != nil {
					return fmt.Errorf("invalid --org: %w", err)
				}
				orgID = id
			}

			cfg := config.LoadServerConfig()
			logger := newLogger().Level(cfg.LogLevel)
			ctx := cmd.Context()

			database, err := openDatabase(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer database.Close()

			scheduler, cleanup, err := buildScheduler(cfg, database, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			var result any
			if orgID != uuid.Nil {
				result, err = scheduler.RunTenant(ctx, orgID)
			} else {
				result, err = scheduler.RunNow(ctx)
			}
			if encErr := writeJSON(cmd.OutOrStdout(), result); encErr != nil {
				return encErr
			}
			return err
		},
	}

	cmd.Flags().StringVar(&orgFlag, "org", "", "Organization ID (default: all monitored organizations)")

	return cmd
}

func buildScheduler(cfg config.ServerConfig, database *db.DB, logger zerolog.Logger) (*monitoring.Scheduler, func(), error) {
	dispatcherCfg := webhooks.DefaultConfig()
	dispatcherCfg.RequestTimeout = cfg.WebhookTimeout
	dispatcherCfg.AllowPrivateTargets = cfg.WebhookAllowPrivate

	detector := sla.NewDetector(database, sla.NewCalculator(), logger)

	engineCfg := escalation.DefaultConfig()
	engineCfg.DefaultWebhookSecret = cfg.WebhookSigningSecret
	engine := escalation.NewEngine(
		database, database, database,
		notifications.NewService(database, logger),
		webhooks.NewDispatcher(dispatcherCfg, logger),
		engineCfg, logger,
	)

	cleanup := func() {}
	var locker monitoring.Locker
	if cfg.RedisURL != "" {
		redisLocker, err := monitoring.NewRedisLocker(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("configure redis lock: %w", err)
		}
		locker = redisLocker
		cleanup = func() { _ = redisLocker.Close() }
	}

	schedCfg := monitoring.DefaultConfig()
	schedCfg.LockTTL = cfg.MonitorLockTTL
	return monitoring.NewScheduler(database, detector, engine, locker, schedCfg, logger), cleanup, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Package main is the entrypoint for the Slawatch server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/MacJediWizard/slawatch/internal/api"
	"github.com/MacJediWizard/slawatch/internal/config"
	"github.com/MacJediWizard/slawatch/internal/db"
	"github.com/MacJediWizard/slawatch/internal/escalation"
	"github.com/MacJediWizard/slawatch/internal/metrics"
	"github.com/MacJediWizard/slawatch/internal/monitoring"
	"github.com/MacJediWizard/slawatch/internal/notifications"
	"github.com/MacJediWizard/slawatch/internal/sla"
	"github.com/MacJediWizard/slawatch/internal/webhooks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.LoadServerConfig()

	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if !cfg.IsProduction() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	logger = logger.Level(cfg.LogLevel)

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Str("env", string(cfg.Environment)).
		Msg("Starting Slawatch server")

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	// Connect to database
	dbCfg := db.DefaultConfig(cfg.DatabaseURL)
	dbCfg.MaxConns = int32(cfg.DBMaxConns)
	dbCfg.MinConns = int32(cfg.DBMinConns)

	database, err := db.New(ctx, dbCfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to database")
		return 1
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to run migrations")
		return 1
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewPoolCollector(database.Pool),
		metrics.NewUpGauge("database", database, 2*time.Second),
	)
	promMetrics, err := metrics.NewPrometheusMetrics(registry)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register metrics")
		return 1
	}

	// Pipeline
	dispatcherCfg := webhooks.DefaultConfig()
	dispatcherCfg.RequestTimeout = cfg.WebhookTimeout
	dispatcherCfg.AllowPrivateTargets = cfg.WebhookAllowPrivate
	dispatcher := webhooks.NewDispatcher(dispatcherCfg, logger)
	if cfg.WebhookAllowPrivate {
		logger.Warn().Msg("Webhook private address guard disabled")
	}

	notifier := notifications.NewService(database, logger)

	detector := sla.NewDetector(database, sla.NewCalculator(), logger)
	detector.SetMetrics(promMetrics)

	engineCfg := escalation.DefaultConfig()
	engineCfg.DefaultWebhookSecret = cfg.WebhookSigningSecret
	engine := escalation.NewEngine(database, database, database, notifier, dispatcher, engineCfg, logger)
	engine.SetMetrics(promMetrics)

	var locker monitoring.Locker
	deps := api.Dependencies{
		Store:    database,
		Detector: detector,
		Engine:   engine,
		Gatherer: registry,
	}
	if cfg.RedisURL != "" {
		redisLocker, err := monitoring.NewRedisLocker(cfg.RedisURL)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to configure Redis lock")
			return 1
		}
		defer redisLocker.Close()
		if err := redisLocker.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("Redis lock backend not reachable yet")
		}
		locker = redisLocker
		deps.Lock = redisLocker
		registry.MustRegister(metrics.NewUpGauge("lock", redisLocker, 2*time.Second))
	}

	schedCfg := monitoring.DefaultConfig()
	schedCfg.Interval = cfg.MonitorInterval
	schedCfg.LockTTL = cfg.MonitorLockTTL
	scheduler := monitoring.NewScheduler(database, detector, engine, locker, schedCfg, logger)
	scheduler.SetMetrics(promMetrics)
	deps.Monitor = scheduler

	// HTTP API
	apiCfg := api.Config{
		RateLimitRequests: int64(cfg.RateLimitRequests),
		RateLimitPeriod:   cfg.RateLimitPeriod,
		AdminAPIToken:     cfg.AdminAPIToken,
		Version:           Version,
		Commit:            Commit,
		BuildDate:         BuildDate,
	}
	router, err := api.NewRouter(apiCfg, deps, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize router")
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if cfg.MonitorEnabled {
		if err := scheduler.Start(); err != nil {
			logger.Error().Err(err).Msg("Failed to start monitor scheduler")
			return 1
		}
	} else {
		logger.Info().Msg("Monitor scheduler disabled")
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down server")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("HTTP server error")
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if cfg.MonitorEnabled {
		select {
		case <-scheduler.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn().Msg("Monitoring cycle still running at shutdown")
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	logger.Info().Msg("Server stopped gracefully")
	return exitCode
}

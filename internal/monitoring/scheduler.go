// Package monitoring runs the recurring SLA cycle: violation detection
// followed by escalation, tenant by tenant.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MacJediWizard/slawatch/internal/escalation"
	"github.com/MacJediWizard/slawatch/internal/metrics"
	"github.com/MacJediWizard/slawatch/internal/sla"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TenantLister lists the organizations a cycle visits.
type TenantLister interface {
	ListMonitoredOrgIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Detector records new violations for a tenant.
type Detector interface {
	DetectAndRecord(ctx context.Context, orgID uuid.UUID) (*sla.DetectionResult, error)
}

// Escalator escalates violations and executes due actions for a tenant.
type Escalator interface {
	ProcessTenant(ctx context.Context, orgID uuid.UUID) (*escalation.ProcessResult, error)
}

// Config holds scheduler settings.
type Config struct {
	// Interval between cycles.
	Interval time.Duration
	// LockKey names the cross-replica cycle lock.
	LockKey string
	// LockTTL bounds how long a crashed replica can hold the lock.
	LockTTL time.Duration
	// RunOnStart runs a cycle immediately when the scheduler starts.
	RunOnStart bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:   5 * time.Minute,
		LockKey:    "slawatch:monitor:cycle",
		LockTTL:    10 * time.Minute,
		RunOnStart: true,
	}
}

// TenantResult is the outcome of one cycle for one organization.
type TenantResult struct {
	OrgID      uuid.UUID                 `json:"org_id"`
	Detection  *sla.DetectionResult      `json:"detection,omitempty"`
	Escalation *escalation.ProcessResult `json:"escalation,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

// CycleResult is the outcome of one full cycle.
type CycleResult struct {
	StartedAt     time.Time       `json:"started_at"`
	Duration      time.Duration   `json:"duration"`
	Skipped       bool            `json:"skipped"`
	TenantsFailed int             `json:"tenants_failed"`
	Tenants       []*TenantResult `json:"tenants"`
}

// Scheduler drives detection and escalation on a fixed interval.
type Scheduler struct {
	tenants   TenantLister
	detector  Detector
	escalator Escalator
	locker    Locker
	config    Config
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	// cycleMu keeps runs on this replica from overlapping; the locker
	// does the same across replicas.
	cycleMu sync.Mutex

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates a new Scheduler. A nil locker means no cross-replica
// locking.
func NewScheduler(tenants TenantLister, detector Detector, escalator Escalator, locker Locker, config Config, logger zerolog.Logger) *Scheduler {
	if locker == nil {
		locker = NopLocker{}
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.LockKey == "" {
		config.LockKey = DefaultConfig().LockKey
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultConfig().LockTTL
	}
	return &Scheduler{
		tenants:   tenants,
		detector:  detector,
		escalator: escalator,
		locker:    locker,
		config:    config,
		logger:    logger.With().Str("component", "monitor").Logger(),
	}
}

// SetMetrics attaches Prometheus metrics to the scheduler.
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start begins the cycle schedule. Overrunning cycles delay the next one
// and a panicking cycle is recovered.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("monitor scheduler already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	clog := cronLogger{logger: s.logger}
	job := cron.NewChain(cron.Recover(clog), cron.DelayIfStillRunning(clog)).
		Then(cron.FuncJob(func() { s.tick(ctx) }))

	s.cron = cron.New(cron.WithLogger(clog))
	s.cron.Schedule(cron.Every(s.config.Interval), job)
	s.cron.Start()
	s.cancel = cancel
	s.running = true

	if s.config.RunOnStart {
		go job.Run()
	}

	s.logger.Info().
		Dur("interval", s.config.Interval).
		Msg("monitor scheduler started")
	return nil
}

// Stop stops scheduling new cycles and cancels the running one between
// actions. The returned context is done once the running cycle returned.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.cancel()
	s.logger.Info().Msg("stopping monitor scheduler")
	return s.cron.Stop()
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.RunNow(ctx); err != nil {
		s.logger.Error().Err(err).Msg("monitoring cycle failed")
	}
}

// RunNow runs one cycle over every monitored tenant. When another replica
// holds the cycle lock the cycle is skipped.
func (s *Scheduler) RunNow(ctx context.Context) (*CycleResult, error) {
	start := time.Now()
	result := &CycleResult{StartedAt: start}

	release, err := s.acquireCycle(ctx)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			result.Skipped = true
			s.metrics.RecordCycle("skipped", time.Since(start))
			s.logger.Debug().Msg("cycle lock held elsewhere, skipping cycle")
			return result, nil
		}
		s.metrics.RecordCycle("error", time.Since(start))
		return result, err
	}
	defer release()

	orgIDs, err := s.tenants.ListMonitoredOrgIDs(ctx)
	if err != nil {
		s.metrics.RecordCycle("error", time.Since(start))
		return result, fmt.Errorf("list monitored organizations: %w", err)
	}

	for _, orgID := range orgIDs {
		if err := ctx.Err(); err != nil {
			s.metrics.RecordCycle("error", time.Since(start))
			return result, err
		}
		tr, err := s.RunTenant(ctx, orgID)
		result.Tenants = append(result.Tenants, tr)
		if err != nil {
			result.TenantsFailed++
			s.logger.Error().Err(err).Str("org_id", orgID.String()).Msg("tenant cycle failed")
		}
	}

	result.Duration = time.Since(start)
	outcome := "success"
	if result.TenantsFailed > 0 {
		outcome = "error"
	}
	s.metrics.RecordCycle(outcome, result.Duration)

	s.logger.Info().
		Int("tenants", len(orgIDs)).
		Int("tenants_failed", result.TenantsFailed).
		Dur("duration", result.Duration).
		Msg("monitoring cycle completed")
	return result, nil
}

// Exclusive runs fn while holding the cycle lock, so an on-demand pass never
// overlaps a scheduled cycle. It returns ErrLockHeld when a cycle is running.
func (s *Scheduler) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := s.acquireCycle(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

func (s *Scheduler) acquireCycle(ctx context.Context) (func(), error) {
	if !s.cycleMu.TryLock() {
		return nil, ErrLockHeld
	}
	lock, err := s.locker.Acquire(ctx, s.config.LockKey, s.config.LockTTL)
	if err != nil {
		s.cycleMu.Unlock()
		if errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		return nil, fmt.Errorf("acquire cycle lock: %w", err)
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release cycle lock")
		}
		s.cycleMu.Unlock()
	}, nil
}

// RunTenant runs detection and then escalation for one organization. A
// detection failure does not prevent escalation of existing violations.
func (s *Scheduler) RunTenant(ctx context.Context, orgID uuid.UUID) (*TenantResult, error) {
	result := &TenantResult{OrgID: orgID}

	detection, detectErr := s.detector.DetectAndRecord(ctx, orgID)
	result.Detection = detection
	if detectErr != nil {
		detectErr = fmt.Errorf("detect violations: %w", detectErr)
	}

	esc, escErr := s.escalator.ProcessTenant(ctx, orgID)
	result.Escalation = esc
	if escErr != nil {
		escErr = fmt.Errorf("process escalations: %w", escErr)
	}

	if err := errors.Join(detectErr, escErr); err != nil {
		result.Error = err.Error()
		return result, err
	}
	return result, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

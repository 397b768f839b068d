package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SchedulerConfig holds configuration for the sweep scheduler.
type SchedulerConfig struct {
	// Schedule is a standard five-field cron expression.
	Schedule string
	// Timezone the schedule is evaluated in (e.g. "Asia/Kolkata"). Empty means local time.
	Timezone string
	// Timeout bounds a single sweep run.
	Timeout time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Schedule: "0 0 * * *",
		Timeout:  5 * time.Minute,
	}
}

// Scheduler triggers sweeps on a cron schedule.
type Scheduler struct {
	config   SchedulerConfig
	sweeper  *Sweeper
	location *time.Location
	schedule cron.Schedule
	logger   zerolog.Logger

	mu         sync.Mutex
	running    bool
	sweeping   bool
	lastResult *Result
	stopCh     chan struct{}
}

// NewScheduler validates the cron expression and timezone.
func NewScheduler(config SchedulerConfig, sweeper *Sweeper, logger *zerolog.Logger) (*Scheduler, error) {
	def := DefaultSchedulerConfig()
	if config.Schedule == "" {
		config.Schedule = def.Schedule
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}

	loc := time.Local
	if config.Timezone != "" {
		l, err := time.LoadLocation(config.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", config.Timezone, err)
		}
		loc = l
	}

	schedule, err := cron.ParseStandard(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", config.Schedule, err)
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "sweep_scheduler").Logger()
	}
	return &Scheduler{
		config:   config,
		sweeper:  sweeper,
		location: loc,
		schedule: schedule,
		logger:   l,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start runs the scheduler loop until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger{s.logger}),
		cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.run(ctx) }))
	c.Start()

	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Str("timezone", s.location.String()).
		Time("next_run", s.NextRun(time.Now())).
		Msg("sweep scheduler started")

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("sweep scheduler stopped by context")
	case <-s.stopCh:
		s.logger.Info().Msg("sweep scheduler stopped")
	}

	// wait for an in-flight sweep to finish its current step
	<-c.Stop().Done()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		select {
		case <-s.stopCh:
		default:
			close(s.stopCh)
		}
	}
}

// RunNow forces an immediate sweep with the configured time budget.
func (s *Scheduler) RunNow(ctx context.Context) (Result, error) {
	s.logger.Info().Msg("manual sweep triggered")
	return s.run(ctx)
}

func (s *Scheduler) run(parent context.Context) (Result, error) {
	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("sweep already in progress")
	}
	s.sweeping = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sweeping = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(parent, s.config.Timeout)
	defer cancel()

	res, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep finished with errors")
	}

	s.mu.Lock()
	s.lastResult = &res
	s.mu.Unlock()
	return res, err
}

// NextRun returns the first scheduled run after t.
func (s *Scheduler) NextRun(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

// LastResult returns the outcome of the most recent sweep, or nil.
func (s *Scheduler) LastResult() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

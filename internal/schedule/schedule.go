// Package schedule runs the periodic billing jobs: monthly charge
// generation on the 25th and the daily overdue sweep.
package schedule

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lojix/lojix/internal/billing"
)

const (
	// 03:00 UTC on the 25th of every month.
	generationSpec = "0 3 25 * *"
	// 04:00 UTC daily.
	escalationSpec = "0 4 * * *"
)

// Scheduler owns the cron runner for the billing jobs.
type Scheduler struct {
	billing *billing.Service
	logger  *slog.Logger
	cron    *cron.Cron
	now     func() time.Time
}

type Option func(*Scheduler)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(billingSvc *billing.Service, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		billing: billingSvc,
		logger:  logger,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the jobs and begins the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(generationSpec, func() {
		s.safeRun("charge_generation", s.RunGeneration)
	}); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(escalationSpec, func() {
		s.safeRun("overdue_escalation", s.RunEscalation)
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("billing scheduler started",
		"generation", generationSpec,
		"escalation", escalationSpec,
	)
	return nil
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("billing scheduler stopped")
}

// RunGeneration executes the monthly generation pass. The day guard
// keeps a drifted or manually replayed trigger from cutting charges
// on the wrong day; the admin API bypasses this by calling the
// billing service directly.
func (s *Scheduler) RunGeneration(ctx context.Context) {
	if !billing.IsGenerationDay(s.now()) {
		s.logger.Warn("charge generation triggered outside generation day, skipping")
		return
	}
	result, err := s.billing.GenerateMonthlyCharges(ctx)
	if err != nil {
		s.logger.Error("charge generation failed", "error", err)
		return
	}
	s.logger.Info("charge generation finished",
		"created", result.Created,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
}

// RunEscalation executes the daily overdue sweep.
func (s *Scheduler) RunEscalation(ctx context.Context) {
	result, err := s.billing.UpdateOverdueStatuses(ctx)
	if err != nil {
		s.logger.Error("overdue escalation failed", "error", err)
		return
	}
	s.logger.Info("overdue escalation finished",
		"examined", result.Examined,
		"escalated", result.Escalated,
		"suspended", result.Suspended,
		"errors", len(result.Errors),
	)
}

// safeRun keeps a panicking job from taking down the scheduler.
func (s *Scheduler) safeRun(name string, job func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked", "job", name, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	job(ctx)
}

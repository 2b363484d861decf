// Package scheduler runs the daemon's periodic sweeps: picking up pending
// tickets that no webhook delivery ever triggered, and clearing expired
// resolver cells.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// SweepFunc claims and runs one stranded pending ticket. It returns the
// ticket ID, or "" when nothing was pending.
type SweepFunc func(ctx context.Context) (string, error)

// PurgeFunc drops expired resolver cells and returns how many were removed.
type PurgeFunc func() int

// Scheduler owns the cron entries for both sweeps.
type Scheduler struct {
	cron   *cron.Cron
	sweep  SweepFunc
	purge  PurgeFunc
	logger *slog.Logger

	ctx context.Context
}

// New creates a scheduler. Either function may be nil to disable that sweep.
func New(sweep SweepFunc, purge PurgeFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		sweep:  sweep,
		purge:  purge,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Register installs the sweeps with the given cron schedules. Standard 5-field
// expressions and shorthands like "@every 5m" are accepted.
func (s *Scheduler) Register(sweepSchedule, purgeSchedule string) error {
	if s.sweep != nil && sweepSchedule != "" {
		_, err := s.cron.AddFunc(sweepSchedule, s.runSweep)
		if err != nil {
			return fmt.Errorf("scheduler: invalid sweep schedule %q: %w", sweepSchedule, err)
		}
	}
	if s.purge != nil && purgeSchedule != "" {
		_, err := s.cron.AddFunc(purgeSchedule, s.runPurge)
		if err != nil {
			return fmt.Errorf("scheduler: invalid purge schedule %q: %w", purgeSchedule, err)
		}
	}
	return nil
}

// Start begins the cron loop. Blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started")

	<-ctx.Done()
	s.cron.Stop()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// RunSweepNow fires the stranded-ticket sweep immediately, outside the cron
// schedule.
func (s *Scheduler) RunSweepNow(ctx context.Context) (string, error) {
	if s.sweep == nil {
		return "", nil
	}
	return s.sweep(ctx)
}

func (s *Scheduler) runSweep() {
	ticketID, err := s.sweep(s.ctx)
	if err != nil {
		s.logger.Warn("sweep failed", "error", err)
		return
	}
	if ticketID != "" {
		s.logger.Info("sweep picked up stranded ticket", "ticket_id", ticketID)
	}
}

func (s *Scheduler) runPurge() {
	if n := s.purge(); n > 0 {
		s.logger.Info("purged expired response cells", "count", n)
	}
}

/**
 * @description
 * Cron scheduler for the periodic ledger reconciliation.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	service  *Service
	logger   *slog.Logger
	schedule string
	timeout  time.Duration
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(service *Service, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:     c,
		service:  service,
		logger:   logger.With("component", "scheduler"),
		schedule: schedule,
		timeout:  5 * time.Minute,
	}
}

// Start registers the reconciliation job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RunReconciliation); err != nil {
		s.logger.Error("failed to schedule reconciliation job", "schedule", s.schedule, "error", err)
		return err
	}
	s.logger.Info("scheduled reconciliation job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// RunReconciliation is the cron entry point.
func (s *Scheduler) RunReconciliation() {
	s.logger.Info("starting reconciliation job")
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.service.ReconcileBalances(ctx)
	if err != nil {
		s.logger.Error("reconciliation job failed", "error", err)
		return
	}
	s.logger.Info("reconciliation job finished", "users_checked", result.UsersChecked, "drifts", len(result.Drifts))
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

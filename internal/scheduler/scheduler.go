package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"toolshed-backend/internal/jobs"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/service"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler creates a new scheduler with the provided job runner. It
// fails when any configured schedule does not parse.
func NewScheduler(jobRunner *jobs.JobRunner) (*Scheduler, error) {
	// Create cron with UTC timezone and seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}

	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() error {
	cfg := s.jobs.Config().Scheduler

	entries := []struct {
		name string
		spec string
		run  func()
	}{
		{service.JobExpireStaleBookings, cfg.ExpireStaleBookings, s.jobs.ExpireStaleBookings},
		{service.JobAutoCloseMissingEvidence, cfg.AutoCloseMissingEvidence, s.jobs.AutoCloseMissingEvidence},
		{service.JobSendRebuttalReminders, cfg.SendRebuttalReminders, s.jobs.SendRebuttalReminders},
		{service.JobAdvanceExpiredRebuttals, cfg.AdvanceExpiredRebuttals, s.jobs.AdvanceExpiredRebuttals},
		{service.JobReleaseDepositHolds, cfg.ReleaseDepositHolds, s.jobs.ReleaseDepositHolds},
	}

	for _, e := range entries {
		if _, err := s.cron.AddFunc(e.spec, e.run); err != nil {
			logger.Error("Failed to register job", "job", e.name, "spec", e.spec, "error", err)
			return fmt.Errorf("register %s: %w", e.name, err)
		}
	}

	logger.Info("All cron jobs registered successfully", "count", len(entries))
	return nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler, waiting for running jobs
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// IsRunning returns true if the scheduler has jobs registered
func (s *Scheduler) IsRunning() bool {
	return len(s.cron.Entries()) > 0
}

// NextRuns reports the next activation time per registered entry.
func (s *Scheduler) NextRuns() []time.Time {
	entries := s.cron.Entries()
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Next)
	}
	return out
}

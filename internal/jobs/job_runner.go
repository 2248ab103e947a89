package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"toolshed-backend/internal/config"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/service"
)

// jobTimeout bounds a single sweep run.
const jobTimeout = 10 * time.Minute

// BookingSweeper is the part of the booking service the jobs drive.
type BookingSweeper interface {
	ExpireStaleBookings(ctx context.Context, now time.Time) (int, error)
	ReleaseDepositHolds(ctx context.Context, now time.Time) (int, error)
}

// DisputeSweeper is the part of the dispute service the jobs drive.
type DisputeSweeper interface {
	AutoCloseMissingEvidence(ctx context.Context, now time.Time) (int, error)
	SendRebuttalReminders(ctx context.Context, now time.Time) (int, error)
	AdvanceExpiredRebuttals(ctx context.Context, now time.Time) (int, error)
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Bookings BookingSweeper
	Disputes DisputeSweeper
}

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	services *Services
	config   *config.Config
	now      func() time.Time
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(services *Services, cfg *config.Config) *JobRunner {
	return &JobRunner{
		services: services,
		config:   cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery. It returns how
// many rows the sweep processed.
func (jr *JobRunner) runWithRecovery(jobName string, sweep func(ctx context.Context, now time.Time) (int, error)) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
			err = fmt.Errorf("job %s panicked: %v", jobName, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	logger.Info("Starting job", "job", jobName)
	count, err = sweep(ctx, jr.now())
	if err != nil {
		logger.Error("Job failed", "job", jobName, "processed", count, "error", err)
		return count, err
	}
	logger.Info("Job completed", "job", jobName, "processed", count, "duration", time.Since(start))
	return count, nil
}

// ExpireStaleBookings cancels unanswered requests and unpaid confirmations.
func (jr *JobRunner) ExpireStaleBookings() {
	_, _ = jr.runWithRecovery(service.JobExpireStaleBookings, jr.services.Bookings.ExpireStaleBookings)
}

// ReleaseDepositHolds voids holds whose dispute window closed.
func (jr *JobRunner) ReleaseDepositHolds() {
	_, _ = jr.runWithRecovery(service.JobReleaseDepositHolds, jr.services.Bookings.ReleaseDepositHolds)
}

func (jr *JobRunner) AutoCloseMissingEvidence() {
	_, _ = jr.runWithRecovery(service.JobAutoCloseMissingEvidence, jr.services.Disputes.AutoCloseMissingEvidence)
}

func (jr *JobRunner) SendRebuttalReminders() {
	_, _ = jr.runWithRecovery(service.JobSendRebuttalReminders, jr.services.Disputes.SendRebuttalReminders)
}

func (jr *JobRunner) AdvanceExpiredRebuttals() {
	_, _ = jr.runWithRecovery(service.JobAdvanceExpiredRebuttals, jr.services.Disputes.AdvanceExpiredRebuttals)
}

func (jr *JobRunner) sweeps() map[string]func(ctx context.Context, now time.Time) (int, error) {
	return map[string]func(ctx context.Context, now time.Time) (int, error){
		service.JobExpireStaleBookings:      jr.services.Bookings.ExpireStaleBookings,
		service.JobReleaseDepositHolds:      jr.services.Bookings.ReleaseDepositHolds,
		service.JobAutoCloseMissingEvidence: jr.services.Disputes.AutoCloseMissingEvidence,
		service.JobSendRebuttalReminders:    jr.services.Disputes.SendRebuttalReminders,
		service.JobAdvanceExpiredRebuttals:  jr.services.Disputes.AdvanceExpiredRebuttals,
	}
}

// JobNames lists the jobs Run accepts, sorted.
func (jr *JobRunner) JobNames() []string {
	names := make([]string, 0, 5)
	for name := range jr.sweeps() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one job by name (for manual execution).
func (jr *JobRunner) Run(name string) (int, error) {
	sweep, ok := jr.sweeps()[name]
	if !ok {
		return 0, fmt.Errorf("unknown job %q", name)
	}
	return jr.runWithRecovery(name, sweep)
}

// RunAll runs every job once in dependency order: disputes settle before
// deposits are released.
func (jr *JobRunner) RunAll() error {
	order := []string{
		service.JobExpireStaleBookings,
		service.JobAutoCloseMissingEvidence,
		service.JobAdvanceExpiredRebuttals,
		service.JobSendRebuttalReminders,
		service.JobReleaseDepositHolds,
	}
	var failed []string
	for _, name := range order {
		if _, err := jr.Run(name); err != nil {
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("jobs failed: %v", failed)
	}
	return nil
}

package service

import (
	"context"
	"fmt"
	"time"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/metrics"
	"toolshed-backend/internal/notifier"
	"toolshed-backend/internal/repository"
	"toolshed-backend/internal/settings"
)

const (
	JobAutoCloseMissingEvidence = "auto_close_missing_evidence"
	JobSendRebuttalReminders    = "send_rebuttal_reminders"
	JobAdvanceExpiredRebuttals  = "advance_expired_rebuttals"
)

// AutoCloseMissingEvidence closes disputes whose intake deadline passed
// without the required evidence. A second run over the same rows closes
// nothing.
func (s *disputeService) AutoCloseMissingEvidence(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	ids, err := s.Store.Repos().Disputes.ListIntakeOverdueIDs(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list intake overdue disputes: %w", err)
	}

	return sweep(ctx, JobAutoCloseMissingEvidence, ids, func(ctx context.Context, id int64) (bool, error) {
		var (
			out       outbox
			bookingID int64
		)
		closed := false
		err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
			d, b, err := lockDispute(ctx, repos, id)
			if err != nil {
				return err
			}
			if d.Status != domain.DisputeStatusIntakeMissingEvidence ||
				d.IntakeEvidenceDueAt == nil || !d.IntakeEvidenceDueAt.Before(now) {
				return nil
			}
			if err := d.Transition(domain.DisputeStatusClosedAuto); err != nil {
				return err
			}
			d.ResolvedAt = &now
			d.DecisionNotes = notesEvidenceMissing
			siblings, err := unlockIfLastActive(ctx, repos, d, b)
			if err != nil {
				return err
			}
			if err := repos.Disputes.Update(ctx, d); err != nil {
				return fmt.Errorf("update dispute: %w", err)
			}
			if err := recordDisputeEvent(ctx, repos, b.ID, domain.BookingEventDisputeAutoClosedMissingEvidence, 0, map[string]any{
				"dispute_id":       d.ID,
				"deposit_unlocked": siblings == 0,
			}); err != nil {
				return err
			}
			out.add(notifier.EventDisputeClosed, b.ID, d.ID, d.OpenedBy)
			bookingID, closed = b.ID, true
			return nil
		})
		if err != nil || !closed {
			return false, err
		}
		metrics.RecordDisputeClosed(string(domain.DisputeStatusClosedAuto))
		logger.WithDispute(id, bookingID).Info("Dispute auto-closed without evidence", "job", JobAutoCloseMissingEvidence)
		out.flush(ctx, s.Notifier)
		return true, nil
	})
}

// SendRebuttalReminders reminds the counterparty once when the rebuttal
// deadline is near.
func (s *disputeService) SendRebuttalReminders(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	horizon := now.Add(s.hours(ctx, settings.KeyDisputeRebuttalReminderHours, defaultDisputeRebuttalReminderHours))
	ids, err := s.Store.Repos().Disputes.ListRebuttalReminderIDs(ctx, now, horizon)
	if err != nil {
		return 0, fmt.Errorf("list rebuttal reminders: %w", err)
	}

	return sweep(ctx, JobSendRebuttalReminders, ids, func(ctx context.Context, id int64) (bool, error) {
		var out outbox
		err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
			d, err := repos.Disputes.GetByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if d.Status != domain.DisputeStatusAwaitingRebuttal || d.Rebuttal12hReminderSentAt != nil ||
				d.RebuttalDueAt == nil || !d.RebuttalDueAt.After(now) || d.RebuttalDueAt.After(horizon) {
				return nil
			}
			b, err := repos.Bookings.GetByID(ctx, d.BookingID)
			if err != nil {
				return err
			}
			d.Rebuttal12hReminderSentAt = &now
			if err := repos.Disputes.Update(ctx, d); err != nil {
				return fmt.Errorf("update dispute: %w", err)
			}
			out.add(notifier.EventDisputeRebuttalReminder, b.ID, d.ID, d.Counterparty(b))
			return nil
		})
		if err != nil || len(out) == 0 {
			return false, err
		}
		out.flush(ctx, s.Notifier)
		return true, nil
	})
}

// AdvanceExpiredRebuttals moves disputes whose rebuttal deadline passed
// without an answer to review.
func (s *disputeService) AdvanceExpiredRebuttals(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	ids, err := s.Store.Repos().Disputes.ListRebuttalOverdueIDs(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list rebuttal overdue disputes: %w", err)
	}

	return sweep(ctx, JobAdvanceExpiredRebuttals, ids, func(ctx context.Context, id int64) (bool, error) {
		var (
			out       outbox
			bookingID int64
		)
		err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
			d, b, err := lockDispute(ctx, repos, id)
			if err != nil {
				return err
			}
			if d.Status != domain.DisputeStatusAwaitingRebuttal || d.RebuttalDueAt == nil || d.RebuttalDueAt.After(now) {
				return nil
			}
			if err := d.Transition(domain.DisputeStatusUnderReview); err != nil {
				return err
			}
			if err := repos.Disputes.Update(ctx, d); err != nil {
				return fmt.Errorf("update dispute: %w", err)
			}
			if err := recordDisputeEvent(ctx, repos, b.ID, domain.BookingEventDisputeStatusChange, 0, map[string]any{
				"dispute_id": d.ID,
				"from":       string(domain.DisputeStatusAwaitingRebuttal),
				"to":         string(d.Status),
				"reason":     "rebuttal window elapsed",
			}); err != nil {
				return err
			}
			out.add(notifier.EventDisputeUnderReview, b.ID, d.ID, b.OwnerID)
			out.add(notifier.EventDisputeUnderReview, b.ID, d.ID, b.RenterID)
			bookingID = b.ID
			return nil
		})
		if err != nil || len(out) == 0 {
			return false, err
		}
		logger.WithDispute(id, bookingID).Info("Rebuttal window elapsed, dispute under review", "job", JobAdvanceExpiredRebuttals)
		out.flush(ctx, s.Notifier)
		return true, nil
	})
}

package service

import (
	"context"
	"fmt"
	"time"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/metrics"
	"toolshed-backend/internal/money"
	"toolshed-backend/internal/notifier"
	"toolshed-backend/internal/repository"
	"toolshed-backend/internal/settings"
)

const (
	JobExpireStaleBookings = "expire_stale_bookings"
	JobReleaseDepositHolds = "release_deposit_holds"
)

// sweep runs fn for every id in its own transaction. A failing row is logged
// and skipped; fn reports false when the row no longer qualifies.
func sweep(ctx context.Context, job string, ids []int64, fn func(ctx context.Context, id int64) (bool, error)) (int, error) {
	log := logger.WithJob(job)
	processed, failed := 0, 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			metrics.RecordSweep(job, processed, failed)
			return processed, err
		}
		done, err := fn(ctx, id)
		if err != nil {
			failed++
			log.Error("Sweep row failed", "id", id, "error", err)
			continue
		}
		if done {
			processed++
		}
	}
	metrics.RecordSweep(job, processed, failed)
	log.Info("Sweep finished", "candidates", len(ids), "processed", processed, "failed", failed)
	return processed, nil
}

// ExpireStaleBookings cancels requests the owner never answered and confirmed
// bookings the renter never paid. Paid bookings are never touched.
func (s *bookingService) ExpireStaleBookings(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	requestedBefore := now.Add(-s.hours(ctx, settings.KeyBookingRequestExpiryHours, defaultBookingRequestExpiryHours))
	confirmedBefore := now.Add(-s.hours(ctx, settings.KeyBookingPaymentExpiryHours, defaultBookingPaymentExpiryHours))

	ids, err := s.Store.Repos().Bookings.ListStaleIDs(ctx, requestedBefore, confirmedBefore)
	if err != nil {
		return 0, fmt.Errorf("list stale bookings: %w", err)
	}

	return sweep(ctx, JobExpireStaleBookings, ids, func(ctx context.Context, id int64) (bool, error) {
		var (
			booking *domain.Booking
			expired bool
		)
		err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
			b, err := repos.Bookings.GetByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !isStale(b, requestedBefore, confirmedBefore) {
				return nil
			}
			if _, err := s.cancel(ctx, repos, b, domain.CancelActorSystem, true, "expired", 0); err != nil {
				return err
			}
			booking, expired = b, true
			return nil
		})
		if err != nil || !expired {
			return false, err
		}
		metrics.RecordCancellation(string(domain.CancelActorSystem), true)

		out := outbox{}
		out.add(notifier.EventBookingExpired, booking.ID, 0, booking.RenterID)
		out.add(notifier.EventBookingExpired, booking.ID, 0, booking.OwnerID)
		out.flush(ctx, s.Notifier)
		return true, nil
	})
}

func isStale(b *domain.Booking, requestedBefore, confirmedBefore time.Time) bool {
	switch b.Status {
	case domain.BookingStatusRequested:
		return b.CreatedAt.Before(requestedBefore)
	case domain.BookingStatusConfirmed:
		return b.IsPrePayment() && b.ConfirmedAt != nil && b.ConfirmedAt.Before(confirmedBefore)
	}
	return false
}

// ReleaseDepositHolds voids the deposit hold of completed bookings whose
// dispute window has elapsed without an active dispute.
func (s *bookingService) ReleaseDepositHolds(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	ids, err := s.Store.Repos().Bookings.ListDepositReleaseIDs(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list deposit releases: %w", err)
	}

	return sweep(ctx, JobReleaseDepositHolds, ids, func(ctx context.Context, id int64) (bool, error) {
		var (
			booking  *domain.Booking
			released bool
		)
		err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
			b, err := repos.Bookings.GetByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !depositReleasable(b, now) {
				return nil
			}
			if err := s.releaseDeposit(ctx, repos, b, b.Totals.DamageDeposit, now); err != nil {
				return err
			}
			if err := repos.Bookings.Update(ctx, b); err != nil {
				return fmt.Errorf("update booking: %w", err)
			}
			if err := repos.Events.RecordEvent(ctx, &domain.BookingEvent{
				BookingID: b.ID,
				Type:      domain.BookingEventDepositReleased,
				Payload:   map[string]any{"hold_id": b.DepositHoldID, "amount": money.Format(b.Totals.DamageDeposit)},
			}); err != nil {
				return fmt.Errorf("record event: %w", err)
			}
			booking, released = b, true
			return nil
		})
		if err != nil {
			s.recordReleaseAttempt(ctx, id)
			return false, err
		}
		if !released {
			return false, nil
		}
		out := outbox{}
		out.add(notifier.EventDepositReleased, booking.ID, 0, booking.RenterID)
		out.flush(ctx, s.Notifier)
		return true, nil
	})
}

func depositReleasable(b *domain.Booking, now time.Time) bool {
	return b.Status == domain.BookingStatusCompleted &&
		b.HasDepositHold() &&
		b.DepositReleasedAt == nil &&
		!b.DepositLocked &&
		b.DisputeWindowExpiresAt != nil &&
		!now.Before(*b.DisputeWindowExpiresAt)
}

// recordReleaseAttempt counts a failed release so operators can spot holds
// the provider keeps rejecting.
func (s *bookingService) recordReleaseAttempt(ctx context.Context, id int64) {
	err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
		b, err := repos.Bookings.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		b.DepositAttemptCount++
		return repos.Bookings.Update(ctx, b)
	})
	if err != nil {
		logger.WithBooking(id).Warn("Failed to record deposit release attempt", "error", err)
	}
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/metrics"
	"toolshed-backend/internal/money"
	"toolshed-backend/internal/notifier"
	"toolshed-backend/internal/repository"
	"toolshed-backend/internal/settings"
	"toolshed-backend/internal/utils"
)

type RequestBookingInput struct {
	ListingID int64  `json:"listing_id" validate:"required"`
	RenterID  int64  `json:"renter_id" validate:"required"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// RecordPaymentInput is the payment webhook payload after verification.
type RecordPaymentInput struct {
	BookingID             int64  `json:"booking_id" validate:"required"`
	ChargePaymentIntentID string `json:"charge_payment_intent_id" validate:"required"`
	DepositHoldID         string `json:"deposit_hold_id"`
}

type CancelBookingInput struct {
	BookingID int64              `json:"booking_id" validate:"required"`
	ActorID   int64              `json:"actor_id"`
	Actor     domain.CancelActor `json:"actor" validate:"required"`
	Reason    string             `json:"reason" validate:"max=500"`
}

// blockingStatuses are the statuses that hold a listing's dates.
var blockingStatuses = []domain.BookingStatus{domain.BookingStatusConfirmed, domain.BookingStatusPaid}

type bookingService struct {
	*Dependencies
}

func NewBookingService(deps *Dependencies) BookingService {
	return &bookingService{Dependencies: deps}
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	return s.Store.Repos().Bookings.GetByID(ctx, bookingID)
}

func (s *bookingService) RequestBooking(ctx context.Context, in RequestBookingInput) (*domain.Booking, error) {
	logger.EnterMethod("bookingService.RequestBooking", "listingID", in.ListingID, "renterID", in.RenterID)

	if err := validateInput(in); err != nil {
		return nil, err
	}
	start, err := domain.ParseCivilDate(in.StartDate)
	if err != nil {
		return nil, domain.NewValidationError(domain.CodeInvalidInput, "start_date", err.Error())
	}
	end, err := domain.ParseCivilDate(in.EndDate)
	if err != nil {
		return nil, domain.NewValidationError(domain.CodeInvalidInput, "end_date", err.Error())
	}

	listing, err := s.Store.Repos().Listings.GetByID(ctx, in.ListingID)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	if !listing.IsActive || listing.IsSuspended {
		return nil, domain.NewValidationError(domain.CodeInvalidInput, "listing_id", "listing is not available for booking")
	}
	if listing.OwnerID == in.RenterID {
		return nil, domain.ErrForbidden
	}

	totals, err := utils.ComputeBookingTotals(utils.PricingInput{
		DailyPrice:    listing.DailyPrice,
		DamageDeposit: listing.DamageDeposit,
		StartDate:     start,
		EndDate:       end,
		RenterFeeRate: s.Settings.GetDecimal(ctx, settings.KeyRenterFeeRate, defaultRenterFeeRate),
		OwnerFeeRate:  s.Settings.GetDecimal(ctx, settings.KeyOwnerFeeRate, defaultOwnerFeeRate),
		GSTEnabled:    s.Settings.GetBool(ctx, settings.KeyGSTEnabled, false),
		GSTRate:       s.Settings.GetDecimal(ctx, settings.KeyGSTRate, defaultGSTRate),
	})
	if err != nil {
		return nil, err
	}

	booking := &domain.Booking{
		ListingID: listing.ID,
		OwnerID:   listing.OwnerID,
		RenterID:  in.RenterID,
		StartDate: start,
		EndDate:   end,
		Status:    domain.BookingStatusRequested,
		Totals:    totals,
	}

	err = s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
		if _, err := repos.Listings.GetByIDForUpdate(ctx, listing.ID); err != nil {
			return fmt.Errorf("lock listing: %w", err)
		}
		if err := ensureNoConflict(ctx, repos, listing.ID, start, end, 0); err != nil {
			return err
		}
		if err := repos.Bookings.Create(ctx, booking); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		return recordStatusChange(ctx, repos, booking, "", in.RenterID, nil)
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.RequestBooking", err, "listingID", in.ListingID)
		return nil, err
	}

	out := outbox{}
	out.add(notifier.EventBookingRequested, booking.ID, 0, booking.OwnerID)
	out.flush(ctx, s.Notifier)
	logger.ExitMethod("bookingService.RequestBooking", "bookingID", booking.ID, "total", money.Format(totals.TotalCharge))
	return booking, nil
}

func (s *bookingService) EnsureNoConflict(ctx context.Context, listingID int64, start, end time.Time, excludeID int64) error {
	return ensureNoConflict(ctx, s.Store.Repos(), listingID, start, end, excludeID)
}

func ensureNoConflict(ctx context.Context, repos *repository.Repositories, listingID int64, start, end time.Time, excludeID int64) error {
	if !domain.CivilDate(end).After(domain.CivilDate(start)) {
		return domain.ErrInvalidDateRange
	}
	others, err := repos.Bookings.ListOverlapping(ctx, listingID, start, end, blockingStatuses, excludeID)
	if err != nil {
		return fmt.Errorf("list overlapping bookings: %w", err)
	}
	for _, o := range others {
		if o.ID != excludeID && utils.RangesOverlap(start, end, o.StartDate, o.EndDate) {
			return domain.ErrBookingConflict
		}
	}
	return nil
}

// ConfirmBooking locks the listing before the booking so that confirmations of
// different bookings on one listing run their overlap checks one at a time.
func (s *bookingService) ConfirmBooking(ctx context.Context, ownerID, bookingID int64) (*domain.Booking, error) {
	var booking *domain.Booking
	err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
		current, err := repos.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if _, err := repos.Listings.GetByIDForUpdate(ctx, current.ListingID); err != nil {
			return fmt.Errorf("lock listing: %w", err)
		}
		b, err := lockOwnedBooking(ctx, repos, bookingID, ownerID)
		if err != nil {
			return err
		}
		if err := b.AssertCanConfirm(); err != nil {
			return err
		}
		if err := ensureNoConflict(ctx, repos, b.ListingID, b.StartDate, b.EndDate, b.ID); err != nil {
			return err
		}
		now := s.now()
		b.Status = domain.BookingStatusConfirmed
		b.ConfirmedAt = &now
		if err := repos.Bookings.Update(ctx, b); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		booking = b
		return recordStatusChange(ctx, repos, b, domain.BookingStatusRequested, ownerID, nil)
	})
	if err != nil {
		return nil, err
	}
	out := outbox{}
	out.add(notifier.EventBookingConfirmed, booking.ID, 0, booking.RenterID)
	out.flush(ctx, s.Notifier)
	return booking, nil
}

// DenyBooking is an owner cancellation of a request that was never confirmed.
func (s *bookingService) DenyBooking(ctx context.Context, ownerID, bookingID int64, reason string) (*domain.Booking, error) {
	b, err := s.Store.Repos().Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	if b.Status != domain.BookingStatusRequested {
		return nil, domain.ErrInvalidBookingState
	}
	if reason == "" {
		reason = "denied"
	}
	booking, _, err := s.CancelBooking(ctx, CancelBookingInput{
		BookingID: bookingID,
		ActorID:   ownerID,
		Actor:     domain.CancelActorOwner,
		Reason:    reason,
	})
	return booking, err
}

// RecordPayment moves a confirmed booking to PAID. A repeated webhook for the
// same charge returns the booking unchanged.
func (s *bookingService) RecordPayment(ctx context.Context, in RecordPaymentInput) (*domain.Booking, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var booking *domain.Booking
	err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
		b, err := repos.Bookings.GetByIDForUpdate(ctx, in.BookingID)
		if err != nil {
			return err
		}
		booking = b
		if b.Status == domain.BookingStatusPaid && b.ChargePaymentIntentID == in.ChargePaymentIntentID {
			return nil
		}
		if b.Status != domain.BookingStatusConfirmed {
			return domain.ErrInvalidBookingState
		}

		now := s.now()
		b.Status = domain.BookingStatusPaid
		b.ChargePaymentIntentID = in.ChargePaymentIntentID
		b.DepositHoldID = in.DepositHoldID
		b.PaidAt = &now
		if err := repos.Bookings.Update(ctx, b); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}

		bookingRef := &b.ID
		postings := []LogTransactionInput{
			{UserID: b.RenterID, BookingID: bookingRef, Kind: domain.TransactionKindBookingCharge,
				Amount: b.Totals.RentalSubtotal.Add(b.Totals.RenterFee), StripeID: b.ChargePaymentIntentID},
		}
		if b.HasDepositHold() {
			postings = append(postings, LogTransactionInput{UserID: b.RenterID, BookingID: bookingRef,
				Kind: domain.TransactionKindDamageDepositHold, Amount: b.Totals.DamageDeposit, StripeID: b.DepositHoldID})
		}
		for _, p := range postings {
			if err := s.post(ctx, repos, p); err != nil {
				return err
			}
		}

		if err := repos.Events.RecordEvent(ctx, &domain.BookingEvent{
			BookingID: b.ID,
			Type:      domain.BookingEventPaymentRecorded,
			Payload: map[string]any{
				"charge_payment_intent_id": b.ChargePaymentIntentID,
				"deposit_hold_id":          b.DepositHoldID,
				"amount":                   money.Format(b.Totals.TotalCharge),
			},
		}); err != nil {
			return fmt.Errorf("record event: %w", err)
		}
		return recordStatusChange(ctx, repos, b, domain.BookingStatusConfirmed, 0, nil)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *bookingService) RecordBeforePhotos(ctx context.Context, userID, bookingID int64) (*domain.Booking, error) {
	return s.mutate(ctx, bookingID, func(repos *repository.Repositories, b *domain.Booking) error {
		if userID != b.OwnerID && userID != b.RenterID {
			return domain.ErrForbidden
		}
		if b.Status != domain.BookingStatusPaid && b.Status != domain.BookingStatusConfirmed {
			return domain.ErrInvalidBookingState
		}
		if b.BeforePhotosUploadedAt == nil {
			now := s.now()
			b.BeforePhotosUploadedAt = &now
		}
		return nil
	})
}

func (s *bookingService) ConfirmPickup(ctx context.Context, userID, bookingID int64) (*domain.Booking, error) {
	return s.mutate(ctx, bookingID, func(repos *repository.Repositories, b *domain.Booking) error {
		if userID != b.OwnerID && userID != b.RenterID {
			return domain.ErrForbidden
		}
		if err := b.AssertCanConfirmPickup(); err != nil {
			return err
		}
		if b.PickupConfirmedAt == nil {
			now := s.now()
			b.PickupConfirmedAt = &now
		}
		return nil
	})
}

// ConfirmReturn starts the dispute window.
func (s *bookingService) ConfirmReturn(ctx context.Context, ownerID, bookingID int64) (*domain.Booking, error) {
	return s.mutate(ctx, bookingID, func(repos *repository.Repositories, b *domain.Booking) error {
		if ownerID != b.OwnerID {
			return domain.ErrForbidden
		}
		if b.Status != domain.BookingStatusPaid || b.PickupConfirmedAt == nil {
			return domain.ErrInvalidBookingState
		}
		if b.ReturnConfirmedAt != nil {
			return nil
		}
		now := s.now()
		expires := now.Add(s.hours(ctx, settings.KeyDisputeWindowHours, defaultDisputeWindowHours))
		b.ReturnConfirmedAt = &now
		b.DisputeWindowExpiresAt = &expires
		return nil
	})
}

// CompleteBooking closes a returned booking and books the owner's earning and
// the platform's fees.
func (s *bookingService) CompleteBooking(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	var booking *domain.Booking
	err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
		b, err := repos.Bookings.GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := b.AssertCanComplete(); err != nil {
			return err
		}
		from := b.Status
		b.Status = domain.BookingStatusCompleted
		if err := repos.Bookings.Update(ctx, b); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}

		t := b.Totals
		if !b.IsPrePayment() {
			for _, p := range []LogTransactionInput{
				{UserID: b.OwnerID, BookingID: &b.ID, Kind: domain.TransactionKindOwnerEarning, Amount: t.OwnerPayout},
				{UserID: s.PlatformUserID, BookingID: &b.ID, Kind: domain.TransactionKindPlatformFee, Amount: t.PlatformFeeTotal.Sub(t.GSTTotal)},
				{UserID: s.PlatformUserID, BookingID: &b.ID, Kind: domain.TransactionKindGSTCollected, Amount: t.GSTTotal},
			} {
				if err := s.post(ctx, repos, p); err != nil {
					return err
				}
			}
		}
		booking = b
		return recordStatusChange(ctx, repos, b, from, 0, nil)
	})
	if err != nil {
		return nil, err
	}
	out := outbox{}
	out.add(notifier.EventBookingCompleted, booking.ID, 0, booking.OwnerID)
	out.add(notifier.EventBookingCompleted, booking.ID, 0, booking.RenterID)
	out.flush(ctx, s.Notifier)
	return booking, nil
}

// CancelBooking settles and cancels a booking. Refund and deposit release are
// sent to the provider before commit, so a provider failure leaves the
// booking untouched.
func (s *bookingService) CancelBooking(ctx context.Context, in CancelBookingInput) (*domain.Booking, *domain.CancellationSettlement, error) {
	logger.EnterMethod("bookingService.CancelBooking", "bookingID", in.BookingID, "actor", in.Actor)

	if err := validateInput(in); err != nil {
		return nil, nil, err
	}

	var (
		booking    *domain.Booking
		settlement domain.CancellationSettlement
	)
	err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
		b, err := repos.Bookings.GetByIDForUpdate(ctx, in.BookingID)
		if err != nil {
			return err
		}
		if err := authorizeCancel(b, in); err != nil {
			return err
		}
		if err := b.AssertCanCancel(in.Actor); err != nil {
			return err
		}
		if err := ensureNotDisputed(ctx, repos, b); err != nil {
			return err
		}
		settlement, err = s.cancel(ctx, repos, b, in.Actor, false, in.Reason, in.ActorID)
		booking = b
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("bookingService.CancelBooking", err, "bookingID", in.BookingID)
		return nil, nil, err
	}

	metrics.RecordCancellation(string(in.Actor), false)

	var out outbox
	out.add(notifier.EventBookingCanceled, booking.ID, 0, booking.OwnerID)
	out.add(notifier.EventBookingCanceled, booking.ID, 0, booking.RenterID)
	out.flush(ctx, s.Notifier)

	logger.ExitMethod("bookingService.CancelBooking", "bookingID", booking.ID, "refund", money.Format(settlement.RefundToRenter))
	return booking, &settlement, nil
}

func authorizeCancel(b *domain.Booking, in CancelBookingInput) error {
	switch in.Actor {
	case domain.CancelActorRenter:
		if in.ActorID != b.RenterID {
			return domain.ErrForbidden
		}
	case domain.CancelActorOwner, domain.CancelActorNoShow:
		// A no-show is reported by the owner who waited at pickup.
		if in.ActorID != b.OwnerID {
			return domain.ErrForbidden
		}
	}
	return nil
}

// ensureNotDisputed rejects a cancellation while a dispute holds the deposit.
// Only a dispute closure may release that lock.
func ensureNotDisputed(ctx context.Context, repos *repository.Repositories, b *domain.Booking) error {
	if b.DepositLocked {
		return domain.NewValidationError(domain.CodeInvalidBookingState, "deposit_locked", "booking has an active dispute")
	}
	active, err := repos.Disputes.CountActiveByBooking(ctx, b.ID, 0)
	if err != nil {
		return fmt.Errorf("count active disputes: %w", err)
	}
	if active > 0 {
		return domain.NewValidationError(domain.CodeInvalidBookingState, "booking_id", "booking has an active dispute")
	}
	return nil
}

// cancel applies the settlement to a locked booking and marks it canceled.
// Money moves only when the renter has been charged.
func (s *bookingService) cancel(ctx context.Context, repos *repository.Repositories, b *domain.Booking, actor domain.CancelActor, auto bool, reason string, actorID int64) (domain.CancellationSettlement, error) {
	now := s.now()
	from := b.Status
	settlement := utils.ComputeRefundAmounts(b, actor, now)

	if b.IsPrePayment() {
		settlement = domain.CancellationSettlement{}
	} else if err := s.settleCancellation(ctx, repos, b, settlement, now); err != nil {
		return settlement, err
	}

	if err := b.MarkCanceled(actor, auto, reason); err != nil {
		return settlement, err
	}
	if err := repos.Bookings.Update(ctx, b); err != nil {
		return settlement, fmt.Errorf("update booking: %w", err)
	}

	return settlement, recordStatusChange(ctx, repos, b, from, actorID, map[string]any{
		"actor":            string(actor),
		"auto":             auto,
		"reason":           reason,
		"refund_to_renter": money.Format(settlement.RefundToRenter),
		"owner_delta":      money.Format(settlement.OwnerDelta),
		"platform_delta":   money.Format(settlement.PlatformDelta),
	})
}

func (s *bookingService) settleCancellation(ctx context.Context, repos *repository.Repositories, b *domain.Booking, st domain.CancellationSettlement, now time.Time) error {
	if st.RefundToRenter.IsPositive() {
		key := utils.IdempotencyKey(b.ID, utils.OpRefundCharge, st.RefundToRenter)
		ref, err := s.Payments.RefundCharge(ctx, b.ChargePaymentIntentID, st.RefundToRenter, key)
		if err != nil {
			return err
		}
		if err := s.post(ctx, repos, LogTransactionInput{UserID: b.RenterID, BookingID: &b.ID,
			Kind: domain.TransactionKindRefund, Amount: st.RefundToRenter, StripeID: ref}); err != nil {
			return err
		}
	}

	if b.HasDepositHold() && b.DepositReleasedAt == nil {
		if err := s.releaseDeposit(ctx, repos, b, st.DepositReleaseAmount, now); err != nil {
			return err
		}
	}

	if st.OwnerDelta.IsPositive() {
		if err := s.post(ctx, repos, LogTransactionInput{UserID: b.OwnerID, BookingID: &b.ID,
			Kind: domain.TransactionKindOwnerEarning, Amount: st.OwnerDelta}); err != nil {
			return err
		}
	}
	if st.PlatformDelta.IsPositive() {
		if err := s.post(ctx, repos, LogTransactionInput{UserID: s.PlatformUserID, BookingID: &b.ID,
			Kind: domain.TransactionKindPlatformFee, Amount: st.PlatformDelta}); err != nil {
			return err
		}
	}
	return nil
}

// releaseDeposit voids the hold and records the release. The caller holds the
// booking lock and persists the booking.
func (d *Dependencies) releaseDeposit(ctx context.Context, repos *repository.Repositories, b *domain.Booking, amount decimal.Decimal, now time.Time) error {
	key := utils.IdempotencyKey(b.ID, utils.OpReleaseDeposit, amount)
	released, err := d.Payments.ReleaseDepositHold(ctx, b, key)
	if err != nil {
		return err
	}
	if !released {
		logger.WithBooking(b.ID).Warn("Deposit hold was already settled at the provider", "holdID", b.DepositHoldID)
	}
	b.DepositReleasedAt = &now
	b.DepositLocked = false
	return d.post(ctx, repos, LogTransactionInput{UserID: b.RenterID, BookingID: &b.ID,
		Kind: domain.TransactionKindDamageDepositRelease, Amount: amount, StripeID: b.DepositHoldID})
}

func (s *bookingService) mutate(ctx context.Context, bookingID int64, fn func(repos *repository.Repositories, b *domain.Booking) error) (*domain.Booking, error) {
	var booking *domain.Booking
	err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
		b, err := repos.Bookings.GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := fn(repos, b); err != nil {
			return err
		}
		if err := repos.Bookings.Update(ctx, b); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func lockOwnedBooking(ctx context.Context, repos *repository.Repositories, bookingID, ownerID int64) (*domain.Booking, error) {
	b, err := repos.Bookings.GetByIDForUpdate(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	return b, nil
}

func recordStatusChange(ctx context.Context, repos *repository.Repositories, b *domain.Booking, from domain.BookingStatus, actorID int64, extra map[string]any) error {
	payload := map[string]any{"from": string(from), "to": string(b.Status)}
	for k, v := range extra {
		payload[k] = v
	}
	if from != "" {
		metrics.RecordBookingTransition(string(from), string(b.Status))
	}
	if err := repos.Events.RecordEvent(ctx, &domain.BookingEvent{
		BookingID: b.ID,
		Type:      domain.BookingEventStatusChange,
		ActorID:   actorRef(actorID),
		Payload:   payload,
	}); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

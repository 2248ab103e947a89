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

const (
	notesWindowExpired   = "Auto-closed: dispute window expired"
	notesEvidenceMissing = "Auto-closed: evidence not provided"
	notesClosedLate      = "Closed: filed after the dispute window"
	notesClosedDuplicate = "Closed as duplicate of %s"
)

type FileDisputeInput struct {
	BookingID      int64                  `json:"booking_id" validate:"required"`
	UserID         int64                  `json:"user_id" validate:"required"`
	Category       domain.DisputeCategory `json:"category" validate:"required"`
	DamageFlowKind domain.DamageFlowKind  `json:"damage_flow_kind" validate:"omitempty,oneof=GENERIC BROKE_DURING_USE"`
	Description    string                 `json:"description" validate:"max=5000"`
	ClaimedAmount  decimal.Decimal        `json:"claimed_amount"`
}

// OperatorActionInput is shared by every operator action. Reason ends up in
// the audit trail and is mandatory.
type OperatorActionInput struct {
	DisputeID  int64  `json:"dispute_id" validate:"required"`
	OperatorID int64  `json:"operator_id" validate:"required"`
	Reason     string `json:"reason" validate:"required,max=2000"`
}

type ResolutionOutcome string

const (
	OutcomeRenter  ResolutionOutcome = "RENTER"
	OutcomeOwner   ResolutionOutcome = "OWNER"
	OutcomePartial ResolutionOutcome = "PARTIAL"
)

var outcomeStatus = map[ResolutionOutcome]domain.DisputeStatus{
	OutcomeRenter:  domain.DisputeStatusResolvedRenter,
	OutcomeOwner:   domain.DisputeStatusResolvedOwner,
	OutcomePartial: domain.DisputeStatusResolvedPartial,
}

// ResolveDisputeInput closes a dispute with a decision. CaptureAmount is the
// part of the deposit paid to the owner; OWNER defaults to the whole deposit.
type ResolveDisputeInput struct {
	OperatorActionInput
	Outcome       ResolutionOutcome `json:"outcome" validate:"required,oneof=RENTER OWNER PARTIAL"`
	CaptureAmount *decimal.Decimal  `json:"capture_amount"`
}

type disputeService struct {
	*Dependencies
	reference func() string
}

func NewDisputeService(deps *Dependencies) DisputeService {
	gen, err := utils.NewReferenceGenerator("DSP")
	if err != nil {
		panic(fmt.Sprintf("dispute reference generator: %v", err))
	}
	return &disputeService{Dependencies: deps, reference: gen}
}

func (s *disputeService) GetDispute(ctx context.Context, disputeID int64) (*domain.DisputeCase, error) {
	return s.Store.Repos().Disputes.GetByID(ctx, disputeID)
}

func (s *disputeService) ListBookingDisputes(ctx context.Context, bookingID int64) ([]domain.DisputeCase, error) {
	return s.Store.Repos().Disputes.ListByBooking(ctx, bookingID)
}

// FileDispute is the user-facing filing path. Outside the dispute window a
// non-safety dispute is rejected.
func (s *disputeService) FileDispute(ctx context.Context, in FileDisputeInput) (*domain.DisputeCase, error) {
	return s.open(ctx, in, true)
}

// OpenDisputeCase creates a dispute without the window check. A dispute whose
// window has already lapsed is recorded and closed on the spot.
func (s *disputeService) OpenDisputeCase(ctx context.Context, in FileDisputeInput) (*domain.DisputeCase, error) {
	return s.open(ctx, in, false)
}

func (s *disputeService) open(ctx context.Context, in FileDisputeInput, strict bool) (*domain.DisputeCase, error) {
	logger.EnterMethod("disputeService.open", "bookingID", in.BookingID, "userID", in.UserID, "category", in.Category)

	if err := validateInput(in); err != nil {
		return nil, err
	}
	if _, err := domain.ParseDisputeCategory(string(in.Category)); err != nil {
		return nil, err
	}
	if in.ClaimedAmount.IsNegative() {
		return nil, domain.NewValidationError(domain.CodeInvalidAmount, "claimed_amount", "claimed amount must not be negative")
	}

	var (
		dispute *domain.DisputeCase
		out     outbox
	)
	err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
		b, err := repos.Bookings.GetByIDForUpdate(ctx, in.BookingID)
		if err != nil {
			return err
		}

		d := &domain.DisputeCase{
			BookingID:      b.ID,
			OpenedBy:       in.UserID,
			Category:       in.Category,
			DamageFlowKind: in.DamageFlowKind,
			Status:         domain.DisputeStatusOpen,
			Description:    in.Description,
			ClaimedAmount:  money.Round2(in.ClaimedAmount),
		}
		role, ok := b.RoleOf(in.UserID)
		if !ok {
			return domain.ErrForbidden
		}
		d.OpenedByRole = role
		d.Normalize()

		if err := checkEligibility(b, d.Category); err != nil {
			return err
		}
		active, err := repos.Disputes.CountActiveByBooking(ctx, b.ID, 0)
		if err != nil {
			return fmt.Errorf("count active disputes: %w", err)
		}
		if active > 0 {
			return domain.ErrDuplicateActive
		}

		now := s.now()
		lapsed := !d.Category.BypassesWindow() && !b.DisputeWindowOpen(now)
		if lapsed && strict {
			return domain.ErrDisputeWindowExpired
		}

		d.FiledAt = now
		d.Reference = s.reference()
		if lapsed {
			d.Status = domain.DisputeStatusClosedAuto
			d.ResolvedAt = &now
			d.DecisionNotes = notesWindowExpired
		} else {
			if d.Category.RequiredEvidence() > 0 {
				due := now.Add(s.hours(ctx, settings.KeyDisputeFilingWindowHours, defaultDisputeFilingWindowHours))
				d.Status = domain.DisputeStatusIntakeMissingEvidence
				d.IntakeEvidenceDueAt = &due
			}
			d.DepositLocked = b.HasDepositHold() && b.DepositReleasedAt == nil
			b.IsDisputed = true
			if d.DepositLocked {
				b.DepositLocked = true
			}
			if err := repos.Bookings.Update(ctx, b); err != nil {
				return fmt.Errorf("update booking: %w", err)
			}
			if d.RequiresListingSuspend {
				if err := repos.Listings.SetSuspended(ctx, b.ListingID, true); err != nil {
					return fmt.Errorf("suspend listing: %w", err)
				}
			}
		}

		if err := repos.Disputes.Create(ctx, d); err != nil {
			return fmt.Errorf("create dispute: %w", err)
		}
		if err := recordDisputeEvent(ctx, repos, b.ID, domain.BookingEventDisputeOpened, in.UserID, map[string]any{
			"dispute_id":  d.ID,
			"reference":   d.Reference,
			"category":    string(d.Category),
			"status":      string(d.Status),
			"auto_closed": lapsed,
		}); err != nil {
			return err
		}

		if lapsed {
			out.add(notifier.EventDisputeClosed, b.ID, d.ID, d.OpenedBy)
		} else {
			out.add(notifier.EventDisputeOpened, b.ID, d.ID, d.Counterparty(b))
			if d.Status == domain.DisputeStatusIntakeMissingEvidence {
				out.add(notifier.EventDisputeEvidenceRequired, b.ID, d.ID, d.OpenedBy)
			}
		}
		dispute = d
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("disputeService.open", err, "bookingID", in.BookingID)
		return nil, err
	}

	metrics.RecordDisputeOpened(string(dispute.Category), string(dispute.Status))
	if dispute.Status.IsTerminal() {
		metrics.RecordDisputeClosed(string(dispute.Status))
	}
	out.flush(ctx, s.Notifier)
	logger.ExitMethod("disputeService.open", "disputeID", dispute.ID, "reference", dispute.Reference, "status", dispute.Status)
	return dispute, nil
}

// checkEligibility requires a completed booking, except for safety reports
// which may also be raised while the tool is out.
func checkEligibility(b *domain.Booking, category domain.DisputeCategory) error {
	if b.Status == domain.BookingStatusCompleted {
		return nil
	}
	if category.BypassesWindow() && b.Status == domain.BookingStatusPaid {
		return nil
	}
	return domain.ErrDisputeNotEligible
}

// UpdateIntakeStatus reconciles the intake status with the confirmed
// evidence. Disputes already past intake are left alone.
func (s *disputeService) UpdateIntakeStatus(ctx context.Context, disputeID int64) (*domain.DisputeCase, error) {
	var dispute *domain.DisputeCase
	err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
		d, err := repos.Disputes.GetByIDForUpdate(ctx, disputeID)
		if err != nil {
			return err
		}
		dispute = d
		if d.Status.IsTerminal() {
			return domain.ErrInvalidDisputeState
		}

		count, err := repos.Evidence.CountConfirmed(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("count evidence: %w", err)
		}
		from := d.Status
		switch {
		case count < d.Category.RequiredEvidence() && d.Status == domain.DisputeStatusOpen:
			due := d.FiledAt.Add(s.hours(ctx, settings.KeyDisputeFilingWindowHours, defaultDisputeFilingWindowHours))
			if err := d.Transition(domain.DisputeStatusIntakeMissingEvidence); err != nil {
				return err
			}
			d.IntakeEvidenceDueAt = &due
		case count >= d.Category.RequiredEvidence() && d.Status == domain.DisputeStatusIntakeMissingEvidence:
			if err := d.Transition(domain.DisputeStatusOpen); err != nil {
				return err
			}
		default:
			return nil
		}

		if err := repos.Disputes.Update(ctx, d); err != nil {
			return fmt.Errorf("update dispute: %w", err)
		}
		eventType := domain.BookingEventDisputeStatusChange
		if d.Status == domain.DisputeStatusIntakeMissingEvidence {
			eventType = domain.BookingEventDisputeIntakeMissing
		}
		return recordDisputeEvent(ctx, repos, d.BookingID, eventType, 0, map[string]any{
			"dispute_id":     d.ID,
			"from":           string(from),
			"to":             string(d.Status),
			"evidence_count": count,
		})
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

// SubmitRebuttal records the counterparty's answer and moves the dispute to
// review.
func (s *disputeService) SubmitRebuttal(ctx context.Context, userID, disputeID int64, text string) (*domain.DisputeCase, error) {
	if text == "" {
		return nil, domain.NewValidationError(domain.CodeInvalidInput, "rebuttal_text", "rebuttal text is required")
	}

	var (
		dispute *domain.DisputeCase
		out     outbox
	)
	err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
		d, b, err := lockDispute(ctx, repos, disputeID)
		if err != nil {
			return err
		}
		if d.Status != domain.DisputeStatusAwaitingRebuttal {
			return domain.ErrInvalidDisputeState
		}
		if userID != d.Counterparty(b) {
			return domain.ErrForbidden
		}
		now := s.now()
		if err := d.Transition(domain.DisputeStatusUnderReview); err != nil {
			return err
		}
		d.RebuttalText = text
		d.RebuttalSubmittedAt = &now
		if err := repos.Disputes.Update(ctx, d); err != nil {
			return fmt.Errorf("update dispute: %w", err)
		}
		out.add(notifier.EventDisputeUnderReview, b.ID, d.ID, d.OpenedBy)
		dispute = d
		return recordDisputeEvent(ctx, repos, b.ID, domain.BookingEventDisputeRebuttal, userID, map[string]any{
			"dispute_id": d.ID,
			"to":         string(d.Status),
		})
	})
	if err != nil {
		return nil, err
	}
	out.flush(ctx, s.Notifier)
	return dispute, nil
}

func (s *disputeService) RequestRebuttal(ctx context.Context, in OperatorActionInput) (*domain.DisputeCase, error) {
	return s.operate(ctx, in, "request_rebuttal", func(repos *repository.Repositories, d *domain.DisputeCase, b *domain.Booking, out *outbox) error {
		if err := d.Transition(domain.DisputeStatusAwaitingRebuttal); err != nil {
			return err
		}
		due := d.FiledAt.Add(s.hours(ctx, settings.KeyDisputeRebuttalWindowHours, defaultDisputeRebuttalWindowHours))
		d.RebuttalDueAt = &due
		d.Rebuttal12hReminderSentAt = nil
		out.add(notifier.EventDisputeRebuttalRequest, b.ID, d.ID, d.Counterparty(b))
		return nil
	})
}

func (s *disputeService) StartReview(ctx context.Context, in OperatorActionInput) (*domain.DisputeCase, error) {
	return s.operate(ctx, in, "start_review", func(repos *repository.Repositories, d *domain.DisputeCase, b *domain.Booking, out *outbox) error {
		if err := d.Transition(domain.DisputeStatusUnderReview); err != nil {
			return err
		}
		out.add(notifier.EventDisputeUnderReview, b.ID, d.ID, b.OwnerID)
		out.add(notifier.EventDisputeUnderReview, b.ID, d.ID, b.RenterID)
		return nil
	})
}

// RequestMoreEvidence sends the dispute back to intake with a fresh deadline.
func (s *disputeService) RequestMoreEvidence(ctx context.Context, in OperatorActionInput) (*domain.DisputeCase, error) {
	return s.operate(ctx, in, "request_more_evidence", func(repos *repository.Repositories, d *domain.DisputeCase, b *domain.Booking, out *outbox) error {
		if d.Status != domain.DisputeStatusIntakeMissingEvidence {
			if err := d.Transition(domain.DisputeStatusIntakeMissingEvidence); err != nil {
				return err
			}
		}
		due := s.now().Add(s.hours(ctx, settings.KeyDisputeFilingWindowHours, defaultDisputeFilingWindowHours))
		d.IntakeEvidenceDueAt = &due
		out.add(notifier.EventDisputeEvidenceRequired, b.ID, d.ID, d.OpenedBy)
		return nil
	})
}

func (s *disputeService) Close(ctx context.Context, in OperatorActionInput) (*domain.DisputeCase, error) {
	return s.operate(ctx, in, "close", func(repos *repository.Repositories, d *domain.DisputeCase, b *domain.Booking, out *outbox) error {
		return s.closeDispute(ctx, repos, d, b, in.Reason, out)
	})
}

func (s *disputeService) CloseAsDuplicate(ctx context.Context, in OperatorActionInput, duplicateOfID int64) (*domain.DisputeCase, error) {
	return s.operate(ctx, in, "close_as_duplicate", func(repos *repository.Repositories, d *domain.DisputeCase, b *domain.Booking, out *outbox) error {
		if duplicateOfID == d.ID {
			return domain.NewValidationError(domain.CodeInvalidInput, "duplicate_of_id", "a dispute cannot duplicate itself")
		}
		original, err := repos.Disputes.GetByID(ctx, duplicateOfID)
		if err != nil {
			return err
		}
		if original.BookingID != d.BookingID {
			return domain.NewValidationError(domain.CodeInvalidInput, "duplicate_of_id", "duplicate must belong to the same booking")
		}
		d.DuplicateOfID = &original.ID
		return s.closeDispute(ctx, repos, d, b, fmt.Sprintf(notesClosedDuplicate, original.Reference)+": "+in.Reason, out)
	})
}

func (s *disputeService) CloseAsLate(ctx context.Context, in OperatorActionInput) (*domain.DisputeCase, error) {
	return s.operate(ctx, in, "close_as_late", func(repos *repository.Repositories, d *domain.DisputeCase, b *domain.Booking, out *outbox) error {
		return s.closeDispute(ctx, repos, d, b, notesClosedLate+": "+in.Reason, out)
	})
}

func (s *disputeService) closeDispute(ctx context.Context, repos *repository.Repositories, d *domain.DisputeCase, b *domain.Booking, notes string, out *outbox) error {
	if err := d.Transition(domain.DisputeStatusClosedAuto); err != nil {
		return err
	}
	now := s.now()
	d.ResolvedAt = &now
	d.DecisionNotes = notes
	if _, err := unlockIfLastActive(ctx, repos, d, b); err != nil {
		return err
	}
	out.add(notifier.EventDisputeClosed, b.ID, d.ID, b.OwnerID)
	out.add(notifier.EventDisputeClosed, b.ID, d.ID, b.RenterID)
	return nil
}

// Resolve records the decision and moves the deposit: the captured part goes
// to the owner, the rest is released. The provider is called before commit so
// a failed capture leaves the dispute open.
func (s *disputeService) Resolve(ctx context.Context, in ResolveDisputeInput) (*domain.DisputeCase, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return s.operate(ctx, in.OperatorActionInput, "resolve", func(repos *repository.Repositories, d *domain.DisputeCase, b *domain.Booking, out *outbox) error {
		capture, err := captureAmount(in, b)
		if err != nil {
			return err
		}
		if err := d.Transition(outcomeStatus[in.Outcome]); err != nil {
			return err
		}

		now := s.now()
		d.ResolvedAt = &now
		d.DecisionNotes = in.Reason
		d.DepositCaptured = capture

		if capture.IsPositive() {
			if err := s.captureDeposit(ctx, repos, b, capture, now); err != nil {
				return err
			}
		}
		siblings, err := unlockIfLastActive(ctx, repos, d, b)
		if err != nil {
			return err
		}
		if !capture.IsPositive() && siblings == 0 && depositReleasable(b, now) {
			if err := s.releaseDeposit(ctx, repos, b, b.Totals.DamageDeposit, now); err != nil {
				return err
			}
			if err := repos.Bookings.Update(ctx, b); err != nil {
				return fmt.Errorf("update booking: %w", err)
			}
		}

		if err := recordDisputeEvent(ctx, repos, b.ID, domain.BookingEventDisputeResolved, in.OperatorID, map[string]any{
			"dispute_id":       d.ID,
			"outcome":          string(in.Outcome),
			"status":           string(d.Status),
			"deposit_captured": money.Format(capture),
		}); err != nil {
			return err
		}
		out.add(notifier.EventDisputeResolved, b.ID, d.ID, b.OwnerID)
		out.add(notifier.EventDisputeResolved, b.ID, d.ID, b.RenterID)
		return nil
	})
}

func captureAmount(in ResolveDisputeInput, b *domain.Booking) (decimal.Decimal, error) {
	deposit := money.Round2(b.Totals.DamageDeposit)
	var capture decimal.Decimal
	switch in.Outcome {
	case OutcomeRenter:
		if in.CaptureAmount != nil && !in.CaptureAmount.IsZero() {
			return decimal.Zero, domain.NewValidationError(domain.CodeInvalidAmount, "capture_amount", "a renter outcome captures nothing")
		}
		return decimal.Zero, nil
	case OutcomeOwner:
		capture = deposit
		if in.CaptureAmount != nil {
			capture = money.Round2(*in.CaptureAmount)
		}
		if !capture.IsPositive() {
			return decimal.Zero, domain.NewValidationError(domain.CodeInvalidAmount, "capture_amount", "an owner outcome must capture a positive amount")
		}
	case OutcomePartial:
		if in.CaptureAmount == nil {
			return decimal.Zero, domain.NewValidationError(domain.CodeInvalidAmount, "capture_amount", "a partial outcome needs a capture amount")
		}
		capture = money.Round2(*in.CaptureAmount)
		if !capture.IsPositive() || !capture.LessThan(deposit) {
			return decimal.Zero, domain.NewValidationError(domain.CodeInvalidAmount, "capture_amount", "a partial capture must be between zero and the deposit")
		}
	default:
		return decimal.Zero, domain.NewValidationError(domain.CodeInvalidInput, "outcome", "unknown outcome")
	}
	if capture.GreaterThan(deposit) {
		return decimal.Zero, domain.NewValidationError(domain.CodeInvalidAmount, "capture_amount", "capture exceeds the damage deposit")
	}
	if !b.HasDepositHold() || b.DepositReleasedAt != nil {
		return decimal.Zero, domain.NewValidationError(domain.CodeInvalidAmount, "capture_amount", "booking has no deposit hold to capture")
	}
	return capture, nil
}

// captureDeposit captures part of the hold; the provider releases the rest.
func (s *disputeService) captureDeposit(ctx context.Context, repos *repository.Repositories, b *domain.Booking, capture decimal.Decimal, now time.Time) error {
	key := utils.IdempotencyKey(b.ID, utils.OpCaptureDeposit, capture)
	ref, err := s.Payments.CaptureDepositAmount(ctx, b, capture, key)
	if err != nil {
		return err
	}
	remainder := money.NonNegative(money.Round2(b.Totals.DamageDeposit).Sub(capture))
	for _, p := range []LogTransactionInput{
		{UserID: b.RenterID, BookingID: &b.ID, Kind: domain.TransactionKindDamageDepositCapture, Amount: capture, StripeID: ref},
		{UserID: b.OwnerID, BookingID: &b.ID, Kind: domain.TransactionKindOwnerEarning, Amount: capture, StripeID: ref},
		{UserID: b.RenterID, BookingID: &b.ID, Kind: domain.TransactionKindDamageDepositRelease, Amount: remainder, StripeID: b.DepositHoldID},
	} {
		if err := s.post(ctx, repos, p); err != nil {
			return err
		}
	}
	b.DepositReleasedAt = &now
	return nil
}

// operate runs an operator action on a locked dispute and its booking,
// persists both and writes the audit entry.
func (s *disputeService) operate(ctx context.Context, in OperatorActionInput, action string, fn func(repos *repository.Repositories, d *domain.DisputeCase, b *domain.Booking, out *outbox) error) (*domain.DisputeCase, error) {
	logger.EnterMethod("disputeService."+action, "disputeID", in.DisputeID, "operatorID", in.OperatorID)

	if err := validateInput(in); err != nil {
		return nil, err
	}

	var (
		dispute *domain.DisputeCase
		out     outbox
	)
	err := s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
		d, b, err := lockDispute(ctx, repos, in.DisputeID)
		if err != nil {
			return err
		}
		if d.Status.IsTerminal() {
			return domain.ErrInvalidDisputeState
		}
		from := d.Status
		if err := fn(repos, d, b, &out); err != nil {
			return err
		}
		if err := repos.Disputes.Update(ctx, d); err != nil {
			return fmt.Errorf("update dispute: %w", err)
		}
		dispute = d
		return auditOperatorAction(ctx, repos, d, in, action, from)
	})
	if err != nil {
		logger.ExitMethodWithError("disputeService."+action, err, "disputeID", in.DisputeID)
		return nil, err
	}

	if dispute.Status.IsTerminal() {
		metrics.RecordDisputeClosed(string(dispute.Status))
	}
	out.flush(ctx, s.Notifier)
	logger.ExitMethod("disputeService."+action, "disputeID", dispute.ID, "status", dispute.Status)
	return dispute, nil
}

// auditOperatorAction writes the operator_action entry. A reason-less action
// never reaches this point through validation.
func auditOperatorAction(ctx context.Context, repos *repository.Repositories, d *domain.DisputeCase, in OperatorActionInput, action string, from domain.DisputeStatus) error {
	if in.Reason == "" {
		return domain.NewInvariantError("operator action %s on dispute %d has no reason", action, d.ID)
	}
	return recordDisputeEvent(ctx, repos, d.BookingID, domain.BookingEventOperatorAction, in.OperatorID, map[string]any{
		"dispute_id": d.ID,
		"action":     action,
		"reason":     in.Reason,
		"from":       string(from),
		"to":         string(d.Status),
	})
}

// lockDispute locks the dispute and then its booking. Every path that holds
// both locks takes them in this order.
func lockDispute(ctx context.Context, repos *repository.Repositories, disputeID int64) (*domain.DisputeCase, *domain.Booking, error) {
	d, err := repos.Disputes.GetByIDForUpdate(ctx, disputeID)
	if err != nil {
		return nil, nil, err
	}
	b, err := repos.Bookings.GetByIDForUpdate(ctx, d.BookingID)
	if err != nil {
		return nil, nil, err
	}
	return d, b, nil
}

// unlockIfLastActive releases the booking's deposit lock once no other active
// dispute remains. It returns the number of active siblings.
func unlockIfLastActive(ctx context.Context, repos *repository.Repositories, d *domain.DisputeCase, b *domain.Booking) (int, error) {
	d.DepositLocked = false
	siblings, err := repos.Disputes.CountActiveByBooking(ctx, b.ID, d.ID)
	if err != nil {
		return 0, fmt.Errorf("count active disputes: %w", err)
	}
	if siblings == 0 {
		b.DepositLocked = false
		b.IsDisputed = false
	}
	if err := repos.Bookings.Update(ctx, b); err != nil {
		return 0, fmt.Errorf("update booking: %w", err)
	}
	return siblings, nil
}

func recordDisputeEvent(ctx context.Context, repos *repository.Repositories, bookingID int64, t domain.BookingEventType, actorID int64, payload map[string]any) error {
	if err := repos.Events.RecordEvent(ctx, &domain.BookingEvent{
		BookingID: bookingID,
		Type:      t,
		ActorID:   actorRef(actorID),
		Payload:   payload,
	}); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

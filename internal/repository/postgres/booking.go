package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/repository"
)

const bookingColumns = `
	id, listing_id, owner_id, renter_id, start_date, end_date, status, totals,
	COALESCE(charge_payment_intent_id, ''), COALESCE(deposit_hold_id, ''),
	deposit_locked, deposit_attempt_count, deposit_released_at, is_disputed,
	confirmed_at, paid_at, before_photos_uploaded_at, pickup_confirmed_at,
	return_confirmed_at, dispute_window_expires_at,
	COALESCE(canceled_by, ''), COALESCE(canceled_reason, ''), auto_canceled,
	created_at, updated_at`

type bookingRepository struct {
	db DBTX
}

func NewBookingRepository(db DBTX) repository.BookingRepository {
	return &bookingRepository{db: db}
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	b := &domain.Booking{}
	var totals []byte
	err := row.Scan(
		&b.ID, &b.ListingID, &b.OwnerID, &b.RenterID, &b.StartDate, &b.EndDate, &b.Status, &totals,
		&b.ChargePaymentIntentID, &b.DepositHoldID,
		&b.DepositLocked, &b.DepositAttemptCount, &b.DepositReleasedAt, &b.IsDisputed,
		&b.ConfirmedAt, &b.PaidAt, &b.BeforePhotosUploadedAt, &b.PickupConfirmedAt,
		&b.ReturnConfirmedAt, &b.DisputeWindowExpiresAt,
		&b.CanceledBy, &b.CanceledReason, &b.AutoCanceled,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.StartDate = domain.CivilDate(b.StartDate)
	b.EndDate = domain.CivilDate(b.EndDate)
	if len(totals) > 0 {
		// Stored snapshots written by older code may be partial; missing
		// fields decode to zero.
		if err := json.Unmarshal(totals, &b.Totals); err != nil {
			return nil, fmt.Errorf("failed to decode totals of booking %d: %w", b.ID, err)
		}
	}
	return b, nil
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	logger.EnterMethod("bookingRepository.Create", "listingID", b.ListingID, "renterID", b.RenterID)

	totals, err := json.Marshal(b.Totals)
	if err != nil {
		return fmt.Errorf("failed to encode totals: %w", err)
	}

	query := `
		INSERT INTO bookings (
			listing_id, owner_id, renter_id, start_date, end_date, status, totals,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	now := time.Now().UTC()
	err = r.db.QueryRowContext(ctx, query,
		b.ListingID, b.OwnerID, b.RenterID, b.StartDate, b.EndDate, b.Status, totals, now, now,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		logger.ExitMethodWithError("bookingRepository.Create", err, "listingID", b.ListingID)
		return err
	}

	logger.ExitMethod("bookingRepository.Create", "bookingID", b.ID)
	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	return r.get(ctx, "bookingRepository.GetByID", `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r *bookingRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	return r.get(ctx, "bookingRepository.GetByIDForUpdate", `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *bookingRepository) get(ctx context.Context, method, query string, id int64) (*domain.Booking, error) {
	logger.EnterMethod(method, "bookingID", id)

	b, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		err = notFound(err)
		logger.ExitMethodWithError(method, err, "bookingID", id)
		return nil, err
	}

	logger.ExitMethod(method, "bookingID", id, "status", b.Status)
	return b, nil
}

// Update writes every mutable column. Totals are frozen at creation and are
// never rewritten.
func (r *bookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	logger.EnterMethod("bookingRepository.Update", "bookingID", b.ID, "status", b.Status)

	query := `
		UPDATE bookings SET
			status = $1,
			charge_payment_intent_id = $2,
			deposit_hold_id = $3,
			deposit_locked = $4,
			deposit_attempt_count = $5,
			deposit_released_at = $6,
			is_disputed = $7,
			confirmed_at = $8,
			paid_at = $9,
			before_photos_uploaded_at = $10,
			pickup_confirmed_at = $11,
			return_confirmed_at = $12,
			dispute_window_expires_at = $13,
			canceled_by = $14,
			canceled_reason = $15,
			auto_canceled = $16,
			updated_at = $17
		WHERE id = $18
	`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		b.Status, nullString(b.ChargePaymentIntentID), nullString(b.DepositHoldID),
		b.DepositLocked, b.DepositAttemptCount, b.DepositReleasedAt, b.IsDisputed,
		b.ConfirmedAt, b.PaidAt, b.BeforePhotosUploadedAt, b.PickupConfirmedAt,
		b.ReturnConfirmedAt, b.DisputeWindowExpiresAt,
		nullString(string(b.CanceledBy)), nullString(b.CanceledReason), b.AutoCanceled,
		now, b.ID,
	)
	if err != nil {
		logger.ExitMethodWithError("bookingRepository.Update", err, "bookingID", b.ID)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		logger.ExitMethodWithError("bookingRepository.Update", domain.ErrNotFound, "bookingID", b.ID)
		return domain.ErrNotFound
	}
	b.UpdatedAt = now

	logger.ExitMethod("bookingRepository.Update", "bookingID", b.ID)
	return nil
}

func (r *bookingRepository) ListOverlapping(ctx context.Context, listingID int64, start, end time.Time, statuses []domain.BookingStatus, excludeID int64) ([]domain.Booking, error) {
	logger.EnterMethod("bookingRepository.ListOverlapping", "listingID", listingID, "excludeID", excludeID)

	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE listing_id = $1
		  AND status = ANY($2)
		  AND start_date < $4
		  AND end_date > $3
		  AND id <> $5
		ORDER BY start_date`

	rows, err := r.db.QueryContext(ctx, query,
		listingID, pq.Array(statusStrings(statuses)), domain.CivilDate(start), domain.CivilDate(end), excludeID,
	)
	if err != nil {
		logger.ExitMethodWithError("bookingRepository.ListOverlapping", err, "listingID", listingID)
		return nil, err
	}
	defer rows.Close()

	bookings := []domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			logger.ExitMethodWithError("bookingRepository.ListOverlapping", err, "listingID", listingID)
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.ExitMethod("bookingRepository.ListOverlapping", "listingID", listingID, "count", len(bookings))
	return bookings, nil
}

func (r *bookingRepository) ListStaleIDs(ctx context.Context, requestedBefore, confirmedBefore time.Time) ([]int64, error) {
	query := `
		SELECT id FROM bookings
		WHERE (status = 'REQUESTED' AND created_at < $1)
		   OR (status = 'CONFIRMED' AND COALESCE(charge_payment_intent_id, '') = '' AND confirmed_at < $2)
		ORDER BY id
	`
	logger.DatabaseCall("SELECT", query, "requestedBefore", requestedBefore, "confirmedBefore", confirmedBefore)
	rows, err := r.db.QueryContext(ctx, query, requestedBefore, confirmedBefore)
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err)
		return nil, err
	}
	ids, err := scanIDs(rows)
	logger.DatabaseResult("SELECT", int64(len(ids)), err)
	return ids, err
}

func (r *bookingRepository) ListDepositReleaseIDs(ctx context.Context, now time.Time) ([]int64, error) {
	query := `
		SELECT id FROM bookings
		WHERE status = 'COMPLETED'
		  AND deposit_hold_id IS NOT NULL
		  AND deposit_released_at IS NULL
		  AND deposit_locked = FALSE
		  AND dispute_window_expires_at <= $1
		ORDER BY id
	`
	logger.DatabaseCall("SELECT", query, "now", now)
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err)
		return nil, err
	}
	ids, err := scanIDs(rows)
	logger.DatabaseResult("SELECT", int64(len(ids)), err)
	return ids, err
}

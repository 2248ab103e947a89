package postgres

import (
	"context"
	"time"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/repository"
)

type listingRepository struct {
	db DBTX
}

func NewListingRepository(db DBTX) repository.ListingRepository {
	return &listingRepository{db: db}
}

const listingColumns = `id, owner_id, title, daily_price, damage_deposit, is_active, is_suspended`

func (r *listingRepository) GetByID(ctx context.Context, id int64) (*domain.Listing, error) {
	return r.get(ctx, "listingRepository.GetByID", `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
}

// GetByIDForUpdate row-locks the listing. Booking writes that check date
// overlap take this lock first.
func (r *listingRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Listing, error) {
	return r.get(ctx, "listingRepository.GetByIDForUpdate", `SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id)
}

func (r *listingRepository) get(ctx context.Context, method, query string, id int64) (*domain.Listing, error) {
	logger.EnterMethod(method, "listingID", id)

	l := &domain.Listing{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&l.ID, &l.OwnerID, &l.Title, &l.DailyPrice, &l.DamageDeposit, &l.IsActive, &l.IsSuspended,
	)
	if err != nil {
		err = notFound(err)
		logger.ExitMethodWithError(method, err, "listingID", id)
		return nil, err
	}

	logger.ExitMethod(method, "listingID", id)
	return l, nil
}

func (r *listingRepository) SetSuspended(ctx context.Context, id int64, suspended bool) error {
	query := `UPDATE listings SET is_suspended = $1, updated_at = $2 WHERE id = $3`
	logger.DatabaseCall("UPDATE", query, "listingID", id, "suspended", suspended)

	res, err := r.db.ExecContext(ctx, query, suspended, time.Now().UTC(), id)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return err
	}
	n, _ := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, nil)
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

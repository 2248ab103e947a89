package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/repository"
)

const disputeColumns = `
	id, reference, booking_id, opened_by, opened_by_role, category, damage_flow_kind, status,
	description, claimed_amount, filed_at, intake_evidence_due_at, rebuttal_due_at,
	rebuttal_12h_reminder_sent_at, COALESCE(rebuttal_text, ''), rebuttal_submitted_at,
	resolved_at, COALESCE(decision_notes, ''), deposit_captured, deposit_locked,
	is_safety_incident, requires_listing_suspend, duplicate_of_id, created_at, updated_at`

type disputeRepository struct {
	db DBTX
}

func NewDisputeRepository(db DBTX) repository.DisputeRepository {
	return &disputeRepository{db: db}
}

func scanDispute(row rowScanner) (*domain.DisputeCase, error) {
	d := &domain.DisputeCase{}
	err := row.Scan(
		&d.ID, &d.Reference, &d.BookingID, &d.OpenedBy, &d.OpenedByRole, &d.Category, &d.DamageFlowKind, &d.Status,
		&d.Description, &d.ClaimedAmount, &d.FiledAt, &d.IntakeEvidenceDueAt, &d.RebuttalDueAt,
		&d.Rebuttal12hReminderSentAt, &d.RebuttalText, &d.RebuttalSubmittedAt,
		&d.ResolvedAt, &d.DecisionNotes, &d.DepositCaptured, &d.DepositLocked,
		&d.IsSafetyIncident, &d.RequiresListingSuspend, &d.DuplicateOfID, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *disputeRepository) Create(ctx context.Context, d *domain.DisputeCase) error {
	logger.EnterMethod("disputeRepository.Create", "bookingID", d.BookingID, "category", d.Category)

	query := `
		INSERT INTO dispute_cases (
			reference, booking_id, opened_by, opened_by_role, category, damage_flow_kind, status,
			description, claimed_amount, filed_at, intake_evidence_due_at, resolved_at, decision_notes,
			deposit_locked, is_safety_incident, requires_listing_suspend, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at
	`
	now := time.Now().UTC()
	err := r.db.QueryRowContext(ctx, query,
		d.Reference, d.BookingID, d.OpenedBy, d.OpenedByRole, d.Category, d.DamageFlowKind, d.Status,
		d.Description, d.ClaimedAmount, d.FiledAt, d.IntakeEvidenceDueAt, d.ResolvedAt, nullString(d.DecisionNotes),
		d.DepositLocked, d.IsSafetyIncident, d.RequiresListingSuspend, now, now,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		logger.ExitMethodWithError("disputeRepository.Create", err, "bookingID", d.BookingID)
		return err
	}

	logger.ExitMethod("disputeRepository.Create", "disputeID", d.ID)
	return nil
}

func (r *disputeRepository) GetByID(ctx context.Context, id int64) (*domain.DisputeCase, error) {
	return r.get(ctx, "disputeRepository.GetByID", `SELECT `+disputeColumns+` FROM dispute_cases WHERE id = $1`, id)
}

func (r *disputeRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.DisputeCase, error) {
	return r.get(ctx, "disputeRepository.GetByIDForUpdate", `SELECT `+disputeColumns+` FROM dispute_cases WHERE id = $1 FOR UPDATE`, id)
}

func (r *disputeRepository) get(ctx context.Context, method, query string, id int64) (*domain.DisputeCase, error) {
	logger.EnterMethod(method, "disputeID", id)

	d, err := scanDispute(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		err = notFound(err)
		logger.ExitMethodWithError(method, err, "disputeID", id)
		return nil, err
	}

	logger.ExitMethod(method, "disputeID", id, "status", d.Status)
	return d, nil
}

func (r *disputeRepository) Update(ctx context.Context, d *domain.DisputeCase) error {
	logger.EnterMethod("disputeRepository.Update", "disputeID", d.ID, "status", d.Status)

	query := `
		UPDATE dispute_cases SET
			category = $1,
			status = $2,
			intake_evidence_due_at = $3,
			rebuttal_due_at = $4,
			rebuttal_12h_reminder_sent_at = $5,
			rebuttal_text = $6,
			rebuttal_submitted_at = $7,
			resolved_at = $8,
			decision_notes = $9,
			deposit_captured = $10,
			deposit_locked = $11,
			duplicate_of_id = $12,
			updated_at = $13
		WHERE id = $14
	`
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		d.Category, d.Status, d.IntakeEvidenceDueAt, d.RebuttalDueAt, d.Rebuttal12hReminderSentAt,
		nullString(d.RebuttalText), d.RebuttalSubmittedAt, d.ResolvedAt, nullString(d.DecisionNotes),
		d.DepositCaptured, d.DepositLocked, d.DuplicateOfID, now, d.ID,
	)
	if err != nil {
		logger.ExitMethodWithError("disputeRepository.Update", err, "disputeID", d.ID)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		logger.ExitMethodWithError("disputeRepository.Update", domain.ErrNotFound, "disputeID", d.ID)
		return domain.ErrNotFound
	}
	d.UpdatedAt = now

	logger.ExitMethod("disputeRepository.Update", "disputeID", d.ID)
	return nil
}

func (r *disputeRepository) ListByBooking(ctx context.Context, bookingID int64) ([]domain.DisputeCase, error) {
	logger.EnterMethod("disputeRepository.ListByBooking", "bookingID", bookingID)

	rows, err := r.db.QueryContext(ctx, `SELECT `+disputeColumns+` FROM dispute_cases WHERE booking_id = $1 ORDER BY id`, bookingID)
	if err != nil {
		logger.ExitMethodWithError("disputeRepository.ListByBooking", err, "bookingID", bookingID)
		return nil, err
	}
	defer rows.Close()

	disputes := []domain.DisputeCase{}
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			logger.ExitMethodWithError("disputeRepository.ListByBooking", err, "bookingID", bookingID)
			return nil, err
		}
		disputes = append(disputes, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.ExitMethod("disputeRepository.ListByBooking", "bookingID", bookingID, "count", len(disputes))
	return disputes, nil
}

func (r *disputeRepository) CountActiveByBooking(ctx context.Context, bookingID, excludeID int64) (int, error) {
	query := `SELECT COUNT(*) FROM dispute_cases WHERE booking_id = $1 AND id <> $2 AND status = ANY($3)`
	logger.DatabaseCall("SELECT", query, "bookingID", bookingID, "excludeID", excludeID)

	var count int
	err := r.db.QueryRowContext(ctx, query, bookingID, excludeID, pq.Array(statusStrings(domain.ActiveDisputeStatuses))).Scan(&count)
	logger.DatabaseResult("SELECT", int64(count), err)
	return count, err
}

func (r *disputeRepository) listIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	logger.DatabaseCall("SELECT", query, "args", args)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.DatabaseResult("SELECT", 0, err)
		return nil, err
	}
	ids, err := scanIDs(rows)
	logger.DatabaseResult("SELECT", int64(len(ids)), err)
	return ids, err
}

func (r *disputeRepository) ListIntakeOverdueIDs(ctx context.Context, now time.Time) ([]int64, error) {
	return r.listIDs(ctx, `
		SELECT id FROM dispute_cases
		WHERE status = 'INTAKE_MISSING_EVIDENCE' AND intake_evidence_due_at < $1
		ORDER BY id`, now)
}

func (r *disputeRepository) ListRebuttalReminderIDs(ctx context.Context, now, horizon time.Time) ([]int64, error) {
	return r.listIDs(ctx, `
		SELECT id FROM dispute_cases
		WHERE status = 'AWAITING_REBUTTAL'
		  AND rebuttal_12h_reminder_sent_at IS NULL
		  AND rebuttal_due_at > $1 AND rebuttal_due_at <= $2
		ORDER BY id`, now, horizon)
}

func (r *disputeRepository) ListRebuttalOverdueIDs(ctx context.Context, now time.Time) ([]int64, error) {
	return r.listIDs(ctx, `
		SELECT id FROM dispute_cases
		WHERE status = 'AWAITING_REBUTTAL' AND rebuttal_due_at <= $1
		ORDER BY id`, now)
}

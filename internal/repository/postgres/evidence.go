package postgres

import (
	"context"
	"time"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/repository"
)

type evidenceRepository struct {
	db DBTX
}

func NewEvidenceRepository(db DBTX) repository.EvidenceRepository {
	return &evidenceRepository{db: db}
}

func (r *evidenceRepository) Create(ctx context.Context, e *domain.DisputeEvidence) error {
	logger.EnterMethod("evidenceRepository.Create", "disputeID", e.DisputeID, "key", e.StorageKey)

	query := `
		INSERT INTO dispute_evidence (dispute_id, uploaded_by, storage_key, content_type, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		e.DisputeID, e.UploadedBy, e.StorageKey, e.ContentType, e.SizeBytes, time.Now().UTC(),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		logger.ExitMethodWithError("evidenceRepository.Create", err, "disputeID", e.DisputeID)
		return err
	}

	logger.ExitMethod("evidenceRepository.Create", "evidenceID", e.ID)
	return nil
}

func (r *evidenceRepository) GetByID(ctx context.Context, id int64) (*domain.DisputeEvidence, error) {
	logger.EnterMethod("evidenceRepository.GetByID", "evidenceID", id)

	query := `
		SELECT id, dispute_id, uploaded_by, storage_key, content_type, size_bytes, confirmed_at, created_at
		FROM dispute_evidence WHERE id = $1
	`
	e := &domain.DisputeEvidence{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.DisputeID, &e.UploadedBy, &e.StorageKey, &e.ContentType, &e.SizeBytes, &e.ConfirmedAt, &e.CreatedAt,
	)
	if err != nil {
		err = notFound(err)
		logger.ExitMethodWithError("evidenceRepository.GetByID", err, "evidenceID", id)
		return nil, err
	}

	logger.ExitMethod("evidenceRepository.GetByID", "evidenceID", id)
	return e, nil
}

// Confirm stamps confirmed_at once; confirming twice keeps the first stamp.
func (r *evidenceRepository) Confirm(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE dispute_evidence SET confirmed_at = COALESCE(confirmed_at, $1) WHERE id = $2`
	logger.DatabaseCall("UPDATE", query, "evidenceID", id)

	res, err := r.db.ExecContext(ctx, query, at, id)
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

func (r *evidenceRepository) CountConfirmed(ctx context.Context, disputeID int64) (int, error) {
	query := `SELECT COUNT(*) FROM dispute_evidence WHERE dispute_id = $1 AND confirmed_at IS NOT NULL`
	logger.DatabaseCall("SELECT", query, "disputeID", disputeID)

	var count int
	err := r.db.QueryRowContext(ctx, query, disputeID).Scan(&count)
	logger.DatabaseResult("SELECT", int64(count), err)
	return count, err
}

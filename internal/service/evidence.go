package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"toolshed-backend/internal/config"
	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/repository"
)

const defaultURLExpiry = 15 * time.Minute

type EvidenceUploadInput struct {
	DisputeID   int64  `json:"dispute_id" validate:"required"`
	UserID      int64  `json:"user_id" validate:"required"`
	FileName    string `json:"file_name" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required"`
	SizeBytes   int64  `json:"size_bytes" validate:"gt=0"`
}

type evidenceService struct {
	*Dependencies
	disputes     DisputeService
	maxBytes     int64
	allowedTypes []string
	urlExpiry    time.Duration
}

// NewEvidenceService reads upload limits from cfg. A zero size limit or an
// empty type list disables that check.
func NewEvidenceService(deps *Dependencies, disputes DisputeService, cfg config.StorageConfig) EvidenceService {
	expiry := time.Duration(cfg.URLExpiryMins) * time.Minute
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}
	return &evidenceService{
		Dependencies: deps,
		disputes:     disputes,
		maxBytes:     cfg.MaxFileSize * 1024 * 1024,
		allowedTypes: cfg.AllowedTypes,
		urlExpiry:    expiry,
	}
}

// RequestUpload registers a pending evidence file and returns where to PUT
// it. The file counts only once ConfirmUpload sees it in storage.
func (s *evidenceService) RequestUpload(ctx context.Context, in EvidenceUploadInput) (*domain.DisputeEvidence, string, time.Time, error) {
	logger.EnterMethod("evidenceService.RequestUpload", "disputeID", in.DisputeID, "userID", in.UserID)

	if err := validateInput(in); err != nil {
		return nil, "", time.Time{}, err
	}
	if len(s.allowedTypes) > 0 && !slices.Contains(s.allowedTypes, in.ContentType) {
		return nil, "", time.Time{}, domain.NewValidationError(domain.CodeInvalidInput, "content_type", "file type is not allowed")
	}
	if s.maxBytes > 0 && in.SizeBytes > s.maxBytes {
		return nil, "", time.Time{}, domain.NewValidationError(domain.CodeInvalidInput, "size_bytes", "file is too large")
	}

	d, b, err := s.loadParticipant(ctx, in.DisputeID, in.UserID)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if d.Status.IsTerminal() {
		return nil, "", time.Time{}, domain.ErrInvalidDisputeState
	}

	key := fmt.Sprintf("disputes/%d/%s%s", d.ID, uuid.New().String(), strings.ToLower(filepath.Ext(in.FileName)))
	expiresAt := s.now().Add(s.urlExpiry)
	url, err := s.Storage.GeneratePresignedUploadURL(ctx, key, in.ContentType, s.urlExpiry)
	if err != nil {
		return nil, "", time.Time{}, storageError(err)
	}

	evidence := &domain.DisputeEvidence{
		DisputeID:   d.ID,
		UploadedBy:  in.UserID,
		StorageKey:  key,
		ContentType: in.ContentType,
		SizeBytes:   in.SizeBytes,
	}
	if err := s.Store.Repos().Evidence.Create(ctx, evidence); err != nil {
		return nil, "", time.Time{}, fmt.Errorf("create evidence: %w", err)
	}

	logger.ExitMethod("evidenceService.RequestUpload", "evidenceID", evidence.ID, "bookingID", b.ID)
	return evidence, url, expiresAt, nil
}

// ConfirmUpload marks the file as received and re-runs the intake check.
func (s *evidenceService) ConfirmUpload(ctx context.Context, userID, evidenceID int64) (*domain.DisputeEvidence, *domain.DisputeCase, error) {
	evidence, err := s.Store.Repos().Evidence.GetByID(ctx, evidenceID)
	if err != nil {
		return nil, nil, err
	}
	if evidence.UploadedBy != userID {
		return nil, nil, domain.ErrForbidden
	}

	if evidence.ConfirmedAt == nil {
		exists, size, err := s.Storage.FileExists(ctx, evidence.StorageKey)
		if err != nil {
			return nil, nil, storageError(err)
		}
		if !exists {
			return nil, nil, domain.ErrEvidenceNotUploaded
		}
		now := s.now()
		err = s.Store.WithTx(ctx, func(repos *repository.Repositories) error {
			if err := repos.Evidence.Confirm(ctx, evidence.ID, now); err != nil {
				return fmt.Errorf("confirm evidence: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
		evidence.ConfirmedAt = &now
		if size > 0 {
			evidence.SizeBytes = size
		}
	}

	dispute, err := s.disputes.UpdateIntakeStatus(ctx, evidence.DisputeID)
	if errors.Is(err, domain.ErrInvalidDisputeState) {
		dispute, err = s.disputes.GetDispute(ctx, evidence.DisputeID)
	}
	if err != nil {
		return nil, nil, err
	}
	return evidence, dispute, nil
}

func (s *evidenceService) GetDownloadURL(ctx context.Context, userID, evidenceID int64) (string, time.Time, error) {
	evidence, err := s.Store.Repos().Evidence.GetByID(ctx, evidenceID)
	if err != nil {
		return "", time.Time{}, err
	}
	if _, _, err := s.loadParticipant(ctx, evidence.DisputeID, userID); err != nil {
		return "", time.Time{}, err
	}
	if evidence.ConfirmedAt == nil {
		return "", time.Time{}, domain.ErrEvidenceNotUploaded
	}
	url, err := s.Storage.GeneratePresignedDownloadURL(ctx, evidence.StorageKey, s.urlExpiry)
	if err != nil {
		return "", time.Time{}, storageError(err)
	}
	return url, s.now().Add(s.urlExpiry), nil
}

// loadParticipant returns the dispute and its booking when userID is one of
// the booking's parties.
func (s *evidenceService) loadParticipant(ctx context.Context, disputeID, userID int64) (*domain.DisputeCase, *domain.Booking, error) {
	repos := s.Store.Repos()
	d, err := repos.Disputes.GetByID(ctx, disputeID)
	if err != nil {
		return nil, nil, err
	}
	b, err := repos.Bookings.GetByID(ctx, d.BookingID)
	if err != nil {
		return nil, nil, err
	}
	if userID != b.OwnerID && userID != b.RenterID {
		return nil, nil, domain.ErrForbidden
	}
	return d, b, nil
}

func storageError(err error) error {
	if domain.IsRetryable(err) {
		return err
	}
	return domain.NewAvailabilityError(domain.ErrStorageUnavailable.Dependency, err)
}

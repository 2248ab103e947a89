package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type DisputeStatus string

const (
	DisputeStatusOpen                  DisputeStatus = "OPEN"
	DisputeStatusIntakeMissingEvidence DisputeStatus = "INTAKE_MISSING_EVIDENCE"
	DisputeStatusAwaitingRebuttal      DisputeStatus = "AWAITING_REBUTTAL"
	DisputeStatusUnderReview           DisputeStatus = "UNDER_REVIEW"
	DisputeStatusResolvedRenter        DisputeStatus = "RESOLVED_RENTER"
	DisputeStatusResolvedOwner         DisputeStatus = "RESOLVED_OWNER"
	DisputeStatusResolvedPartial       DisputeStatus = "RESOLVED_PARTIAL"
	DisputeStatusClosedAuto            DisputeStatus = "CLOSED_AUTO"
)

// ActiveDisputeStatuses are the statuses that keep a booking's deposit locked.
var ActiveDisputeStatuses = []DisputeStatus{
	DisputeStatusOpen,
	DisputeStatusIntakeMissingEvidence,
	DisputeStatusAwaitingRebuttal,
	DisputeStatusUnderReview,
}

var resolvedStatuses = []DisputeStatus{
	DisputeStatusResolvedRenter,
	DisputeStatusResolvedOwner,
	DisputeStatusResolvedPartial,
}

// DisputeTransitions is the closed transition table. Terminal statuses map to
// an empty slice.
var DisputeTransitions = map[DisputeStatus][]DisputeStatus{
	DisputeStatusOpen: append([]DisputeStatus{
		DisputeStatusIntakeMissingEvidence,
		DisputeStatusAwaitingRebuttal,
		DisputeStatusUnderReview,
		DisputeStatusClosedAuto,
	}, resolvedStatuses...),
	DisputeStatusIntakeMissingEvidence: append([]DisputeStatus{
		DisputeStatusOpen,
		DisputeStatusAwaitingRebuttal,
		DisputeStatusUnderReview,
		DisputeStatusClosedAuto,
	}, resolvedStatuses...),
	DisputeStatusAwaitingRebuttal: append([]DisputeStatus{
		DisputeStatusIntakeMissingEvidence,
		DisputeStatusUnderReview,
		DisputeStatusClosedAuto,
	}, resolvedStatuses...),
	DisputeStatusUnderReview: append([]DisputeStatus{
		DisputeStatusIntakeMissingEvidence,
		DisputeStatusAwaitingRebuttal,
		DisputeStatusClosedAuto,
	}, resolvedStatuses...),
	DisputeStatusResolvedRenter:  {},
	DisputeStatusResolvedOwner:   {},
	DisputeStatusResolvedPartial: {},
	DisputeStatusClosedAuto:      {},
}

func ParseDisputeStatus(s string) (DisputeStatus, error) {
	st := DisputeStatus(s)
	if _, ok := DisputeTransitions[st]; !ok {
		return "", fmt.Errorf("unknown dispute status %q", s)
	}
	return st, nil
}

func (s DisputeStatus) IsActive() bool {
	for _, a := range ActiveDisputeStatuses {
		if s == a {
			return true
		}
	}
	return false
}

func (s DisputeStatus) IsTerminal() bool {
	next, ok := DisputeTransitions[s]
	return ok && len(next) == 0
}

func (s DisputeStatus) IsResolution() bool {
	for _, r := range resolvedStatuses {
		if s == r {
			return true
		}
	}
	return false
}

func (s DisputeStatus) CanTransition(to DisputeStatus) bool {
	for _, next := range DisputeTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type DisputeCategory string

const (
	DisputeCategoryDamage           DisputeCategory = "DAMAGE"
	DisputeCategoryMissingItem      DisputeCategory = "MISSING_ITEM"
	DisputeCategoryNotAsDescribed   DisputeCategory = "NOT_AS_DESCRIBED"
	DisputeCategoryLateReturn       DisputeCategory = "LATE_RETURN"
	DisputeCategoryIncorrectCharges DisputeCategory = "INCORRECT_CHARGES"
	DisputeCategorySafetyOrFraud    DisputeCategory = "SAFETY_OR_FRAUD"
)

// requiredEvidence is the minimum number of uploaded files a category needs
// before the dispute leaves intake.
var requiredEvidence = map[DisputeCategory]int{
	DisputeCategoryDamage:           1,
	DisputeCategoryMissingItem:      1,
	DisputeCategoryNotAsDescribed:   1,
	DisputeCategoryLateReturn:       0,
	DisputeCategoryIncorrectCharges: 0,
	DisputeCategorySafetyOrFraud:    0,
}

func ParseDisputeCategory(s string) (DisputeCategory, error) {
	c := DisputeCategory(s)
	if _, ok := requiredEvidence[c]; !ok {
		return "", NewValidationError(CodeInvalidInput, "category", fmt.Sprintf("unknown dispute category %q", s))
	}
	return c, nil
}

// RequiredEvidence returns how many evidence files the category needs.
func (c DisputeCategory) RequiredEvidence() int {
	return requiredEvidence[c]
}

func (c DisputeCategory) BypassesWindow() bool {
	return c == DisputeCategorySafetyOrFraud
}

type DamageFlowKind string

const (
	DamageFlowGeneric        DamageFlowKind = "GENERIC"
	DamageFlowBrokeDuringUse DamageFlowKind = "BROKE_DURING_USE"
)

type PartyRole string

const (
	PartyRoleOwner  PartyRole = "OWNER"
	PartyRoleRenter PartyRole = "RENTER"
)

// DisputeCase is one contested claim against a booking's damage deposit.
type DisputeCase struct {
	ID                        int64           `json:"id"`
	Reference                 string          `json:"reference"`
	BookingID                 int64           `json:"booking_id"`
	OpenedBy                  int64           `json:"opened_by"`
	OpenedByRole              PartyRole       `json:"opened_by_role"`
	Category                  DisputeCategory `json:"category"`
	DamageFlowKind            DamageFlowKind  `json:"damage_flow_kind"`
	Status                    DisputeStatus   `json:"status"`
	Description               string          `json:"description"`
	ClaimedAmount             decimal.Decimal `json:"claimed_amount"`
	FiledAt                   time.Time       `json:"filed_at"`
	IntakeEvidenceDueAt       *time.Time      `json:"intake_evidence_due_at,omitempty"`
	RebuttalDueAt             *time.Time      `json:"rebuttal_due_at,omitempty"`
	Rebuttal12hReminderSentAt *time.Time      `json:"rebuttal_12h_reminder_sent_at,omitempty"`
	RebuttalText              string          `json:"rebuttal_text,omitempty"`
	RebuttalSubmittedAt       *time.Time      `json:"rebuttal_submitted_at,omitempty"`
	ResolvedAt                *time.Time      `json:"resolved_at,omitempty"`
	DecisionNotes             string          `json:"decision_notes,omitempty"`
	DepositCaptured           decimal.Decimal `json:"deposit_captured"`
	DepositLocked             bool            `json:"deposit_locked"`
	IsSafetyIncident          bool            `json:"is_safety_incident"`
	RequiresListingSuspend    bool            `json:"requires_listing_suspend"`
	DuplicateOfID             *int64          `json:"duplicate_of_id,omitempty"`
	CreatedAt                 time.Time       `json:"created_at"`
	UpdatedAt                 time.Time       `json:"updated_at"`
}

// Normalize rewrites a self-breakage claim made by the owner: only the renter
// can report that the tool broke during use. The category is forced to DAMAGE
// whenever BROKE_DURING_USE was requested.
func (d *DisputeCase) Normalize() {
	if d.DamageFlowKind == "" {
		d.DamageFlowKind = DamageFlowGeneric
	}
	if d.DamageFlowKind == DamageFlowBrokeDuringUse {
		d.Category = DisputeCategoryDamage
		if d.OpenedByRole == PartyRoleOwner {
			d.DamageFlowKind = DamageFlowGeneric
		}
	}
	if d.Category == DisputeCategorySafetyOrFraud {
		d.IsSafetyIncident = true
		d.RequiresListingSuspend = true
	}
}

// Transition moves the dispute to next or fails without touching it.
func (d *DisputeCase) Transition(next DisputeStatus) error {
	if d.Status.IsTerminal() || !d.Status.CanTransition(next) {
		return ErrInvalidDisputeState
	}
	d.Status = next
	return nil
}

// Counterparty returns the user that must answer the dispute.
func (d *DisputeCase) Counterparty(b *Booking) int64 {
	if d.OpenedByRole == PartyRoleOwner {
		return b.RenterID
	}
	return b.OwnerID
}

// DisputeEvidence is one uploaded file backing a dispute.
type DisputeEvidence struct {
	ID          int64      `json:"id"`
	DisputeID   int64      `json:"dispute_id"`
	UploadedBy  int64      `json:"uploaded_by"`
	StorageKey  string     `json:"storage_key"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

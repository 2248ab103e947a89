package domain

import "time"

type BookingEventType string

const (
	BookingEventStatusChange                     BookingEventType = "status_change"
	BookingEventPaymentRecorded                  BookingEventType = "payment_recorded"
	BookingEventDepositReleased                  BookingEventType = "deposit_released"
	BookingEventDisputeOpened                    BookingEventType = "dispute_opened"
	BookingEventDisputeIntakeMissing             BookingEventType = "dispute_intake_missing_evidence"
	BookingEventDisputeAutoClosedMissingEvidence BookingEventType = "dispute_auto_closed_missing_evidence"
	BookingEventDisputeRebuttal                  BookingEventType = "dispute_rebuttal"
	BookingEventDisputeStatusChange              BookingEventType = "dispute_status_change"
	BookingEventDisputeResolved                  BookingEventType = "dispute_resolved"
	BookingEventOperatorAction                   BookingEventType = "operator_action"
)

// BookingEvent is one row of the write-only audit trail.
type BookingEvent struct {
	ID        int64            `json:"id"`
	BookingID int64            `json:"booking_id"`
	Type      BookingEventType `json:"type"`
	ActorID   *int64           `json:"actor_id,omitempty"` // nil for system actions
	Payload   map[string]any   `json:"payload"`
	CreatedAt time.Time        `json:"created_at"`
}

// Package notifier hands booking and dispute notifications to the delivery
// pipeline. Delivery itself happens elsewhere; a failed hand-off is logged and
// never fails the operation that triggered it.
package notifier

import (
	"context"
	"time"

	"toolshed-backend/internal/logger"
)

type EventType string

const (
	EventBookingRequested        EventType = "booking_requested"
	EventBookingConfirmed        EventType = "booking_confirmed"
	EventBookingCanceled         EventType = "booking_canceled"
	EventBookingExpired          EventType = "booking_expired"
	EventBookingCompleted        EventType = "booking_completed"
	EventDepositReleased         EventType = "deposit_released"
	EventDisputeOpened           EventType = "dispute_opened"
	EventDisputeEvidenceRequired EventType = "dispute_evidence_required"
	EventDisputeRebuttalRequest  EventType = "dispute_rebuttal_requested"
	EventDisputeRebuttalReminder EventType = "dispute_rebuttal_reminder"
	EventDisputeUnderReview      EventType = "dispute_under_review"
	EventDisputeResolved         EventType = "dispute_resolved"
	EventDisputeClosed           EventType = "dispute_closed"
)

// Notification addresses one recipient. DisputeID is zero for booking-only
// events.
type Notification struct {
	Type        EventType      `json:"type"`
	BookingID   int64          `json:"booking_id"`
	DisputeID   int64          `json:"dispute_id,omitempty"`
	RecipientID int64          `json:"recipient_id"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Log writes notifications to the application log. It is the default when no
// broker is configured.
type Log struct{}

func NewLog() *Log {
	return &Log{}
}

func (Log) Notify(ctx context.Context, n Notification) {
	logger.InfoContext(ctx, "Notification",
		"type", n.Type,
		"booking_id", n.BookingID,
		"dispute_id", n.DisputeID,
		"recipient_id", n.RecipientID,
	)
}

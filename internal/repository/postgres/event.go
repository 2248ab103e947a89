package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/logger"
	"toolshed-backend/internal/repository"
)

type eventRepository struct {
	db DBTX
}

func NewEventRepository(db DBTX) repository.EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) RecordEvent(ctx context.Context, e *domain.BookingEvent) error {
	logger.EnterMethod("eventRepository.RecordEvent", "bookingID", e.BookingID, "type", e.Type)

	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	query := `
		INSERT INTO booking_events (booking_id, type, actor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err = r.db.QueryRowContext(ctx, query, e.BookingID, e.Type, e.ActorID, raw, time.Now().UTC()).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		logger.ExitMethodWithError("eventRepository.RecordEvent", err, "bookingID", e.BookingID)
		return err
	}

	logger.ExitMethod("eventRepository.RecordEvent", "eventID", e.ID)
	return nil
}

func (r *eventRepository) ListByBooking(ctx context.Context, bookingID int64) ([]domain.BookingEvent, error) {
	logger.EnterMethod("eventRepository.ListByBooking", "bookingID", bookingID)

	query := `
		SELECT id, booking_id, type, actor_id, payload, created_at
		FROM booking_events WHERE booking_id = $1 ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		logger.ExitMethodWithError("eventRepository.ListByBooking", err, "bookingID", bookingID)
		return nil, err
	}
	defer rows.Close()

	events := []domain.BookingEvent{}
	for rows.Next() {
		var e domain.BookingEvent
		var raw []byte
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Type, &e.ActorID, &raw, &e.CreatedAt); err != nil {
			logger.ExitMethodWithError("eventRepository.ListByBooking", err, "bookingID", bookingID)
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode payload of event %d: %w", e.ID, err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.ExitMethod("eventRepository.ListByBooking", "bookingID", bookingID, "count", len(events))
	return events, nil
}

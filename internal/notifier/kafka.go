package notifier

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"toolshed-backend/internal/logger"
)

const publishTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes each notification as a JSON message keyed by booking id so
// a booking's notifications stay ordered within a partition.
type Kafka struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		now: time.Now,
	}
}

func (k *Kafka) Notify(ctx context.Context, n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = k.now().UTC()
	}
	value, err := json.Marshal(n)
	if err != nil {
		logger.Error("Failed to encode notification", "type", n.Type, "booking_id", n.BookingID, "error", err)
		return
	}

	// the caller's transaction has already committed; a cancelled request
	// context must not drop the message
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	logger.ExternalServiceCall("kafka", "publish", "type", n.Type, "booking_id", n.BookingID)
	err = k.writer.WriteMessages(pubCtx, kafka.Message{
		Key:   []byte(strconv.FormatInt(n.BookingID, 10)),
		Value: value,
		Time:  n.CreatedAt,
	})
	logger.ExternalServiceResult("kafka", "publish", err, "type", n.Type, "booking_id", n.BookingID)
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

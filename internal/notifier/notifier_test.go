package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolshed-backend/internal/logger"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

func TestKafka_Notify(t *testing.T) {
	w := &fakeWriter{}
	fixed := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	k := &Kafka{writer: w, now: func() time.Time { return fixed }}

	k.Notify(context.Background(), Notification{Type: EventDisputeOpened, BookingID: 42, DisputeID: 3, RecipientID: 9})

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "42", string(w.msgs[0].Key))
	var got Notification
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, EventDisputeOpened, got.Type)
	assert.Equal(t, int64(3), got.DisputeID)
	assert.True(t, fixed.Equal(got.CreatedAt))
}

func TestKafka_NotifySwallowsErrors(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.Initialize("debug", "json")
	t.Cleanup(func() {
		logger.SetOutput(os.Stdout)
		logger.Initialize("info", "text")
	})

	w := &fakeWriter{err: errors.New("broker down")}
	k := &Kafka{writer: w, now: time.Now}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	k.Notify(ctx, Notification{Type: EventBookingExpired, BookingID: 1})

	assert.Len(t, w.msgs, 1)
	assert.Contains(t, buf.String(), "broker down")
}

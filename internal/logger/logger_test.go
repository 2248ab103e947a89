package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestScopedLoggers(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	Initialize("debug", "json")

	WithDispute(7, 42).Info("closed")
	assert.Contains(t, buf.String(), `"dispute_id":7`)
	assert.Contains(t, buf.String(), `"booking_id":42`)

	buf.Reset()
	DatabaseCall("SELECT", "SELECT id\n\t\tFROM bookings")
	assert.Contains(t, buf.String(), `"query":"SELECT id FROM bookings"`)

	buf.Reset()
	ExternalServiceResult("stripe", "refund", errors.New("boom"))
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

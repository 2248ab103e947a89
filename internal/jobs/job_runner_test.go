package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"toolshed-backend/internal/config"
	"toolshed-backend/internal/service"
)

type MockBookingSweeper struct {
	mock.Mock
}

func (m *MockBookingSweeper) ExpireStaleBookings(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(now)
	return args.Int(0), args.Error(1)
}

func (m *MockBookingSweeper) ReleaseDepositHolds(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(now)
	return args.Int(0), args.Error(1)
}

type MockDisputeSweeper struct {
	mock.Mock
}

func (m *MockDisputeSweeper) AutoCloseMissingEvidence(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(now)
	return args.Int(0), args.Error(1)
}

func (m *MockDisputeSweeper) SendRebuttalReminders(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(now)
	return args.Int(0), args.Error(1)
}

func (m *MockDisputeSweeper) AdvanceExpiredRebuttals(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(now)
	return args.Int(0), args.Error(1)
}

func newTestRunner() (*JobRunner, *MockBookingSweeper, *MockDisputeSweeper, time.Time) {
	bookings := new(MockBookingSweeper)
	disputes := new(MockDisputeSweeper)
	jr := NewJobRunner(&Services{Bookings: bookings, Disputes: disputes}, &config.Config{})
	now := time.Date(2024, 1, 10, 3, 0, 0, 0, time.UTC)
	jr.now = func() time.Time { return now }
	return jr, bookings, disputes, now
}

func TestJobRunner_Run(t *testing.T) {
	jr, bookings, _, now := newTestRunner()
	bookings.On("ExpireStaleBookings", now).Return(3, nil).Once()

	count, err := jr.Run(service.JobExpireStaleBookings)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	bookings.AssertExpectations(t)

	_, err = jr.Run("compact_database")
	assert.Error(t, err)
}

func TestJobRunner_RunAll(t *testing.T) {
	jr, bookings, disputes, now := newTestRunner()
	bookings.On("ExpireStaleBookings", now).Return(0, nil).Once()
	bookings.On("ReleaseDepositHolds", now).Return(1, nil).Once()
	disputes.On("AutoCloseMissingEvidence", now).Return(0, errors.New("db down")).Once()
	disputes.On("AdvanceExpiredRebuttals", now).Return(0, nil).Once()
	disputes.On("SendRebuttalReminders", now).Return(2, nil).Once()

	err := jr.RunAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), service.JobAutoCloseMissingEvidence)
	bookings.AssertExpectations(t)
	disputes.AssertExpectations(t)
}

func TestJobRunner_RecoversFromPanic(t *testing.T) {
	jr, bookings, _, now := newTestRunner()
	bookings.On("ReleaseDepositHolds", now).Run(func(mock.Arguments) { panic("nil hold") }).Return(0, nil)

	assert.NotPanics(t, jr.ReleaseDepositHolds)
	_, err := jr.Run(service.JobReleaseDepositHolds)
	assert.Error(t, err)
}

func TestJobRunner_JobNames(t *testing.T) {
	jr, _, _, _ := newTestRunner()
	assert.Equal(t, []string{
		service.JobAdvanceExpiredRebuttals,
		service.JobAutoCloseMissingEvidence,
		service.JobExpireStaleBookings,
		service.JobReleaseDepositHolds,
		service.JobSendRebuttalReminders,
	}, jr.JobNames())
}

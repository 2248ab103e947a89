package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolshed-backend/internal/config"
	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/money"
	"toolshed-backend/internal/payment"
	"toolshed-backend/internal/repository/memory"
	"toolshed-backend/internal/service"
	"toolshed-backend/internal/settings"
	"toolshed-backend/internal/storage"
)

const (
	ownerID  int64 = 10
	renterID int64 = 20
)

type testServer struct {
	router    *mux.Router
	store     *memory.Store
	listingID int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	now := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	local, err := storage.NewMockStorageService("http://localhost:8080", t.TempDir())
	require.NoError(t, err)

	deps := &service.Dependencies{
		Store:          store,
		Settings:       settings.NewResolver(settings.Static{}),
		Payments:       payment.NewNoop(),
		Storage:        local,
		PlatformUserID: 1,
		Now:            func() time.Time { return now },
	}
	disputes := service.NewDisputeService(deps)
	cfg := config.StorageConfig{MaxFileSize: 1, AllowedTypes: []string{"image/jpeg"}, URLExpiryMins: 10}
	h := NewHandler(
		service.NewBookingService(deps),
		disputes,
		service.NewEvidenceService(deps, disputes, cfg),
		service.NewLedgerService(store, ""),
	)

	listingID := store.AddListing(domain.Listing{
		OwnerID:       ownerID,
		Title:         "Tile saw",
		DailyPrice:    money.MustParse("40"),
		DamageDeposit: money.MustParse("100"),
		IsActive:      true,
	})
	return &testServer{
		router:    NewRouter(h, NewStorageHandler(local, cfg.AllowedTypes, 1<<20)),
		store:     store,
		listingID: listingID,
	}
}

func (s *testServer) do(t *testing.T, method, path string, user int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != 0 {
		req.Header.Set(UserIDHeader, fmt.Sprint(user))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"Forbidden", domain.ErrForbidden, http.StatusForbidden},
		{"Conflict", domain.ErrBookingConflict, http.StatusConflict},
		{"Duplicate", domain.ErrDuplicateActive, http.StatusConflict},
		{"Wrong state", domain.ErrInvalidDisputeState, http.StatusConflict},
		{"Bad amount", domain.ErrInvalidAmount, http.StatusBadRequest},
		{"Not found", fmt.Errorf("booking 7: %w", domain.ErrNotFound), http.StatusNotFound},
		{"Provider down", domain.NewAvailabilityError("payment_provider", errors.New("timeout")), http.StatusServiceUnavailable},
		{"Invariant", domain.NewInvariantError("negative payout"), http.StatusInternalServerError},
		{"Unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBookingRoutes(t *testing.T) {
	s := newTestServer(t)

	t.Run("Missing caller", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/bookings", 0, map[string]any{
			"listing_id": s.listingID, "start_date": "2024-01-10", "end_date": "2024-01-12",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Unknown field", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/bookings", renterID, map[string]any{"listing": 1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	var bookingID int64
	t.Run("Request and confirm", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/bookings", renterID, map[string]any{
			"listing_id": s.listingID, "start_date": "2024-01-10", "end_date": "2024-01-12",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		b := decode[domain.Booking](t, rec)
		assert.Equal(t, renterID, b.RenterID)
		assert.Equal(t, domain.BookingStatusRequested, b.Status)
		assert.Equal(t, "80.00", money.Format(b.Totals.RentalSubtotal))
		bookingID = b.ID

		rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/confirm", bookingID), renterID, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/confirm", bookingID), ownerID, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, domain.BookingStatusConfirmed, decode[domain.Booking](t, rec).Status)
	})

	t.Run("Overlap conflicts", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/bookings", 21, map[string]any{
			"listing_id": s.listingID, "start_date": "2024-01-11", "end_date": "2024-01-13",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		body := decode[errorBody](t, rec)
		assert.Equal(t, string(domain.CodeBookingConflict), body.Code)
	})

	t.Run("Stranger cannot read", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", bookingID), 99, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("System actor rejected", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/cancel", bookingID), renterID, map[string]any{"actor": "system"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Renter cannot report a no-show", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/cancel", bookingID), renterID, map[string]any{"actor": "no_show"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Renter cancels before payment", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/cancel", bookingID), renterID, map[string]any{"actor": "renter"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[cancelResponse](t, rec)
		assert.Equal(t, domain.BookingStatusCanceled, resp.Booking.Status)
		assert.True(t, resp.Settlement.RefundToRenter.IsZero())
	})

	t.Run("Missing booking", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/v1/bookings/4040", renterID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDisputeAndEvidenceRoutes(t *testing.T) {
	s := newTestServer(t)
	windowEnd := time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)
	bookingID := s.store.PutBooking(domain.Booking{
		ListingID:              s.listingID,
		OwnerID:                ownerID,
		RenterID:               renterID,
		StartDate:              time.Date(2023, 12, 28, 0, 0, 0, 0, time.UTC),
		EndDate:                time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC),
		Status:                 domain.BookingStatusCompleted,
		ChargePaymentIntentID:  "pi_charge",
		DepositHoldID:          "pi_hold",
		DisputeWindowExpiresAt: &windowEnd,
		Totals:                 domain.BookingTotals{DamageDeposit: money.MustParse("100")},
	})

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/disputes", bookingID), ownerID, map[string]any{
		"category": "MISSING_ITEM", "description": "Blade missing",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	d := decode[domain.DisputeCase](t, rec)
	assert.Equal(t, domain.DisputeStatusIntakeMissingEvidence, d.Status)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/disputes", bookingID), renterID, map[string]any{
		"category": "DAMAGE",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/disputes/%d/evidence", d.ID), ownerID, map[string]any{
		"file_name": "blade.JPG", "content_type": "image/jpeg", "size_bytes": 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	up := decode[uploadResponse](t, rec)
	assert.True(t, strings.HasSuffix(up.Evidence.StorageKey, ".jpg"))

	path := strings.TrimPrefix(up.UploadURL, "http://localhost:8080")
	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader("bytes"))
	req.Header.Set("Content-Type", "image/jpeg")
	putRec := httptest.NewRecorder()
	s.router.ServeHTTP(putRec, req)
	require.Equal(t, http.StatusOK, putRec.Code)

	rec = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/disputes/%d/evidence/%d/confirm", d.ID, up.Evidence.ID), ownerID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decode[confirmResponse](t, rec)
	assert.NotNil(t, confirmed.Evidence.ConfirmedAt)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/disputes/%d/evidence/%d/download", d.ID, up.Evidence.ID), renterID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dl := decode[downloadResponse](t, rec)

	getRec := httptest.NewRecorder()
	s.router.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, strings.TrimPrefix(dl.URL, "http://localhost:8080"), nil))
	assert.Equal(t, http.StatusOK, getRec.Code)
	assert.Equal(t, "bytes", getRec.Body.String())
	assert.Equal(t, "image/jpeg", getRec.Header().Get("Content-Type"))

	t.Run("Operator reason required", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/ops/disputes/%d/start-review", d.ID), 99, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Operator resolves for renter", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/ops/disputes/%d/resolve", d.ID), 99, map[string]any{
			"reason": "blade was in the case", "outcome": "RENTER",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, domain.DisputeStatusResolvedRenter, decode[domain.DisputeCase](t, rec).Status)
	})
}

func TestMockUpload_RejectsContentType(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/upload/tok?key=disputes/1/a.exe", strings.NewReader("x"))
	req.Header.Set("Content-Type", "application/x-msdownload")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

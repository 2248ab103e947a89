package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/metrics"
	"toolshed-backend/internal/service"
)

// UserIDHeader carries the authenticated caller. The edge gateway sets it
// after verifying the session and strips any client supplied value.
const UserIDHeader = "X-User-ID"

// Handler exposes the marketplace services over JSON.
type Handler struct {
	bookings service.BookingService
	disputes service.DisputeService
	evidence service.EvidenceService
	ledger   service.LedgerService
}

func NewHandler(bookings service.BookingService, disputes service.DisputeService, evidence service.EvidenceService, ledger service.LedgerService) *Handler {
	return &Handler{
		bookings: bookings,
		disputes: disputes,
		evidence: evidence,
		ledger:   ledger,
	}
}

// NewRouter wires every route, including the health and metrics endpoints.
// local is nil when evidence lives in a real object store.
func NewRouter(h *Handler, local *StorageHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/bookings", h.requestBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id:[0-9]+}", h.getBooking).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id:[0-9]+}/confirm", h.bookingAction(h.bookings.ConfirmBooking)).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id:[0-9]+}/deny", h.denyBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id:[0-9]+}/payment", h.recordPayment).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id:[0-9]+}/before-photos", h.bookingAction(h.bookings.RecordBeforePhotos)).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id:[0-9]+}/pickup", h.bookingAction(h.bookings.ConfirmPickup)).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id:[0-9]+}/return", h.bookingAction(h.bookings.ConfirmReturn)).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id:[0-9]+}/complete", h.completeBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id:[0-9]+}/cancel", h.cancelBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id:[0-9]+}/disputes", h.fileDispute).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id:[0-9]+}/disputes", h.listDisputes).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id:[0-9]+}/transactions", h.listTransactions).Methods(http.MethodGet)
	api.HandleFunc("/owners/me/balance", h.ownerBalance).Methods(http.MethodGet)

	api.HandleFunc("/disputes/{id:[0-9]+}", h.getDispute).Methods(http.MethodGet)
	api.HandleFunc("/disputes/{id:[0-9]+}/rebuttal", h.submitRebuttal).Methods(http.MethodPost)
	api.HandleFunc("/disputes/{id:[0-9]+}/evidence", h.requestUpload).Methods(http.MethodPost)
	api.HandleFunc("/disputes/{id:[0-9]+}/evidence/{evidenceID:[0-9]+}/confirm", h.confirmUpload).Methods(http.MethodPost)
	api.HandleFunc("/disputes/{id:[0-9]+}/evidence/{evidenceID:[0-9]+}/download", h.downloadURL).Methods(http.MethodGet)

	ops := api.PathPrefix("/ops/disputes/{id:[0-9]+}").Subrouter()
	ops.HandleFunc("/request-rebuttal", h.operatorAction(h.disputes.RequestRebuttal)).Methods(http.MethodPost)
	ops.HandleFunc("/start-review", h.operatorAction(h.disputes.StartReview)).Methods(http.MethodPost)
	ops.HandleFunc("/request-evidence", h.operatorAction(h.disputes.RequestMoreEvidence)).Methods(http.MethodPost)
	ops.HandleFunc("/close", h.operatorAction(h.disputes.Close)).Methods(http.MethodPost)
	ops.HandleFunc("/close-late", h.operatorAction(h.disputes.CloseAsLate)).Methods(http.MethodPost)
	ops.HandleFunc("/close-duplicate", h.closeDuplicate).Methods(http.MethodPost)
	ops.HandleFunc("/resolve", h.resolve).Methods(http.MethodPost)

	if local != nil {
		RegisterMockStorageRoutes(r, local)
	}
	return r
}

// userID reads the caller injected by the gateway.
func userID(r *http.Request) (int64, error) {
	raw := r.Header.Get(UserIDHeader)
	id, err := strconv.ParseInt(raw, 10, 64)
	if raw == "" || err != nil || id <= 0 {
		return 0, domain.ErrForbidden
	}
	return id, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, domain.NewValidationError(domain.CodeInvalidInput, name, "must be numeric")
	}
	return id, nil
}

// caller resolves the acting user and the {id} path variable.
func caller(r *http.Request) (uid, id int64, err error) {
	if uid, err = userID(r); err != nil {
		return 0, 0, err
	}
	id, err = pathID(r, "id")
	return uid, id, err
}

func (h *Handler) requestBooking(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in service.RequestBookingInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	in.RenterID = uid
	b, err := h.bookings.RequestBooking(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
	uid, id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := h.bookings.GetBooking(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, ok := b.RoleOf(uid); !ok {
		writeError(w, domain.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// bookingAction adapts a (user, booking) service call.
func (h *Handler) bookingAction(fn func(ctx context.Context, userID, bookingID int64) (*domain.Booking, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, id, err := caller(r)
		if err != nil {
			writeError(w, err)
			return
		}
		b, err := fn(r.Context(), uid, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) denyBooking(w http.ResponseWriter, r *http.Request) {
	uid, id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req reasonRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	b, err := h.bookings.DenyBooking(r.Context(), uid, id, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// recordPayment is called by the payment webhook relay after it verified
// the provider signature.
func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var in service.RecordPaymentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	in.BookingID = id
	b, err := h.bookings.RecordPayment(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) completeBooking(w http.ResponseWriter, r *http.Request) {
	uid, id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := h.bookings.GetBooking(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if b.OwnerID != uid {
		writeError(w, domain.ErrForbidden)
		return
	}
	if b, err = h.bookings.CompleteBooking(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type cancelResponse struct {
	Booking    *domain.Booking                `json:"booking"`
	Settlement *domain.CancellationSettlement `json:"settlement"`
}

func (h *Handler) cancelBooking(w http.ResponseWriter, r *http.Request) {
	uid, id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in service.CancelBookingInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	if in.Actor == domain.CancelActorSystem {
		writeError(w, domain.ErrInvalidActor)
		return
	}
	in.BookingID, in.ActorID = id, uid
	b, settlement, err := h.bookings.CancelBooking(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{Booking: b, Settlement: settlement})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	uid, id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := h.bookings.GetBooking(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, ok := b.RoleOf(uid); !ok {
		writeError(w, domain.ErrForbidden)
		return
	}
	txs, err := h.ledger.ListBookingTransactions(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

type balanceResponse struct {
	OwnerID   int64           `json:"owner_id"`
	Available decimal.Decimal `json:"available"`
	AsOf      time.Time       `json:"as_of"`
}

func (h *Handler) ownerBalance(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	now := time.Now().UTC()
	bal, err := h.ledger.ComputeOwnerAvailableBalance(r.Context(), uid, now)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{OwnerID: uid, Available: bal, AsOf: now})
}

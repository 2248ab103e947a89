package http

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"toolshed-backend/internal/domain"
	"toolshed-backend/internal/service"
)

func (h *Handler) fileDispute(w http.ResponseWriter, r *http.Request) {
	uid, id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in service.FileDisputeInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	in.BookingID, in.UserID = id, uid
	d, err := h.disputes.FileDispute(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) listDisputes(w http.ResponseWriter, r *http.Request) {
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
	disputes, err := h.disputes.ListBookingDisputes(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, disputes)
}

// participantDispute loads a dispute and checks the caller is on its booking.
func (h *Handler) participantDispute(ctx context.Context, uid, disputeID int64) (*domain.DisputeCase, error) {
	d, err := h.disputes.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	b, err := h.bookings.GetBooking(ctx, d.BookingID)
	if err != nil {
		return nil, err
	}
	if _, ok := b.RoleOf(uid); !ok {
		return nil, domain.ErrForbidden
	}
	return d, nil
}

func (h *Handler) getDispute(w http.ResponseWriter, r *http.Request) {
	uid, id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := h.participantDispute(r.Context(), uid, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type rebuttalRequest struct {
	Text string `json:"text"`
}

func (h *Handler) submitRebuttal(w http.ResponseWriter, r *http.Request) {
	uid, id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req rebuttalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	d, err := h.disputes.SubmitRebuttal(r.Context(), uid, id, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type uploadResponse struct {
	Evidence  *domain.DisputeEvidence `json:"evidence"`
	UploadURL string                  `json:"upload_url"`
	ExpiresAt time.Time               `json:"expires_at"`
}

func (h *Handler) requestUpload(w http.ResponseWriter, r *http.Request) {
	uid, id, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in service.EvidenceUploadInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	in.DisputeID, in.UserID = id, uid
	ev, url, expiresAt, err := h.evidence.RequestUpload(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{Evidence: ev, UploadURL: url, ExpiresAt: expiresAt})
}

type confirmResponse struct {
	Evidence *domain.DisputeEvidence `json:"evidence"`
	Dispute  *domain.DisputeCase     `json:"dispute"`
}

func (h *Handler) confirmUpload(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	evidenceID, err := pathID(r, "evidenceID")
	if err != nil {
		writeError(w, err)
		return
	}
	ev, d, err := h.evidence.ConfirmUpload(r.Context(), uid, evidenceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Evidence: ev, Dispute: d})
}

type downloadResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) downloadURL(w http.ResponseWriter, r *http.Request) {
	uid, err := userID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	evidenceID, err := pathID(r, "evidenceID")
	if err != nil {
		writeError(w, err)
		return
	}
	url, expiresAt, err := h.evidence.GetDownloadURL(r.Context(), uid, evidenceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, downloadResponse{URL: url, ExpiresAt: expiresAt})
}

// Operator routes. The gateway only forwards them for support staff.

func (h *Handler) operatorInput(r *http.Request, body any) (service.OperatorActionInput, error) {
	uid, id, err := caller(r)
	if err != nil {
		return service.OperatorActionInput{}, err
	}
	if err := decodeJSON(r, body); err != nil {
		return service.OperatorActionInput{}, err
	}
	return service.OperatorActionInput{DisputeID: id, OperatorID: uid}, nil
}

func (h *Handler) operatorAction(fn func(ctx context.Context, in service.OperatorActionInput) (*domain.DisputeCase, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reasonRequest
		in, err := h.operatorInput(r, &req)
		if err != nil {
			writeError(w, err)
			return
		}
		in.Reason = req.Reason
		d, err := fn(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

type duplicateRequest struct {
	Reason        string `json:"reason"`
	DuplicateOfID int64  `json:"duplicate_of_id"`
}

func (h *Handler) closeDuplicate(w http.ResponseWriter, r *http.Request) {
	var req duplicateRequest
	in, err := h.operatorInput(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	in.Reason = req.Reason
	d, err := h.disputes.CloseAsDuplicate(r.Context(), in, req.DuplicateOfID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type resolveRequest struct {
	Reason        string                    `json:"reason"`
	Outcome       service.ResolutionOutcome `json:"outcome"`
	CaptureAmount *decimal.Decimal          `json:"capture_amount"`
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	in, err := h.operatorInput(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	in.Reason = req.Reason
	d, err := h.disputes.Resolve(r.Context(), service.ResolveDisputeInput{
		OperatorActionInput: in,
		Outcome:             req.Outcome,
		CaptureAmount:       req.CaptureAmount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

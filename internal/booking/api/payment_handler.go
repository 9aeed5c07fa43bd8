package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-rental/internal/models"
	"ms-rental/internal/payment"
	"ms-rental/internal/utils"

	"github.com/go-chi/chi/v5"
)

const maxWebhookBody = 65536

// InitiatePayment handles POST /api/payments/initiate
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req models.InitiatePaymentRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, "InitiatePayment", err)
		return
	}

	session, err := h.Bookings.InitiatePayment(r.Context(), principal(r), req)
	if err != nil {
		h.fail(w, "InitiatePayment", err)
		return
	}
	h.Logger.LogPayment("INITIATED", req.BookingID, fmt.Sprintf("session %s expires %s", session.SessionID, session.ExpiresAt.Format("15:04:05")))
	utils.WriteSuccess(w, http.StatusOK, "Payment session ready", session)
}

// VerifyPayment handles GET /api/payments/verify/{sessionId}
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	result, err := h.Bookings.VerifyPayment(r.Context(), principal(r), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.fail(w, "VerifyPayment", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Payment verified", result)
}

// HandleStripeWebhook handles POST /api/payments/webhook
func (h *Handler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("read body: %v", err))
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Error reading request body", ""))
		return
	}

	ev, err := payment.ParseWebhook(payload, r.Header.Get("Stripe-Signature"), h.WebhookSecret)
	if err != nil {
		var whErr *payment.WebhookError
		if errors.As(err, &whErr) {
			h.Logger.Error("WEBHOOK", fmt.Sprintf("%s: %s", whErr.Category, whErr.InternalError))
			utils.WriteJSON(w, whErr.StatusCode, utils.ErrorResponse(whErr.PublicError, ""))
			return
		}
		h.fail(w, "HandleStripeWebhook", err)
		return
	}
	if ev == nil {
		utils.WriteSuccess(w, http.StatusOK, "Event ignored", nil)
		return
	}

	h.Logger.LogPayment("WEBHOOK", ev.BookingID, fmt.Sprintf("session %s outcome %s", ev.SessionID, ev.Outcome))

	if h.PaymentResults != nil {
		if err := h.PaymentResults.PublishPaymentResult(r.Context(), *ev); err != nil {
			// Stripe redelivers on non-2xx
			h.Logger.Error("WEBHOOK", fmt.Sprintf("publish payment result: %v", err))
			utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Webhook processing error", ""))
			return
		}
		utils.WriteSuccess(w, http.StatusOK, "Event queued", nil)
		return
	}

	if err := h.Bookings.HandlePaymentEvent(r.Context(), *ev); err != nil {
		switch models.KindOf(err) {
		case models.KindNotFound, models.KindInvalidRequest, models.KindInvalidTransition:
			h.Logger.Warn("WEBHOOK", fmt.Sprintf("dropping payment event for session %s: %v", ev.SessionID, err))
			utils.WriteSuccess(w, http.StatusOK, "Event ignored", nil)
		default:
			h.Logger.Error("WEBHOOK", fmt.Sprintf("apply payment event: %v", err))
			utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Webhook processing error", ""))
		}
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Event processed", nil)
}

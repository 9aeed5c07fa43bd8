package api

import (
	"context"
	"fmt"
	"net/http"

	"ms-rental/internal/models"
	"ms-rental/internal/sse"
	"ms-rental/internal/utils"
)

// StreamSellerBookings pushes status changes of the seller's bookings.
func (h *Handler) StreamSellerBookings(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	h.stream(w, r, p, h.Events.SubscribeSeller)
}

// StreamCustomerBookings pushes status changes of the customer's bookings.
func (h *Handler) StreamCustomerBookings(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	h.stream(w, r, p, h.Events.SubscribeCustomer)
}

type subscribeFunc func(ctx context.Context, userID string) <-chan models.BookingEvent

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, p models.Principal, subscribe subscribeFunc) {
	if h.Events == nil {
		utils.WriteError(w, models.NewError(models.KindNotFound, "live updates are disabled"))
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		utils.WriteError(w, models.NewError(models.KindInternal, "streaming unsupported"))
		return
	}

	sse.SetupHeaders(w)
	ctx := r.Context()
	events := subscribe(ctx, p.UserID)

	if err := sse.WriteEvent(w, "connected", map[string]string{"status": "connected", "userId": p.UserID}); err != nil {
		return
	}
	h.Logger.Info("SSE", fmt.Sprintf("%s %s connected", p.Role, p.UserID))

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.WriteEvent(w, "booking", ev); err != nil {
				h.Logger.Debug("SSE", fmt.Sprintf("write to %s: %v", p.UserID, err))
				return
			}
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("%s %s disconnected", p.Role, p.UserID))
			return
		}
	}
}

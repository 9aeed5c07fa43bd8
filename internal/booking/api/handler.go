package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-rental/internal/auth"
	"ms-rental/internal/logger"
	"ms-rental/internal/models"
	"ms-rental/internal/payment/qr"
	"ms-rental/internal/sse"
	"ms-rental/internal/utils"

	"github.com/go-chi/chi/v5"
)

// BookingService is the server-side booking lifecycle the handlers drive.
type BookingService interface {
	CreateBooking(ctx context.Context, p models.Principal, req models.CreateBookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, p models.Principal, id string) (*models.Booking, error)
	ListCustomerBookings(ctx context.Context, p models.Principal) ([]models.Booking, error)
	ListSellerBookings(ctx context.Context, p models.Principal, page, limit int) (*models.BookingPage, error)
	ListAllBookings(ctx context.Context, p models.Principal, page, limit int) (*models.BookingPage, error)
	UpdateStatus(ctx context.Context, p models.Principal, id string, to models.BookingStatus) (*models.Booking, error)
	Accept(ctx context.Context, p models.Principal, id string) (*models.AcceptResponse, error)
	Cancel(ctx context.Context, p models.Principal, id string) (*models.Booking, error)
	Decline(ctx context.Context, p models.Principal, id string) (*models.Booking, error)
	Complete(ctx context.Context, p models.Principal, id string) (*models.Booking, error)
	InitiatePayment(ctx context.Context, p models.Principal, req models.InitiatePaymentRequest) (*models.PaymentSession, error)
	VerifyPayment(ctx context.Context, p models.Principal, sessionID string) (*models.PaymentVerification, error)
	PaymentStatus(ctx context.Context, p models.Principal, id string) (*models.PaymentStatusResponse, error)
	HandlePaymentEvent(ctx context.Context, ev models.PaymentEvent) error
}

// PaymentResultPublisher hands verified webhook results to the booking worker.
type PaymentResultPublisher interface {
	PublishPaymentResult(ctx context.Context, ev models.PaymentEvent) error
}

type Handler struct {
	Bookings BookingService
	Events   *sse.BookingEventEmitter
	Logger   *logger.Logger

	// WebhookSecret verifies Stripe-Signature headers.
	WebhookSecret string
	// PaymentResults, when set, receives webhook results instead of the
	// service applying them inline.
	PaymentResults PaymentResultPublisher

	now func() time.Time
}

func NewHandler(bookings BookingService, events *sse.BookingEventEmitter, webhookSecret string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		Bookings:      bookings,
		Events:        events,
		Logger:        log,
		WebhookSecret: webhookSecret,
		now:           time.Now,
	}
}

// BookingRoutes mounts under /api/bookings. Every route requires a token.
func (h *Handler) BookingRoutes(v auth.Verifier) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.Middleware(v, h.Logger))

	r.With(auth.RequireRole(models.RoleCustomer)).Post("/", h.CreateBooking)
	r.With(auth.RequireRole(models.RoleCustomer)).Get("/user", h.ListCustomerBookings)
	r.With(auth.RequireRole(models.RoleCustomer)).Get("/user/stream", h.StreamCustomerBookings)
	r.With(auth.RequireRole(models.RoleSeller)).Get("/seller", h.ListSellerBookings)
	r.With(auth.RequireRole(models.RoleSeller)).Get("/seller/stream", h.StreamSellerBookings)
	r.With(auth.RequireRole(models.RoleAdmin)).Get("/admin", h.ListAllBookings)

	r.Route("/{bookingId}", func(r chi.Router) {
		r.Get("/", h.GetBooking)
		r.Get("/payment-status", h.GetPaymentStatus)
		r.Get("/payment-qr", h.GetPaymentQR)
		r.Put("/accept", h.AcceptBooking)
		r.Put("/cancel", h.CancelBooking)
		r.Put("/decline", h.DeclineBooking)
		r.Put("/complete", h.CompleteBooking)
		r.Put("/status", h.UpdateBookingStatus)
	})
	return r
}

// PaymentRoutes mounts under /api/payments. The webhook authenticates by
// signature instead of a bearer token.
func (h *Handler) PaymentRoutes(v auth.Verifier) chi.Router {
	r := chi.NewRouter()
	r.Post("/webhook", h.HandleStripeWebhook)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(v, h.Logger))
		r.Post("/initiate", h.InitiatePayment)
		r.Get("/verify/{sessionId}", h.VerifyPayment)
	})
	return r
}

func principal(r *http.Request) models.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return models.WrapError(models.KindInvalidRequest, err, "invalid request body")
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if models.KindOf(err) == models.KindInternal {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Debug("API", fmt.Sprintf("%s: %v", op, err))
	}
	utils.WriteError(w, err)
}

// CreateBooking handles POST /api/bookings
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBookingRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, "CreateBooking", err)
		return
	}

	b, err := h.Bookings.CreateBooking(r.Context(), principal(r), req)
	if err != nil {
		h.fail(w, "CreateBooking", err)
		return
	}
	h.Logger.LogBooking("CREATED", b.ID, fmt.Sprintf("car %s for %d days", b.CarID, b.Days))
	utils.WriteSuccess(w, http.StatusCreated, "Booking created successfully", b)
}

// ListCustomerBookings handles GET /api/bookings/user
func (h *Handler) ListCustomerBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.Bookings.ListCustomerBookings(r.Context(), principal(r))
	if err != nil {
		h.fail(w, "ListCustomerBookings", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Bookings retrieved successfully", bookings)
}

// ListSellerBookings handles GET /api/bookings/seller?page=&limit=
func (h *Handler) ListSellerBookings(w http.ResponseWriter, r *http.Request) {
	page, limit := utils.ParsePagination(r)
	result, err := h.Bookings.ListSellerBookings(r.Context(), principal(r), page, limit)
	if err != nil {
		h.fail(w, "ListSellerBookings", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Bookings retrieved successfully", result)
}

// ListAllBookings handles GET /api/bookings/admin?page=&limit=
func (h *Handler) ListAllBookings(w http.ResponseWriter, r *http.Request) {
	page, limit := utils.ParsePagination(r)
	result, err := h.Bookings.ListAllBookings(r.Context(), principal(r), page, limit)
	if err != nil {
		h.fail(w, "ListAllBookings", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Bookings retrieved successfully", result)
}

// GetBooking handles GET /api/bookings/{bookingId}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.GetBooking(r.Context(), principal(r), chi.URLParam(r, "bookingId"))
	if err != nil {
		h.fail(w, "GetBooking", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Booking retrieved successfully", b)
}

// GetPaymentStatus handles GET /api/bookings/{bookingId}/payment-status
func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Bookings.PaymentStatus(r.Context(), principal(r), chi.URLParam(r, "bookingId"))
	if err != nil {
		h.fail(w, "GetPaymentStatus", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Payment status retrieved successfully", status)
}

// GetPaymentQR renders the open payment link of a booking as a PNG.
func (h *Handler) GetPaymentQR(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.GetBooking(r.Context(), principal(r), chi.URLParam(r, "bookingId"))
	if err != nil {
		h.fail(w, "GetPaymentQR", err)
		return
	}
	if !b.Payment.Usable(h.now()) {
		h.fail(w, "GetPaymentQR", models.Errorf(models.KindNotFound, "booking %s has no open payment link", b.ID))
		return
	}

	png, err := qr.Encode(b.Payment.URL, qr.DefaultSize)
	if err != nil {
		h.fail(w, "GetPaymentQR", models.WrapError(models.KindInternal, err, "render payment QR code"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// AcceptBooking handles PUT /api/bookings/{bookingId}/accept
func (h *Handler) AcceptBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("AcceptBooking: bookingId=%s", bookingID))

	resp, err := h.Bookings.Accept(r.Context(), principal(r), bookingID)
	if err != nil {
		h.fail(w, "AcceptBooking", err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Booking accepted", resp)
}

// CancelBooking handles PUT /api/bookings/{bookingId}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "CancelBooking", "Booking cancelled", h.Bookings.Cancel)
}

// DeclineBooking handles PUT /api/bookings/{bookingId}/decline
func (h *Handler) DeclineBooking(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "DeclineBooking", "Booking declined", h.Bookings.Decline)
}

// CompleteBooking handles PUT /api/bookings/{bookingId}/complete
func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "CompleteBooking", "Booking completed", h.Bookings.Complete)
}

// UpdateBookingStatus handles PUT /api/bookings/{bookingId}/status
func (h *Handler) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateStatusRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, "UpdateBookingStatus", err)
		return
	}
	h.changeStatus(w, r, "UpdateBookingStatus", "Booking status updated",
		func(ctx context.Context, p models.Principal, id string) (*models.Booking, error) {
			return h.Bookings.UpdateStatus(ctx, p, id, req.Status)
		})
}

type statusFunc func(ctx context.Context, p models.Principal, id string) (*models.Booking, error)

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, op, message string, fn statusFunc) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("%s: bookingId=%s", op, bookingID))

	b, err := fn(r.Context(), principal(r), bookingID)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, message, b)
}

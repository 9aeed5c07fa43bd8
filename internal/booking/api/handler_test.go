package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-rental/internal/auth"
	"ms-rental/internal/models"
	"ms-rental/internal/sse"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

var testSecret = []byte("test-secret")

const webhookSecret = "whsec_test"

type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) CreateBooking(ctx context.Context, p models.Principal, req models.CreateBookingRequest) (*models.Booking, error) {
	args := m.Called(ctx, p, req)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *MockBookingService) GetBooking(ctx context.Context, p models.Principal, id string) (*models.Booking, error) {
	args := m.Called(ctx, p, id)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *MockBookingService) ListCustomerBookings(ctx context.Context, p models.Principal) ([]models.Booking, error) {
	args := m.Called(ctx, p)
	b, _ := args.Get(0).([]models.Booking)
	return b, args.Error(1)
}

func (m *MockBookingService) ListSellerBookings(ctx context.Context, p models.Principal, page, limit int) (*models.BookingPage, error) {
	args := m.Called(ctx, p, page, limit)
	b, _ := args.Get(0).(*models.BookingPage)
	return b, args.Error(1)
}

func (m *MockBookingService) ListAllBookings(ctx context.Context, p models.Principal, page, limit int) (*models.BookingPage, error) {
	args := m.Called(ctx, p, page, limit)
	b, _ := args.Get(0).(*models.BookingPage)
	return b, args.Error(1)
}

func (m *MockBookingService) UpdateStatus(ctx context.Context, p models.Principal, id string, to models.BookingStatus) (*models.Booking, error) {
	args := m.Called(ctx, p, id, to)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *MockBookingService) Accept(ctx context.Context, p models.Principal, id string) (*models.AcceptResponse, error) {
	args := m.Called(ctx, p, id)
	b, _ := args.Get(0).(*models.AcceptResponse)
	return b, args.Error(1)
}

func (m *MockBookingService) Cancel(ctx context.Context, p models.Principal, id string) (*models.Booking, error) {
	args := m.Called(ctx, p, id)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *MockBookingService) Decline(ctx context.Context, p models.Principal, id string) (*models.Booking, error) {
	args := m.Called(ctx, p, id)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *MockBookingService) Complete(ctx context.Context, p models.Principal, id string) (*models.Booking, error) {
	args := m.Called(ctx, p, id)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *MockBookingService) InitiatePayment(ctx context.Context, p models.Principal, req models.InitiatePaymentRequest) (*models.PaymentSession, error) {
	args := m.Called(ctx, p, req)
	s, _ := args.Get(0).(*models.PaymentSession)
	return s, args.Error(1)
}

func (m *MockBookingService) VerifyPayment(ctx context.Context, p models.Principal, sessionID string) (*models.PaymentVerification, error) {
	args := m.Called(ctx, p, sessionID)
	v, _ := args.Get(0).(*models.PaymentVerification)
	return v, args.Error(1)
}

func (m *MockBookingService) PaymentStatus(ctx context.Context, p models.Principal, id string) (*models.PaymentStatusResponse, error) {
	args := m.Called(ctx, p, id)
	s, _ := args.Get(0).(*models.PaymentStatusResponse)
	return s, args.Error(1)
}

func (m *MockBookingService) HandlePaymentEvent(ctx context.Context, ev models.PaymentEvent) error {
	return m.Called(ctx, ev).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishPaymentResult(ctx context.Context, ev models.PaymentEvent) error {
	return m.Called(ctx, ev).Error(0)
}

var (
	customer = models.Principal{UserID: "cust-1", Role: models.RoleCustomer}
	seller   = models.Principal{UserID: "seller-1", Role: models.RoleSeller}
	admin    = models.Principal{UserID: "admin-1", Role: models.RoleAdmin}
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
}

func setup(t *testing.T) (*MockBookingService, *Handler, http.Handler) {
	t.Helper()
	svc := new(MockBookingService)
	h := NewHandler(svc, sse.NewBookingEventEmitter(), webhookSecret, nil)
	h.now = func() time.Time { return time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC) }

	v := auth.NewHMACVerifier(testSecret, "")
	r := chi.NewRouter()
	r.Mount("/api/bookings", h.BookingRoutes(v))
	r.Mount("/api/payments", h.PaymentRoutes(v))
	return svc, h, r
}

func token(t *testing.T, p models.Principal) string {
	t.Helper()
	tok, err := auth.IssueToken(testSecret, "", p.UserID, p.Role, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, router http.Handler, method, path string, p *models.Principal, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if p != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, *p))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestCreateBookingHandler(t *testing.T) {
	svc, _, router := setup(t)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	svc.On("CreateBooking", mock.Anything, customer, mock.MatchedBy(func(req models.CreateBookingRequest) bool {
		return req.CarID == "car-1" && req.StartDate.Equal(start) && req.EndDate.Equal(start.AddDate(0, 0, 3))
	})).
		Return(&models.Booking{ID: "bk_1", CarID: "car-1", Days: 3, Status: models.StatusPending}, nil)

	body := `{"carId":"car-1","startDate":"2024-06-01T00:00:00Z","endDate":"2024-06-04T00:00:00Z"}`
	rec, env := do(t, router, http.MethodPost, "/api/bookings", &customer, body)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)

	var b models.Booking
	require.NoError(t, json.Unmarshal(env.Data, &b))
	assert.Equal(t, "bk_1", b.ID)
	svc.AssertExpectations(t)
}

func TestCreateBookingHandlerRejections(t *testing.T) {
	svc, _, router := setup(t)

	rec, env := do(t, router, http.MethodPost, "/api/bookings", nil, `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", env.Code)

	rec, env = do(t, router, http.MethodPost, "/api/bookings", &seller, `{}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", env.Code)

	rec, env = do(t, router, http.MethodPost, "/api/bookings", &customer, `{"carId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", env.Code)

	svc.On("CreateBooking", mock.Anything, customer, mock.Anything).
		Return(nil, models.NewError(models.KindUnavailable, "car is not available for the requested dates"))
	rec, env = do(t, router, http.MethodPost, "/api/bookings", &customer, `{"carId":"car-1"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "unavailable", env.Code)
}

func TestListingHandlers(t *testing.T) {
	svc, _, router := setup(t)
	svc.On("ListCustomerBookings", mock.Anything, customer).Return([]models.Booking{{ID: "bk_1"}}, nil)
	svc.On("ListSellerBookings", mock.Anything, seller, 2, 100).Return(&models.BookingPage{Page: 2, Limit: 100}, nil)
	svc.On("ListAllBookings", mock.Anything, admin, 1, 10).Return(&models.BookingPage{Page: 1, Limit: 10}, nil)

	rec, _ := do(t, router, http.MethodGet, "/api/bookings/user", &customer, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, router, http.MethodGet, "/api/bookings/seller?page=2&limit=500", &seller, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, router, http.MethodGet, "/api/bookings/admin", &admin, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, router, http.MethodGet, "/api/bookings/admin", &seller, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	svc.AssertExpectations(t)
}

func TestAcceptHandler(t *testing.T) {
	svc, _, router := setup(t)
	expires := time.Date(2024, 5, 20, 11, 0, 0, 0, time.UTC)
	svc.On("Accept", mock.Anything, seller, "bk_1").Return(&models.AcceptResponse{
		Booking:    models.Booking{ID: "bk_1", Status: models.StatusAccepted},
		PaymentURL: "https://checkout.test/cs_1",
		ExpiresAt:  expires,
	}, nil).Once()
	svc.On("Accept", mock.Anything, seller, "bk_1").
		Return(nil, models.NewError(models.KindInvalidTransition, "booking is already accepted")).Once()

	rec, env := do(t, router, http.MethodPut, "/api/bookings/bk_1/accept", &seller, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.AcceptResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "https://checkout.test/cs_1", resp.PaymentURL)
	assert.True(t, resp.ExpiresAt.Equal(expires))

	rec, env = do(t, router, http.MethodPut, "/api/bookings/bk_1/accept", &seller, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", env.Code)
}

func TestStatusHandlers(t *testing.T) {
	svc, _, router := setup(t)
	svc.On("Cancel", mock.Anything, customer, "bk_1").Return(&models.Booking{ID: "bk_1", Status: models.StatusCancelled}, nil)
	svc.On("Decline", mock.Anything, seller, "bk_2").Return(&models.Booking{ID: "bk_2", Status: models.StatusDeclined}, nil)
	svc.On("Complete", mock.Anything, seller, "bk_3").Return(&models.Booking{ID: "bk_3", Status: models.StatusCompleted}, nil)
	svc.On("UpdateStatus", mock.Anything, seller, "bk_4", models.StatusDeclined).Return(&models.Booking{ID: "bk_4", Status: models.StatusDeclined}, nil)

	for _, tc := range []struct {
		path string
		p    models.Principal
		body string
	}{
		{"/api/bookings/bk_1/cancel", customer, ""},
		{"/api/bookings/bk_2/decline", seller, ""},
		{"/api/bookings/bk_3/complete", seller, ""},
		{"/api/bookings/bk_4/status", seller, `{"status":"declined"}`},
	} {
		p := tc.p
		rec, env := do(t, router, http.MethodPut, tc.path, &p, tc.body)
		assert.Equal(t, http.StatusOK, rec.Code, tc.path)
		assert.True(t, env.Success, tc.path)
	}
	svc.AssertExpectations(t)
}

func TestPaymentQRHandler(t *testing.T) {
	svc, _, router := setup(t)
	open := &models.Payment{
		URL:       "https://checkout.test/cs_1",
		Status:    models.PaymentOpen,
		ExpiresAt: time.Date(2024, 5, 20, 11, 0, 0, 0, time.UTC),
	}
	svc.On("GetBooking", mock.Anything, customer, "bk_1").Return(&models.Booking{ID: "bk_1", Payment: open}, nil)
	svc.On("GetBooking", mock.Anything, customer, "bk_2").Return(&models.Booking{ID: "bk_2"}, nil)

	rec, _ := do(t, router, http.MethodGet, "/api/bookings/bk_1/payment-qr", &customer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	rec, env := do(t, router, http.MethodGet, "/api/bookings/bk_2/payment-qr", &customer, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Code)
}

func TestPaymentHandlers(t *testing.T) {
	svc, _, router := setup(t)
	svc.On("InitiatePayment", mock.Anything, customer, models.InitiatePaymentRequest{BookingID: "bk_1", Amount: 15120, Currency: "usd"}).
		Return(&models.PaymentSession{BookingID: "bk_1", SessionID: "cs_1", URL: "https://checkout.test/cs_1"}, nil)
	svc.On("VerifyPayment", mock.Anything, customer, "cs_1").
		Return(&models.PaymentVerification{Paid: true, Booking: models.Booking{ID: "bk_1", Status: models.StatusPaid}}, nil)
	svc.On("PaymentStatus", mock.Anything, seller, "bk_1").
		Return(&models.PaymentStatusResponse{BookingID: "bk_1", Status: models.StatusPaid, DisplayStatus: "Paid"}, nil)

	rec, env := do(t, router, http.MethodPost, "/api/payments/initiate", &customer, `{"bookingId":"bk_1","amount":15120,"currency":"usd"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var session models.PaymentSession
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, "https://checkout.test/cs_1", session.URL)

	rec, env = do(t, router, http.MethodGet, "/api/payments/verify/cs_1", &customer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var verification models.PaymentVerification
	require.NoError(t, json.Unmarshal(env.Data, &verification))
	assert.True(t, verification.Paid)

	rec, _ = do(t, router, http.MethodGet, "/api/bookings/bk_1/payment-status", &seller, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, router, http.MethodGet, "/api/payments/verify/cs_1", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	svc.AssertExpectations(t)
}

func signedWebhook(t *testing.T, eventType string) *http.Request {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_1",
		"object":      "event",
		"type":        eventType,
		"created":     time.Now().Unix(),
		"api_version": "2020-08-27",
		"data": map[string]interface{}{"object": map[string]interface{}{
			"id":             "cs_1",
			"object":         "checkout.session",
			"payment_status": "paid",
			"metadata":       map[string]string{"booking_id": "bk_1"},
		}},
	})
	require.NoError(t, err)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: webhookSecret, Timestamp: time.Now()})

	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", strings.NewReader(string(sp.Payload)))
	req.Header.Set("Stripe-Signature", sp.Header)
	return req
}

func TestStripeWebhookAppliesEvent(t *testing.T) {
	svc, _, router := setup(t)
	svc.On("HandlePaymentEvent", mock.Anything, mock.MatchedBy(func(ev models.PaymentEvent) bool {
		return ev.SessionID == "cs_1" && ev.BookingID == "bk_1" && ev.Outcome == models.OutcomeSucceeded
	})).Return(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedWebhook(t, "checkout.session.completed"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, signedWebhook(t, "customer.created"))
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertNumberOfCalls(t, "HandlePaymentEvent", 1)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	svc, _, router := setup(t)
	req := signedWebhook(t, "checkout.session.completed")
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "HandlePaymentEvent", mock.Anything, mock.Anything)
}

func TestStripeWebhookUnknownBookingIsAcknowledged(t *testing.T) {
	svc, _, router := setup(t)
	svc.On("HandlePaymentEvent", mock.Anything, mock.Anything).Return(models.NewError(models.KindNotFound, "no booking for session"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedWebhook(t, "checkout.session.completed"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStripeWebhookQueuesToKafka(t *testing.T) {
	svc, h, router := setup(t)
	pub := new(MockPublisher)
	h.PaymentResults = pub
	pub.On("PublishPaymentResult", mock.Anything, mock.MatchedBy(func(ev models.PaymentEvent) bool {
		return ev.SessionID == "cs_1"
	})).Return(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedWebhook(t, "checkout.session.completed"))
	assert.Equal(t, http.StatusOK, rec.Code)
	pub.AssertExpectations(t)
	svc.AssertNotCalled(t, "HandlePaymentEvent", mock.Anything, mock.Anything)
}

func TestSellerStream(t *testing.T) {
	_, h, router := setup(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/bookings/seller/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, seller))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: connected", lines.Text())

	require.Eventually(t, func() bool { return h.Events.SellerClientCount("seller-1") == 1 }, time.Second, 5*time.Millisecond)

	b := models.Booking{ID: "bk_1", SellerID: "seller-1", CustomerID: "cust-1", Status: models.StatusAccepted}
	h.Events.Notify(models.NewBookingEvent(models.EventBookingStatusChanged, b, models.StatusPending, models.RoleSeller, time.Now()))

	for lines.Scan() {
		if lines.Text() == "event: booking" {
			require.True(t, lines.Scan())
			assert.Contains(t, lines.Text(), `"bookingId":"bk_1"`)
			return
		}
	}
	t.Fatal("stream closed before booking event")
}

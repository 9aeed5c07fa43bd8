package booking_test

import (
	"context"
	"testing"
	"time"

	"ms-rental/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (h *harness) accepted(t *testing.T) *models.Booking {
	t.Helper()
	b := h.create(t, june(1), june(4))
	resp, err := h.svc.Accept(context.Background(), seller, b.ID)
	require.NoError(t, err)
	return &resp.Booking
}

func TestPayAndVerify(t *testing.T) {
	h := newHarness(t)
	h.expectCheckout("cs_1")
	ctx := context.Background()
	b := h.accepted(t)

	sess, err := h.svc.InitiatePayment(ctx, customer, models.InitiatePaymentRequest{BookingID: b.ID, Amount: 15120, Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", sess.SessionID)
	assert.Equal(t, "https://checkout.example/cs_1", sess.URL)
	// the open link from acceptance is reused
	h.gateway.AssertNumberOfCalls(t, "CreateCheckout", 1)

	h.gateway.On("GetCheckout", mock.Anything, "cs_1").Return(&models.CheckoutSession{ID: "cs_1", Paid: true}, nil).Once()

	res, err := h.svc.VerifyPayment(ctx, customer, "cs_1")
	require.NoError(t, err)
	assert.True(t, res.Paid)
	assert.Equal(t, models.StatusPaid, res.Booking.Status)
	require.NotNil(t, res.Booking.Payment)
	assert.Equal(t, models.PaymentPaid, res.Booking.Payment.Status)
	assert.NotNil(t, res.Booking.Payment.PaidAt)
	assert.Equal(t, int64(15120), res.Booking.TotalPrice)

	// verifying again does not ask the provider a second time
	res, err = h.svc.VerifyPayment(ctx, customer, "cs_1")
	require.NoError(t, err)
	assert.True(t, res.Paid)
	h.gateway.AssertNumberOfCalls(t, "GetCheckout", 1)

	_, err = h.svc.InitiatePayment(ctx, customer, models.InitiatePaymentRequest{BookingID: b.ID})
	assert.True(t, models.IsKind(err, models.KindInvalidTransition))
}

func TestVerifyUnpaidSession(t *testing.T) {
	h := newHarness(t)
	h.expectCheckout("cs_1")
	b := h.accepted(t)
	h.gateway.On("GetCheckout", mock.Anything, "cs_1").Return(&models.CheckoutSession{ID: "cs_1"}, nil)

	res, err := h.svc.VerifyPayment(context.Background(), customer, "cs_1")
	require.NoError(t, err)
	assert.False(t, res.Paid)
	assert.Equal(t, models.StatusAccepted, h.stored(t, b.ID).Status)
}

func TestVerifyUnknownSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.VerifyPayment(context.Background(), customer, "cs_nope")
	assert.True(t, models.IsKind(err, models.KindNotFound))

	_, err = h.svc.VerifyPayment(context.Background(), customer, "")
	assert.True(t, models.IsKind(err, models.KindInvalidRequest))
}

func TestInitiatePaymentReplacesExpiredLink(t *testing.T) {
	h := newHarness(t)
	h.expectCheckout("cs_1").Once()
	ctx := context.Background()
	b := h.accepted(t)

	h.now = h.now.Add(2 * time.Hour)
	h.expectCheckout("cs_2").Once()

	sess, err := h.svc.InitiatePayment(ctx, customer, models.InitiatePaymentRequest{BookingID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, "cs_2", sess.SessionID)
	assert.False(t, sess.Expired(h.now))
	h.gateway.AssertNumberOfCalls(t, "CreateCheckout", 2)

	stored := h.stored(t, b.ID)
	assert.Equal(t, "cs_2", stored.Payment.ProviderSessionID)
	assert.Equal(t, models.StatusAccepted, stored.Status)
	assert.Contains(t, h.notifier.types(), models.EventBookingPaymentUpdate)
}

func TestInitiatePaymentGuards(t *testing.T) {
	h := newHarness(t)
	h.expectCheckout("cs_1")
	ctx := context.Background()

	pending := h.create(t, june(10), june(12))
	_, err := h.svc.InitiatePayment(ctx, customer, models.InitiatePaymentRequest{BookingID: pending.ID})
	assert.True(t, models.IsKind(err, models.KindInvalidTransition))

	b := h.accepted(t)

	_, err = h.svc.InitiatePayment(ctx, customer, models.InitiatePaymentRequest{BookingID: b.ID, Amount: 100})
	assert.True(t, models.IsKind(err, models.KindInvalidRequest))

	_, err = h.svc.InitiatePayment(ctx, customer, models.InitiatePaymentRequest{BookingID: b.ID, Currency: "eur"})
	assert.True(t, models.IsKind(err, models.KindInvalidRequest))

	_, err = h.svc.InitiatePayment(ctx, otherCustomer, models.InitiatePaymentRequest{BookingID: b.ID})
	assert.True(t, models.IsKind(err, models.KindForbidden))

	_, err = h.svc.InitiatePayment(ctx, seller, models.InitiatePaymentRequest{BookingID: b.ID})
	assert.True(t, models.IsKind(err, models.KindForbidden))

	_, err = h.svc.InitiatePayment(ctx, customer, models.InitiatePaymentRequest{})
	assert.True(t, models.IsKind(err, models.KindInvalidRequest))
}

func TestPaymentEventSucceededIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.expectCheckout("cs_1")
	ctx := context.Background()
	b := h.accepted(t)

	ev := models.PaymentEvent{SessionID: "cs_1", BookingID: b.ID, Outcome: models.OutcomeSucceeded, OccurredAt: h.now}
	require.NoError(t, h.svc.HandlePaymentEvent(ctx, ev))
	first := h.stored(t, b.ID)
	assert.Equal(t, models.StatusPaid, first.Status)

	require.NoError(t, h.svc.HandlePaymentEvent(ctx, ev))
	second := h.stored(t, b.ID)
	assert.Equal(t, first.Version, second.Version)
}

func TestPaymentEventExpiredKeepsBookingAccepted(t *testing.T) {
	h := newHarness(t)
	h.expectCheckout("cs_1")
	ctx := context.Background()
	b := h.accepted(t)

	require.NoError(t, h.svc.HandlePaymentEvent(ctx, models.PaymentEvent{SessionID: "cs_1", Outcome: models.OutcomeExpired}))

	stored := h.stored(t, b.ID)
	assert.Equal(t, models.StatusAccepted, stored.Status)
	assert.Equal(t, models.PaymentExpired, stored.Payment.Status)

	status, err := h.svc.PaymentStatus(ctx, seller, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Accepted", status.DisplayStatus)
	assert.Equal(t, models.PaymentExpired, status.Payment.Status)

	// an expired record is not reusable, so the customer gets a fresh link
	h.gateway.ExpectedCalls = nil
	h.expectCheckout("cs_2")
	sess, err := h.svc.InitiatePayment(ctx, customer, models.InitiatePaymentRequest{BookingID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, "cs_2", sess.SessionID)
}

func TestPaymentEventFallsBackToBookingID(t *testing.T) {
	h := newHarness(t)
	h.expectCheckout("cs_1")
	ctx := context.Background()
	b := h.accepted(t)

	err := h.svc.HandlePaymentEvent(ctx, models.PaymentEvent{SessionID: "cs_old", BookingID: b.ID, Outcome: models.OutcomeSucceeded})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, h.stored(t, b.ID).Status)

	err = h.svc.HandlePaymentEvent(ctx, models.PaymentEvent{SessionID: "cs_unknown", Outcome: models.OutcomeSucceeded})
	assert.True(t, models.IsKind(err, models.KindNotFound))

	err = h.svc.HandlePaymentEvent(ctx, models.PaymentEvent{BookingID: b.ID, Outcome: "refunded"})
	assert.True(t, models.IsKind(err, models.KindInvalidRequest))
}

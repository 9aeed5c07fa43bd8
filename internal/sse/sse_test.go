package sse

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"ms-rental/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(sellerID, customerID string) models.BookingEvent {
	b := models.Booking{ID: "bk_1", SellerID: sellerID, CustomerID: customerID, Status: models.StatusAccepted}
	return models.NewBookingEvent(models.EventBookingStatusChanged, b, models.StatusPending, models.RoleSeller, time.Now())
}

func TestNotifyReachesSellerAndCustomer(t *testing.T) {
	e := NewBookingEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sellerCh := e.SubscribeSeller(ctx, "seller-1")
	customerCh := e.SubscribeCustomer(ctx, "cust-1")
	otherCh := e.SubscribeSeller(ctx, "seller-2")

	e.Notify(event("seller-1", "cust-1"))

	select {
	case ev := <-sellerCh:
		assert.Equal(t, "bk_1", ev.BookingID)
	case <-time.After(time.Second):
		t.Fatal("seller did not receive event")
	}
	select {
	case ev := <-customerCh:
		assert.Equal(t, models.StatusAccepted, ev.To)
	case <-time.After(time.Second):
		t.Fatal("customer did not receive event")
	}
	select {
	case <-otherCh:
		t.Fatal("unrelated seller received event")
	default:
	}
}

func TestUnsubscribeOnCancel(t *testing.T) {
	e := NewBookingEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	ch := e.SubscribeSeller(ctx, "seller-1")
	assert.Equal(t, 1, e.SellerClientCount("seller-1"))

	cancel()
	require.Eventually(t, func() bool { return e.SellerClientCount("seller-1") == 0 }, time.Second, 5*time.Millisecond)

	_, open := <-ch
	assert.False(t, open)

	// emitting after removal must not panic
	e.Notify(event("seller-1", "cust-1"))
}

func TestSlowClientDoesNotBlock(t *testing.T) {
	e := NewBookingEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.SubscribeCustomer(ctx, "cust-1")
	done := make(chan struct{})
	go func() {
		for i := 0; i < clientBuffer*3; i++ {
			e.Notify(event("seller-1", "cust-1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full client")
	}
	assert.Equal(t, 1, e.CustomerClientCount("cust-1"))
}

func TestWriteEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupHeaders(rec)

	require.NoError(t, WriteEvent(rec, "booking", map[string]string{"id": "bk_1"}))

	assert.Equal(t, "text/event-stream;charset=UTF-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "event: booking\ndata: {\"id\":\"bk_1\"}\n\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

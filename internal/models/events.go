package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventBookingCreated       = "booking.created"
	EventBookingStatusChanged = "booking.status_changed"
	EventBookingPaymentUpdate = "booking.payment_updated"
)

// BookingEvent is published to Kafka and pushed to SSE subscribers.
type BookingEvent struct {
	EventID    string        `json:"eventId"`
	Type       string        `json:"type"`
	BookingID  string        `json:"bookingId"`
	CarID      string        `json:"carId"`
	CustomerID string        `json:"customerId"`
	SellerID   string        `json:"sellerId"`
	From       BookingStatus `json:"from,omitempty"`
	To         BookingStatus `json:"to"`
	Actor      Role          `json:"actor"`
	OccurredAt time.Time     `json:"occurredAt"`
	Booking    Booking       `json:"booking"`
}

func NewBookingEvent(eventType string, b Booking, from BookingStatus, actor Role, at time.Time) BookingEvent {
	return BookingEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		BookingID:  b.ID,
		CarID:      b.CarID,
		CustomerID: b.CustomerID,
		SellerID:   b.SellerID,
		From:       from,
		To:         b.Status,
		Actor:      actor,
		OccurredAt: at,
		Booking:    b.Clone(),
	}
}

type PaymentOutcome string

const (
	OutcomeSucceeded PaymentOutcome = "succeeded"
	OutcomeExpired   PaymentOutcome = "expired"
	OutcomeFailed    PaymentOutcome = "failed"
)

// PaymentEvent reports a provider-side payment result for a booking.
type PaymentEvent struct {
	SessionID  string         `json:"sessionId"`
	BookingID  string         `json:"bookingId"`
	Outcome    PaymentOutcome `json:"outcome"`
	OccurredAt time.Time      `json:"occurredAt"`
}

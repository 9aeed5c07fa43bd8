package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	rentalkafka "ms-rental/internal/kafka"
	"ms-rental/internal/models"

	"github.com/segmentio/kafka-go"
)

// Producer publishes booking lifecycle events keyed by booking id.
type Producer struct {
	*rentalkafka.Producer
}

func NewProducer(p *rentalkafka.Producer) *Producer {
	return &Producer{Producer: p}
}

// PublishBookingEvent streams a booking event to Kafka
func (p *Producer) PublishBookingEvent(ctx context.Context, ev models.BookingEvent) error {
	return p.PublishJSON(ctx, ev.BookingID, ev)
}

// PublishPaymentResult streams a provider payment result to Kafka
func (p *Producer) PublishPaymentResult(ctx context.Context, ev models.PaymentEvent) error {
	key := ev.BookingID
	if key == "" {
		key = ev.SessionID
	}
	return p.PublishJSON(ctx, key, ev)
}

type PaymentEventHandler interface {
	HandlePaymentEvent(ctx context.Context, ev models.PaymentEvent) error
}

// PaymentResultHandler decodes payment results and hands them to h. Unknown
// bookings and malformed messages are dropped; anything else is retried.
func PaymentResultHandler(h PaymentEventHandler) rentalkafka.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var ev models.PaymentEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return fmt.Errorf("decode payment result: %w", err)
		}
		err := h.HandlePaymentEvent(ctx, ev)
		if err == nil {
			return nil
		}
		switch models.KindOf(err) {
		case models.KindNotFound, models.KindInvalidRequest, models.KindForbidden, models.KindInvalidTransition:
			return err
		}
		return rentalkafka.Retry(err)
	}
}

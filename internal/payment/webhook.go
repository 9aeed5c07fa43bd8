package payment

import (
	"encoding/json"
	"fmt"
	"net/http"

	"ms-rental/internal/models"
	"ms-rental/internal/utils"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// WebhookError represents an error that occurred during webhook processing
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int    // HTTP status code
	PublicError   string // Safe to expose to clients
	InternalError string // Detailed error for logs only
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

// ParseWebhook verifies a Stripe webhook and turns checkout events into a
// PaymentEvent. Event types that do not affect bookings return nil, nil.
func ParseWebhook(payload []byte, signature, secret string) (*models.PaymentEvent, error) {
	if secret == "" {
		return nil, &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, opts)
	if err != nil {
		return nil, &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Webhook signature verification failed",
			InternalError: fmt.Sprintf("verify webhook signature: %v", err),
			OriginalErr:   err,
		}
	}

	var outcome models.PaymentOutcome
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		outcome = models.OutcomeSucceeded
	case "checkout.session.expired":
		outcome = models.OutcomeExpired
	case "checkout.session.async_payment_failed":
		outcome = models.OutcomeFailed
	default:
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("decode checkout session: %v", err),
			OriginalErr:   err,
		}
	}

	// a completed session paid by a delayed method settles later
	if event.Type == "checkout.session.completed" && sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, nil
	}

	bookingID := sess.Metadata["booking_id"]
	if bookingID == "" {
		bookingID = sess.ClientReferenceID
	}
	if bookingID == "" && sess.ID == "" {
		return nil, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid checkout session data",
			InternalError: "checkout session has neither id nor booking reference",
		}
	}

	return &models.PaymentEvent{
		SessionID:  sess.ID,
		BookingID:  bookingID,
		Outcome:    outcome,
		OccurredAt: utils.UnixTimeToTime(event.Created),
	}, nil
}

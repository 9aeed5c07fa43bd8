package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ms-rental/internal/config"
	"ms-rental/internal/logger"
	"ms-rental/internal/models"
	"ms-rental/internal/utils"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// Stripe only accepts checkout expiries between 30 minutes and 24 hours out.
const (
	MinSessionTTL = 31 * time.Minute
	MaxSessionTTL = 24 * time.Hour
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// StripeGateway opens and inspects Stripe Checkout Sessions for bookings.
type StripeGateway struct {
	client     *client.API
	successURL string
	cancelURL  string
	log        *logger.Logger
	now        func() time.Time
}

func NewStripeGateway(cfg config.StripeConfig, log *logger.Logger) (*StripeGateway, error) {
	return NewStripeGatewayWithBackends(cfg, nil, log)
}

// NewStripeGatewayWithBackends lets callers point the client at another API host.
func NewStripeGatewayWithBackends(cfg config.StripeConfig, backends *stripe.Backends, log *logger.Logger) (*StripeGateway, error) {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY not set")
		return nil, ErrStripeClientInitFailed
	}
	sc := client.New(cfg.SecretKey, backends)
	if sc == nil {
		return nil, ErrStripeClientInitFailed
	}
	log.Info("STRIPE", "Stripe client initialized")
	return &StripeGateway{
		client:     sc,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		log:        log,
		now:        time.Now,
	}, nil
}

// CreateCheckout opens a one-item payment session for the booking total.
func (g *StripeGateway) CreateCheckout(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	if req.Amount <= 0 {
		return nil, models.Errorf(models.KindInvalidRequest, "invalid payment amount %d", req.Amount)
	}

	now := g.now()
	ttl := utils.ClampDuration(req.ExpiresAt.Sub(now), MinSessionTTL, MaxSessionTTL)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(req.BookingID),
		ExpiresAt:         stripe.Int64(now.Add(ttl).Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("booking_id", req.BookingID)
	params.AddMetadata("customer_id", req.CustomerID)

	sess, err := g.client.CheckoutSessions.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("create checkout for %s: %v", req.BookingID, err))
		return nil, classify(err, "create checkout session")
	}

	g.log.LogPayment("CHECKOUT_CREATED", req.BookingID, sess.ID)
	return toCheckout(sess), nil
}

func (g *StripeGateway) GetCheckout(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := g.client.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, classify(err, "get checkout session "+sessionID)
	}
	return toCheckout(sess), nil
}

// ExpireCheckout voids an open session so its link stops working.
func (g *StripeGateway) ExpireCheckout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := g.client.CheckoutSessions.Expire(sessionID, params); err != nil {
		return classify(err, "expire checkout session "+sessionID)
	}
	g.log.Info("STRIPE", "expired checkout session "+sessionID)
	return nil
}

func toCheckout(s *stripe.CheckoutSession) *models.CheckoutSession {
	out := &models.CheckoutSession{
		ID:      s.ID,
		URL:     s.URL,
		Paid:    s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Expired: s.Status == stripe.CheckoutSessionStatusExpired,
	}
	if s.ExpiresAt > 0 {
		out.ExpiresAt = utils.UnixTimeToTime(s.ExpiresAt)
	}
	return out
}

// classify maps Stripe API errors onto booking error kinds. Anything that is
// not a client error is treated as the provider being unreachable.
func classify(err error, op string) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == http.StatusNotFound:
			return models.WrapError(models.KindNotFound, err, "payment session not found")
		case se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != http.StatusTooManyRequests:
			return models.WrapError(models.KindInvalidRequest, err, "payment provider rejected the request")
		}
	}
	return models.WrapError(models.KindNetwork, fmt.Errorf("%s: %w", op, err), "payment provider unavailable")
}

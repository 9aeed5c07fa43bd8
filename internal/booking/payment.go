package booking

import (
	"context"
	"fmt"
	"strings"

	"ms-rental/internal/models"
	"ms-rental/internal/pricing"
)

// openCheckout asks the gateway for a checkout session covering b's total.
func (s *BookingService) openCheckout(ctx context.Context, b *models.Booking) (*models.Payment, error) {
	if s.Payments == nil {
		return nil, models.NewError(models.KindNoPaymentURL, "payments are not configured")
	}
	expires := s.now().Add(s.linkTTL).UTC()
	sess, err := s.Payments.CreateCheckout(ctx, models.CheckoutRequest{
		BookingID:   b.ID,
		CustomerID:  b.CustomerID,
		Description: fmt.Sprintf("Car rental %s, %d day(s)", b.CarID, b.Days),
		Amount:      b.TotalPrice,
		Currency:    b.Currency,
		ExpiresAt:   expires,
	})
	if err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("checkout for %s failed: %v", b.ID, err))
		if models.Classified(err) {
			return nil, err
		}
		return nil, models.WrapError(models.KindNetwork, err, "payment provider unavailable")
	}
	if sess == nil || sess.URL == "" {
		return nil, models.NewError(models.KindNoPaymentURL, "payment provider returned no checkout url")
	}
	if !sess.ExpiresAt.IsZero() {
		expires = sess.ExpiresAt.UTC()
	}
	s.Logger.LogPayment("SESSION_OPENED", b.ID, fmt.Sprintf("%s %s until %s", sess.ID, pricing.FormatCents(b.TotalPrice, b.Currency), expires.Format("15:04:05")))
	return &models.Payment{
		URL:               sess.URL,
		ExpiresAt:         expires,
		ProviderSessionID: sess.ID,
		Status:            models.PaymentOpen,
		Amount:            b.TotalPrice,
		Currency:          b.Currency,
	}, nil
}

func sessionOf(b *models.Booking) *models.PaymentSession {
	return &models.PaymentSession{
		BookingID: b.ID,
		SessionID: b.Payment.ProviderSessionID,
		URL:       b.Payment.URL,
		ExpiresAt: b.Payment.ExpiresAt,
		Amount:    b.Payment.Amount,
		Currency:  b.Payment.Currency,
	}
}

// InitiatePayment returns a checkout session for an accepted booking. A link
// that is still open is handed back as is; an expired or voided one is replaced.
func (s *BookingService) InitiatePayment(ctx context.Context, p models.Principal, req models.InitiatePaymentRequest) (*models.PaymentSession, error) {
	if p.Role != models.RoleCustomer {
		return nil, models.NewError(models.KindForbidden, "only the customer can pay for a booking")
	}
	if req.BookingID == "" {
		return nil, models.NewError(models.KindInvalidRequest, "bookingId is required")
	}

	var out *models.PaymentSession
	err := s.withBookingLock(ctx, req.BookingID, func() error {
		b, err := s.DB.GetBookingByID(ctx, req.BookingID)
		if err != nil {
			return err
		}
		if b.CustomerID != p.UserID {
			return models.NewError(models.KindForbidden, "you cannot pay for this booking")
		}
		if b.Status != models.StatusAccepted {
			return models.Errorf(models.KindInvalidTransition, "booking is %s, only accepted bookings can be paid", b.Status)
		}
		if req.Amount != 0 && req.Amount != b.TotalPrice {
			return models.Errorf(models.KindInvalidRequest, "amount %d does not match booking total %d", req.Amount, b.TotalPrice)
		}
		if req.Currency != "" && !strings.EqualFold(req.Currency, b.Currency) {
			return models.Errorf(models.KindInvalidRequest, "currency %s does not match booking currency %s", req.Currency, b.Currency)
		}

		if b.Payment.Usable(s.now()) {
			out = sessionOf(b)
			return nil
		}

		version := b.Version
		next := b.Clone()
		payment, err := s.openCheckout(ctx, &next)
		if err != nil {
			return err
		}
		next.Payment = payment
		next.PaymentSessionID = payment.ProviderSessionID
		next.UpdatedAt = s.now().UTC()
		if err := s.DB.UpdateBooking(ctx, &next, version); err != nil {
			if xerr := s.Payments.ExpireCheckout(ctx, payment.ProviderSessionID); xerr != nil {
				s.Logger.Warn("PAYMENT", "expire orphaned session "+payment.ProviderSessionID+": "+xerr.Error())
			}
			if models.Classified(err) {
				return err
			}
			return models.WrapError(models.KindInternal, err, "could not save payment session")
		}
		s.emit(ctx, models.NewBookingEvent(models.EventBookingPaymentUpdate, next, next.Status, p.Role, s.now().UTC()))
		out = sessionOf(&next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyPayment checks a checkout session with the provider and marks the
// booking paid when it is. Calling it again after success is harmless.
func (s *BookingService) VerifyPayment(ctx context.Context, p models.Principal, sessionID string) (*models.PaymentVerification, error) {
	if sessionID == "" {
		return nil, models.NewError(models.KindInvalidRequest, "session id is required")
	}
	b, err := s.DB.GetBookingByPaymentSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canView(p, b) {
		return nil, models.NewError(models.KindForbidden, "you cannot verify this payment")
	}

	switch b.Status {
	case models.StatusPaid, models.StatusCompleted:
		return &models.PaymentVerification{Paid: true, Booking: *b}, nil
	case models.StatusAccepted:
	default:
		return &models.PaymentVerification{Paid: false, Booking: *b}, nil
	}
	if s.Payments == nil {
		return nil, models.NewError(models.KindNoPaymentURL, "payments are not configured")
	}

	sess, err := s.Payments.GetCheckout(ctx, sessionID)
	if err != nil {
		if models.Classified(err) {
			return nil, err
		}
		return nil, models.WrapError(models.KindNetwork, err, "could not reach payment provider")
	}

	switch {
	case sess.Paid:
		updated, err := s.settle(ctx, b.ID, sessionID, models.OutcomeSucceeded)
		if err != nil {
			return nil, err
		}
		return &models.PaymentVerification{Paid: true, Booking: *updated}, nil
	case sess.Expired:
		updated, err := s.settle(ctx, b.ID, sessionID, models.OutcomeExpired)
		if err != nil {
			return nil, err
		}
		return &models.PaymentVerification{Paid: false, Booking: *updated}, nil
	}
	return &models.PaymentVerification{Paid: false, Booking: *b}, nil
}

// PaymentStatus reports where a booking stands for the seller dashboard.
func (s *BookingService) PaymentStatus(ctx context.Context, p models.Principal, id string) (*models.PaymentStatusResponse, error) {
	b, err := s.GetBooking(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return &models.PaymentStatusResponse{
		BookingID:     b.ID,
		Status:        b.Status,
		DisplayStatus: b.StatusLabel(),
		Payment:       b.Payment,
	}, nil
}

// HandlePaymentEvent applies a provider result delivered by webhook or Kafka.
func (s *BookingService) HandlePaymentEvent(ctx context.Context, ev models.PaymentEvent) error {
	b, err := s.bookingForEvent(ctx, ev)
	if err != nil {
		return err
	}
	_, err = s.settle(ctx, b.ID, ev.SessionID, ev.Outcome)
	return err
}

func (s *BookingService) bookingForEvent(ctx context.Context, ev models.PaymentEvent) (*models.Booking, error) {
	if ev.SessionID != "" {
		b, err := s.DB.GetBookingByPaymentSession(ctx, ev.SessionID)
		if err == nil {
			return b, nil
		}
		if !models.IsKind(err, models.KindNotFound) || ev.BookingID == "" {
			return nil, err
		}
	}
	if ev.BookingID == "" {
		return nil, models.NewError(models.KindInvalidRequest, "payment event names neither session nor booking")
	}
	return s.DB.GetBookingByID(ctx, ev.BookingID)
}

// settle records a payment outcome under the booking lock. A success moves an
// accepted booking to paid as the system actor; an expired or failed session
// only marks the payment record so the customer can start over.
func (s *BookingService) settle(ctx context.Context, id, sessionID string, outcome models.PaymentOutcome) (*models.Booking, error) {
	var out *models.Booking
	err := s.withBookingLock(ctx, id, func() error {
		b, err := s.DB.GetBookingByID(ctx, id)
		if err != nil {
			return err
		}

		switch outcome {
		case models.OutcomeSucceeded:
			switch b.Status {
			case models.StatusAccepted:
				out, err = s.apply(ctx, models.SystemPrincipal, b, models.StatusPaid, s.now())
				return err
			case models.StatusPaid, models.StatusCompleted:
				out = b
				return nil
			}
			s.Logger.Error("PAYMENT", fmt.Sprintf("session %s paid for %s booking %s, needs refund", sessionID, b.Status, b.ID))
			out = b
			return nil

		case models.OutcomeExpired, models.OutcomeFailed:
			if b.Payment == nil || b.Payment.Status != models.PaymentOpen ||
				(sessionID != "" && b.Payment.ProviderSessionID != sessionID) {
				out = b
				return nil
			}
			version := b.Version
			next := b.Clone()
			next.Payment.Status = models.PaymentExpired
			if outcome == models.OutcomeFailed {
				next.Payment.Status = models.PaymentFailed
			}
			next.UpdatedAt = s.now().UTC()
			if err := s.DB.UpdateBooking(ctx, &next, version); err != nil {
				return err
			}
			s.Logger.LogPayment(strings.ToUpper(string(outcome)), next.ID, "session "+next.Payment.ProviderSessionID)
			s.emit(ctx, models.NewBookingEvent(models.EventBookingPaymentUpdate, next, next.Status, models.RoleSystem, s.now().UTC()))
			out = &next
			return nil
		}
		return models.Errorf(models.KindInvalidRequest, "unknown payment outcome %q", outcome)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

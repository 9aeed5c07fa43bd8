package orchestrator

import (
	"context"
	"fmt"

	"ms-rental/internal/models"
)

// InitiatePayment returns a payment link for an accepted booking. A live
// session is reused without a network call; an expired one is replaced.
// Bookings already verified as paid are refused. The booking is read only
// once no other mutation of it is in flight.
func (o *Orchestrator) InitiatePayment(ctx context.Context, bookingID string) (*models.PaymentSession, error) {
	const op = "initiate payment"

	release, err := o.guard(bookingID)
	if err != nil {
		return nil, o.refuse(SlicePayment, op, err)
	}
	defer release()

	o.mu.RLock()
	paid := o.state.Paid[bookingID]
	live, hasLive := o.state.liveSession(bookingID, o.now())
	b, known := o.state.find(bookingID)
	o.mu.RUnlock()

	if paid {
		return nil, o.refuse(SlicePayment, op, models.Errorf(models.KindInvalidTransition, "booking %s is already paid", bookingID))
	}
	if known && b.Status != models.StatusAccepted {
		return nil, o.refuse(SlicePayment, op, models.Errorf(models.KindInvalidTransition,
			"booking %s is %s and cannot be paid", bookingID, b.StatusLabel()))
	}

	var session *models.PaymentSession
	err = o.run(ctx, SlicePayment, op, func(ctx context.Context) (outcome, error) {
		if hasLive {
			session = &live
			return outcome{
				message: "Continue to payment",
				reduce:  func(s *State) { s.Sessions[bookingID] = live },
			}, nil
		}

		req := models.InitiatePaymentRequest{BookingID: bookingID}
		if known {
			req.Amount = b.TotalPrice
			req.Currency = b.Currency
		}
		sess, err := o.api.InitiatePayment(ctx, req)
		if err != nil {
			return outcome{}, err
		}
		if sess.URL == "" {
			return outcome{}, models.Errorf(models.KindNoPaymentURL, "no payment link was returned for booking %s", bookingID)
		}
		if sess.Expired(o.now()) {
			return outcome{}, models.Errorf(models.KindNoPaymentURL, "payment link for booking %s is already expired", bookingID)
		}
		session = sess
		return outcome{
			message: "Continue to payment",
			reduce:  func(s *State) { s.Sessions[bookingID] = *sess },
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// VerifyPayment checks a returned checkout session. When it is paid the
// booking is marked paid locally and no further initiation is allowed.
func (o *Orchestrator) VerifyPayment(ctx context.Context, sessionID string) (*models.PaymentVerification, error) {
	const op = "verify payment"

	bookingID := o.bookingForSession(sessionID)
	if bookingID != "" {
		release, err := o.guard(bookingID)
		if err != nil {
			return nil, o.refuse(SlicePayment, op, err)
		}
		defer release()
	}

	var result *models.PaymentVerification
	err := o.run(ctx, SlicePayment, op, func(ctx context.Context) (outcome, error) {
		v, err := o.api.VerifyPayment(ctx, sessionID)
		if err != nil {
			return outcome{}, err
		}
		result = v
		msg := "Payment not completed yet"
		if v.Paid {
			msg = "Payment successful"
		}
		return outcome{
			message: msg,
			reduce: func(s *State) {
				if v.Booking.ID == "" {
					return
				}
				s.merge(v.Booking)
				if v.Paid {
					s.Paid[v.Booking.ID] = true
					delete(s.Sessions, v.Booking.ID)
				}
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RefreshPaymentStatus pulls the server's view of one booking's payment.
func (o *Orchestrator) RefreshPaymentStatus(ctx context.Context, bookingID string) (*models.PaymentStatusResponse, error) {
	var status *models.PaymentStatusResponse
	err := o.run(ctx, SlicePayment, "refresh payment status", func(ctx context.Context) (outcome, error) {
		st, err := o.api.PaymentStatus(ctx, bookingID)
		if err != nil {
			return outcome{}, err
		}
		status = st
		return outcome{
			message: fmt.Sprintf("Booking %s", st.DisplayStatus),
			reduce:  func(s *State) { applyPaymentStatus(s, st) },
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func applyPaymentStatus(s *State, st *models.PaymentStatusResponse) {
	b, ok := s.find(st.BookingID)
	if !ok {
		return
	}
	b.Status = st.Status
	if st.Payment != nil {
		p := *st.Payment
		b.Payment = &p
	}
	s.merge(b)
	if st.Status == models.StatusPaid || st.Status == models.StatusCompleted {
		s.Paid[st.BookingID] = true
		delete(s.Sessions, st.BookingID)
	}
}

func (o *Orchestrator) bookingForSession(sessionID string) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for id, sess := range o.state.Sessions {
		if sess.SessionID == sessionID {
			return id
		}
	}
	for _, b := range o.state.Bookings {
		if b.Payment != nil && b.Payment.ProviderSessionID == sessionID {
			return b.ID
		}
	}
	return ""
}

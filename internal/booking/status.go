package booking

import (
	"context"
	"fmt"
	"time"

	"ms-rental/internal/models"
	"ms-rental/internal/pricing"
	"ms-rental/internal/utils"
)

// UpdateStatus moves booking id to status to on behalf of p. On any failure
// the stored booking is left untouched.
func (s *BookingService) UpdateStatus(ctx context.Context, p models.Principal, id string, to models.BookingStatus) (*models.Booking, error) {
	return s.updateStatus(ctx, p, id, to, s.now())
}

func (s *BookingService) updateStatus(ctx context.Context, p models.Principal, id string, to models.BookingStatus, now time.Time) (*models.Booking, error) {
	var out *models.Booking
	err := s.withBookingLock(ctx, id, func() error {
		b, err := s.DB.GetBookingByID(ctx, id)
		if err != nil {
			return err
		}
		if !canChange(p, b) {
			return models.NewError(models.KindForbidden, "you are not a party to this booking")
		}
		if err := Transition(b.Status, to, p.Role); err != nil {
			return err
		}
		out, err = s.apply(ctx, p, b, to, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Accept approves a pending booking and attaches a payment link.
func (s *BookingService) Accept(ctx context.Context, p models.Principal, id string) (*models.AcceptResponse, error) {
	b, err := s.UpdateStatus(ctx, p, id, models.StatusAccepted)
	if err != nil {
		return nil, err
	}
	resp := &models.AcceptResponse{Booking: *b}
	if b.Payment != nil {
		resp.PaymentURL = b.Payment.URL
		resp.ExpiresAt = b.Payment.ExpiresAt
	}
	return resp, nil
}

func (s *BookingService) Cancel(ctx context.Context, p models.Principal, id string) (*models.Booking, error) {
	return s.UpdateStatus(ctx, p, id, models.StatusCancelled)
}

func (s *BookingService) Decline(ctx context.Context, p models.Principal, id string) (*models.Booking, error) {
	return s.UpdateStatus(ctx, p, id, models.StatusDeclined)
}

func (s *BookingService) Complete(ctx context.Context, p models.Principal, id string) (*models.Booking, error) {
	return s.UpdateStatus(ctx, p, id, models.StatusCompleted)
}

// apply runs the side effects of a transition the caller already checked
// against the lifecycle table and persists it as of now. Caller holds the
// booking lock.
func (s *BookingService) apply(ctx context.Context, p models.Principal, b *models.Booking, to models.BookingStatus, now time.Time) (*models.Booking, error) {
	if err := Ready(*b, to, now); err != nil {
		return nil, err
	}
	from := b.Status
	version := b.Version
	next := b.Clone()
	now = now.UTC()

	switch to {
	case models.StatusAccepted:
		release, err := s.holdCar(ctx, &next)
		if err != nil {
			return nil, err
		}
		defer release()

		payment, err := s.openCheckout(ctx, &next)
		if err != nil {
			return nil, err
		}
		next.Payment = payment
		next.PaymentSessionID = payment.ProviderSessionID

	case models.StatusCancelled:
		if from == models.StatusAccepted && next.Payment != nil && next.Payment.Status == models.PaymentOpen {
			if err := s.Payments.ExpireCheckout(ctx, next.Payment.ProviderSessionID); err != nil {
				s.Logger.Warn("PAYMENT", fmt.Sprintf("void session %s for %s: %v", next.Payment.ProviderSessionID, next.ID, err))
			}
			next.Payment.Status = models.PaymentVoid
		}

	case models.StatusPaid:
		if next.Payment != nil {
			next.Payment.Status = models.PaymentPaid
			next.Payment.PaidAt = &now
		}
	}

	next.Status = to
	next.UpdatedAt = now
	if err := s.DB.UpdateBooking(ctx, &next, version); err != nil {
		if to == models.StatusAccepted && next.Payment != nil {
			if xerr := s.Payments.ExpireCheckout(ctx, next.Payment.ProviderSessionID); xerr != nil {
				s.Logger.Warn("PAYMENT", "expire orphaned session "+next.Payment.ProviderSessionID+": "+xerr.Error())
			}
		}
		if models.Classified(err) {
			return nil, err
		}
		return nil, models.WrapError(models.KindInternal, err, "could not update booking")
	}

	s.Logger.LogBooking("STATUS", next.ID, fmt.Sprintf("%s -> %s by %s", from, to, p.Role))
	s.emit(ctx, models.NewBookingEvent(models.EventBookingStatusChanged, next, from, p.Role, now))
	return &next, nil
}

// holdCar takes the car lock and re-checks that no accepted or paid booking
// has claimed the window since b was requested.
func (s *BookingService) holdCar(ctx context.Context, b *models.Booking) (func(), error) {
	owner := utils.NewLockOwner()
	ok, err := s.Lock.LockCar(ctx, b.CarID, owner)
	if err != nil {
		return nil, models.WrapError(models.KindInternal, err, "could not lock car")
	}
	if !ok {
		return nil, models.Errorf(models.KindConflict, "another booking for car %s is being accepted, try again", b.CarID)
	}
	release := func() {
		if err := s.Lock.UnlockCar(context.WithoutCancel(ctx), b.CarID, owner); err != nil {
			s.Logger.Warn("REDIS", "unlock car "+b.CarID+": "+err.Error())
		}
	}

	blocking, err := s.DB.ListBlockingForCar(ctx, b.CarID, b.StartDate, b.EndDate)
	if err != nil {
		release()
		return nil, models.WrapError(models.KindInternal, err, "could not check availability")
	}
	if taken := pricing.Conflicts(blocking, pricing.WindowOf(*b), b.ID); len(taken) > 0 {
		release()
		return nil, models.Errorf(models.KindConflict, "car is already booked for these dates by %s", taken[0].ID)
	}
	return release, nil
}

// CompleteEndedRentals moves paid bookings whose rental period ended at or
// before now to completed. It returns how many were completed.
func (s *BookingService) CompleteEndedRentals(ctx context.Context, now time.Time) (int, error) {
	ended, err := s.DB.ListPaidEndedBefore(ctx, now, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list ended rentals: %w", err)
	}

	done := 0
	for _, b := range ended {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := s.updateStatus(ctx, models.SystemPrincipal, b.ID, models.StatusCompleted, now); err != nil {
			s.Logger.Warn("WORKER", fmt.Sprintf("complete %s: %v", b.ID, err))
			continue
		}
		done++
	}
	if done > 0 {
		s.Logger.LogProcess("COMPLETION_SWEEP", fmt.Sprintf("completed %d of %d ended rentals", done, len(ended)))
	}
	return done, nil
}

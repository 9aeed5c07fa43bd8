package orchestrator

import (
	"context"
	"fmt"

	"ms-rental/internal/booking"
	"ms-rental/internal/models"
	"ms-rental/internal/pricing"
)

// FetchMyBookings replaces the booking list with the customer's bookings.
func (o *Orchestrator) FetchMyBookings(ctx context.Context) error {
	return o.run(ctx, SliceBookings, "fetch bookings", func(ctx context.Context) (outcome, error) {
		list, err := o.api.ListMyBookings(ctx)
		if err != nil {
			return outcome{}, err
		}
		return outcome{reduce: func(s *State) {
			s.Bookings = list
			s.Page = nil
			s.loaded(list)
		}}, nil
	})
}

// FetchSellerBookings loads one page of the seller's bookings.
func (o *Orchestrator) FetchSellerBookings(ctx context.Context, page, limit int) error {
	return o.run(ctx, SliceBookings, "fetch seller bookings", func(ctx context.Context) (outcome, error) {
		p, err := o.api.ListSellerBookings(ctx, page, limit)
		if err != nil {
			return outcome{}, err
		}
		return outcome{reduce: func(s *State) {
			s.Page = p
			s.Bookings = p.Items
			s.loaded(p.Items)
		}}, nil
	})
}

// FetchAllBookings loads one page of every booking, for admins.
func (o *Orchestrator) FetchAllBookings(ctx context.Context, page, limit int) error {
	return o.run(ctx, SliceBookings, "fetch all bookings", func(ctx context.Context) (outcome, error) {
		p, err := o.api.ListAllBookings(ctx, page, limit)
		if err != nil {
			return outcome{}, err
		}
		return outcome{reduce: func(s *State) {
			s.Page = p
			s.Bookings = p.Items
			s.loaded(p.Items)
		}}, nil
	})
}

func (o *Orchestrator) FetchBooking(ctx context.Context, id string) error {
	return o.run(ctx, SliceBooking, "fetch booking", func(ctx context.Context) (outcome, error) {
		b, err := o.api.GetBooking(ctx, id)
		if err != nil {
			return outcome{}, err
		}
		return outcome{reduce: func(s *State) {
			c := b.Clone()
			s.Current = &c
			s.merge(*b)
		}}, nil
	})
}

// CreateBooking submits a booking request. Missing or reversed dates are
// rejected locally.
func (o *Orchestrator) CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error) {
	var created *models.Booking
	err := o.run(ctx, SliceBooking, "create booking", func(ctx context.Context) (outcome, error) {
		if err := req.Validate(); err != nil {
			return outcome{}, err
		}
		if _, err := pricing.DurationDays(req.StartDate, req.EndDate); err != nil {
			return outcome{}, err
		}
		b, err := o.api.CreateBooking(ctx, req)
		if err != nil {
			return outcome{}, err
		}
		created = b
		return outcome{
			message: "Booking request sent",
			reduce: func(s *State) {
				c := b.Clone()
				s.Current = &c
				s.merge(*b)
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateStatus changes a booking's status. The move is checked against the
// lifecycle locally, applied optimistically and reverted if the server
// rejects it, unless a fresher server copy arrived meanwhile. Only one
// mutation per booking may be in flight.
func (o *Orchestrator) UpdateStatus(ctx context.Context, id string, to models.BookingStatus) (*models.Booking, error) {
	op := fmt.Sprintf("%s booking", verb(to))

	release, err := o.guard(id)
	if err != nil {
		return nil, o.refuse(SliceBooking, op, err)
	}
	defer release()

	o.mu.Lock()
	prior, known := o.state.find(id)
	var stamp uint64
	if known {
		err := booking.Transition(prior.Status, to, o.role)
		if err == nil {
			err = booking.Ready(prior, to, o.now())
		}
		if err != nil {
			o.mu.Unlock()
			return nil, o.refuse(SliceBooking, op, err)
		}
		o.state.setStatus(id, to)
		stamp = o.state.seen[id]
	}
	o.mu.Unlock()

	var updated *models.Booking
	err = o.run(ctx, SliceBooking, op, func(ctx context.Context) (outcome, error) {
		b, session, err := o.dispatchStatus(ctx, id, to)
		if err != nil {
			return outcome{}, err
		}
		updated = b
		return outcome{
			message: fmt.Sprintf("Booking %s", b.StatusLabel()),
			reduce: func(s *State) {
				s.merge(*b)
				if session != nil {
					s.Sessions[id] = *session
				}
				if b.Status != models.StatusAccepted {
					delete(s.Sessions, id)
				}
			},
		}, nil
	})
	if err != nil {
		if known {
			o.mu.Lock()
			if o.state.seen[id] == stamp {
				o.state.setStatus(id, prior.Status)
			}
			o.mu.Unlock()
		}
		return nil, err
	}
	return updated, nil
}

func (o *Orchestrator) dispatchStatus(ctx context.Context, id string, to models.BookingStatus) (*models.Booking, *models.PaymentSession, error) {
	switch to {
	case models.StatusAccepted:
		resp, err := o.api.AcceptBooking(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		b := resp.Booking
		session := &models.PaymentSession{
			BookingID: id,
			URL:       resp.PaymentURL,
			ExpiresAt: resp.ExpiresAt,
			Amount:    b.TotalPrice,
			Currency:  b.Currency,
		}
		if b.Payment != nil {
			session.SessionID = b.Payment.ProviderSessionID
		}
		return &b, session, nil
	case models.StatusCancelled:
		b, err := o.api.CancelBooking(ctx, id)
		return b, nil, err
	case models.StatusDeclined:
		b, err := o.api.DeclineBooking(ctx, id)
		return b, nil, err
	case models.StatusCompleted:
		b, err := o.api.CompleteBooking(ctx, id)
		return b, nil, err
	default:
		b, err := o.api.UpdateStatus(ctx, id, to)
		return b, nil, err
	}
}

func (o *Orchestrator) Accept(ctx context.Context, id string) (*models.Booking, error) {
	return o.UpdateStatus(ctx, id, models.StatusAccepted)
}

func (o *Orchestrator) Cancel(ctx context.Context, id string) (*models.Booking, error) {
	return o.UpdateStatus(ctx, id, models.StatusCancelled)
}

func (o *Orchestrator) Decline(ctx context.Context, id string) (*models.Booking, error) {
	return o.UpdateStatus(ctx, id, models.StatusDeclined)
}

func (o *Orchestrator) Complete(ctx context.Context, id string) (*models.Booking, error) {
	return o.UpdateStatus(ctx, id, models.StatusCompleted)
}

func verb(to models.BookingStatus) string {
	switch to {
	case models.StatusAccepted:
		return "accept"
	case models.StatusCancelled:
		return "cancel"
	case models.StatusDeclined:
		return "decline"
	case models.StatusCompleted:
		return "complete"
	case models.StatusPaid:
		return "pay"
	}
	return "update"
}

// FetchCars loads the catalog listing.
func (o *Orchestrator) FetchCars(ctx context.Context, f models.CarFilter) error {
	return o.run(ctx, SliceCars, "fetch cars", func(ctx context.Context) (outcome, error) {
		cars, err := o.api.ListCars(ctx, f)
		if err != nil {
			return outcome{}, err
		}
		return outcome{reduce: func(s *State) { s.Cars = cars }}, nil
	})
}

func (o *Orchestrator) FetchCar(ctx context.Context, id string) (*models.Car, error) {
	var car *models.Car
	err := o.run(ctx, SliceCars, "fetch car", func(ctx context.Context) (outcome, error) {
		c, err := o.api.GetCar(ctx, id)
		if err != nil {
			return outcome{}, err
		}
		car = c
		return outcome{reduce: func(s *State) {
			cp := *c
			s.Car = &cp
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return car, nil
}

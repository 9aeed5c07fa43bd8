package views

import (
	"context"
	"time"

	"ms-rental/internal/models"
	"ms-rental/internal/orchestrator"
	"ms-rental/internal/pricing"
)

// BookingForm is the customer's booking form. A failed submit keeps the
// entered values and carries the error to show inline.
type BookingForm struct {
	CarID       string
	StartDate   time.Time
	EndDate     time.Time
	DriverName  string
	DriverPhone string
	DriverEmail string

	Error     string
	ErrorKind models.ErrorKind
	Created   *models.Booking
}

func (f *BookingForm) request() models.CreateBookingRequest {
	return models.CreateBookingRequest{
		CarID:       f.CarID,
		StartDate:   f.StartDate,
		EndDate:     f.EndDate,
		DriverName:  f.DriverName,
		DriverPhone: f.DriverPhone,
		DriverEmail: f.DriverEmail,
	}
}

type CustomerView struct {
	Orch *orchestrator.Orchestrator
	Calc pricing.Calculator
}

func NewCustomerView(o *orchestrator.Orchestrator, calc pricing.Calculator) *CustomerView {
	return &CustomerView{Orch: o, Calc: calc}
}

// Quote previews the price of renting car for the window.
func (v *CustomerView) Quote(car models.Car, start, end time.Time) (pricing.Quote, error) {
	return v.Calc.Quote(car.DailyRate, car.DiscountPercent, start, end)
}

func (v *CustomerView) Submit(ctx context.Context, form *BookingForm) error {
	form.Error = ""
	form.ErrorKind = ""

	b, err := v.Orch.CreateBooking(ctx, form.request())
	if err != nil {
		e := models.AsError(err)
		form.Error = e.UserMessage()
		form.ErrorKind = e.Kind
		return err
	}
	form.Created = b
	return nil
}

// MyBookings refreshes and returns the customer's bookings.
func (v *CustomerView) MyBookings(ctx context.Context) ([]BookingRow, error) {
	if err := v.Orch.FetchMyBookings(ctx); err != nil {
		return v.Rows(), err
	}
	return v.Rows(), nil
}

func (v *CustomerView) Rows() []BookingRow {
	return rowsFor(v.Orch, v.Orch.Snapshot().Bookings, true)
}

// PayNow returns the checkout URL to redirect the customer to.
func (v *CustomerView) PayNow(ctx context.Context, bookingID string) (string, error) {
	sess, err := v.Orch.InitiatePayment(ctx, bookingID)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// ReturnFromPayment verifies the session the provider redirected back with.
func (v *CustomerView) ReturnFromPayment(ctx context.Context, sessionID string) (*models.PaymentVerification, error) {
	return v.Orch.VerifyPayment(ctx, sessionID)
}

func (v *CustomerView) Cancel(ctx context.Context, bookingID string) error {
	_, err := v.Orch.Cancel(ctx, bookingID)
	return err
}

package models

import "time"

// CreateBookingRequest is the body of POST /api/bookings.
type CreateBookingRequest struct {
	CarID       string    `json:"carId"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	DriverName  string    `json:"driverName,omitempty"`
	DriverPhone string    `json:"driverPhone,omitempty"`
	DriverEmail string    `json:"driverEmail,omitempty"`
}

// Validate checks the request shape. Date ordering is checked by the pricing calculator.
func (r CreateBookingRequest) Validate() error {
	if r.CarID == "" {
		return NewError(KindInvalidRequest, "carId is required")
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return NewError(KindInvalidDateRange, "start and end dates are required")
	}
	return nil
}

type UpdateStatusRequest struct {
	Status BookingStatus `json:"status"`
}

// BookingPage is one page of a paginated listing.
type BookingPage struct {
	Items []Booking `json:"items"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
	Total int       `json:"total"`
}

func (p BookingPage) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// AcceptResponse is returned by PUT /api/bookings/{id}/accept.
type AcceptResponse struct {
	Booking    Booking   `json:"booking"`
	PaymentURL string    `json:"paymentUrl"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// PaymentStatusResponse is returned by GET /api/bookings/{id}/payment-status.
type PaymentStatusResponse struct {
	BookingID     string        `json:"bookingId"`
	Status        BookingStatus `json:"status"`
	DisplayStatus string        `json:"displayStatus"`
	Payment       *Payment      `json:"payment,omitempty"`
}

// InitiatePaymentRequest is the body of POST /api/payments/initiate.
type InitiatePaymentRequest struct {
	BookingID string `json:"bookingId"`
	Amount    int64  `json:"amount,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

// PaymentSession is a provider checkout session handed to the customer.
type PaymentSession struct {
	BookingID string    `json:"bookingId"`
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
}

func (s *PaymentSession) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// PaymentVerification is returned by GET /api/payments/verify/{sessionId}.
type PaymentVerification struct {
	Paid    bool    `json:"paid"`
	Booking Booking `json:"booking"`
}

// CheckoutRequest is what the booking service asks a payment gateway for.
type CheckoutRequest struct {
	BookingID   string
	CustomerID  string
	Description string
	Amount      int64
	Currency    string
	ExpiresAt   time.Time
}

// CheckoutSession is what a payment gateway reports back.
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
	Paid      bool
	Expired   bool
}

package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"ms-rental/internal/models"
)

func (c *Client) CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error) {
	var b models.Booking
	if err := c.do(ctx, http.MethodPost, "/api/bookings", authRequired, req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) ListMyBookings(ctx context.Context) ([]models.Booking, error) {
	var out []models.Booking
	if err := c.do(ctx, http.MethodGet, "/api/bookings/user", authRequired, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListSellerBookings(ctx context.Context, page, limit int) (*models.BookingPage, error) {
	var out models.BookingPage
	if err := c.do(ctx, http.MethodGet, "/api/bookings/seller"+pageQuery(page, limit), authRequired, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListAllBookings(ctx context.Context, page, limit int) (*models.BookingPage, error) {
	var out models.BookingPage
	if err := c.do(ctx, http.MethodGet, "/api/bookings/admin"+pageQuery(page, limit), authRequired, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	if err := c.do(ctx, http.MethodGet, "/api/bookings/"+url.PathEscape(id), authRequired, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) PaymentStatus(ctx context.Context, id string) (*models.PaymentStatusResponse, error) {
	var out models.PaymentStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/bookings/"+url.PathEscape(id)+"/payment-status", authRequired, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AcceptBooking moves a pending booking to accepted. A response without a
// payment URL is an error even when the server reports success.
func (c *Client) AcceptBooking(ctx context.Context, id string) (*models.AcceptResponse, error) {
	var out models.AcceptResponse
	if err := c.do(ctx, http.MethodPut, "/api/bookings/"+url.PathEscape(id)+"/accept", authRequired, nil, &out); err != nil {
		return nil, err
	}
	if out.PaymentURL == "" {
		return nil, models.Errorf(models.KindNoPaymentURL, "no payment link was returned for booking %s", id)
	}
	return &out, nil
}

func (c *Client) CancelBooking(ctx context.Context, id string) (*models.Booking, error) {
	return c.statusCall(ctx, id, "cancel", nil)
}

func (c *Client) DeclineBooking(ctx context.Context, id string) (*models.Booking, error) {
	return c.statusCall(ctx, id, "decline", nil)
}

func (c *Client) CompleteBooking(ctx context.Context, id string) (*models.Booking, error) {
	return c.statusCall(ctx, id, "complete", nil)
}

func (c *Client) UpdateStatus(ctx context.Context, id string, to models.BookingStatus) (*models.Booking, error) {
	return c.statusCall(ctx, id, "status", models.UpdateStatusRequest{Status: to})
}

func (c *Client) statusCall(ctx context.Context, id, action string, body interface{}) (*models.Booking, error) {
	var b models.Booking
	if err := c.do(ctx, http.MethodPut, "/api/bookings/"+url.PathEscape(id)+"/"+action, authRequired, body, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// InitiatePayment asks for a checkout session. A missing redirect URL is
// reported as no_payment_url.
func (c *Client) InitiatePayment(ctx context.Context, req models.InitiatePaymentRequest) (*models.PaymentSession, error) {
	var out models.PaymentSession
	if err := c.do(ctx, http.MethodPost, "/api/payments/initiate", authRequired, req, &out); err != nil {
		return nil, err
	}
	if out.URL == "" {
		return nil, models.Errorf(models.KindNoPaymentURL, "no payment link was returned for booking %s", req.BookingID)
	}
	if out.BookingID == "" {
		out.BookingID = req.BookingID
	}
	return &out, nil
}

func (c *Client) VerifyPayment(ctx context.Context, sessionID string) (*models.PaymentVerification, error) {
	var out models.PaymentVerification
	if err := c.do(ctx, http.MethodGet, "/api/payments/verify/"+url.PathEscape(sessionID), authRequired, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListCars(ctx context.Context, f models.CarFilter) ([]models.Car, error) {
	q := url.Values{}
	if f.SellerID != "" {
		q.Set("sellerId", f.SellerID)
	}
	if f.AvailableOnly {
		q.Set("available", strconv.FormatBool(true))
	}
	path := "/api/cars"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []models.Car
	if err := c.do(ctx, http.MethodGet, path, authOptional, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetCar(ctx context.Context, id string) (*models.Car, error) {
	var car models.Car
	if err := c.do(ctx, http.MethodGet, "/api/cars/"+url.PathEscape(id), authOptional, nil, &car); err != nil {
		return nil, err
	}
	return &car, nil
}

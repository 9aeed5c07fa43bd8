package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID         string `bun:"id,pk" json:"id"`
	CarID      string `bun:"car_id,notnull" json:"carId"`
	CustomerID string `bun:"customer_id,notnull" json:"customerId"`
	SellerID   string `bun:"seller_id,notnull" json:"sellerId"`

	StartDate time.Time `bun:"start_date,notnull" json:"startDate"`
	EndDate   time.Time `bun:"end_date,notnull" json:"endDate"`
	Days      int       `bun:"days,notnull" json:"days"`

	// Amounts are minor units of Currency.
	DailyRate       int64  `bun:"daily_rate,notnull" json:"dailyRate"`
	DiscountPercent int    `bun:"discount_percent,notnull" json:"discountPercent"`
	BaseTotal       int64  `bun:"base_total,notnull" json:"baseTotal"`
	Subtotal        int64  `bun:"subtotal,notnull" json:"subtotal"`
	TaxAmount       int64  `bun:"tax_amount,notnull" json:"taxAmount"`
	TotalPrice      int64  `bun:"total_price,notnull" json:"totalPrice"`
	Currency        string `bun:"currency,notnull" json:"currency"`

	Status  BookingStatus `bun:"status,notnull" json:"status"`
	Payment *Payment      `bun:"payment,type:jsonb" json:"payment,omitempty"`

	// PaymentSessionID mirrors Payment.ProviderSessionID for lookups.
	PaymentSessionID string `bun:"payment_session_id,nullzero" json:"-"`

	DriverName  string `bun:"driver_name" json:"driverName,omitempty"`
	DriverPhone string `bun:"driver_phone" json:"driverPhone,omitempty"`
	DriverEmail string `bun:"driver_email" json:"driverEmail,omitempty"`

	Version   int64     `bun:"version,notnull" json:"version"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// StatusLabel is the user-facing form of Status.
func (b Booking) StatusLabel() string {
	return b.Status.Display()
}

// Clone returns a copy that shares no pointers with b.
func (b Booking) Clone() Booking {
	if b.Payment != nil {
		p := *b.Payment
		b.Payment = &p
	}
	return b
}

type PaymentStatus string

const (
	PaymentOpen    PaymentStatus = "open"
	PaymentPaid    PaymentStatus = "paid"
	PaymentExpired PaymentStatus = "expired"
	PaymentFailed  PaymentStatus = "failed"
	PaymentVoid    PaymentStatus = "void"
)

// Payment is the payment sub-record attached when a seller accepts a booking.
type Payment struct {
	URL               string        `json:"url"`
	ExpiresAt         time.Time     `json:"expiresAt"`
	ProviderSessionID string        `json:"providerSessionId"`
	Status            PaymentStatus `json:"status"`
	Amount            int64         `json:"amount"`
	Currency          string        `json:"currency"`
	PaidAt            *time.Time    `json:"paidAt,omitempty"`
}

// Usable reports whether the link can still be handed to the customer at now.
func (p *Payment) Usable(now time.Time) bool {
	return p != nil && p.Status == PaymentOpen && p.URL != "" && now.Before(p.ExpiresAt)
}

func (p *Payment) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (p *Payment) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("payment: unsupported scan type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, p)
}

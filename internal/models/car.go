package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Car is owned by the catalog. Bookings only read its price fields.
type Car struct {
	bun.BaseModel `bun:"table:cars"`

	ID              string    `bun:"id,pk" json:"id"`
	SellerID        string    `bun:"seller_id,notnull" json:"sellerId"`
	Make            string    `bun:"make" json:"make"`
	Model           string    `bun:"model" json:"model"`
	Year            int       `bun:"year" json:"year"`
	Location        string    `bun:"location" json:"location"`
	DailyRate       int64     `bun:"daily_rate,notnull" json:"dailyRate"`
	DiscountPercent int       `bun:"discount_percent,notnull,default:0" json:"discountPercent"`
	Currency        string    `bun:"currency,notnull,default:'usd'" json:"currency"`
	Available       bool      `bun:"available,notnull,default:true" json:"available"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

func (c Car) DisplayName() string {
	if c.Year > 0 {
		return fmt.Sprintf("%s %s %d", c.Make, c.Model, c.Year)
	}
	return c.Make + " " + c.Model
}

// CarFilter narrows catalog listings.
type CarFilter struct {
	SellerID      string
	AvailableOnly bool
}

// Package pricing holds the pure price and availability rules for rentals.
// Amounts are int64 minor units (cents); percentages are whole numbers.
package pricing

import (
	"fmt"
	"math"
	"strings"
	"time"

	"ms-rental/internal/models"
)

const (
	Day = 24 * time.Hour

	// DefaultTaxRateBps is 12%.
	DefaultTaxRateBps int64 = 1200
)

// Quote is the full price breakdown for one rental.
type Quote struct {
	Days            int   `json:"days"`
	DailyRate       int64 `json:"dailyRate"`
	DiscountPercent int   `json:"discountPercent"`
	BaseTotal       int64 `json:"baseTotal"`
	DiscountedTotal int64 `json:"discountedTotal"`
	TaxRateBps      int64 `json:"taxRateBps"`
	TaxAmount       int64 `json:"taxAmount"`
	GrandTotal      int64 `json:"grandTotal"`
}

// Calculator applies the configured tax rate. The zero value charges no tax.
type Calculator struct {
	TaxRateBps int64
}

func NewCalculator(taxRateBps int64) Calculator {
	return Calculator{TaxRateBps: taxRateBps}
}

// DurationDays is ceil((end-start)/24h). end must be strictly after start.
func DurationDays(start, end time.Time) (int, error) {
	if start.IsZero() || end.IsZero() {
		return 0, models.NewError(models.KindInvalidDateRange, "start and end dates are required")
	}
	if !end.After(start) {
		return 0, models.Errorf(models.KindInvalidDateRange,
			"end date %s must be after start date %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	d := end.Sub(start)
	days := int(d / Day)
	if d%Day != 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days, nil
}

func BaseTotal(dailyRate int64, days int) int64 {
	return dailyRate * int64(days)
}

// DiscountedTotal subtracts discountPercent of base, rounding the discount half-up.
func DiscountedTotal(base int64, discountPercent int) int64 {
	return base - mulDivRound(base, int64(discountPercent), 100)
}

func (c Calculator) TaxesAndFees(discountedTotal int64) int64 {
	return mulDivRound(discountedTotal, c.TaxRateBps, 10000)
}

func GrandTotal(discountedTotal, taxes int64) int64 {
	return discountedTotal + taxes
}

// Quote prices a rental of a car at dailyRate for [start, end).
func (c Calculator) Quote(dailyRate int64, discountPercent int, start, end time.Time) (Quote, error) {
	if dailyRate < 0 {
		return Quote{}, models.Errorf(models.KindInvalidRequest, "daily rate %d must not be negative", dailyRate)
	}
	if discountPercent < 0 || discountPercent > 100 {
		return Quote{}, models.Errorf(models.KindInvalidRequest, "discount percent %d out of range 0-100", discountPercent)
	}
	days, err := DurationDays(start, end)
	if err != nil {
		return Quote{}, err
	}
	base := BaseTotal(dailyRate, days)
	discounted := DiscountedTotal(base, discountPercent)
	tax := c.TaxesAndFees(discounted)
	return Quote{
		Days:            days,
		DailyRate:       dailyRate,
		DiscountPercent: discountPercent,
		BaseTotal:       base,
		DiscountedTotal: discounted,
		TaxRateBps:      c.TaxRateBps,
		TaxAmount:       tax,
		GrandTotal:      GrandTotal(discounted, tax),
	}, nil
}

// mulDivRound returns round(v*num/den) with halves rounded away from zero.
func mulDivRound(v, num, den int64) int64 {
	if v == 0 || num == 0 {
		return 0
	}
	if v > math.MaxInt64/abs(num) {
		// fall back to float for amounts far beyond any rental price
		return int64(math.Round(float64(v) * float64(num) / float64(den)))
	}
	p := v * num
	if p < 0 {
		return -((-p + den/2) / den)
	}
	return (p + den/2) / den
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// FormatCents renders minor units as "151.20 USD".
func FormatCents(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, strings.ToUpper(currency))
}

package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ms-rental/internal/models"

	"github.com/uptrace/bun"
)

// RevenueStatuses are the statuses whose totals count as earned revenue.
var RevenueStatuses = []models.BookingStatus{models.StatusPaid, models.StatusCompleted}

// Service handles analytics operations
type Service struct {
	db *bun.DB
}

// NewService creates a new analytics service
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// Report aggregates bookings of one or more sellers. Amounts are minor
// currency units.
type Report struct {
	SellerIDs           []string       `json:"seller_ids"`
	TotalRevenue        int64          `json:"total_revenue"`
	TotalBeforeDiscount int64          `json:"total_before_discounts"`
	TotalTax            int64          `json:"total_tax"`
	PaidBookings        int            `json:"paid_bookings"`
	RentalDays          int            `json:"rental_days"`
	ByStatus            map[string]int `json:"by_status"`
	ByCar               []CarRevenue   `json:"by_car"`
	Daily               []DailyRevenue `json:"daily_revenue"`
}

// CarRevenue contains revenue metrics for a single car
type CarRevenue struct {
	CarID          string `bun:"car_id" json:"car_id"`
	Bookings       int    `bun:"bookings" json:"bookings"`
	RentalDays     int    `bun:"rental_days" json:"rental_days"`
	Revenue        int64  `bun:"revenue" json:"revenue"`
	BeforeDiscount int64  `bun:"before_discount" json:"before_discount"`
	Tax            int64  `bun:"tax" json:"tax"`
}

// DailyRevenue buckets earned revenue by rental start day (UTC).
type DailyRevenue struct {
	Date     string `json:"date"`
	Bookings int    `json:"bookings"`
	Revenue  int64  `json:"revenue"`
}

// SellerReport returns revenue analytics for one seller.
func (s *Service) SellerReport(ctx context.Context, sellerID string) (*Report, error) {
	if sellerID == "" {
		return nil, models.NewError(models.KindInvalidRequest, "seller id is required")
	}
	return s.BatchReport(ctx, []string{sellerID})
}

// BatchReport returns analytics aggregated over several sellers.
func (s *Service) BatchReport(ctx context.Context, sellerIDs []string) (*Report, error) {
	ids := dedupe(sellerIDs)
	report := &Report{
		SellerIDs: ids,
		ByStatus:  map[string]int{},
		ByCar:     []CarRevenue{},
		Daily:     []DailyRevenue{},
	}
	if len(ids) == 0 {
		return report, nil
	}

	var counts []struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}
	err := s.db.NewSelect().
		TableExpr("bookings").
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		Where("seller_id IN (?)", bun.In(ids)).
		GroupExpr("status").
		Scan(ctx, &counts)
	if err != nil {
		return nil, fmt.Errorf("count bookings by status: %w", err)
	}
	for _, c := range counts {
		report.ByStatus[c.Status] = c.Count
	}

	err = s.db.NewSelect().
		TableExpr("bookings").
		ColumnExpr("car_id").
		ColumnExpr("COUNT(*) AS bookings").
		ColumnExpr("COALESCE(SUM(days), 0) AS rental_days").
		ColumnExpr("COALESCE(SUM(total_price), 0) AS revenue").
		ColumnExpr("COALESCE(SUM(base_total), 0) AS before_discount").
		ColumnExpr("COALESCE(SUM(tax_amount), 0) AS tax").
		Where("seller_id IN (?)", bun.In(ids)).
		Where("status IN (?)", bun.In(RevenueStatuses)).
		GroupExpr("car_id").
		Scan(ctx, &report.ByCar)
	if err != nil {
		return nil, fmt.Errorf("sum revenue by car: %w", err)
	}
	sort.Slice(report.ByCar, func(i, j int) bool {
		if report.ByCar[i].Revenue != report.ByCar[j].Revenue {
			return report.ByCar[i].Revenue > report.ByCar[j].Revenue
		}
		return report.ByCar[i].CarID < report.ByCar[j].CarID
	})
	for _, c := range report.ByCar {
		report.TotalRevenue += c.Revenue
		report.TotalBeforeDiscount += c.BeforeDiscount
		report.TotalTax += c.Tax
		report.PaidBookings += c.Bookings
		report.RentalDays += c.RentalDays
	}

	var earned []struct {
		StartDate  time.Time `bun:"start_date"`
		TotalPrice int64     `bun:"total_price"`
	}
	err = s.db.NewSelect().
		TableExpr("bookings").
		Column("start_date", "total_price").
		Where("seller_id IN (?)", bun.In(ids)).
		Where("status IN (?)", bun.In(RevenueStatuses)).
		Order("start_date ASC").
		Scan(ctx, &earned)
	if err != nil {
		return nil, fmt.Errorf("list earned bookings: %w", err)
	}
	for _, e := range earned {
		day := e.StartDate.UTC().Format("2006-01-02")
		n := len(report.Daily)
		if n == 0 || report.Daily[n-1].Date != day {
			report.Daily = append(report.Daily, DailyRevenue{Date: day})
			n++
		}
		report.Daily[n-1].Bookings++
		report.Daily[n-1].Revenue += e.TotalPrice
	}

	return report, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

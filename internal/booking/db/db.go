package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-rental/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

func notFound(err error, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.Errorf(models.KindNotFound, "booking %s not found", id)
	}
	return fmt.Errorf("query booking %s: %w", id, err)
}

// CreateBooking → insert new booking
func (d *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	_, err := d.Bun.NewInsert().Model(b).Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert booking %s: %w", b.ID, err)
	}
	return nil
}

// GetBookingByID → fetch one booking by its ID
func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, id)
	}
	return &b, nil
}

// GetBookingByPaymentSession → find the booking a checkout session was opened for
func (d *DB) GetBookingByPaymentSession(ctx context.Context, sessionID string) (*models.Booking, error) {
	var b models.Booking
	err := d.Bun.NewSelect().
		Model(&b).
		Where("payment_session_id = ?", sessionID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.Errorf(models.KindNotFound, "no booking for payment session %s", sessionID)
		}
		return nil, fmt.Errorf("query booking by session %s: %w", sessionID, err)
	}
	return &b, nil
}

func (d *DB) ListByCustomer(ctx context.Context, customerID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bookings of customer %s: %w", customerID, err)
	}
	return bookings, nil
}

// ListBySeller → one page of a seller's bookings plus the total count
func (d *DB) ListBySeller(ctx context.Context, sellerID string, page, limit int) ([]models.Booking, int, error) {
	bookings := []models.Booking{}
	total, err := d.Bun.NewSelect().
		Model(&bookings).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings of seller %s: %w", sellerID, err)
	}
	return bookings, total, nil
}

func (d *DB) ListAll(ctx context.Context, page, limit int) ([]models.Booking, int, error) {
	bookings := []models.Booking{}
	total, err := d.Bun.NewSelect().
		Model(&bookings).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, total, nil
}

// ListBlockingForCar → accepted or paid bookings of a car overlapping [start, end)
func (d *DB) ListBlockingForCar(ctx context.Context, carID string, start, end time.Time) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("car_id = ?", carID).
		Where("status IN (?)", bun.In([]models.BookingStatus{models.StatusAccepted, models.StatusPaid})).
		Where("start_date < ?", end.UTC()).
		Where("end_date > ?", start.UTC()).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blocking bookings of car %s: %w", carID, err)
	}
	return bookings, nil
}

// ListPaidEndedBefore → paid bookings whose rental period is over
func (d *DB) ListPaidEndedBefore(ctx context.Context, t time.Time, limit int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("status = ?", models.StatusPaid).
		Where("end_date <= ?", t.UTC()).
		Order("end_date ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ended rentals: %w", err)
	}
	return bookings, nil
}

// UpdateBooking writes the mutable columns of b if the stored version still
// equals expectedVersion, then bumps b.Version. b.UpdatedAt is written as
// given, a zero value is stamped with the current time. Dates and prices are
// never written here.
func (d *DB) UpdateBooking(ctx context.Context, b *models.Booking, expectedVersion int64) error {
	next := *b
	next.Version = expectedVersion + 1
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now()
	}
	next.UpdatedAt = next.UpdatedAt.UTC()

	res, err := d.Bun.NewUpdate().
		Model(&next).
		Column("status", "payment", "payment_session_id", "version", "updated_at").
		Where("id = ?", b.ID).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update booking %s: %w", b.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking %s: %w", b.ID, err)
	}
	if n == 0 {
		if _, err := d.GetBookingByID(ctx, b.ID); err != nil {
			return err
		}
		return models.Errorf(models.KindConflict, "booking %s was modified concurrently", b.ID)
	}

	b.Version = next.Version
	b.UpdatedAt = next.UpdatedAt
	return nil
}

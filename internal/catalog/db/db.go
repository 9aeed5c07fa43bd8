package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-rental/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetCar → fetch one car by its ID
func (d *DB) GetCar(ctx context.Context, id string) (*models.Car, error) {
	var car models.Car
	err := d.Bun.NewSelect().
		Model(&car).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.Errorf(models.KindNotFound, "car %s not found", id)
		}
		return nil, fmt.Errorf("query car %s: %w", id, err)
	}
	return &car, nil
}

// ListCars → cars matching the filter, newest listing first
func (d *DB) ListCars(ctx context.Context, f models.CarFilter) ([]models.Car, error) {
	cars := []models.Car{}
	q := d.Bun.NewSelect().Model(&cars)
	if f.SellerID != "" {
		q = q.Where("seller_id = ?", f.SellerID)
	}
	if f.AvailableOnly {
		q = q.Where("available = ?", true)
	}
	if err := q.Order("created_at DESC", "id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list cars: %w", err)
	}
	return cars, nil
}

// UpsertCars inserts cars, replacing listings that already exist.
func (d *DB) UpsertCars(ctx context.Context, cars []models.Car) error {
	if len(cars) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().
		Model(&cars).
		On("CONFLICT (id) DO UPDATE").
		Set("seller_id = EXCLUDED.seller_id").
		Set("make = EXCLUDED.make").
		Set("model = EXCLUDED.model").
		Set("year = EXCLUDED.year").
		Set("location = EXCLUDED.location").
		Set("daily_rate = EXCLUDED.daily_rate").
		Set("discount_percent = EXCLUDED.discount_percent").
		Set("currency = EXCLUDED.currency").
		Set("available = EXCLUDED.available").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert %d cars: %w", len(cars), err)
	}
	return nil
}

package catalog

import (
	"context"

	"ms-rental/internal/logger"
	"ms-rental/internal/models"
)

type CarStore interface {
	GetCar(ctx context.Context, id string) (*models.Car, error)
	ListCars(ctx context.Context, f models.CarFilter) ([]models.Car, error)
	UpsertCars(ctx context.Context, cars []models.Car) error
}

type CarCache interface {
	GetCar(ctx context.Context, id string) (*models.Car, error)
	SetCar(ctx context.Context, car *models.Car) error
	Invalidate(ctx context.Context, ids ...string) error
}

// Service is the read side of the car catalog. Bookings use it to copy the
// current rate and discount of a car.
type Service struct {
	Store  CarStore
	Cache  CarCache
	Logger *logger.Logger
}

// NewService builds the catalog. cache may be nil.
func NewService(store CarStore, cache CarCache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{Store: store, Cache: cache, Logger: log}
}

// GetCar reads through the cache. Cache failures fall back to the store.
func (s *Service) GetCar(ctx context.Context, id string) (*models.Car, error) {
	if id == "" {
		return nil, models.NewError(models.KindInvalidRequest, "car id is required")
	}
	if s.Cache != nil {
		car, err := s.Cache.GetCar(ctx, id)
		if err != nil {
			s.Logger.Warn("REDIS", "car cache read: "+err.Error())
		} else if car != nil {
			return car, nil
		}
	}

	car, err := s.Store.GetCar(ctx, id)
	if err != nil {
		if models.Classified(err) {
			return nil, err
		}
		return nil, models.WrapError(models.KindInternal, err, "could not load car")
	}

	if s.Cache != nil {
		if err := s.Cache.SetCar(ctx, car); err != nil {
			s.Logger.Warn("REDIS", "car cache write: "+err.Error())
		}
	}
	return car, nil
}

func (s *Service) ListCars(ctx context.Context, f models.CarFilter) ([]models.Car, error) {
	cars, err := s.Store.ListCars(ctx, f)
	if err != nil {
		return nil, models.WrapError(models.KindInternal, err, "could not list cars")
	}
	return cars, nil
}

// SaveCars stores cars and drops their cached copies.
func (s *Service) SaveCars(ctx context.Context, cars []models.Car) error {
	if err := s.Store.UpsertCars(ctx, cars); err != nil {
		return err
	}
	if s.Cache != nil {
		ids := make([]string, len(cars))
		for i, c := range cars {
			ids[i] = c.ID
		}
		if err := s.Cache.Invalidate(ctx, ids...); err != nil {
			s.Logger.Warn("REDIS", "car cache invalidate: "+err.Error())
		}
	}
	s.Logger.LogDatabase("UPSERT", "cars", "saved cars")
	return nil
}

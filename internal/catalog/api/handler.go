package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"ms-rental/internal/auth"
	"ms-rental/internal/logger"
	"ms-rental/internal/models"
	"ms-rental/internal/utils"

	"github.com/go-chi/chi/v5"
)

type CarService interface {
	GetCar(ctx context.Context, id string) (*models.Car, error)
	ListCars(ctx context.Context, f models.CarFilter) ([]models.Car, error)
}

type Handler struct {
	Cars   CarService
	Logger *logger.Logger
}

func NewHandler(cars CarService, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{Cars: cars, Logger: log}
}

// Routes serves the read-only catalog. Authentication is optional; a token
// only matters for sellerId=me.
func (h *Handler) Routes(v auth.Verifier) chi.Router {
	r := chi.NewRouter()
	if v != nil {
		r.Use(auth.OptionalMiddleware(v))
	}
	r.Get("/", h.ListCars)
	r.Get("/{carId}", h.GetCar)
	return r
}

// ListCars handles GET /api/cars?sellerId=&available=
func (h *Handler) ListCars(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.CarFilter{SellerID: q.Get("sellerId")}
	if filter.SellerID == "me" {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			utils.WriteError(w, models.NewError(models.KindUnauthenticated, "sign in to list your own cars"))
			return
		}
		filter.SellerID = p.UserID
	}
	if v := q.Get("available"); v != "" {
		available, err := strconv.ParseBool(v)
		if err != nil {
			utils.WriteError(w, models.Errorf(models.KindInvalidRequest, "invalid available flag %q", v))
			return
		}
		filter.AvailableOnly = available
	}

	cars, err := h.Cars.ListCars(r.Context(), filter)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListCars: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Cars retrieved successfully", cars)
}

// GetCar handles GET /api/cars/{carId}
func (h *Handler) GetCar(w http.ResponseWriter, r *http.Request) {
	carID := chi.URLParam(r, "carId")

	car, err := h.Cars.GetCar(r.Context(), carID)
	if err != nil {
		h.Logger.Debug("API", fmt.Sprintf("GetCar %s: %v", carID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Car retrieved successfully", car)
}

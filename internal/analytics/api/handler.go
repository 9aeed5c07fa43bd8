package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-rental/internal/analytics"
	"ms-rental/internal/auth"
	"ms-rental/internal/logger"
	"ms-rental/internal/models"
	"ms-rental/internal/utils"

	"github.com/go-chi/chi/v5"
)

const maxBatchSellers = 50

type ReportService interface {
	SellerReport(ctx context.Context, sellerID string) (*analytics.Report, error)
	BatchReport(ctx context.Context, sellerIDs []string) (*analytics.Report, error)
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service ReportService
	Logger  *logger.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service ReportService, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{Service: service, Logger: log}
}

type batchRequest struct {
	SellerIDs []string `json:"seller_ids"`
}

// Routes mounts under /api/analytics. Sellers see their own report; admins
// can read any seller's.
func (h *Handler) Routes(v auth.Verifier) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.Middleware(v, h.Logger))

	r.With(auth.RequireRole(models.RoleSeller)).Get("/seller", h.GetOwnReport)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(models.RoleAdmin))
		r.Get("/sellers/{sellerId}", h.GetSellerReport)
		r.Post("/sellers/batch", h.GetBatchReport)
	})
	return r
}

// GetOwnReport handles GET /api/analytics/seller
func (h *Handler) GetOwnReport(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, auth.UserID(r.Context()))
}

// GetSellerReport handles GET /api/analytics/sellers/{sellerId}
func (h *Handler) GetSellerReport(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, chi.URLParam(r, "sellerId"))
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request, sellerID string) {
	report, err := h.Service.SellerReport(r.Context(), sellerID)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Error getting analytics for seller %s: %v", sellerID, err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, "Analytics retrieved successfully", report)
}

// GetBatchReport handles POST /api/analytics/sellers/batch
func (h *Handler) GetBatchReport(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, models.WrapError(models.KindInvalidRequest, err, "invalid request body"))
		return
	}
	if len(req.SellerIDs) == 0 {
		utils.WriteError(w, models.NewError(models.KindInvalidRequest, "seller_ids must not be empty"))
		return
	}
	if len(req.SellerIDs) > maxBatchSellers {
		utils.WriteError(w, models.Errorf(models.KindInvalidRequest, "at most %d sellers per batch", maxBatchSellers))
		return
	}

	report, err := h.Service.BatchReport(r.Context(), req.SellerIDs)
	if err != nil {
		h.Logger.Error("ANALYTICS", "Error getting batch analytics: "+err.Error())
		utils.WriteError(w, err)
		return
	}
	h.Logger.Debug("ANALYTICS", fmt.Sprintf("Batch analytics for %d sellers", len(report.SellerIDs)))
	utils.WriteSuccess(w, http.StatusOK, "Analytics retrieved successfully", report)
}

package sale

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/discount"
	"github.com/noah-isme/backend-kasir/internal/inventory"
)

// Handler exposes the sale endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Preview handles POST /api/v1/sales/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "sale service not configured", nil)
		return
	}
	var req Request
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	quote, err := h.service.Preview(r.Context(), req)
	if err != nil {
		common.WriteError(w, AppError(err))
		return
	}
	common.Data(w, http.StatusOK, quote)
}

// Complete handles POST /api/v1/sales.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "sale service not configured", nil)
		return
	}
	var req Request
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	rec, err := h.service.Complete(r.Context(), req)
	if err != nil {
		common.WriteError(w, AppError(err))
		return
	}
	w.Header().Set("Location", "/api/v1/sales/"+rec.BillNumber)
	common.Data(w, http.StatusCreated, rec)
}

// Get handles GET /api/v1/sales/{billNumber}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "sale service not configured", nil)
		return
	}
	bill, err := h.service.Get(r.Context(), strings.TrimSpace(chi.URLParam(r, "billNumber")))
	if err != nil {
		common.WriteError(w, AppError(err))
		return
	}
	common.Data(w, http.StatusOK, bill)
}

// AppError maps sale and inventory errors to API errors.
func AppError(err error) error {
	if err == nil || common.IsAppError(err) {
		return err
	}
	switch {
	case errors.Is(err, ErrRecordNotFound):
		return common.NotFound(err)
	case errors.Is(err, ErrEmptyCart), errors.Is(err, discount.ErrInvalidLine):
		return common.BadRequest(err)
	case errors.Is(err, ErrCampaignNotFound):
		return common.Unprocessable("CAMPAIGN_NOT_FOUND", err)
	case errors.Is(err, ErrCampaignInactive):
		return common.Unprocessable("CAMPAIGN_INACTIVE", err)
	case errors.Is(err, inventory.ErrBatchNotFound):
		return common.Unprocessable("BATCH_NOT_FOUND", err)
	case errors.Is(err, ErrBatchMismatch):
		return common.Unprocessable("BATCH_MISMATCH", err)
	case errors.Is(err, inventory.ErrInsufficientStock):
		appErr := common.Conflict(err)
		appErr.Code = "INSUFFICIENT_STOCK"
		return appErr
	}
	return common.ValidationError(err)
}

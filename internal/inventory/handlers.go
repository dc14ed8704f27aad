package inventory

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// Handler exposes batch endpoints.
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

// Put handles PUT /api/v1/batches/{id}.
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "inventory service not configured", nil)
		return
	}
	var in BatchInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	b, err := h.service.Put(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		common.WriteError(w, appError(err))
		return
	}
	common.Data(w, http.StatusOK, b)
}

// List handles GET /api/v1/products/{productId}/batches.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "inventory service not configured", nil)
		return
	}
	batches, err := h.service.List(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		common.WriteError(w, appError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":      batches,
		"available": Available(batches),
	})
}

func appError(err error) error {
	if errors.Is(err, ErrInvalidBatch) {
		return common.Unprocessable("INVALID_BATCH", err)
	}
	return common.ValidationError(err)
}

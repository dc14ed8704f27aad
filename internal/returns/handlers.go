package returns

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/sale"
)

// Handler exposes the return endpoints.
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

// Process handles POST /api/v1/sales/{billNumber}/returns.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "return service not configured", nil)
		return
	}
	var req Request
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.service.Process(r.Context(), billParam(r), req)
	if err != nil {
		common.WriteError(w, appError(err))
		return
	}
	common.Data(w, http.StatusCreated, out)
}

// Undo handles POST /api/v1/sales/{billNumber}/returns/{returnId}/undo.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "return service not configured", nil)
		return
	}
	returnID := strings.TrimSpace(chi.URLParam(r, "returnId"))
	out, err := h.service.Undo(r.Context(), billParam(r), returnID)
	if err != nil {
		common.WriteError(w, appError(err))
		return
	}
	common.Data(w, http.StatusOK, out)
}

func billParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "billNumber"))
}

func appError(err error) error {
	switch {
	case errors.Is(err, ErrBillNotFound):
		appErr := common.NotFound(err)
		appErr.Code = "BILL_NOT_FOUND"
		return appErr
	case errors.Is(err, ErrReturnNotFound):
		appErr := common.NotFound(err)
		appErr.Code = "RETURN_NOT_FOUND"
		return appErr
	case errors.Is(err, ErrItemNotInBill):
		return common.Unprocessable("ITEM_NOT_IN_BILL", err)
	case errors.Is(err, ErrQuantityExceeded):
		return common.Unprocessable("RETURN_QUANTITY_EXCEEDED", err)
	case errors.Is(err, ErrAlreadyUndone):
		appErr := common.Conflict(err)
		appErr.Code = "RETURN_ALREADY_UNDONE"
		return appErr
	}
	return sale.AppError(err)
}

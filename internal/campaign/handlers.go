package campaign

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/discount"
)

// Handler exposes campaign endpoints.
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

// Save handles POST /api/v1/campaigns.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "campaign service not configured", nil)
		return
	}
	var payload discount.Campaign
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	saved, err := h.service.Save(r.Context(), payload)
	if err != nil {
		common.WriteError(w, appError(err))
		return
	}
	common.Data(w, http.StatusCreated, saved)
}

// Get handles GET /api/v1/campaigns/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "campaign service not configured", nil)
		return
	}
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, appError(err))
		return
	}
	common.Data(w, http.StatusOK, c)
}

// Current handles GET /api/v1/campaigns/current.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "campaign service not configured", nil)
		return
	}
	c, ok, err := h.service.Current(r.Context())
	if err != nil {
		common.WriteError(w, appError(err))
		return
	}
	if !ok {
		common.WriteError(w, common.NotFound(errors.New("no default campaign is active")))
		return
	}
	common.Data(w, http.StatusOK, c)
}

// List handles GET /api/v1/campaigns.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "campaign service not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	rows, total, err := h.service.List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		common.WriteError(w, appError(err))
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       rows,
		"pagination": common.NewPagination(page, perPage, total),
	})
}

func appError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return common.NotFound(err)
	case errors.Is(err, ErrInvalid):
		if v := common.ValidationError(err); common.IsAppError(v) {
			return v
		}
		return common.Unprocessable("VALIDATION_FAILED", err)
	}
	return err
}

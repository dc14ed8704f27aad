package inventory_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/store/memory"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newService(t *testing.T, now time.Time) *inventory.Service {
	t.Helper()
	svc, err := inventory.NewService(inventory.ServiceConfig{
		Repository: memory.New(),
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc
}

func TestPutAndListInFIFOOrder(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc := newService(t, now)
	ctx := tenant.With(context.Background(), "outlet1")
	older := now.AddDate(0, -1, 0)

	b, err := svc.Put(ctx, "rice-may", inventory.BatchInput{ProductID: "rice", Quantity: d("5"), CostPrice: d("10")})
	require.NoError(t, err)
	require.True(t, b.CreatedAt.Equal(now))

	_, err = svc.Put(ctx, "rice-apr", inventory.BatchInput{ProductID: "rice", Quantity: d("2"), CostPrice: d("9"), CreatedAt: &older})
	require.NoError(t, err)

	batches, err := svc.List(ctx, "rice")
	require.NoError(t, err)
	require.Len(t, batches, 2)
	require.Equal(t, "rice-apr", batches[0].ID)
	require.True(t, inventory.Available(batches).Equal(d("7")))

	other, err := svc.List(tenant.With(context.Background(), "outlet2"), "rice")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestPutRejectsInvalidInput(t *testing.T) {
	svc := newService(t, time.Now())
	ctx := context.Background()

	_, err := svc.Put(ctx, " ", inventory.BatchInput{ProductID: "rice", Quantity: d("1")})
	require.ErrorIs(t, err, inventory.ErrInvalidBatch)

	_, err = svc.Put(ctx, "b1", inventory.BatchInput{Quantity: d("1")})
	require.Error(t, err)

	_, err = svc.Put(ctx, "b1", inventory.BatchInput{ProductID: "rice", Quantity: d("-1")})
	require.Error(t, err)

	_, err = svc.List(ctx, "")
	require.ErrorIs(t, err, inventory.ErrInvalidBatch)
}

func TestHandlers(t *testing.T) {
	svc := newService(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	h := inventory.NewHandler(inventory.HandlerConfig{Service: svc})
	ctx := tenant.With(context.Background(), "outlet1")

	put := func(id, body string) *httptest.ResponseRecorder {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		req := httptest.NewRequest(http.MethodPut, "/api/v1/batches/"+id, strings.NewReader(body))
		req = req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
		rec := httptest.NewRecorder()
		h.Put(rec, req)
		return rec
	}

	rec := put("tea-1", `{"productId":"tea","quantity":"4","costPrice":"1.5","sellingPrice":"3"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = put("tea-2", `{"quantity":"4"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_FAILED")

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("productId", "tea")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/tea/batches", nil)
	req = req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
	rec = httptest.NewRecorder()
	h.List(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data      []inventory.Batch `json:"data"`
		Available decimal.Decimal   `json:"available"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.True(t, body.Available.Equal(d("4")))
}

package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	limiter "github.com/ulule/limiter/v3"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/backend-kasir/internal/tenant"
)

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func serve(h http.Handler, tenantID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req = req.WithContext(tenant.With(req.Context(), tenantID))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestMiddlewareEnforcesLimitPerTenant(t *testing.T) {
	l, err := New(memorystore.NewStore(), "1-M")
	require.NoError(t, err)
	h := Handler{Limiter: l, Logger: zerolog.Nop()}.Middleware(ok())

	require.Equal(t, http.StatusOK, serve(h, "outlet1").Code)

	rr := serve(h, "outlet1")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rr.Header().Get("Retry-After"))

	require.Equal(t, http.StatusOK, serve(h, "outlet2").Code)
}

func TestMiddlewareWithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "kasir:rl"})
	require.NoError(t, err)
	l, err := New(store, "2-H")
	require.NoError(t, err)
	h := Handler{Limiter: l, Logger: zerolog.Nop()}.Middleware(ok())

	require.Equal(t, http.StatusOK, serve(h, "outlet1").Code)
	require.Equal(t, http.StatusOK, serve(h, "outlet1").Code)
	require.Equal(t, http.StatusTooManyRequests, serve(h, "outlet1").Code)
}

type failing struct{}

func (failing) Get(context.Context, string) (limiter.Context, error) {
	return limiter.Context{}, errors.New("store down")
}

func TestMiddlewareFailsOpen(t *testing.T) {
	h := Handler{Limiter: failing{}, Logger: zerolog.Nop()}.Middleware(ok())
	require.Equal(t, http.StatusOK, serve(h, "outlet1").Code)
}

func TestNewRejectsBadRate(t *testing.T) {
	_, err := New(memorystore.NewStore(), "lots")
	require.Error(t, err)
}

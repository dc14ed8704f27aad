package obs_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("kasir", []float64{1, 10}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales/B-1/returns", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/api/v1/sales/{billNumber}/returns"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues(http.MethodPost, "/api/v1/sales/{billNumber}/returns", "201")))
	require.Positive(t, testutil.CollectAndCount(metrics.Latency))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))

	again := obs.NewHTTPMetrics("kasir", nil, registry)
	require.Same(t, metrics.Requests, again.Requests)
}

func TestRequestLoggerIncludesTenant(t *testing.T) {
	var buf bytes.Buffer
	logger := obs.NewLoggerTo(&buf, "json", "info")
	handler := obs.RequestLogger{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/current", nil)
	req = req.WithContext(tenant.With(req.Context(), "outlet7"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "http_request", line["message"])
	require.Equal(t, "outlet7", line["tenant_id"])
	require.EqualValues(t, http.StatusTeapot, line["status"])
}

func TestDomainMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("kasir_test", registry)

	before := testutil.ToFloat64(obs.ReturnsTotal.WithLabelValues("process", "ok"))
	obs.RecordReturn("process", "ok", 90)
	obs.RecordReturn("undo", "error", 0)
	require.Equal(t, before+1, testutil.ToFloat64(obs.ReturnsTotal.WithLabelValues("process", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.ReturnsTotal.WithLabelValues("undo", "error")))

	obs.RecordSale("ok", 12.5, 3)
	require.Positive(t, testutil.CollectAndCount(obs.DiscountAmount))
}

func TestInitTracerNone(t *testing.T) {
	shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{ServiceName: "kasir", Exporter: "none"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, err = obs.InitTracer(context.Background(), obs.TracingConfig{Exporter: "zipkin"})
	require.Error(t, err)
}

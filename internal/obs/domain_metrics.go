package obs

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SalesTotal counts sale completions by outcome.
	SalesTotal *prometheus.CounterVec
	// ReturnsTotal counts return and undo operations by kind and outcome.
	ReturnsTotal *prometheus.CounterVec
	// DiscountAmount records discount granted per sale, split by scope (item, cart).
	DiscountAmount *prometheus.HistogramVec
	// RefundAmount records the refund total per return transaction.
	RefundAmount prometheus.Histogram
	// EngineDuration records discount engine run time in milliseconds.
	EngineDuration *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SalesTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_total",
			Help:      "Sale completions by result.",
		}, []string{"result"}))
		ReturnsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "returns_total",
			Help:      "Return and undo operations by op and result.",
		}, []string{"op", "result"}))
		DiscountAmount = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discount_amount",
			Help:      "Discount granted per completed sale.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"scope"}))
		RefundAmount = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refund_amount",
			Help:      "Refund total per return transaction.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}))
		EngineDuration = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discount_engine_duration_ms",
			Help:      "Discount engine run time in milliseconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}, []string{"caller"}))
	})
}

// The helpers below are safe to call before MustRegisterDomainMetrics; they
// do nothing until the collectors exist.

// RecordSale counts one sale outcome and, on success, its discounts.
func RecordSale(result string, itemDiscount, cartDiscount float64) {
	if SalesTotal != nil {
		SalesTotal.WithLabelValues(result).Inc()
	}
	if DiscountAmount != nil && result == "ok" {
		DiscountAmount.WithLabelValues("item").Observe(itemDiscount)
		DiscountAmount.WithLabelValues("cart").Observe(cartDiscount)
	}
}

// RecordReturn counts one return or undo outcome.
func RecordReturn(op, result string, refund float64) {
	if ReturnsTotal != nil {
		ReturnsTotal.WithLabelValues(op, result).Inc()
	}
	if RefundAmount != nil && op == "process" && result == "ok" {
		RefundAmount.Observe(refund)
	}
}

// ObserveEngine records one engine run for caller.
func ObserveEngine(caller string, d time.Duration) {
	if EngineDuration != nil {
		EngineDuration.WithLabelValues(caller).Observe(DurationMillis(d))
	}
}

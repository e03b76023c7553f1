package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the API and the sale engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	salesTotal      *prometheus.CounterVec
	saleRevenue     *prometheus.CounterVec
	saleDuration    prometheus.Histogram
	lowStockAlerts  prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retailpos_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retailpos_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sales := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retailpos_sales_total",
		Help: "Processed sales by outcome.",
	}, []string{"outcome"})
	revenue := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retailpos_sale_revenue_total",
		Help: "Grand total of committed sales by payment method.",
	}, []string{"method"})
	saleDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "retailpos_sale_duration_seconds",
		Help:    "Time spent inside the sale unit of work.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})
	lowStock := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "retailpos_low_stock_alerts_total",
		Help: "Low-stock alerts raised after committed sales.",
	})
	registry.MustRegister(requests, duration, sales, revenue, saleDuration, lowStock)

	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		salesTotal:      sales,
		saleRevenue:     revenue,
		saleDuration:    saleDuration,
		lowStockAlerts:  lowStock,
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records a counter and latency observation per chi route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) SaleCommitted(method string, grandTotal float64, took time.Duration) {
	if m == nil {
		return
	}
	m.salesTotal.WithLabelValues("committed").Inc()
	m.saleRevenue.WithLabelValues(method).Add(grandTotal)
	m.saleDuration.Observe(took.Seconds())
}

// SaleRejected counts a sale that rolled back; outcome is a short error kind.
func (m *Metrics) SaleRejected(outcome string) {
	if m == nil {
		return
	}
	m.salesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LowStockAlerts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.lowStockAlerts.Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

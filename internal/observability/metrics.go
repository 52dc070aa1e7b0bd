package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	supplyRunsTotal   *prometheus.CounterVec
	supplyRunDuration prometheus.Histogram
	shipmentsPlanned  prometheus.Counter
	purchaseRequests  prometheus.Counter
	supplyRunPasses   prometheus.Histogram
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	supplyRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_supply_runs_total",
		Help: "Supply planning runs by outcome.",
	}, []string{"outcome"})
	supplyDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meridian_supply_run_duration_seconds",
		Help:    "Wall time of one supply planning run.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})
	shipments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_supply_shipments_planned_total",
		Help: "Internal request shipments created by planning runs.",
	})
	purchaseRequests := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_supply_purchase_requests_total",
		Help: "Purchase requests created by planning runs.",
	})
	passes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meridian_supply_run_passes",
		Help:    "Simulation passes needed for a run to converge.",
		Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
	})
	registry.MustRegister(requests, duration, supplyRuns, supplyDuration, shipments, purchaseRequests, passes)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		supplyRunsTotal:   supplyRuns,
		supplyRunDuration: supplyDuration,
		shipmentsPlanned:  shipments,
		purchaseRequests:  purchaseRequests,
		supplyRunPasses:   passes,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
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

// ObserveRun records the outcome of one supply planning run.
func (m *Metrics) ObserveRun(outcome string, passes, shipments, purchaseRequests int, took time.Duration) {
	if m == nil {
		return
	}
	m.supplyRunsTotal.WithLabelValues(outcome).Inc()
	m.supplyRunDuration.Observe(took.Seconds())
	m.shipmentsPlanned.Add(float64(shipments))
	m.purchaseRequests.Add(float64(purchaseRequests))
	m.supplyRunPasses.Observe(float64(passes))
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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

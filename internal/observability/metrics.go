package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the Prometheus instruments for the application: HTTP
// traffic, authorization decisions, and the audit ledger's health.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	decisionsTotal  *prometheus.CounterVec
	appendDuration  prometheus.Histogram
	appendQueue     prometheus.Gauge
	appendRetries   prometheus.Counter
	verifyRuns      prometheus.Counter
	verifyFailures  prometheus.Counter
	retentionErased prometheus.Counter
}

// NewMetrics initialises the registry and all instruments.
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

	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_authz_decisions_total",
		Help: "Policy decisions by role, resource type, action, and verdict.",
	}, []string{"role", "resource", "action", "verdict"})
	appendDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meridian_audit_append_duration_seconds",
		Help:    "Time from committer dequeue to durable commit.",
		Buckets: prometheus.DefBuckets,
	})
	appendQueue := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meridian_audit_append_queue_depth",
		Help: "Drafts waiting for the single committer.",
	})
	appendRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_audit_append_retries_total",
		Help: "Transient store failures retried by the committer.",
	})
	verifyRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_audit_verify_runs_total",
		Help: "Chain verification runs.",
	})
	verifyFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_audit_verify_failures_total",
		Help: "Chain verification failures. Any increase means tampering.",
	})
	retentionErased := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_audit_retention_erased_total",
		Help: "Record payloads erased after the statutory retention window.",
	})

	registry.MustRegister(requests, duration, decisions, appendDuration,
		appendQueue, appendRetries, verifyRuns, verifyFailures, retentionErased)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		decisionsTotal:  decisions,
		appendDuration:  appendDuration,
		appendQueue:     appendQueue,
		appendRetries:   appendRetries,
		verifyRuns:      verifyRuns,
		verifyFailures:  verifyFailures,
		retentionErased: retentionErased,
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

// Middleware records request count and latency per route.
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

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// RecordDecision counts one policy decision.
func (m *Metrics) RecordDecision(role, resource, action, verdict string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(role, resource, action, verdict).Inc()
}

// ObserveAppend implements ledger.Metrics.
func (m *Metrics) ObserveAppend(seconds float64) {
	if m == nil {
		return
	}
	m.appendDuration.Observe(seconds)
}

// SetAppendQueueDepth implements ledger.Metrics.
func (m *Metrics) SetAppendQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.appendQueue.Set(float64(depth))
}

// IncAppendRetry implements ledger.Metrics.
func (m *Metrics) IncAppendRetry() {
	if m == nil {
		return
	}
	m.appendRetries.Inc()
}

// IncVerifyRun implements ledger.IntegrityMetrics.
func (m *Metrics) IncVerifyRun() {
	if m == nil {
		return
	}
	m.verifyRuns.Inc()
}

// IncVerifyFailure implements ledger.IntegrityMetrics.
func (m *Metrics) IncVerifyFailure() {
	if m == nil {
		return
	}
	m.verifyFailures.Inc()
}

// AddRetentionErased implements ledger.RetentionMetrics.
func (m *Metrics) AddRetentionErased(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.retentionErased.Add(float64(n))
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

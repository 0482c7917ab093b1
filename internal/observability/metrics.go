// Package observability exposes Prometheus metrics for the site.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the application's Prometheus metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authEvents      *prometheus.CounterVec
	authFailures    *prometheus.CounterVec
	authStates      *prometheus.CounterVec
	accountDeletes  *prometheus.CounterVec
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nysa_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nysa_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	authEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nysa_auth_events_total",
		Help: "Auth state change notifications by event.",
	}, []string{"event"})
	authFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nysa_auth_failures_total",
		Help: "Failed identity provider calls by operation and error kind.",
	}, []string{"op", "kind"})
	authStates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nysa_auth_state_transitions_total",
		Help: "Auth state machine transitions by operation and target state.",
	}, []string{"op", "to"})
	deletes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nysa_account_deletions_total",
		Help: "Account deletion attempts by outcome.",
	}, []string{"outcome"})
	registry.MustRegister(
		requests, duration, authEvents, authFailures, authStates, deletes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		authEvents:      authEvents,
		authFailures:    authFailures,
		authStates:      authStates,
		accountDeletes:  deletes,
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

// Middleware records request count and latency per route pattern.
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

// ObserveAuthEvent counts one auth state change.
func (m *Metrics) ObserveAuthEvent(event string) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(event).Inc()
}

// ObserveAuthFailure counts one failed provider call.
func (m *Metrics) ObserveAuthFailure(op, kind string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(op, kind).Inc()
}

// ObserveAuthTransition counts one auth state change of a sign-in or
// link verification attempt.
func (m *Metrics) ObserveAuthTransition(op, to string) {
	if m == nil {
		return
	}
	m.authStates.WithLabelValues(op, to).Inc()
}

// ObserveAccountDeletion counts one deletion attempt; outcome is "deleted"
// or "failed".
func (m *Metrics) ObserveAccountDeletion(outcome string) {
	if m == nil {
		return
	}
	m.accountDeletes.WithLabelValues(outcome).Inc()
}

// Registerer exposes the registry for custom metrics.
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

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

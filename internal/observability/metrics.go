package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "token_auth"

// Metrics holds the Prometheus collectors of the auth pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// TokensIssued counts issued tokens by kind (login, refresh).
	TokensIssued *prometheus.CounterVec

	// Authentications counts bearer resolution outcomes by outcome and reason.
	Authentications *prometheus.CounterVec

	// LoginFailures counts rejected credential validations.
	LoginFailures prometheus.Counter

	// AccessDenied counts authorization rejections by operation and status.
	AccessDenied *prometheus.CounterVec

	// HTTPRequestTotal counts requests by method, route and status.
	HTTPRequestTotal *prometheus.CounterVec

	// HTTPRequestDurationSeconds is the request latency histogram.
	HTTPRequestDurationSeconds *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TokensIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_issued_total",
				Help:      "Total number of issued tokens by kind.",
			},
			[]string{"kind"},
		),
		Authentications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authentications_total",
				Help:      "Bearer token resolutions by outcome and reason.",
			},
			[]string{"outcome", "reason"},
		),
		LoginFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_failures_total",
				Help:      "Total number of failed logins.",
			},
		),
		AccessDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_denied_total",
				Help:      "Authorization rejections by operation and status.",
			},
			[]string{"operation", "status"},
		),
		HTTPRequestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordTokenIssued counts an issued token
func (m *Metrics) RecordTokenIssued(kind string) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(kind).Inc()
}

// RecordAuthentication counts a bearer resolution outcome
func (m *Metrics) RecordAuthentication(outcome, reason string) {
	if m == nil {
		return
	}
	m.Authentications.WithLabelValues(outcome, reason).Inc()
}

// RecordLoginFailure counts a failed login
func (m *Metrics) RecordLoginFailure() {
	if m == nil {
		return
	}
	m.LoginFailures.Inc()
}

// RecordAccessDenied counts an authorization rejection
func (m *Metrics) RecordAccessDenied(operation string, status int) {
	if m == nil {
		return
	}
	m.AccessDenied.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

// Instrument records request count and latency labelled with the chi route pattern
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

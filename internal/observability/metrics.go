package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the API process.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	permCache       *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	roleCache       *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and authorization collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lms_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	permCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_authz_permission_cache_total",
		Help: "Permission snapshot cache lookups by result (hit, miss, error).",
	}, []string{"result"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_authz_decisions_total",
		Help: "Authorization decisions by reason.",
	}, []string{"reason"})
	roleCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_role_cache_total",
		Help: "In-process role definition cache lookups by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, permCache, decisions, roleCache)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		permCache:       permCache,
		decisions:       decisions,
		roleCache:       roleCache,
	}
}

// Handler returns the /metrics endpoint.
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

// ObservePermissionCache counts a tier-2 snapshot lookup.
func (m *Metrics) ObservePermissionCache(result string) {
	if m == nil {
		return
	}
	m.permCache.WithLabelValues(result).Inc()
}

// ObserveDecision counts an authorization decision.
func (m *Metrics) ObserveDecision(reason string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(reason).Inc()
}

// ObserveRoleCache counts a tier-1 role definition lookup.
func (m *Metrics) ObserveRoleCache(result string) {
	if m == nil {
		return
	}
	m.roleCache.WithLabelValues(result).Inc()
}

// Registerer exposes the registry for custom collectors.
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

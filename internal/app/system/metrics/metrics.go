// Package metrics holds the Prometheus collectors for the service and the
// HTTP middleware that feeds them.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Registry holds every collector. Each Registry owns its own
// prometheus.Registry so tests can build as many as they like.
type Registry struct {
	reg *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// ForumResolutions counts identity resolutions by tier
	// (direct, admin_search, pending).
	ForumResolutions *prometheus.CounterVec
	ForumCalls       *prometheus.CounterVec
	Joins            prometheus.Counter
	Subscriptions    *prometheus.CounterVec
	Uploads          *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	NotifyDropped    prometheus.Counter
}

// New builds a Registry with process and Go runtime collectors attached.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "commonshub_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "commonshub_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "method"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "commonshub_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}),
		ForumResolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "commonshub_forum_identity_resolutions_total",
			Help: "Forum user id resolutions by tier",
		}, []string{"tier"}),
		ForumCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "commonshub_forum_calls_total",
			Help: "Calls to the forum admin API by operation and outcome",
		}, []string{"op", "outcome"}),
		Joins: f.NewCounter(prometheus.CounterOpts{
			Name: "commonshub_community_joins_total",
			Help: "Successful community joins",
		}),
		Subscriptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "commonshub_subscription_events_total",
			Help: "Subscription lifecycle events",
		}, []string{"event"}),
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "commonshub_uploads_total",
			Help: "Media uploads by kind and outcome",
		}, []string{"kind", "outcome"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "commonshub_cache_lookups_total",
			Help: "Cache lookups by key family and result",
		}, []string{"family", "result"}),
		NotifyDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "commonshub_notifications_dropped_total",
			Help: "Notifications dropped because the queue was full",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Gatherer exposes the underlying registry for tests.
func (m *Registry) Gatherer() prometheus.Gatherer { return m.reg }

// CacheResult records a cache hit or miss for family.
func (m *Registry) CacheResult(family string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(family, result).Inc()
}

// Middleware records request metrics and writes one access log line per
// request. The route label is chi's matched pattern to keep cardinality low.
func (m *Registry) Middleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unknown"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			m.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(elapsed.Seconds())

			logger.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", elapsed),
			)
		})
	}
}

// Package metrics exposes Prometheus collectors for the governance API and
// the tenant router.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"condominia/internal/platform/tenancy"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so several servers can coexist in one process.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rejections      *prometheus.CounterVec
	tenantCache     *prometheus.CounterVec
	securityEvents  *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "governance_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),
		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_rejections_total",
				Help: "Requests rejected by a governance rule, by error code",
			},
			[]string{"code"},
		),
		tenantCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_tenant_handle_events_total",
				Help: "Tenant handle cache hits, misses and evictions",
			},
			[]string{"result"},
		),
		securityEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governance_tenant_security_events_total",
				Help: "Unknown-tenant and cross-tenant access attempts",
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) ObserveRequest(method string, route string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRejection(code string) {
	m.rejections.WithLabelValues(code).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RouterObserver adapts the collectors to tenancy.Observer. Tenant keys are
// not used as labels to keep cardinality bounded.
func (m *Metrics) RouterObserver() tenancy.Observer {
	return routerObserver{metrics: m}
}

type routerObserver struct {
	metrics *Metrics
}

func (o routerObserver) HandleCacheHit(string) {
	o.metrics.tenantCache.WithLabelValues("hit").Inc()
}

func (o routerObserver) HandleCacheMiss(string) {
	o.metrics.tenantCache.WithLabelValues("miss").Inc()
}

func (o routerObserver) HandleEvicted(string) {
	o.metrics.tenantCache.WithLabelValues("evicted").Inc()
}

func (o routerObserver) SecurityEvent(kind string, _ string) {
	o.metrics.securityEvents.WithLabelValues(kind).Inc()
}

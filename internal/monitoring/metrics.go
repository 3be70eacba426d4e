// internal/monitoring/metrics.go
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/valpere/SocialScrapexter/pkg/types"
)

const namespace = "socialscrapexter"

// Metrics holds every Prometheus collector the engine reports to. Each
// Metrics instance carries its own registry so tests can build as many as
// they need without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	// request path
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
	rateLimitWaits  *prometheus.HistogramVec

	// collection results
	postsScraped   *prometheus.CounterVec
	postsDuplicate *prometheus.CounterVec
	itemErrors     *prometheus.CounterVec

	// sessions
	sessionsTotal  *prometheus.CounterVec
	sessionsActive prometheus.Gauge

	// proxy pool
	proxyPoolSize  *prometheus.GaugeVec
	proxyFailovers *prometheus.CounterVec
}

// NewMetrics builds a metrics set on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.requestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Outbound platform requests by platform, endpoint and status code",
		},
		[]string{"platform", "endpoint", "status_code"},
	)

	m.requestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Outbound request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"platform", "endpoint"},
	)

	m.requestErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_errors_total",
			Help:      "Failed platform requests by error type",
		},
		[]string{"platform", "error_type"},
	)

	m.rateLimitWaits = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting on rate-limit windows",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"platform"},
	)

	m.postsScraped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_scraped_total",
			Help:      "Posts normalized and stored",
		},
		[]string{"platform"},
	)

	m.postsDuplicate = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_duplicate_total",
			Help:      "Posts that matched an existing (platform, post_id) row",
		},
		[]string{"platform"},
	)

	m.itemErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_errors_total",
			Help:      "Per-item failures by error type",
		},
		[]string{"platform", "error_type"},
	)

	m.sessionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions by terminal status",
		},
		[]string{"platform", "status"},
	)

	m.sessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently running",
		},
	)

	m.proxyPoolSize = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "proxy_pool_size",
			Help:      "Proxy pool membership by state",
		},
		[]string{"state"},
	)

	m.proxyFailovers = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_failovers_total",
			Help:      "Requests that rotated to a different proxy after a penalized error",
		},
		[]string{"platform"},
	)

	return m
}

func (m *Metrics) ObserveRequest(platform types.Platform, endpoint, statusCode string, d time.Duration) {
	m.requestsTotal.WithLabelValues(string(platform), endpoint, statusCode).Inc()
	m.requestDuration.WithLabelValues(string(platform), endpoint).Observe(d.Seconds())
}

func (m *Metrics) ObserveRequestError(platform types.Platform, errType string) {
	m.requestErrors.WithLabelValues(string(platform), errType).Inc()
}

func (m *Metrics) ObserveRateLimitWait(platform types.Platform, d time.Duration) {
	m.rateLimitWaits.WithLabelValues(string(platform)).Observe(d.Seconds())
}

func (m *Metrics) ObservePostStored(platform types.Platform, created bool) {
	if created {
		m.postsScraped.WithLabelValues(string(platform)).Inc()
		return
	}
	m.postsDuplicate.WithLabelValues(string(platform)).Inc()
}

func (m *Metrics) ObserveItemError(platform types.Platform, errType string) {
	m.itemErrors.WithLabelValues(string(platform), errType).Inc()
}

func (m *Metrics) SessionStarted() {
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionFinished(platform types.Platform, status types.SessionStatus) {
	m.sessionsActive.Dec()
	m.sessionsTotal.WithLabelValues(string(platform), string(status)).Inc()
}

func (m *Metrics) SetProxyPool(state string, n int) {
	m.proxyPoolSize.WithLabelValues(state).Set(float64(n))
}

func (m *Metrics) ObserveProxyFailover(platform types.Platform) {
	m.proxyFailovers.WithLabelValues(string(platform)).Inc()
}

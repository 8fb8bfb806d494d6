package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Webhook intake
	WebhookEvents *prometheus.CounterVec

	// Fan-out
	PushSends        *prometheus.CounterVec
	PushSendLatency  prometheus.Histogram
	DispatchDuration prometheus.Histogram
	DeviceLinks      *prometheus.CounterVec

	// Credentials
	TokenExchanges *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec

	// Report consumer
	ReportsConsumed *prometheus.CounterVec
	StaleTokens     *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// NewMetrics creates all application metrics and registers them on reg.
// A nil reg registers on the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		WebhookEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook events received, by outcome",
		}, []string{"outcome"}),

		PushSends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_sends_total",
			Help:      "Per-token push send attempts, by status",
		}, []string{"status"}),
		PushSendLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_send_duration_seconds",
			Help:      "Duration of a single push send request",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of a whole fan-out dispatch",
			Buckets:   prometheus.DefBuckets,
		}),
		DeviceLinks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_links_total",
			Help:      "Delivery link inserts, by status",
		}, []string{"status"}),

		TokenExchanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_exchanges_total",
			Help:      "Access token exchanges against the authorization endpoint",
		}, []string{"status"}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),

		RedisOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_operations_total",
			Help:      "Total number of Redis operations",
		}, []string{"operation", "status"}),

		ReportsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_consumed_total",
			Help:      "Dispatch reports read from the broker, by type",
		}, []string{"type"}),
		StaleTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_tokens_total",
			Help:      "Push tokens the provider reported as no longer valid, by provider code",
		}, []string{"code"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "path", "status"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// New creates metrics on a private registry. Used by tests and tools that
// must not collide with the default registry.
func New(namespace string) *Metrics {
	return NewMetrics(namespace, prometheus.NewRegistry())
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveDB counts one database operation.
func (m *Metrics) ObserveDB(operation string, err error) {
	if m == nil {
		return
	}
	m.DatabaseOperations.WithLabelValues(operation, statusLabel(err)).Inc()
}

// ObserveRedis counts one Redis operation.
func (m *Metrics) ObserveRedis(operation string, err error) {
	if m == nil {
		return
	}
	m.RedisOperations.WithLabelValues(operation, statusLabel(err)).Inc()
}

// ObserveToken counts one token exchange.
func (m *Metrics) ObserveToken(err error) {
	if m == nil {
		return
	}
	m.TokenExchanges.WithLabelValues(statusLabel(err)).Inc()
}

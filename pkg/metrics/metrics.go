package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Market display metrics
	MarketPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_market_polls_total",
			Help: "Market data polls by view, phase and outcome",
		},
		[]string{"view", "phase", "status"},
	)
	MarketPollLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "site_market_poll_latency_seconds",
			Help:    "Time to fetch one market snapshot",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"view"},
	)
	MarketPollErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_market_poll_errors_total",
			Help: "Market data poll errors by view, phase and error type",
		},
		[]string{"view", "phase", "type"},
	)
	MarketSnapshotSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "site_market_snapshot_quotes",
			Help: "Number of quotes in the displayed snapshot",
		},
		[]string{"view"},
	)
	LogoFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_logo_failures_total",
			Help: "Logo images recorded as failed",
		},
		[]string{"view", "source"},
	)

	// Upstream HTTP metrics
	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "site_upstream_request_duration_seconds",
			Help:    "Upstream request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream", "status"},
	)
	UpstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_upstream_errors_total",
			Help: "Upstream request errors by type",
		},
		[]string{"upstream", "type"},
	)

	// API metrics
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	APIRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Forms
	ContactSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_contact_submissions_total",
			Help: "Contact form submissions by outcome",
		},
		[]string{"outcome"},
	)
	ContactRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_contact_relayed_total",
			Help: "Queued contact messages handled by the relay, by outcome",
		},
		[]string{"outcome"},
	)
	AuthProxyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "site_auth_proxy_duration_seconds",
			Help:    "Login and registration round trip to the auth backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	// Websocket feed
	WebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "site_websocket_clients",
			Help: "Connected live market feed clients",
		})
	WebsocketMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "site_websocket_messages_total",
			Help: "Snapshots pushed to live feed clients",
		})

	// Redis metrics
	RedisOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	RedisErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total Redis errors",
		},
		[]string{"operation"},
	)

	// Database metrics
	DatabaseHealthCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "database_health_check_duration_seconds",
			Help:    "Database health check duration",
			Buckets: prometheus.DefBuckets,
		})
	DatabaseHealthCheckErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "database_health_check_errors_total",
			Help: "Total database health check errors",
		})
	DatabaseOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_operation_duration_seconds",
			Help:    "Database operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	DatabaseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_errors_total",
			Help: "Total database errors",
		},
		[]string{"operation"},
	)

	// Session metrics
	AuthOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_operation_duration_seconds",
			Help:    "Session token operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	AuthErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_errors_total",
			Help: "Total session token errors",
		},
		[]string{"operation"},
	)
	AuthMiddlewareErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_middleware_errors_total",
			Help: "Requests rejected by the session middleware",
		},
		[]string{"error_type"},
	)
)

func init() {
	// MustRegister panics if registration fails (e.g. duplicate)
	prometheus.MustRegister(
		MarketPolls, MarketPollLatency, MarketPollErrors, MarketSnapshotSize, LogoFailures,
		UpstreamRequestDuration, UpstreamErrors,
		APIRequestDuration, APIRequestTotal,
		ContactSubmissions, ContactRelayed, AuthProxyDuration,
		WebsocketClients, WebsocketMessages,
		RedisOperationDuration, RedisErrors,
		DatabaseHealthCheckDuration, DatabaseHealthCheckErrors,
		DatabaseOperationDuration, DatabaseErrors,
		AuthOperationDuration, AuthErrors, AuthMiddlewareErrors,
	)
}

// Status returns "success" or "error" for metric labels.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_messages_sent_total",
			Help: "Messages durably appended, by type",
		},
		[]string{"type"},
	)

	IdempotentReplaysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_idempotent_replays_total",
			Help: "Sends answered from a stored idempotency response",
		},
	)

	FanoutEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_events_total",
			Help: "Events published to local sessions, by event type",
		},
		[]string{"event_type"},
	)

	FanoutDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_dropped_total",
			Help: "Session sends dropped, by reason",
		},
		[]string{"reason"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Currently registered websocket sessions",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Offline notifications handed to the notifier, by result",
		},
		[]string{"result"},
	)

	OutboxPublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Total number of outbox publish failures",
		},
		[]string{"service", "topic"},
	)

	DbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "query_type"},
	)
)

// ObserveQuery starts a DB timer; call the returned func when the query is done.
func ObserveQuery(queryType string) func() {
	start := time.Now()
	return func() {
		DbQueryDuration.WithLabelValues("messaging", queryType).Observe(time.Since(start).Seconds())
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync metrics
	RefreshCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "acs_chat_refresh_cycles_total",
			Help: "Change notifications handled",
		},
	)

	RefreshFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acs_chat_refresh_failures_total",
			Help: "Failed refreshes by stage",
		},
		[]string{"stage"}, // "threads" or "messages"
	)

	HistoryFetches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "acs_chat_history_fetches_total",
			Help: "Full message history fetches",
		},
	)

	StreamsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "acs_chat_streams_created_total",
			Help: "Message streams created",
		},
	)

	HandlesResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "acs_chat_handles_resolved_total",
			Help: "Thread handles resolved from the backend",
		},
	)

	// Notification metrics
	NotificationsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acs_chat_notifications_received_total",
			Help: "Change notifications received by source",
		},
		[]string{"source"},
	)

	// Websocket metrics
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "acs_chat_websocket_clients",
			Help: "Connected websocket clients",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acs_chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acs_chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for RelayDropped.
const (
	DropMalformed     = "malformed"
	DropUnknownKind   = "unknown_kind"
	DropQueueFull     = "queue_full"
	DropClosed        = "closed"
	DropNoRoom        = "no_room"
	DropNoTarget      = "no_target"
	DropEmpty         = "empty"
	DropBinaryFrame   = "binary_frame"
	DropPresenceQueue = "presence_queue_full"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamsync_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teamsync_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	RelayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "teamsync_relay_connections",
			Help: "Live relay connections",
		},
	)

	RelayRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "teamsync_relay_rooms",
			Help: "Rooms with at least one member",
		},
	)

	RelayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamsync_relay_events_total",
			Help: "Inbound relay events by kind",
		},
		[]string{"kind"},
	)

	RelayDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamsync_relay_dropped_total",
			Help: "Frames dropped by the relay",
		},
		[]string{"reason"},
	)

	// Business metrics
	ChatMessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamsync_chat_messages_persisted_total",
			Help: "Chat messages stored through the REST API",
		},
	)
)

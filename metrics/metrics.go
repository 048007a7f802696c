package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Client engine metrics
	FramesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "osa_chat_frames_received_total",
			Help: "Total frames read from the realtime channel",
		},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osa_chat_frames_dropped_total",
			Help: "Total inbound frames discarded",
		},
		[]string{"reason"}, // "malformed", "stale", "closed"
	)

	DuplicateMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "osa_chat_duplicate_messages_total",
			Help: "Total inbound messages already present in the log",
		},
	)

	MessagesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osa_chat_messages_dispatched_total",
			Help: "Outbound dispatch attempts by result",
		},
		[]string{"result"}, // "sent", "empty", "not_connected", "error"
	)

	PresencePolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osa_chat_presence_polls_total",
			Help: "Presence fetches by result",
		},
		[]string{"result"}, // "ok", "error"
	)

	ConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osa_chat_connect_attempts_total",
			Help: "Channel open attempts by kind and result",
		},
		[]string{"kind", "result"}, // kind: "initial", "reconnect", "manual"
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "osa_chat_events_dropped_total",
			Help: "Engine events not delivered because the consumer was slow",
		},
	)

	// Relay metrics
	RelayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "osa_chat_relay_connections",
			Help: "Open websocket connections on the relay",
		},
	)

	RelayBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "osa_chat_relay_broadcasts_total",
			Help: "Total frames broadcast by the relay",
		},
	)

	RelayRejectedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "osa_chat_relay_rejected_frames_total",
			Help: "Total inbound frames the relay refused to broadcast",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osa_chat_http_requests_total",
			Help: "Total HTTP requests served by the relay",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osa_chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)
)

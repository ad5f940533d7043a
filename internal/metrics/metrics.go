package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converse_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "converse_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Realtime hub
	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "converse_websocket_connections",
			Help: "Currently open websocket connections",
		},
	)

	HubRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "converse_hub_rooms",
			Help: "Channel rooms with at least one local subscriber",
		},
	)

	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converse_events_emitted_total",
			Help: "Events published to channel rooms",
		},
		[]string{"event"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converse_events_dropped_total",
			Help: "Events not delivered to a client",
		},
		[]string{"reason"}, // "queue_full" or "broker"
	)

	// Domain
	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converse_messages_posted_total",
			Help: "Total messages posted",
		},
		[]string{"type"},
	)

	CommunitiesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "converse_communities_created_total",
			Help: "Total communities created",
		},
	)

	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "converse_users_registered_total",
			Help: "Total users registered",
		},
	)
)

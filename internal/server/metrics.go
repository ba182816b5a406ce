package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connected_sessions",
		Help: "Websocket sessions currently bound to a user.",
	})

	receivedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_received_total",
		Help: "Inbound events accepted for dispatch, by event name.",
	}, []string{"event"})

	rateLimitedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_events_rate_limited_total",
		Help: "Inbound events dropped by the per-user rate limiter.",
	})
)

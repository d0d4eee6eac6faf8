// Package metrics provides Prometheus instrumentation for the chat server.
// It exposes gauges for connection, pool and room counts, counters for
// message and match throughput, and a histogram for waiting time.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatchat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// WaitingPool tracks the current number of connections waiting for a partner.
	WaitingPool = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatchat_waiting_pool_size",
		Help: "Current number of connections in the waiting pool",
	})

	// ActiveRooms tracks the current number of live two-party rooms.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chatchat_active_rooms",
		Help: "Current number of active chat rooms",
	})

	// MatchesTotal counts successful pairings.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatchat_matches_total",
		Help: "Total number of successful matches",
	})

	// MessagesTotal counts message outcomes, labeled by type:
	// "relayed", "rejected", or "rate_limited".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatchat_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"type"})

	// MatchWaitSeconds records how long the matched candidate sat in the
	// waiting pool before being claimed.
	MatchWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatchat_match_wait_seconds",
		Help:    "Time spent in the waiting pool before a match",
		Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 300},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		WaitingPool,
		ActiveRooms,
		MatchesTotal,
		MessagesTotal,
		MatchWaitSeconds,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

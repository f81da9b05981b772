// README: Prometheus metrics for ride transitions and the HTTP API.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "quickauto", Name: "ride_transitions_total", Help: "Ride status transitions applied"},
		[]string{"category", "from", "to"},
	)
	RideConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "quickauto", Name: "ride_conflicts_total", Help: "Ride writes rejected by the transition table or a lost compare-and-swap"},
		[]string{"category", "reason"},
	)
	TimeoutsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "quickauto", Name: "ride_timeouts_total", Help: "Pending-ride timeouts evaluated"},
		[]string{"category", "action"},
	)
	StreamsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "quickauto", Name: "streams_open", Help: "Open websocket streams"},
		[]string{"kind"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "quickauto", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quickauto",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

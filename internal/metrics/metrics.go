// Package metrics provides Prometheus metrics for the remote session and
// the HTTP bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Requests counts calls to OBS by command and normalized status.
	Requests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsremote_requests_total",
			Help: "Total number of requests sent to OBS, by command and status",
		},
		[]string{"command", "status"},
	)

	// RequestDuration tracks the round-trip time of requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "obsremote_request_duration_seconds",
			Help:    "Round-trip duration of requests sent to OBS",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		},
		[]string{"command"},
	)

	// PendingRequests tracks requests awaiting a response.
	PendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "obsremote_pending_requests",
			Help: "Number of requests awaiting a response",
		},
	)

	// Events counts push events dispatched, by update-type.
	Events = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsremote_events_total",
			Help: "Total number of push events dispatched, by name",
		},
		[]string{"event"},
	)

	// ListenerPanics counts listeners that panicked while handling an event.
	ListenerPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsremote_listener_panics_total",
			Help: "Total number of event listener panics, by event name",
		},
		[]string{"event"},
	)

	// StateTransitions counts session state changes.
	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsremote_session_state_transitions_total",
			Help: "Total number of session state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	// Resyncs counts full reconciliation passes by collection and outcome.
	Resyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsremote_resyncs_total",
			Help: "Total number of full resync passes, by collection and outcome",
		},
		[]string{"collection", "outcome"},
	)

	// PollDuration tracks how long each periodic refresh takes.
	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "obsremote_poll_duration_seconds",
			Help:    "Duration of periodic refresh ticks",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"loop"},
	)

	// BridgeRequests counts HTTP bridge requests by route kind and status.
	BridgeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obsremote_bridge_requests_total",
			Help: "Total number of HTTP bridge requests, by kind and status",
		},
		[]string{"kind", "status"},
	)
)

// RecordStateTransition records a session state change.
func RecordStateTransition(from, to string) {
	StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordResync records the outcome of a full resync pass.
func RecordResync(collection string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	Resyncs.WithLabelValues(collection, outcome).Inc()
}

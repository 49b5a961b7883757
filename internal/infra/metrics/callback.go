package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		CallbackRequests,
		CallbackDuration,
	)
}

var (
	// Count of callback verifications grouped by gateway, result and bounded reason.
	// kind: redirect|lazy
	// result: ok|fail
	// reason (fail only): validation|gateway|timeout|transport|not_supported|unknown_gateway|locked|rate_limited|error
	CallbackRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_requests_total",
			Help:      "Count of /callback/{gateway} calls by kind, result and reason.",
		},
		[]string{"gateway", "kind", "result", "reason"},
	)

	// Latency of callback handlers grouped by result.
	CallbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "callback_duration_seconds",
			Help:      "Duration of callback handlers in seconds.",
			Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"kind", "result"},
	)
)

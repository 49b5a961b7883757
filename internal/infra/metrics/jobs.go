package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(sweepRunsTotal, eventsPublishedTotal) }

var (
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unverified_sweeps_total",
			Help:      "Unverified-payment sweeps, labeled by gateway and status.",
		},
		[]string{"gateway", "status"}, // 'ok', 'failed', 'not_supported'
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Payment events handed to the broker, labeled by kind and result.",
		},
		[]string{"kind", "result"},
	)
)

func IncSweep(gateway, status string) {
	sweepRunsTotal.WithLabelValues(norm(gateway), norm(status)).Inc()
}

func IncEventPublished(kind, result string) {
	eventsPublishedTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}

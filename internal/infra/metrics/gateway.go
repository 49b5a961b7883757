package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		gatewayHTTPRequests,
		gatewayHTTPDuration,
		gatewayHTTPRetries,
		gatewayOperations,
		gatewayUnverified,
	)
}

var (
	// outcome: ok|timeout|http_status|invalid_response|request_failed
	gatewayHTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_http_requests_total",
			Help:      "Outbound gateway HTTP attempts by outcome.",
		},
		[]string{"gateway", "outcome"},
	)

	gatewayHTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_http_duration_seconds",
			Help:      "Duration of outbound gateway HTTP attempts in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		},
		[]string{"gateway"},
	)

	gatewayHTTPRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_http_retries_total",
			Help:      "Retries issued after transient gateway HTTP failures.",
		},
		[]string{"gateway"},
	)

	// result: ok|validation|gateway|transport|not_supported|error
	gatewayOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_operations_total",
			Help:      "Gateway operations (payment, verify, ...) by result.",
		},
		[]string{"gateway", "op", "result"},
	)

	gatewayUnverified = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gateway_unverified_payments",
			Help:      "Paid sessions reported as not yet verified at the last sweep.",
		},
		[]string{"gateway"},
	)
)

func ObserveGatewayHTTP(gateway, outcome string, d time.Duration) {
	gatewayHTTPRequests.WithLabelValues(norm(gateway), norm(outcome)).Inc()
	gatewayHTTPDuration.WithLabelValues(norm(gateway)).Observe(d.Seconds())
}

func IncGatewayRetry(gateway string) {
	gatewayHTTPRetries.WithLabelValues(norm(gateway)).Inc()
}

func IncGatewayOperation(gateway, op, result string) {
	gatewayOperations.WithLabelValues(norm(gateway), norm(op), norm(result)).Inc()
}

func SetUnverified(gateway string, n int) {
	gatewayUnverified.WithLabelValues(norm(gateway)).Set(float64(n))
}

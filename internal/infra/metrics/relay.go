package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		relayRequestsTotal,
		relayUpstreamLatencyMs,
		relayUpstreamErrorsTotal,
	)
}

var (
	relayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Inbound requests by terminal outcome.",
		},
		[]string{"outcome"},
	)

	relayUpstreamLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_upstream_latency_ms",
			Help:    "Telegram sendMessage latency distribution in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"success"},
	)

	relayUpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_upstream_errors_total",
			Help: "Non-2xx answers from Telegram by HTTP status.",
		},
		[]string{"status"},
	)
)

func IncOutcome(outcome string) {
	relayRequestsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveUpstream(d time.Duration, success bool) {
	relayUpstreamLatencyMs.WithLabelValues(strconv.FormatBool(success)).
		Observe(float64(d.Milliseconds()))
}

func IncUpstreamError(status int) {
	relayUpstreamErrorsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
}

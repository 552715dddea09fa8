package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		callbackRequestsTotal,
		callbackDuration,
	)
}

var (
	// outcome: rejected|malformed|unmatched|duplicate|completed|failed|error
	callbackRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpesa_callback_requests_total",
			Help: "Gateway callbacks by reconciliation outcome.",
		},
		[]string{"outcome"},
	)

	callbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mpesa_callback_duration_seconds",
			Help:    "Time spent handling one gateway callback.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"outcome"},
	)
)

func ObserveCallback(outcome string, d time.Duration) {
	o := norm(outcome)
	callbackRequestsTotal.WithLabelValues(o).Inc()
	callbackDuration.WithLabelValues(o).Observe(d.Seconds())
}

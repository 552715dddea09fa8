package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(outboxDeliveriesTotal, outboxBacklog) }

var (
	outboxDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_deliveries_total",
			Help: "Outbox delivery attempts by kind and result (sent|retry|dead).",
		},
		[]string{"kind", "result"},
	)

	outboxBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_claimed_batch_size",
			Help: "Size of the most recent claimed outbox batch.",
		},
	)
)

func IncOutboxDelivery(kind, result string) {
	outboxDeliveriesTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}

func SetOutboxBatch(n int) {
	outboxBacklog.Set(float64(n))
}

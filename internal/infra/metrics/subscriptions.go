package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionActivationsTotal,
		creditsTotal,
		remindersTotal,
	)
}

var (
	subscriptionActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_activations_total",
			Help: "Subscription activations after payment, by plan and result.",
		},
		[]string{"plan", "result"},
	)

	creditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feature_credits_total",
			Help: "Pay-per-use credit movements by feature and op (topup|consume).",
		},
		[]string{"feature", "op"},
	)

	remindersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_reminders_total",
			Help: "Expiry reminders by result (sent|skipped|failed).",
		},
		[]string{"result"},
	)
)

func IncSubscriptionActivation(plan, result string) {
	subscriptionActivationsTotal.WithLabelValues(norm(plan), norm(result)).Inc()
}

func AddCredits(feature, op string, n int) {
	creditsTotal.WithLabelValues(norm(feature), norm(op)).Add(float64(n))
}

func AddReminders(result string, n int) {
	if n <= 0 {
		return
	}
	remindersTotal.WithLabelValues(norm(result)).Add(float64(n))
}

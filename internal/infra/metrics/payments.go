package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Payment webhook deliveries by event and outcome.",
		},
		[]string{"event", "outcome"}, // outcome: applied|duplicate|ignored|error
	)

	subscriptionsActivated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_activated_total",
			Help: "Subscription activations by plan type.",
		},
		[]string{"plan"},
	)

	subscriptionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Stale ACTIVE rows corrected by the expiry sweep.",
		},
	)
)

func init() {
	register(webhookEvents, subscriptionsActivated, subscriptionsExpired)
}

func IncWebhookEvent(event, outcome string) {
	webhookEvents.WithLabelValues(event, outcome).Inc()
}

func IncSubscriptionActivated(plan string) {
	subscriptionsActivated.WithLabelValues(plan).Inc()
}

func IncSubscriptionsExpired(n int) {
	subscriptionsExpired.Add(float64(n))
}

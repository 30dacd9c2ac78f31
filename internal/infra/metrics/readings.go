package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	readingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readings_created_total",
			Help: "Completed tarot readings by spread type.",
		},
		[]string{"spread"},
	)

	entitlementDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_denied_total",
			Help: "Spread requests denied by the entitlement model.",
		},
		[]string{"spread"},
	)
)

func init() {
	register(readingsCreated, entitlementDenied)
}

func IncReadingCreated(spread string) {
	readingsCreated.WithLabelValues(spread).Inc()
}

func IncEntitlementDenied(spread string) {
	entitlementDenied.WithLabelValues(spread).Inc()
}

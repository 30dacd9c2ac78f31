package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "HTTP request latency distribution in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
		[]string{"method", "route"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests rejected by a rate window, per scope.",
		},
		[]string{"scope"},
	)

	suspiciousRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "suspicious_requests_total",
			Help: "Requests whose payload matched an injection-looking pattern.",
		},
	)
)

func init() {
	register(httpRequests, httpDurationMs, rateLimited, suspiciousRequests)
}

func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDurationMs.WithLabelValues(method, route).Observe(float64(elapsed.Milliseconds()))
}

func IncRateLimited(scope string) {
	rateLimited.WithLabelValues(scope).Inc()
}

func IncSuspiciousRequest() {
	suspiciousRequests.Inc()
}

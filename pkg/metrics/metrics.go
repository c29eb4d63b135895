package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enever",
			Subsystem: "feed",
			Name:      "fetches_total",
			Help:      "Total number of feed fetch attempts by outcome.",
		},
		[]string{"feed", "outcome"},
	)

	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "enever",
			Subsystem: "feed",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of feed fetch attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"feed"},
	)

	consecutiveFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "enever",
			Subsystem: "feed",
			Name:      "consecutive_failures",
			Help:      "Number of failed fetches since the last success.",
		},
		[]string{"feed"},
	)

	lastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "enever",
			Subsystem: "feed",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful fetch.",
		},
		[]string{"feed"},
	)

	requestsThisMonth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "enever",
			Subsystem: "api",
			Name:      "requests_month",
			Help:      "Number of upstream API requests made in the current month.",
		},
	)
)

func init() {
	Registry.MustRegister(
		fetches,
		fetchDuration,
		consecutiveFailures,
		lastSuccess,
		requestsThisMonth,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	// responses are compressed by the server
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{DisableCompression: true})
}

// RecordFetch records the outcome and duration of a single fetch attempt.
func RecordFetch(feed, outcome string, took time.Duration) {
	fetches.WithLabelValues(feed, outcome).Inc()
	fetchDuration.WithLabelValues(feed).Observe(took.Seconds())
}

// RecordSlot records the bookkeeping state of a feed after an attempt.
func RecordSlot(feed string, failures int, lastSuccessAt time.Time) {
	consecutiveFailures.WithLabelValues(feed).Set(float64(failures))
	if !lastSuccessAt.IsZero() {
		lastSuccess.WithLabelValues(feed).Set(float64(lastSuccessAt.Unix()))
	}
}

// SetRequestsThisMonth records the current value of the request counter.
func SetRequestsThisMonth(count int) {
	requestsThisMonth.Set(float64(count))
}

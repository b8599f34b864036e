package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "libcat",
			Name:      "search_requests_total",
			Help:      "Total number of listing requests",
		},
		[]string{"format", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "libcat",
			Name:      "search_duration_seconds",
			Help:      "Index query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"backend"},
	)

	SnapshotTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "libcat",
			Name:      "snapshot_total",
			Help:      "Result snapshot lookups by outcome",
		},
		[]string{"result"}, // "fresh" / "stale"
	)

	SessionLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "libcat",
			Name:      "session_load_total",
			Help:      "Session state loads by outcome",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	OAIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "libcat",
			Name:      "oai_requests_total",
			Help:      "Total number of OAI-PMH requests",
		},
		[]string{"verb", "error"},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers Prometheus search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SnapshotTotal)
	prometheus.MustRegister(SessionLoadTotal)
	prometheus.MustRegister(OAIRequestsTotal)
	searchMetricsRegistered = true
}

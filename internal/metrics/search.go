package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookdex",
			Name:      "searches_total",
			Help:      "Total number of search operations",
		},
		[]string{"kind", "status"}, // kind: "text" / "key"
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bookdex",
			Name:      "search_duration_seconds",
			Help:      "End-to-end search duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(SearchDuration)
	searchMetricsRegistered = true
}

package hybrid

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecommendSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cadence",
		Subsystem: "hybrid",
		Name:      "recommend_seconds",
		Buckets:   prometheus.DefBuckets,
	})
	ColdStartTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cadence",
		Subsystem: "hybrid",
		Name:      "cold_start_total",
	})
	SourceResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cadence",
		Subsystem: "hybrid",
		Name:      "source_results_total",
		Help:      "Songs contributed per source before merging.",
	}, []string{"source"})
)

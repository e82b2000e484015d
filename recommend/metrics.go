package recommend

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cadence",
		Subsystem: "recommend",
		Name:      "requests_total",
		Help:      "Personalized recommendation requests per algorithm.",
	}, []string{"algorithm"})
	RequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cadence",
		Subsystem: "recommend",
		Name:      "request_seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"algorithm"})
	SimilarCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cadence",
		Subsystem: "recommend",
		Name:      "similar_cache_total",
	}, []string{"result"})
	CompletedSongsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cadence",
		Subsystem: "recommend",
		Name:      "completed_songs_total",
		Help:      "Songs handled by the completion job by outcome.",
	}, []string{"outcome"})
)

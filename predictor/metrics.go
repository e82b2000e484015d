package predictor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FallbackMode = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cadence",
		Subsystem: "predictor",
		Name:      "fallback_mode",
		Help:      "1 when the feature model runs on the fixed fallback table.",
	})
	TrainingSongs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cadence",
		Subsystem: "predictor",
		Name:      "training_songs",
		Help:      "Feature-complete songs in the current model.",
	})
	ModelBuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cadence",
		Subsystem: "predictor",
		Name:      "model_builds_total",
	}, []string{"result"})
	ModelBuildSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cadence",
		Subsystem: "predictor",
		Name:      "model_build_seconds",
		Buckets:   prometheus.DefBuckets,
	})
)

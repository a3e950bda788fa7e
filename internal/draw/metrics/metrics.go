// Package metrics instruments the generation pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PendingProcessed   prometheus.Counter
	PendingFailed      prometheus.Counter
	RoundsDrawn        prometheus.Counter
	NumbersGenerated   prometheus.Counter
	GenerationMisses   prometheus.Counter
	GenerationDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		PendingProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notto_pending_processed_total",
			Help: "Pending names activated with fixed numbers",
		}),
		PendingFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notto_pending_failed_total",
			Help: "Pending names left in the queue after a generation miss",
		}),
		RoundsDrawn: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notto_rounds_drawn_total",
			Help: "Weekly rounds created",
		}),
		NumbersGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notto_numbers_generated_total",
			Help: "Per-round number sets persisted",
		}),
		GenerationMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notto_generation_misses_total",
			Help: "Names the generator returned no valid set for",
		}),
		GenerationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "notto_generation_batch_seconds",
			Help:    "Wall time of one generation batch call",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustvault_sweep_items_processed_total",
		Help: "Items successfully processed per sweep.",
	}, []string{"sweep"})

	sweepItemsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustvault_sweep_items_failed_total",
		Help: "Items that failed and were skipped per sweep.",
	}, []string{"sweep"})

	sweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trustvault_sweep_duration_seconds",
		Help:    "Wall time of a full sweep run.",
		Buckets: prometheus.DefBuckets,
	}, []string{"sweep"})
)

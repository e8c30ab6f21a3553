// Package metrics exposes prometheus instrumentation for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsProcessed tracks submission outcomes per collection.
	// Labels allow filtering by outcome (synced/failed) and collection.
	ItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldsync_items_processed_total",
		Help: "Total number of queue items processed by the sync engine",
	}, []string{"outcome", "collection"})

	// PassDuration measures how long a complete sync pass takes.
	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fieldsync_pass_duration_seconds",
		Help:    "Duration of a full sync pass in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// PassSize tracks the number of items drained per pass.
	PassSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fieldsync_pass_size",
		Help:    "Number of items processed per sync pass",
		Buckets: []float64{1, 5, 10, 50, 100, 500},
	})

	// PendingBacklog tracks items waiting for sync. This is the primary
	// indicator of how far behind the device is.
	PendingBacklog = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fieldsync_pending_backlog",
		Help: "Current number of pending items per collection",
	}, []string{"collection"})

	// QuarantineSize tracks items that exhausted their retry budget.
	// Growth here means captures need manual intervention.
	QuarantineSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fieldsync_quarantine_size",
		Help: "Current number of retry-exhausted items per collection",
	}, []string{"collection"})

	// PassesRejected counts syncAll calls refused because a pass was
	// already in flight.
	PassesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fieldsync_passes_rejected_total",
		Help: "Total number of sync passes rejected due to an in-flight pass",
	})
)

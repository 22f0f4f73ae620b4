package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	FlushBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_flush_batches_total",
		Help: "Total number of write batches made durable",
	})

	EventsFlushed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_events_flushed_total",
		Help: "Total number of events made durable on disk",
	})

	FlushLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fanout_flush_latency_seconds",
		Help:    "Time spent writing and syncing one batch",
		Buckets: prometheus.DefBuckets,
	})
)

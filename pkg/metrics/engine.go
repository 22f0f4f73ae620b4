package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_events_appended_total",
		Help: "Total number of events accepted into the log",
	})

	AppendLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fanout_append_latency_seconds",
		Help:    "Histogram of append latency into the event log",
		Buckets: prometheus.DefBuckets,
	})

	EventsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_events_processed_total",
		Help: "Total number of events processed by pipeline workers",
	})

	DuplicatesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_duplicates_skipped_total",
		Help: "Total number of events suppressed by the dedup filter",
	})

	DedupEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_dedup_evictions_total",
		Help: "Total number of dedup records evicted past the horizon",
	})

	OffsetCommits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_offset_commits_total",
		Help: "Total number of committed read offsets",
	})

	OwnershipLost = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_ownership_lost_total",
		Help: "Total number of partition workers aborted after losing their lease",
	})

	Rebalances = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_rebalances_total",
		Help: "Total number of consumer group rebalances",
	})
)

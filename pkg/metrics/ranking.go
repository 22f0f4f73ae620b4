package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RankingUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_ranking_updates_total",
		Help: "Total number of score updates applied to the ranked store",
	})

	RankingEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_ranking_evictions_total",
		Help: "Total number of low-score members trimmed from ranked keys",
	})

	TopKQueries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_topk_queries_total",
		Help: "Total number of topK queries served",
	})

	ReconcileRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_reconcile_runs_total",
		Help: "Total number of ranked view rebuilds from durable counters",
	})
)

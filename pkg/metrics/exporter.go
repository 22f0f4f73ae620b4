package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	prometheus.MustRegister(EventsAppended, AppendLatency, EventsProcessed, DuplicatesSkipped, DedupEvictions, OffsetCommits, OwnershipLost, Rebalances)
	prometheus.MustRegister(DeliveryAttempts, DeliveriesConfirmed, DeliveriesExpired, AcksReceived, PushHandoffs, PendingDeliveries)
	prometheus.MustRegister(RankingUpdates, RankingEvictions, TopKQueries, ReconcileRuns)
	prometheus.MustRegister(FlushBatches, EventsFlushed, FlushLatency)
}

func StartMetricsServer(port int) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", port)
		fmt.Println("[METRICS] Prometheus exporter listening on", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			fmt.Printf("[METRICS] Failed to start metrics server: %v\n", err)
		}
	}()
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DeliveryAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_delivery_attempts_total",
		Help: "Total number of delivery attempts to live sessions",
	})

	DeliveriesConfirmed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_deliveries_confirmed_total",
		Help: "Total number of confirmed deliveries",
	})

	DeliveriesExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_deliveries_expired_total",
		Help: "Total number of delivery records expired after exhausting retries",
	})

	AcksReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_acks_received_total",
		Help: "Total number of client acknowledgments applied",
	})

	PushHandoffs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fanout_push_handoffs_total",
		Help: "Total number of events handed off to the push collaborator",
	})

	PendingDeliveries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fanout_pending_deliveries",
		Help: "Current number of non-terminal delivery records",
	})
)

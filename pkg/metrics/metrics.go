package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Catalog metrics
	BoostersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "booster_catalog_items_total",
			Help: "Number of catalog items by applied state",
		},
		[]string{"applied"},
	)

	CatalogLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booster_catalog_loads_total",
			Help: "Catalog load calls by result",
		},
		[]string{"result"},
	)

	// Staging metrics
	StagedOperations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "booster_staged_operations",
			Help: "Number of operations currently staged",
		},
	)

	// Execution metrics
	ExecutionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "booster_executions_total",
			Help: "Execution records by status",
		},
		[]string{"status"},
	)

	BatchesSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booster_batches_submitted_total",
			Help: "Submitted batches by outcome",
		},
		[]string{"outcome"},
	)

	BackendCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booster_backend_calls_total",
			Help: "Per-item backend calls by operation and result",
		},
		[]string{"operation", "result"},
	)

	BatchSubmitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "booster_batch_submit_duration_seconds",
			Help:    "Wall-clock time to submit a batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Event pipeline metrics
	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booster_events_received_total",
			Help: "Push events received by type",
		},
		[]string{"type"},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booster_events_dropped_total",
			Help: "Push events discarded by reason",
		},
		[]string{"reason"},
	)

	EventsForced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booster_events_forced_total",
			Help: "Buffered events processed out of order by cause",
		},
		[]string{"cause"},
	)

	PendingEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "booster_pending_events",
			Help: "Events buffered waiting for a sequence gap to close",
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "booster_reconciliation_duration_seconds",
			Help:    "Time taken for one queue reconciliation",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booster_reconciliation_cycles_total",
			Help: "Reconciliation cycles by result",
		},
		[]string{"result"},
	)

	ReconciliationCorrections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booster_reconciliation_corrections_total",
			Help: "Execution records corrected by reconciliation, by kind",
		},
		[]string{"kind"},
	)

	// Stream metrics
	StreamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "booster_stream_reconnects_total",
			Help: "Backend event stream reconnect attempts",
		},
	)

	StreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "booster_stream_subscribers",
			Help: "Registered event stream subscribers",
		},
	)
)

func init() {
	prometheus.MustRegister(BoostersTotal)
	prometheus.MustRegister(CatalogLoadsTotal)
	prometheus.MustRegister(StagedOperations)
	prometheus.MustRegister(ExecutionsTotal)
	prometheus.MustRegister(BatchesSubmitted)
	prometheus.MustRegister(BackendCallsTotal)
	prometheus.MustRegister(BatchSubmitDuration)
	prometheus.MustRegister(EventsReceived)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(EventsForced)
	prometheus.MustRegister(PendingEvents)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReconciliationCorrections)
	prometheus.MustRegister(StreamReconnects)
	prometheus.MustRegister(StreamSubscribers)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

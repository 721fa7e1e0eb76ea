/*
Package metrics provides Prometheus metrics and health reporting for the booster pipeline.

All collectors are package-level variables registered with the default
registry in init(), so any package can increment them without plumbing a
registry through constructors.

# Metric Categories

	Catalog:     booster_catalog_items_total{applied}, booster_catalog_loads_total{result}
	Staging:     booster_staged_operations
	Execution:   booster_executions_total{status}, booster_batches_submitted_total{outcome},
	             booster_backend_calls_total{operation,result}, booster_batch_submit_duration_seconds
	Events:      booster_events_received_total{type}, booster_events_dropped_total{reason},
	             booster_events_forced_total{cause}, booster_pending_events
	Reconciler:  booster_reconciliation_duration_seconds, booster_reconciliation_cycles_total{result},
	             booster_reconciliation_corrections_total{kind}
	Stream:      booster_stream_reconnects_total, booster_stream_subscribers

Gauges that mirror component state (catalog, staging, executions) are
refreshed by Collector on a ticker; counters are incremented inline.

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

# Health

RegisterComponent/UpdateComponent record per-component health. GetReadiness
requires the backend, stream and reconciler components to be registered and
healthy. HealthHandler, ReadyHandler and LivenessHandler expose the state
over HTTP next to Handler() for /metrics.
*/
package metrics

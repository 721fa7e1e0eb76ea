/*
Package reconciler corrects the execution registry against the backend's
execution queue.

The push event stream can lose events: a dropped "success" leaves a record
stuck in processing forever, and batch-level notifications carry no per-item
detail at all. The reconciler closes those holes by polling the queue and
treating the answer as authoritative.

# Architecture

	┌───────────────────────────────────────────────────────┐
	│                  Reconciliation Loop                  │
	│        (every interval, or on TriggerSync)            │
	└───────────────────────────┬───────────────────────────┘
	                            │
	                            ▼
	               GetExecutionQueueState()
	                            │
	            ┌───────────────┴────────────────┐
	            ▼                                ▼
	   items in the queue               active records missing
	   first N → processing             from the queue
	   rest    → queued                          │
	   (overwrite local record)        ┌─────────┴─────────┐
	                                   ▼                   ▼
	                          StatusConfirmer        no confirmer:
	                          terminal status        assume completed

# Sync Semantics

One sync runs at a time. Sync is wrapped in a singleflight group, so callers
arriving while a sync is in flight wait for it and receive the same Result
instead of starting a second poll. Two overlapping reconciliations racing
against live event updates would flip records back and forth.

Queue items are overwritten, not merged: status, progress and error all come
from the poll. A poll that lands between two push events can therefore rewind
progress briefly. Records the user cancelled locally are left alone.

# Vanished Executions

A queued or processing record absent from the poll has left the queue. If the
backend implements backend.StatusConfirmer, its answer is used:

	completed  → completed, progress 100
	error      → error with the backend message
	cancelled  → cancelled
	idle       → error "operation not found on backend"
	active     → left as is until the next cycle

Without a confirmer the record is marked completed and a warning is logged,
because disappearance cannot distinguish success from a silent failure or an
operation that was never admitted.

Records whose backend call has not been issued yet are excluded through
WithUnsubmitted; they are legitimately absent from the queue.

# Usage

	rec := reconciler.NewReconciler(b, registry,
		reconciler.WithInterval(10*time.Second),
		reconciler.WithUnsubmitted(exec.Unsubmitted),
	)
	rec.Start()
	defer rec.Stop()

	// from the ingestion pipeline on a batch-level event
	rec.TriggerSync()

# Errors

A failed poll is logged and the cycle is skipped. Nothing retries until the
next tick or trigger.

# Metrics

	booster_reconciliation_duration_seconds
	booster_reconciliation_cycles_total{result}
	booster_reconciliation_corrections_total{kind="overwrite|confirmed|inferred"}
*/
package reconciler

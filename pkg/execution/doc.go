/*
Package execution provides the registry of submitted operations.

Each submitted booster operation gets an ExecutionRecord that moves through

	queued → processing → completed | error | cancelled

driven by push events and reconciliation polls. CanCancel is recomputed on
every update, StartedAt is set on the first transition to processing and
CompletedAt on the first transition into a terminal status. Records are
removed only when idle or on an explicit Clear.

The registry also holds the current Batch. Batch progress is the mean of the
member records' progress and is computed on read. A finished batch stays
visible for a short retention window and is then dropped.
*/
package execution

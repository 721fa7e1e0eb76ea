/*
Package executor submits the staged operations as one batch.

ExecuteStagedBatch snapshots the staging ledger, creates a queued execution
record per item and a Batch, then calls the backend for each item strictly one
at a time. Calls are spaced by a rate.Limiter with a burst of one, so the first
call goes out immediately and each later call waits CallDelay.

A per-item failure (an error, success=false, or a panic in the call) marks
that item's record as error and the loop moves on. When every call has been
issued the ledger is cleared, the batch becomes completed and batch.completed
is published. The batch status reflects the submission loop only; item
outcomes arrive later through the event pipeline and reconciliation.

If the loop aborts (context cancelled or an unexpected panic) the batch goes
to error, batch.error is published, items that were never sent are marked
error and the ledger is kept so the user can retry.
*/
package executor

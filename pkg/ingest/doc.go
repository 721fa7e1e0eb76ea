/*
Package ingest converts the backend's push event stream into execution
registry updates.

The stream is at-least-once and may reorder events, so every event passes
through the per-booster state before it touches the registry:

	duplicate idempotency id      → drop
	0 < sequence <= lastSequence  → drop (stale)
	sequence == 0 or last+1       → apply, then drain buffered successors
	sequence > last+1             → buffer until the gap closes

Buffered events are force-processed in ascending order when the gap timeout
fires, or one at a time when the buffer exceeds MaxPending. Events that name
no booster, or batch_queued events, trigger a reconciliation sync instead.

Idempotency sets and buffers are cleared wholesale for boosters that have been
idle longer than the retention window. A very old duplicate that arrives after
a clear is applied again.
*/
package ingest

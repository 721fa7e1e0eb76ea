/*
Package types defines the core data structures shared by every booster component.

# Core Types

Catalog:
  - BoosterItem: one optimization with dependencies, conflicts and applied state
  - Operation: apply or revert
  - RiskLevel: low, medium, high

Execution:
  - ExecutionRecord: lifecycle of one submitted operation
  - ExecutionStatus: idle, queued, processing, completed, error, cancelled
  - ExecutionUpdate: partial update merged by the execution registry
  - Batch / BatchStatus: a group of operations submitted together

Backend contract:
  - BoosterEvent: push notification with sequence and idempotency id
  - ExecuteResult: response of a per-item apply/revert call
  - QueueItem / QueueState: normalized execution queue snapshot

Staging:
  - ValidationIssue / Severity: advisory findings about staged operations

# Status Lifecycle

	queued ──► processing ──► completed
	   │            │
	   │            ├──────► error
	   └────────────┴──────► cancelled

A record can be cancelled only while queued or processing. Terminal states
(completed, error, cancelled) never report CanCancel.

Records returned by other packages are copies; mutate state only through the
owning component.
*/
package types

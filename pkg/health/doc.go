/*
Package health probes the executor backend and reports its liveness to the
metrics health registry.

# Architecture

	┌─────────── Monitor ("backend") ────────────┐
	│                                             │
	│  every Interval:                            │
	│    Checker.Check(ctx)  ──▶  Status.Update   │
	│                               │             │
	│               metrics.UpdateComponent       │
	│                               │             │
	│               flipped? ──▶ OnChange(healthy)│
	└─────────────────────────────────────────────┘

BackendChecker polls GetExecutionQueueState; a readable queue means the
executor is up.

# Hysteresis

A component is marked unhealthy only after Retries consecutive failures and
healthy again after the first success:

	check:   ✓  ✗  ✗  ✗  ✓
	healthy: T  T  T  F  T      (Retries = 3)

OnChange observers run only on those flips. The manager uses the recovery
edge to schedule a reconciliation, since pushed events may have been lost
while the backend was unreachable.

# Usage

	mon := health.NewMonitor("backend", health.NewBackendChecker(b), health.Config{
		Interval: 15 * time.Second,
		Retries:  3,
	})
	mon.OnChange(func(healthy bool) {
		if healthy {
			rec.TriggerSync()
		}
	})
	mon.Start()
	defer mon.Stop()
*/
package health

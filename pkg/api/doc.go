/*
Package api serves the local control API for a running booster manager.

Every user intent the manager offers is reachable over HTTP, and notifications
are streamed over a websocket so a UI can render progress without polling.

# Endpoints

	GET    /api/state                  full snapshot (catalog, ledger, executions, batch)
	GET    /api/boosters?category=     catalog items
	GET    /api/history?booster=&limit= journaled executions
	GET    /api/notifications          websocket stream of broker events
	POST   /api/stage                  {"boosterId": "...", "operation": "apply|revert"}
	DELETE /api/stage/:id              drop a staged entry
	POST   /api/toggle/:id             flip the staged state
	POST   /api/execute                submit everything staged as one batch
	POST   /api/executions/:id/cancel  cancel locally
	POST   /api/reset                  clear ledger and executions
	POST   /api/sync                   reconcile against the backend now

	GET    /health /ready /live        metrics health registry
	GET    /metrics                    Prometheus

# Errors

Domain errors map to status codes: unknown ids are 404, an empty ledger, a
batch already being submitted or a record that is no longer cancellable are
409, and invalid request bodies are 400. Everything else is 500 and logged.

# Read-only listeners

WithReadOnly(true) installs the ReadOnly middleware on /api, which lets GET,
HEAD and OPTIONS through and answers everything else with 403. Health and
metrics endpoints are always readable.
*/
package api

/*
Package backend defines the contract with the native booster executor and its
JSON/HTTP + websocket binding.

# Contract

	GetBoostersByCategory(category, language) → []BoosterItem
	ExecuteBooster(id, apply|revert)          → {success, error?, message?, operationId?}
	GetExecutionQueueState()                   → {items, inProgress}  (or a bare array)
	SubscribeEvents(handler)                   → raw push-event payloads

Backends that can report the final status of an operation after it left the
queue also implement StatusConfirmer; the reconciler prefers it over inferring
completion from disappearance. HTTPClient always implements it and answers
ErrStatusUnsupported when the executor has no status endpoint (404 or 501),
which sends the reconciler back to the heuristic.

# HTTP Binding

	GET  /api/boosters?category=&language=
	POST /api/boosters/{id}/{operation}
	GET  /api/queue
	GET  /api/executions/{id}
	GET  /api/events          (websocket, one JSON event per text message)

Subpackages:
  - memory: in-process simulated executor used by tests and the demo
  - sim: gin router serving any Backend over the HTTP binding
*/
package backend

/*
Package manager wires the booster components into one running process and
exposes the user intents on top of them.

# Architecture

	┌────────────────────────── MANAGER ───────────────────────────┐
	│                                                               │
	│   intents: Toggle / Stage / Execute / Cancel / Reset / View   │
	│        │                 │                                    │
	│   ┌────▼─────┐      ┌────▼─────┐     ┌──────────────┐        │
	│   │ staging  │─────▶│ executor │────▶│   backend    │        │
	│   │ ledger   │      └────┬─────┘     └──┬────────┬──┘        │
	│   └────▲─────┘           │              │ events │ queue     │
	│        │ rederive   ┌────▼─────┐   ┌────▼───┐ ┌──▼────────┐  │
	│   ┌────┴─────┐      │execution │◀──│ ingest │ │reconciler │  │
	│   │ catalog  │◀─────│ registry │◀──┴──▲─────┘ └───────────┘  │
	│   └──────────┘ mark └────┬─────┘      │ stream hub            │
	│                applied   │ OnChange                           │
	│                     ┌────▼─────┐   ┌──────────┐               │
	│                     │  events  │   │ history  │ (optional)    │
	│                     │  broker  │   │ (bbolt)  │               │
	│                     └──────────┘   └──────────┘               │
	└───────────────────────────────────────────────────────────────┘

The registry is the meeting point. The executor creates records, the ingest
pipeline and the reconciler move them, and the manager's OnChange observer
reacts to terminal transitions: a completed apply or revert updates the
catalog's applied flag, re-derives the ledger and is appended to the history
journal when a data directory is configured.

# Lifecycle

	m, err := manager.NewManager(backend, cfg)
	if err != nil {
		return err
	}
	if err := m.Start(ctx); err != nil {
		// catalog failed to load; the manager keeps running
	}
	defer m.Shutdown()

	m.Toggle("disable-telemetry")
	report, err := m.Execute(ctx)

Start subscribes the ingest pipeline to the event stream, starts the
reconciliation and cleanup loops and loads the configured categories. A stream
error schedules an immediate sync since events may have been missed while the
connection was down.

Shutdown closes the stream hub first so no event reaches a stopped pipeline,
then stops the loops and closes the journal.
*/
package manager

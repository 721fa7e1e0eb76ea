/*
Package storage provides the BoltDB-backed execution history journal.

Catalog, staging and execution state live in memory only and do not survive a
restart. The journal is an optional, append-only record of what happened:
every execution that reached a terminal status and every finished batch.

# Architecture

	┌──────────────────── BOLTDB JOURNAL ──────────────────────┐
	│                                                          │
	│  File: <dataDir>/booster.db                              │
	│                                                          │
	│  ┌──────────────────────────────────────────────┐       │
	│  │ executions   key: big-endian sequence        │       │
	│  │              value: ExecutionEntry (JSON)    │       │
	│  ├──────────────────────────────────────────────┤       │
	│  │ batches      key: big-endian sequence        │       │
	│  │              value: BatchEntry (JSON)        │       │
	│  └──────────────────────────────────────────────┘       │
	│                                                          │
	└──────────────────────────────────────────────────────────┘

Keys come from the bucket's NextSequence, so cursor order is append order and
listing newest-first is a reverse cursor walk.

# Transactions

Appends run in db.Update, reads in db.View. Reads run concurrently; writes are
serialized by BoltDB.

# Usage

	store, err := storage.NewBoltStore("/var/lib/booster")
	if err != nil {
		return err
	}
	defer store.Close()

	store.AppendExecution(batchID, record)
	recent, _ := store.ListExecutions(20)
	perItem, _ := store.ListExecutionsByBooster("disable-telemetry", 0)

Prune removes entries recorded before a cutoff; the journal never shrinks on
its own.
*/
package storage

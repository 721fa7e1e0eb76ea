package storage

import (
	"time"

	"github.com/cuemby/booster/pkg/types"
)

// ExecutionEntry is one finished execution in the journal
type ExecutionEntry struct {
	Seq        uint64                `json:"seq"`
	BatchID    string                `json:"batchId,omitempty"`
	Record     types.ExecutionRecord `json:"record"`
	RecordedAt time.Time             `json:"recordedAt"`
}

// BatchEntry is one finished batch in the journal
type BatchEntry struct {
	Seq        uint64      `json:"seq"`
	Batch      types.Batch `json:"batch"`
	RecordedAt time.Time   `json:"recordedAt"`
}

// HistoryStore is an append-only journal of finished executions and batches.
// List methods return the newest entries first; limit <= 0 means no limit.
type HistoryStore interface {
	// Executions
	AppendExecution(batchID string, rec *types.ExecutionRecord) error
	ListExecutions(limit int) ([]*ExecutionEntry, error)
	ListExecutionsByBooster(boosterID string, limit int) ([]*ExecutionEntry, error)

	// Batches
	AppendBatch(batch *types.Batch) error
	ListBatches(limit int) ([]*BatchEntry, error)

	// Utility
	Prune(olderThan time.Time) (int, error)
	Close() error
}

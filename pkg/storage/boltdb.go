package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/booster/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketExecutions = []byte("executions")
	bucketBatches    = []byte("batches")
)

// BoltStore implements HistoryStore using BoltDB
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltStore creates a new BoltDB-backed journal in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "booster.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketExecutions, bucketBatches} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// itob encodes a sequence as a big-endian key so cursor order is append order
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Execution operations
func (s *BoltStore) AppendExecution(batchID string, rec *types.ExecutionRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExecutions)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(&ExecutionEntry{
			Seq:        seq,
			BatchID:    batchID,
			Record:     *rec,
			RecordedAt: s.now(),
		})
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

func (s *BoltStore) ListExecutions(limit int) ([]*ExecutionEntry, error) {
	return s.listExecutions(limit, func(*ExecutionEntry) bool { return true })
}

func (s *BoltStore) ListExecutionsByBooster(boosterID string, limit int) ([]*ExecutionEntry, error) {
	return s.listExecutions(limit, func(e *ExecutionEntry) bool {
		return e.Record.BoosterID == boosterID
	})
}

func (s *BoltStore) listExecutions(limit int, match func(*ExecutionEntry) bool) ([]*ExecutionEntry, error) {
	var entries []*ExecutionEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketExecutions).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var entry ExecutionEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if !match(&entry) {
				continue
			}
			entries = append(entries, &entry)
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	return entries, err
}

// Batch operations
func (s *BoltStore) AppendBatch(batch *types.Batch) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBatches)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(&BatchEntry{
			Seq:        seq,
			Batch:      *batch.Clone(),
			RecordedAt: s.now(),
		})
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

func (s *BoltStore) ListBatches(limit int) ([]*BatchEntry, error) {
	var entries []*BatchEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketBatches).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var entry BatchEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, &entry)
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	return entries, err
}

// Prune deletes journal entries recorded before olderThan and returns how many
// were removed
func (s *BoltStore) Prune(olderThan time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketExecutions, bucketBatches} {
			b := tx.Bucket(name)
			var stale [][]byte
			err := b.ForEach(func(k, v []byte) error {
				var entry struct {
					RecordedAt time.Time `json:"recordedAt"`
				}
				if err := json.Unmarshal(v, &entry); err != nil {
					return err
				}
				if entry.RecordedAt.Before(olderThan) {
					stale = append(stale, append([]byte(nil), k...))
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, k := range stale {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
			removed += len(stale)
		}
		return nil
	})
	return removed, err
}

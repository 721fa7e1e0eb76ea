package execution

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/booster/pkg/types"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for ids without an execution record
	ErrNotFound = errors.New("execution not found")
	// ErrNotCancellable is returned when cancelling a record that is not queued or processing
	ErrNotCancellable = errors.New("execution cannot be cancelled")
	// ErrSettled is returned for updates a terminal record no longer accepts
	ErrSettled = errors.New("execution already settled")
)

// ChangeFunc observes record transitions. prev is nil for new records.
type ChangeFunc func(prev, next *types.ExecutionRecord)

// Registry tracks execution records for submitted operations and the batch
// they belong to
type Registry struct {
	records   map[string]*types.ExecutionRecord
	batch     *types.Batch
	observers []ChangeFunc
	version   uint64
	retention time.Duration
	clearTmr  *time.Timer
	now       func() time.Time
	mu        sync.RWMutex
}

// Option configures a Registry
type Option func(*Registry)

// WithBatchRetention sets how long a finished batch stays visible
func WithBatchRetention(d time.Duration) Option {
	return func(r *Registry) {
		r.retention = d
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		records:   make(map[string]*types.ExecutionRecord),
		retention: 5 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnChange registers an observer called after every record change. Observers
// run outside the registry lock and must not block.
func (r *Registry) OnChange(fn ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// AddExecutions creates a queued record per operation, replacing any previous
// record for the same booster
func (r *Registry) AddExecutions(ops map[string]types.Operation) {
	r.mu.Lock()
	now := r.now()
	var changes [][2]*types.ExecutionRecord
	for id, op := range ops {
		var prev *types.ExecutionRecord
		if old, ok := r.records[id]; ok {
			prev = old.Clone()
		}
		rec := &types.ExecutionRecord{
			BoosterID: id,
			Operation: op,
			Status:    types.StatusQueued,
			Progress:  0,
			CanCancel: true,
			UpdatedAt: now,
		}
		r.records[id] = rec
		changes = append(changes, [2]*types.ExecutionRecord{prev, rec.Clone()})
	}
	r.version++
	observers := r.observers
	r.mu.Unlock()

	notify(observers, changes)
}

// UpdateExecution merges u into the record for id. CanCancel is recomputed from
// the new status, StartedAt is set on the first transition to processing and
// CompletedAt on the first transition into a terminal status.
//
// Terminal records never go back to queued or processing. Completed and error
// are final. A locally cancelled record still takes the backend's outcome,
// since cancelling never reaches the backend. Rejected updates return
// ErrSettled and leave the record untouched.
func (r *Registry) UpdateExecution(id string, u types.ExecutionUpdate) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !accepts(rec, u) {
		status := rec.Status
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrSettled, id, status)
	}
	prev := rec.Clone()
	r.apply(rec, u)
	r.version++
	next := rec.Clone()
	observers := r.observers
	r.mu.Unlock()

	notify(observers, [][2]*types.ExecutionRecord{{prev, next}})
	return nil
}

// accepts reports whether a record in its current status takes u
func accepts(rec *types.ExecutionRecord, u types.ExecutionUpdate) bool {
	if !rec.Status.IsTerminal() {
		return true
	}
	if u.Status == nil {
		// bookkeeping such as the operation id is still allowed
		return u.Progress == nil && u.Error == nil
	}
	next := *u.Status
	return rec.Status == types.StatusCancelled &&
		(next == types.StatusCompleted || next == types.StatusError)
}

func (r *Registry) apply(rec *types.ExecutionRecord, u types.ExecutionUpdate) {
	now := r.now()
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.Progress != nil {
		p := *u.Progress
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		rec.Progress = p
	}
	if u.Error != nil {
		rec.Error = *u.Error
	}
	if u.OperationID != nil {
		rec.OperationID = *u.OperationID
	}

	rec.CanCancel = rec.Status.CanCancel()
	if rec.Status == types.StatusProcessing && rec.StartedAt == nil {
		t := now
		rec.StartedAt = &t
	}
	if rec.Status.IsTerminal() && rec.CompletedAt == nil {
		t := now
		rec.CompletedAt = &t
	}
	rec.UpdatedAt = now
}

// Cancel marks the record cancelled. This is a local transition only; the
// backend is not asked to stop.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	rec, ok := r.records[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !rec.CanCancel {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotCancellable, id, rec.Status)
	}
	prev := rec.Clone()
	r.apply(rec, types.StatusUpdate(types.StatusCancelled))
	r.version++
	next := rec.Clone()
	observers := r.observers
	r.mu.Unlock()

	notify(observers, [][2]*types.ExecutionRecord{{prev, next}})
	return nil
}

// RemoveExecutions removes the idle records among ids and returns how many
// were removed. Records in any other status are kept.
func (r *Registry) RemoveExecutions(ids []string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if rec, ok := r.records[id]; ok && rec.Status == types.StatusIdle {
			delete(r.records, id)
			removed++
		}
	}
	if removed > 0 {
		r.version++
	}
	return removed
}

// Clear drops every record and the current batch
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make(map[string]*types.ExecutionRecord)
	r.batch = nil
	if r.clearTmr != nil {
		r.clearTmr.Stop()
		r.clearTmr = nil
	}
	r.version++
}

// Get returns a copy of the record for id
func (r *Registry) Get(id string) (*types.ExecutionRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Snapshot returns copies of all records sorted by booster id
func (r *Registry) Snapshot() []*types.ExecutionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.ExecutionRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BoosterID < out[j].BoosterID })
	return out
}

// ActiveIDs returns the ids of queued or processing records
func (r *Registry) ActiveIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, rec := range r.records {
		if rec.Status.IsActive() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Counts returns the number of records per status
func (r *Registry) Counts() map[types.ExecutionStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[types.ExecutionStatus]int)
	for _, rec := range r.records {
		counts[rec.Status]++
	}
	return counts
}

// MeanProgress returns the mean progress over all records, 0 when empty
func (r *Registry) MeanProgress() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meanProgressLocked(nil)
}

// InFlight reports whether any record is queued or processing
func (r *Registry) InFlight() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.records {
		if rec.Status.IsActive() {
			return true
		}
	}
	return false
}

// Version increases on every mutation
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *Registry) meanProgressLocked(ids []string) int {
	total, n := 0, 0
	if ids == nil {
		for _, rec := range r.records {
			total += rec.Progress
			n++
		}
	} else {
		for _, id := range ids {
			if rec, ok := r.records[id]; ok {
				total += rec.Progress
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return total / n
}

// StartBatch creates a queued batch covering ids and makes it current
func (r *Registry) StartBatch(ids []string) *types.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clearTmr != nil {
		r.clearTmr.Stop()
		r.clearTmr = nil
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	r.batch = &types.Batch{
		ID:         uuid.New().String(),
		BoosterIDs: sorted,
		Status:     types.BatchQueued,
		CreatedAt:  r.now(),
	}
	r.version++
	return r.batchLocked()
}

// SetBatchStatus moves the current batch along idle → queued → processing →
// completed|error. Finished batches are dropped after the retention window.
func (r *Registry) SetBatchStatus(id string, status types.BatchStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.batch == nil || r.batch.ID != id {
		return fmt.Errorf("%w: batch %s", ErrNotFound, id)
	}

	now := r.now()
	r.batch.Status = status
	if errMsg != "" {
		r.batch.Error = errMsg
	}
	switch status {
	case types.BatchProcessing:
		if r.batch.StartedAt == nil {
			r.batch.StartedAt = &now
		}
	case types.BatchCompleted, types.BatchError:
		if r.batch.CompletedAt == nil {
			r.batch.CompletedAt = &now
		}
		if r.retention > 0 {
			r.clearTmr = time.AfterFunc(r.retention, func() {
				r.expireBatch(id)
			})
		}
	}
	r.version++
	return nil
}

func (r *Registry) expireBatch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.batch != nil && r.batch.ID == id {
		r.batch = nil
		r.clearTmr = nil
		r.version++
	}
}

// Batch returns the current batch with its derived progress, or nil
func (r *Registry) Batch() *types.Batch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.batchLocked()
}

func (r *Registry) batchLocked() *types.Batch {
	if r.batch == nil {
		return nil
	}
	b := r.batch.Clone()
	b.Progress = r.meanProgressLocked(b.BoosterIDs)
	return b
}

func notify(observers []ChangeFunc, changes [][2]*types.ExecutionRecord) {
	for _, c := range changes {
		for _, fn := range observers {
			fn(c[0], c[1])
		}
	}
}

package staging

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/booster/pkg/types"
)

var (
	// ErrUnknownBooster is returned when staging an id the catalog does not know
	ErrUnknownBooster = errors.New("unknown booster")
	// ErrInvalidOperation is returned for operations other than apply/revert
	ErrInvalidOperation = errors.New("invalid operation")
)

// Catalog is the read-only view of the catalog the ledger needs
type Catalog interface {
	Get(id string) (*types.BoosterItem, bool)
	IsApplied(id string) (applied bool, ok bool)
}

// Ledger maps booster ids to the operation the user wants to perform
type Ledger struct {
	catalog Catalog
	staged  map[string]types.Operation
	version uint64
	mu      sync.RWMutex
}

// NewLedger creates an empty ledger over the catalog
func NewLedger(c Catalog) *Ledger {
	return &Ledger{
		catalog: c,
		staged:  make(map[string]types.Operation),
	}
}

// Stage records op for the booster. An operation that would not change the
// booster's current applied state removes any staged entry instead.
func (l *Ledger) Stage(id string, op types.Operation) error {
	if !op.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOperation, op)
	}
	applied, ok := l.catalog.IsApplied(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBooster, id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if isNoop(applied, op) {
		if _, exists := l.staged[id]; exists {
			delete(l.staged, id)
			l.version++
		}
		return nil
	}
	l.staged[id] = op
	l.version++
	return nil
}

// Toggle stages the inverse of the booster's effective state
func (l *Ledger) Toggle(id string) (types.Operation, error) {
	applied, ok := l.catalog.IsApplied(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownBooster, id)
	}

	op := types.OperationApply
	if l.effective(id, applied) {
		op = types.OperationRevert
	}
	return op, l.Stage(id, op)
}

// StageBatch merges ops into the ledger, overwriting existing entries. Each
// entry collapses the same way Stage does, and nothing is merged when any id
// or operation is invalid.
func (l *Ledger) StageBatch(ops map[string]types.Operation) error {
	applied := make(map[string]bool, len(ops))
	for id, op := range ops {
		if !op.Valid() {
			return fmt.Errorf("%w: %q for %s", ErrInvalidOperation, op, id)
		}
		a, ok := l.catalog.IsApplied(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownBooster, id)
		}
		applied[id] = a
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	changed := false
	for id, op := range ops {
		if isNoop(applied[id], op) {
			if _, exists := l.staged[id]; exists {
				delete(l.staged, id)
				changed = true
			}
			continue
		}
		if cur, exists := l.staged[id]; !exists || cur != op {
			l.staged[id] = op
			changed = true
		}
	}
	if changed {
		l.version++
	}
	return nil
}

// Unstage removes the entry for id
func (l *Ledger) Unstage(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.staged[id]; ok {
		delete(l.staged, id)
		l.version++
	}
}

// Clear empties the ledger
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.staged) > 0 {
		l.staged = make(map[string]types.Operation)
		l.version++
	}
}

// Rederive drops entries that became no-ops or whose booster disappeared
// after a catalog reload. It returns the removed ids.
func (l *Ledger) Rederive() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed []string
	for id, op := range l.staged {
		applied, ok := l.catalog.IsApplied(id)
		if !ok || isNoop(applied, op) {
			delete(l.staged, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		l.version++
	}
	sort.Strings(removed)
	return removed
}

// Get returns the staged operation for id
func (l *Ledger) Get(id string) (types.Operation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	op, ok := l.staged[id]
	return op, ok
}

// Snapshot returns a copy of the staged operations
func (l *Ledger) Snapshot() map[string]types.Operation {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]types.Operation, len(l.staged))
	for id, op := range l.staged {
		out[id] = op
	}
	return out
}

// Count returns the number of staged operations
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.staged)
}

// HasChanges reports whether anything is staged
func (l *Ledger) HasChanges() bool {
	return l.Count() > 0
}

// Version increases on every mutation
func (l *Ledger) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// EffectiveApplied returns the applied state the booster would have once the
// staged operation runs
func (l *Ledger) EffectiveApplied(id string) (bool, bool) {
	applied, ok := l.catalog.IsApplied(id)
	if !ok {
		return false, false
	}
	return l.effective(id, applied), true
}

func (l *Ledger) effective(id string, applied bool) bool {
	l.mu.RLock()
	op, staged := l.staged[id]
	l.mu.RUnlock()
	if !staged {
		return applied
	}
	return op == types.OperationApply
}

func isNoop(applied bool, op types.Operation) bool {
	return (applied && op == types.OperationApply) || (!applied && op == types.OperationRevert)
}

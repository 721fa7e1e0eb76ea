package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/booster/pkg/execution"
	"github.com/cuemby/booster/pkg/log"
	"github.com/cuemby/booster/pkg/metrics"
	"github.com/cuemby/booster/pkg/types"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var validate = validator.New()

// ErrMalformedEvent is returned by HandleRaw for payloads that cannot be decoded
var ErrMalformedEvent = errors.New("malformed event")

// Sink receives the registry updates produced from events
type Sink interface {
	UpdateExecution(id string, u types.ExecutionUpdate) error
}

// Syncer is asked for a full reconciliation when a batch-level event arrives
type Syncer interface {
	TriggerSync()
}

// Outcome describes what Handle did with an event
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeStale     Outcome = "stale"
	OutcomeBuffered  Outcome = "buffered"
	OutcomeSync      Outcome = "sync"
)

// Config holds pipeline tuning
type Config struct {
	GapTimeout      time.Duration
	MaxPending      int
	CleanupInterval time.Duration
	Retention       time.Duration
}

// DefaultConfig returns the default pipeline tuning
func DefaultConfig() Config {
	return Config{
		GapTimeout:      5 * time.Second,
		MaxPending:      50,
		CleanupInterval: 60 * time.Second,
		Retention:       5 * time.Minute,
	}
}

// itemState is the per-booster sequencing and idempotency state
type itemState struct {
	lastSequence int64
	pending      map[int64]types.BoosterEvent
	processed    map[string]struct{}
	lastEvent    time.Time
	gapTimer     *time.Timer
	// gapGen identifies the live gap timer; callbacks of older timers are ignored
	gapGen uint64
}

func newItemState() *itemState {
	return &itemState{
		pending:   make(map[int64]types.BoosterEvent),
		processed: make(map[string]struct{}),
	}
}

func (s *itemState) stopTimer() {
	if s.gapTimer != nil {
		s.gapTimer.Stop()
		s.gapTimer = nil
	}
	s.gapGen++
}

// update is a registry update waiting to be delivered to the sink
type update struct {
	seq int64
	u   types.ExecutionUpdate
}

// Pipeline turns the at-least-once, possibly reordered push event stream into
// ordered registry updates. It is the only owner of sequence and idempotency
// state.
//
// Sequencing runs under the pipeline lock; sink updates are delivered after it
// is released, in order per booster, so a slow sink only delays its own item.
type Pipeline struct {
	sink    Sink
	syncer  Syncer
	cfg     Config
	states  map[string]*itemState
	pending int
	now     func() time.Time
	mu      sync.Mutex
	stopCh  chan struct{}
	logger  zerolog.Logger

	outbox     map[string][]update
	delivering map[string]bool
}

// NewPipeline creates a pipeline feeding sink. Zero config fields take defaults.
func NewPipeline(sink Sink, syncer Syncer, cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.GapTimeout <= 0 {
		cfg.GapTimeout = def.GapTimeout
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = def.MaxPending
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	return &Pipeline{
		sink:   sink,
		syncer: syncer,
		cfg:    cfg,
		states: make(map[string]*itemState),
		now:    time.Now,

		outbox:     make(map[string][]update),
		delivering: make(map[string]bool),
		stopCh: make(chan struct{}),
		logger: log.WithComponent("ingest"),
	}
}

// HandleRaw decodes and validates a push payload, then handles it. Malformed
// payloads are logged and dropped.
func (p *Pipeline) HandleRaw(payload []byte) (Outcome, error) {
	var ev types.BoosterEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		p.logger.Warn().Err(err).Msg("Dropping undecodable event")
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := validate.Struct(&ev); err != nil {
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		p.logger.Warn().Err(err).Str("booster_id", ev.BoosterID).Msg("Dropping invalid event")
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return p.Handle(ev), nil
}

// Handle runs one event through deduplication and sequencing
func (p *Pipeline) Handle(ev types.BoosterEvent) Outcome {
	metrics.EventsReceived.WithLabelValues(string(ev.EventType)).Inc()

	if ev.IsBatchLevel() {
		p.logger.Debug().
			Str("event_type", string(ev.EventType)).
			Int("queue_size", ev.QueueSize).
			Msg("Batch-level event, requesting sync")
		if p.syncer != nil {
			p.syncer.TriggerSync()
		}
		return OutcomeSync
	}

	p.mu.Lock()
	outcome := p.handleLocked(ev)
	p.mu.Unlock()

	p.deliver(ev.BoosterID)
	return outcome
}

func (p *Pipeline) handleLocked(ev types.BoosterEvent) Outcome {
	st, ok := p.states[ev.BoosterID]
	if !ok {
		st = newItemState()
		p.states[ev.BoosterID] = st
	}
	st.lastEvent = p.now()

	if ev.IdempotencyID != "" {
		if _, seen := st.processed[ev.IdempotencyID]; seen {
			metrics.EventsDropped.WithLabelValues("duplicate").Inc()
			return OutcomeDuplicate
		}
	}

	if ev.Sequence > 0 && ev.Sequence <= st.lastSequence {
		metrics.EventsDropped.WithLabelValues("stale").Inc()
		return OutcomeStale
	}

	if ev.Sequence == 0 || ev.Sequence == st.lastSequence+1 {
		p.processLocked(st, ev)
		p.drainLocked(ev.BoosterID, st)
		return OutcomeApplied
	}

	// gap: hold until the missing sequences arrive or the timer fires
	if _, exists := st.pending[ev.Sequence]; !exists {
		p.pending++
	}
	st.pending[ev.Sequence] = ev
	p.logger.Debug().
		Str("booster_id", ev.BoosterID).
		Int64("sequence", ev.Sequence).
		Int64("last_sequence", st.lastSequence).
		Msg("Buffering out-of-order event")

	if len(st.pending) > p.cfg.MaxPending {
		oldest := lowest(st.pending)
		p.forceLocked(ev.BoosterID, st, []int64{oldest}, "overflow")
	}
	if len(st.pending) > 0 && st.gapTimer == nil {
		st.gapGen++
		id, gen := ev.BoosterID, st.gapGen
		st.gapTimer = time.AfterFunc(p.cfg.GapTimeout, func() {
			p.gapTimeout(id, st, gen)
		})
	}
	metrics.PendingEvents.Set(float64(p.pending))
	return OutcomeBuffered
}

// processLocked marks the event processed, advances the cursor and queues the
// registry update for delivery
func (p *Pipeline) processLocked(st *itemState, ev types.BoosterEvent) {
	if ev.IdempotencyID != "" {
		st.processed[ev.IdempotencyID] = struct{}{}
	}
	if ev.Sequence > 0 {
		st.lastSequence = ev.Sequence
	}

	u, ok := toUpdate(ev)
	if !ok {
		metrics.EventsDropped.WithLabelValues("unmapped").Inc()
		return
	}
	p.outbox[ev.BoosterID] = append(p.outbox[ev.BoosterID], update{seq: ev.Sequence, u: u})
}

// deliver hands the queued updates of id to the sink outside the pipeline
// lock. Only one goroutine delivers for a given id at a time; updates queued
// meanwhile are picked up by it, which keeps per-item order.
func (p *Pipeline) deliver(id string) {
	p.mu.Lock()
	if p.delivering[id] {
		p.mu.Unlock()
		return
	}
	p.delivering[id] = true

	for {
		queued := p.outbox[id]
		delete(p.outbox, id)
		if len(queued) == 0 {
			delete(p.delivering, id)
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		for _, up := range queued {
			p.apply(id, up)
		}
		p.mu.Lock()
	}
}

func (p *Pipeline) apply(id string, up update) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("booster_id", id).
				Int64("sequence", up.seq).
				Interface("panic", r).
				Msg("Registry update panicked")
		}
	}()

	err := p.sink.UpdateExecution(id, up.u)
	switch {
	case err == nil:
	case errors.Is(err, execution.ErrNotFound):
		metrics.EventsDropped.WithLabelValues("untracked").Inc()
		p.logger.Debug().Str("booster_id", id).Msg("Event for untracked booster")
	case errors.Is(err, execution.ErrSettled):
		metrics.EventsDropped.WithLabelValues("settled").Inc()
		p.logger.Debug().Err(err).Int64("sequence", up.seq).Msg("Event for settled execution")
	default:
		p.logger.Error().Err(err).Str("booster_id", id).Msg("Failed to apply event")
	}
}

// drainLocked processes buffered events that became contiguous
func (p *Pipeline) drainLocked(id string, st *itemState) {
	for {
		next, ok := st.pending[st.lastSequence+1]
		if !ok {
			break
		}
		delete(st.pending, next.Sequence)
		p.pending--
		p.processLocked(st, next)
	}
	if len(st.pending) == 0 {
		st.stopTimer()
	}
	metrics.PendingEvents.Set(float64(p.pending))
}

// forceLocked processes the given buffered sequences in ascending order
// regardless of the gap, then drains whatever became contiguous
func (p *Pipeline) forceLocked(id string, st *itemState, seqs []int64, cause string) {
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for _, seq := range seqs {
		ev, ok := st.pending[seq]
		if !ok {
			continue
		}
		delete(st.pending, seq)
		p.pending--
		if seq <= st.lastSequence {
			continue
		}
		metrics.EventsForced.WithLabelValues(cause).Inc()
		p.logger.Warn().
			Str("booster_id", id).
			Int64("sequence", seq).
			Int64("last_sequence", st.lastSequence).
			Str("cause", cause).
			Msg("Processing event out of order")
		p.processLocked(st, ev)
	}
	p.drainLocked(id, st)
}

// gapTimeout force-processes the buffer of id. A callback from a timer that
// was stopped or replaced, or that belongs to state dropped by Reset, does
// nothing.
func (p *Pipeline) gapTimeout(id string, owner *itemState, gen uint64) {
	p.mu.Lock()
	st, ok := p.states[id]
	if !ok || st != owner || st.gapGen != gen {
		p.mu.Unlock()
		return
	}
	st.gapTimer = nil
	seqs := make([]int64, 0, len(st.pending))
	for seq := range st.pending {
		seqs = append(seqs, seq)
	}
	if len(seqs) > 0 {
		p.forceLocked(id, st, seqs, "timeout")
	}
	p.mu.Unlock()

	p.deliver(id)
}

// Reset forgets sequence and idempotency state for ids. Call before
// resubmitting operations whose backend sequences restart at 1.
func (p *Pipeline) Reset(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked(ids)
}

func (p *Pipeline) resetLocked(ids []string) {
	for _, id := range ids {
		if st, ok := p.states[id]; ok {
			st.stopTimer()
			p.pending -= len(st.pending)
			delete(p.states, id)
		}
	}
	metrics.PendingEvents.Set(float64(p.pending))
}

// LastSequence returns the sequence cursor for id
func (p *Pipeline) LastSequence(id string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.states[id]; ok {
		return st.lastSequence
	}
	return 0
}

// PendingCount returns the number of buffered events for id
func (p *Pipeline) PendingCount(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.states[id]; ok {
		return len(st.pending)
	}
	return 0
}

// Start begins the periodic cleanup loop
func (p *Pipeline) Start() {
	go p.run()
}

// Stop stops the cleanup loop and any pending gap timers
func (p *Pipeline) Stop() {
	close(p.stopCh)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, st := range p.states {
		st.stopTimer()
	}
}

func (p *Pipeline) run() {
	ticker := time.NewTicker(p.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := p.Cleanup(); n > 0 {
				p.logger.Debug().Int("items", n).Msg("Pruned idle event state")
			}
		case <-p.stopCh:
			return
		}
	}
}

// Cleanup clears the idempotency set and pending buffer of every item that has
// seen no event within the retention window. The sequence cursor is kept. It
// returns the number of items pruned.
func (p *Pipeline) Cleanup() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-p.cfg.Retention)
	pruned := 0
	for _, st := range p.states {
		if st.lastEvent.After(cutoff) {
			continue
		}
		if len(st.processed) == 0 && len(st.pending) == 0 {
			continue
		}
		st.stopTimer()
		p.pending -= len(st.pending)
		st.pending = make(map[int64]types.BoosterEvent)
		st.processed = make(map[string]struct{})
		pruned++
	}
	metrics.PendingEvents.Set(float64(p.pending))
	return pruned
}

// toUpdate maps an event to the registry update it implies
func toUpdate(ev types.BoosterEvent) (types.ExecutionUpdate, bool) {
	var u types.ExecutionUpdate
	switch ev.EventType {
	case types.EventQueued:
		u = types.StatusUpdate(types.StatusQueued)
	case types.EventProcessing:
		u = types.StatusUpdate(types.StatusProcessing)
		if ev.Progress != nil {
			u = u.WithProgress(*ev.Progress)
		}
	case types.EventSuccess:
		u = types.StatusUpdate(types.StatusCompleted).WithProgress(100)
	case types.EventError, types.EventFailed:
		msg := ev.Error
		if msg == "" {
			msg = "operation failed"
		}
		u = types.StatusUpdate(types.StatusError).WithError(msg)
	case types.EventCancelled:
		u = types.StatusUpdate(types.StatusCancelled)
	default:
		return u, false
	}
	if ev.OperationID != "" {
		u = u.WithOperationID(ev.OperationID)
	}
	return u, true
}

func lowest(m map[int64]types.BoosterEvent) int64 {
	first := true
	var min int64
	for seq := range m {
		if first || seq < min {
			min = seq
			first = false
		}
	}
	return min
}

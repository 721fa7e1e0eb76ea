package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/booster/pkg/backend"
	"github.com/cuemby/booster/pkg/log"
	"github.com/cuemby/booster/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrStopped is returned from SubscribeEvents once the backend is stopped
var ErrStopped = errors.New("backend stopped")

// Options controls the simulated executor
type Options struct {
	// StepDelay is the pause between progress events of one operation
	StepDelay time.Duration
	// Steps is the number of intermediate progress events
	Steps int
}

// EventFilter rewrites outgoing events; returning nil drops the event,
// returning several duplicates or injects events
type EventFilter func(ev types.BoosterEvent) []types.BoosterEvent

type operation struct {
	id        string
	boosterID string
	op        types.Operation
	seq       int64
	status    types.ExecutionStatus
	progress  int
	err       string
}

// Backend is an in-process simulated executor. Operations are processed one
// at a time in submission order; every state change is pushed as a sequenced,
// idempotency-tagged event.
type Backend struct {
	mu      sync.Mutex
	items   map[string]*types.BoosterItem
	queue   []*operation
	current *operation
	last    map[string]*operation

	failExecute map[string]error
	rejectExec  map[string]string
	failApply   map[string]string

	subs    map[int]func([]byte)
	nextSub int
	filter  EventFilter

	opts    Options
	wake    chan struct{}
	stopCh  chan struct{}
	started bool
	stopped bool
	logger  zerolog.Logger
}

var _ backend.Backend = (*Backend)(nil)
var _ backend.StatusConfirmer = (*Backend)(nil)

// New creates a simulated backend holding the given items
func New(items []*types.BoosterItem, opts Options) *Backend {
	if opts.Steps < 0 {
		opts.Steps = 0
	}
	b := &Backend{
		items:       make(map[string]*types.BoosterItem),
		last:        make(map[string]*operation),
		failExecute: make(map[string]error),
		rejectExec:  make(map[string]string),
		failApply:   make(map[string]string),
		subs:        make(map[int]func([]byte)),
		opts:        opts,
		wake:        make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		logger:      log.WithComponent("memory-backend"),
	}
	for _, item := range items {
		b.items[item.ID] = item.Clone()
	}
	return b
}

// Start runs the executor loop in the background
func (b *Backend) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	go b.run()
}

// Stop stops the executor loop and ends all event subscriptions
func (b *Backend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	close(b.stopCh)
}

// FailExecute makes ExecuteBooster return err for the booster
func (b *Backend) FailExecute(boosterID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failExecute[boosterID] = err
}

// RejectExecute makes ExecuteBooster answer success=false for the booster
func (b *Backend) RejectExecute(boosterID, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectExec[boosterID] = msg
}

// FailApply makes the executor finish operations on the booster with an error event
func (b *Backend) FailApply(boosterID, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failApply[boosterID] = msg
}

// SetEventFilter installs a filter applied to every outgoing event
func (b *Backend) SetEventFilter(f EventFilter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = f
}

// Item returns a copy of the booster as the backend sees it
func (b *Backend) Item(id string) (*types.BoosterItem, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	item, ok := b.items[id]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// GetBoostersByCategory implements backend.Backend
func (b *Backend) GetBoostersByCategory(ctx context.Context, category, language string) ([]*types.BoosterItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*types.BoosterItem
	for _, item := range b.items {
		if category == "" || item.Category == category {
			out = append(out, item.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ExecuteBooster implements backend.Backend
func (b *Backend) ExecuteBooster(ctx context.Context, boosterID string, op types.Operation) (*types.ExecuteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !op.Valid() {
		return nil, fmt.Errorf("invalid operation %q", op)
	}

	b.mu.Lock()
	if _, ok := b.items[boosterID]; !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", backend.ErrUnknownBooster, boosterID)
	}
	if err, ok := b.failExecute[boosterID]; ok {
		b.mu.Unlock()
		return nil, err
	}
	if msg, ok := b.rejectExec[boosterID]; ok {
		b.mu.Unlock()
		return &types.ExecuteResult{Success: false, Error: msg}, nil
	}

	o := &operation{
		id:        uuid.New().String(),
		boosterID: boosterID,
		op:        op,
		status:    types.StatusQueued,
	}
	wasIdle := b.current == nil && len(b.queue) == 0
	b.queue = append(b.queue, o)
	b.last[boosterID] = o

	var evs []types.BoosterEvent
	if wasIdle {
		evs = append(evs, b.batchEventLocked())
	}
	evs = append(evs, b.opEventLocked(o, types.EventQueued))
	b.mu.Unlock()

	b.publish(evs...)

	select {
	case b.wake <- struct{}{}:
	default:
	}

	return &types.ExecuteResult{
		Success:     true,
		Message:     fmt.Sprintf("%s queued", op),
		OperationID: o.id,
	}, nil
}

// GetExecutionQueueState implements backend.Backend
func (b *Backend) GetExecutionQueueState(ctx context.Context) (*types.QueueState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	state := &types.QueueState{Items: []types.QueueItem{}}
	if b.current != nil {
		state.Items = append(state.Items, queueItem(b.current))
		state.InProgress = 1
	}
	for _, o := range b.queue {
		state.Items = append(state.Items, queueItem(o))
	}
	return state, nil
}

// GetExecutionStatus implements backend.StatusConfirmer
func (b *Backend) GetExecutionStatus(ctx context.Context, boosterID string) (types.ExecutionStatus, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.last[boosterID]
	if !ok {
		return types.StatusIdle, "", nil
	}
	return o.status, o.err, nil
}

// SubscribeEvents implements backend.Backend
func (b *Backend) SubscribeEvents(ctx context.Context, handler func(payload []byte)) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrStopped
	}
	id := b.nextSub
	b.nextSub++
	b.subs[id] = handler
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return nil
	case <-b.stopCh:
		return ErrStopped
	}
}

// SubscriberCount returns the number of open event subscriptions
func (b *Backend) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Step processes the head of the queue synchronously. It returns false when
// the queue is empty.
func (b *Backend) Step() bool {
	return b.processNext(0)
}

func (b *Backend) run() {
	for {
		select {
		case <-b.wake:
			for b.processNext(b.opts.StepDelay) {
				select {
				case <-b.stopCh:
					return
				default:
				}
			}
		case <-b.stopCh:
			return
		}
	}
}

func (b *Backend) processNext(delay time.Duration) bool {
	b.mu.Lock()
	if b.current != nil || len(b.queue) == 0 {
		b.mu.Unlock()
		return false
	}
	o := b.queue[0]
	b.queue = b.queue[1:]
	b.current = o
	o.status = types.StatusProcessing
	ev := b.opEventLocked(o, types.EventProcessing)
	b.mu.Unlock()
	b.publish(ev)

	for i := 1; i <= b.opts.Steps; i++ {
		if !b.sleep(delay) {
			return false
		}
		b.mu.Lock()
		o.progress = i * 100 / (b.opts.Steps + 1)
		ev := b.opEventLocked(o, types.EventProcessing)
		b.mu.Unlock()
		b.publish(ev)
	}
	if !b.sleep(delay) {
		return false
	}

	b.mu.Lock()
	var final types.BoosterEvent
	if msg, ok := b.failApply[o.boosterID]; ok {
		o.status = types.StatusError
		o.err = msg
		final = b.opEventLocked(o, types.EventError)
	} else {
		now := time.Now()
		item := b.items[o.boosterID]
		if o.op == types.OperationApply {
			item.IsApplied = true
			item.AppliedAt = &now
		} else {
			item.IsApplied = false
			item.RevertedAt = &now
		}
		o.status = types.StatusCompleted
		o.progress = 100
		final = b.opEventLocked(o, types.EventSuccess)
		final.EndAt = &now
	}
	b.current = nil
	b.mu.Unlock()
	b.publish(final)

	b.logger.Debug().
		Str("booster_id", o.boosterID).
		Str("operation", string(o.op)).
		Str("status", string(o.status)).
		Msg("operation finished")
	return true
}

func (b *Backend) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-b.stopCh:
		return false
	}
}

func (b *Backend) queueSizeLocked() int {
	n := len(b.queue)
	if b.current != nil {
		n++
	}
	return n
}

func (b *Backend) opEventLocked(o *operation, t types.EventType) types.BoosterEvent {
	o.seq++
	progress := o.progress
	return types.BoosterEvent{
		EventType:     t,
		Timestamp:     time.Now(),
		OperationType: o.op,
		OperationID:   o.id,
		BoosterID:     o.boosterID,
		Sequence:      o.seq,
		IdempotencyID: uuid.New().String(),
		Status:        string(o.status),
		Error:         o.err,
		QueueSize:     b.queueSizeLocked(),
		Progress:      &progress,
	}
}

func (b *Backend) batchEventLocked() types.BoosterEvent {
	return types.BoosterEvent{
		EventType:     types.EventBatchQueued,
		Timestamp:     time.Now(),
		IdempotencyID: uuid.New().String(),
		Status:        string(types.StatusQueued),
		QueueSize:     b.queueSizeLocked(),
	}
}

func (b *Backend) publish(evs ...types.BoosterEvent) {
	b.mu.Lock()
	filter := b.filter
	handlers := make([]func([]byte), 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, ev := range evs {
		out := []types.BoosterEvent{ev}
		if filter != nil {
			out = filter(ev)
		}
		for _, e := range out {
			data, err := json.Marshal(e)
			if err != nil {
				b.logger.Error().Err(err).Msg("failed to encode event")
				continue
			}
			for _, h := range handlers {
				h(data)
			}
		}
	}
}

func queueItem(o *operation) types.QueueItem {
	p := o.progress
	return types.QueueItem{
		BoosterID:   o.boosterID,
		OperationID: o.id,
		Progress:    &p,
		Error:       o.err,
	}
}

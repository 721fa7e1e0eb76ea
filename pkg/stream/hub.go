package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/booster/pkg/log"
	"github.com/cuemby/booster/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrStreamClosed is reported to subscribers when the backend ends the stream
var ErrStreamClosed = errors.New("event stream closed by backend")

// Source is the backend side of the push channel
type Source interface {
	SubscribeEvents(ctx context.Context, handler func(payload []byte)) error
}

// Handlers is the callback bundle a subscriber registers. Either may be nil.
type Handlers struct {
	OnEvent func(payload []byte)
	OnError func(err error)
}

// Hub shares one backend event subscription between any number of
// subscribers. The backend subscription starts with the first subscriber and
// stays up until Close.
type Hub struct {
	source     Source
	subs       map[string]Handlers
	started    bool
	closed     bool
	cancel     context.CancelFunc
	done       chan struct{}
	minBackoff time.Duration
	maxBackoff time.Duration
	mu         sync.RWMutex
	logger     zerolog.Logger
}

// Option configures a Hub
type Option func(*Hub)

// WithBackoff sets the reconnect backoff bounds
func WithBackoff(min, max time.Duration) Option {
	return func(h *Hub) {
		h.minBackoff = min
		h.maxBackoff = max
	}
}

// NewHub creates a hub over source
func NewHub(source Source, opts ...Option) *Hub {
	h := &Hub{
		source:     source,
		subs:       make(map[string]Handlers),
		done:       make(chan struct{}),
		minBackoff: 250 * time.Millisecond,
		maxBackoff: 10 * time.Second,
		logger:     log.WithComponent("stream"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers handlers and returns the subscription id
func (h *Hub) Subscribe(handlers Handlers) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New().String()
	h.subs[id] = handlers
	metrics.StreamSubscribers.Set(float64(len(h.subs)))

	if !h.started && !h.closed {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancel = cancel
		h.started = true
		go h.run(ctx)
		h.logger.Info().Msg("Event stream started")
	}
	return id
}

// Unsubscribe removes a subscription. The backend subscription keeps running
// for the remaining and future subscribers.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs, id)
	metrics.StreamSubscribers.Set(float64(len(h.subs)))
}

// Close stops the backend subscription and drops all subscribers
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	started := h.started
	if h.cancel != nil {
		h.cancel()
	}
	h.subs = make(map[string]Handlers)
	metrics.StreamSubscribers.Set(0)
	h.mu.Unlock()

	if started {
		<-h.done
	}
}

// Running reports whether the backend subscription loop is active
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started && !h.closed
}

// SubscriberCount returns the number of registered subscribers
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	backoff := h.minBackoff
	for {
		var received atomic.Bool
		metrics.UpdateComponent("stream", true, "subscribed")
		err := h.source.SubscribeEvents(ctx, func(payload []byte) {
			received.Store(true)
			h.dispatch(payload)
		})
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = ErrStreamClosed
		}

		metrics.UpdateComponent("stream", false, err.Error())
		metrics.StreamReconnects.Inc()
		h.dispatchError(err)

		if received.Load() {
			backoff = h.minBackoff
		}
		h.logger.Warn().Err(err).Dur("backoff", backoff).Msg("Event stream lost, reconnecting")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > h.maxBackoff {
			backoff = h.maxBackoff
		}
	}
}

func (h *Hub) snapshot() []Handlers {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Handlers, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	return out
}

func (h *Hub) dispatch(payload []byte) {
	for _, s := range h.snapshot() {
		if s.OnEvent == nil {
			continue
		}
		h.safeCall(func() { s.OnEvent(payload) })
	}
}

func (h *Hub) dispatchError(err error) {
	for _, s := range h.snapshot() {
		if s.OnError == nil {
			continue
		}
		h.safeCall(func() { s.OnError(err) })
	}
}

func (h *Hub) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Err(fmt.Errorf("%v", r)).Msg("Subscriber panicked")
		}
	}()
	fn()
}

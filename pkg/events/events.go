package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType names a notification
type EventType string

const (
	EventBatchStarted     EventType = "batch.started"
	EventBatchCompleted   EventType = "batch.completed"
	EventBatchError       EventType = "batch.error"
	EventExecutionUpdated EventType = "execution.updated"
	EventSyncCompleted    EventType = "sync.completed"
	EventSyncFailed       EventType = "sync.failed"
	EventCatalogLoaded    EventType = "catalog.loaded"
)

const (
	defaultQueueSize = 100
	defaultSubBuffer = 50
)

// Event is a presentation-facing notification
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber receives events. The broker closes it on Unsubscribe or Stop.
type Subscriber chan *Event

// filter is the set of types a subscriber asked for; nil means all.
type filter map[EventType]struct{}

func (f filter) accepts(t EventType) bool {
	if f == nil {
		return true
	}
	_, ok := f[t]
	return ok
}

// Broker fans notifications out to subscribers. Publish never blocks: a full
// queue or a full subscriber buffer drops the event and counts it.
type Broker struct {
	mu      sync.RWMutex
	subs    map[Subscriber]filter
	queue   chan *Event
	subSize int

	stopCh   chan struct{}
	stopOnce sync.Once
	stopped  bool

	dropped atomic.Uint64
}

// Option configures a Broker
type Option func(*Broker)

// WithQueueSize sets how many events may wait for distribution
func WithQueueSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.queue = make(chan *Event, n)
		}
	}
}

// WithSubscriberBuffer sets the channel capacity of new subscriptions
func WithSubscriberBuffer(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.subSize = n
		}
	}
}

// NewBroker creates a broker. Call Start before publishing.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		subs:    make(map[Subscriber]filter),
		queue:   make(chan *Event, defaultQueueSize),
		subSize: defaultSubBuffer,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the distribution loop
func (b *Broker) Start() {
	go b.loop()
}

// Stop ends distribution and closes every open subscription. Safe to call
// more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)

		b.mu.Lock()
		defer b.mu.Unlock()
		b.stopped = true
		for sub := range b.subs {
			close(sub)
		}
		b.subs = make(map[Subscriber]filter)
	})
}

// Subscribe opens a subscription. With no types it receives everything.
// After Stop the returned channel is already closed.
func (b *Broker) Subscribe(types ...EventType) Subscriber {
	var f filter
	if len(types) > 0 {
		f = make(filter, len(types))
		for _, t := range types {
			f[t] = struct{}{}
		}
	}

	sub := make(Subscriber, b.subSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		close(sub)
		return sub
	}
	b.subs[sub] = f
	return sub
}

// Unsubscribe closes sub. Unknown or already closed subscriptions are ignored.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub)
	}
}

// Publish stamps the event with an ID and timestamp when missing and queues it.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-b.stopCh:
		return
	default:
	}

	select {
	case b.queue <- event:
	default:
		b.dropped.Add(1)
	}
}

// SubscriberCount returns the number of open subscriptions
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a queue was full
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Broker) loop() {
	for {
		select {
		case <-b.stopCh:
			return
		case ev := <-b.queue:
			b.deliver(ev)
		}
	}
}

func (b *Broker) deliver(ev *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, f := range b.subs {
		if !f.accepts(ev.Type) {
			continue
		}
		select {
		case sub <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

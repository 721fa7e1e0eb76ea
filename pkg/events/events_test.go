package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{
		Type:     EventBatchCompleted,
		Message:  "batch submitted",
		Metadata: map[string]string{"batch_id": "b1"},
	})

	for _, sub := range []Subscriber{s1, s2} {
		ev := receive(t, sub)
		assert.Equal(t, EventBatchCompleted, ev.Type)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
		assert.Equal(t, "b1", ev.Metadata["batch_id"])
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)

	// second unsubscribe is a no-op
	assert.NotPanics(t, func() { b.Unsubscribe(sub) })
}

func TestBrokerPublishNeverBlocks(t *testing.T) {
	b := NewBroker()
	// not started: the queue fills and further events are dropped
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Publish(&Event{Type: EventExecutionUpdated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}

	assert.Equal(t, uint64(500-defaultQueueSize), b.Dropped())

	b.Stop()
	b.Stop()
	assert.NotPanics(t, func() { b.Publish(&Event{Type: EventSyncFailed}) })
	assert.Equal(t, uint64(500-defaultQueueSize), b.Dropped())
}

func TestBrokerSlowSubscriberDoesNotStall(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	slow := b.Subscribe()
	fast := b.Subscribe()

	for i := 0; i < 60; i++ {
		b.Publish(&Event{Type: EventExecutionUpdated})
		receive(t, fast)
	}
	require.Eventually(t, func() bool {
		return b.Dropped() == uint64(60-defaultSubBuffer)
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, slow, defaultSubBuffer)
}

func TestBrokerTypeFilter(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	syncOnly := b.Subscribe(EventSyncCompleted, EventSyncFailed)
	all := b.Subscribe()

	b.Publish(&Event{Type: EventExecutionUpdated})
	b.Publish(&Event{Type: EventSyncFailed, Message: "timeout"})

	assert.Equal(t, EventExecutionUpdated, receive(t, all).Type)
	assert.Equal(t, EventSyncFailed, receive(t, all).Type)

	ev := receive(t, syncOnly)
	assert.Equal(t, EventSyncFailed, ev.Type)
	assert.Equal(t, "timeout", ev.Message)
	assert.Empty(t, syncOnly)
}

func TestBrokerStopClosesSubscriptions(t *testing.T) {
	b := NewBroker(WithQueueSize(4), WithSubscriberBuffer(2))
	b.Start()

	sub := b.Subscribe()
	b.Stop()

	_, open := <-sub
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())
	assert.NotPanics(t, func() { b.Unsubscribe(sub) })

	late := b.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

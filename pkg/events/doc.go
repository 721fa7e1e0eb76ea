/*
Package events provides the in-memory notification broker that presentation
code subscribes to.

Components publish coarse notifications about what happened in the pipeline;
subscribers receive them on buffered channels:

	Publisher → Event Channel (buffer: 100) → Broadcast Loop → Subscriber (buffer: 50 each)

Publish never blocks. An event is dropped when the queue is full or the broker
is stopped, and a subscriber whose buffer is full misses the event. Dropped
reports how many deliveries were skipped. Stop closes every subscription.

Subscribe takes an optional list of event types; a subscriber only sees
events of those types.

# Event Types

	batch.started       batch submission began
	batch.completed     every backend call of the batch was issued
	batch.error         the submission loop aborted
	execution.updated   an execution record changed status
	sync.completed      a reconciliation finished
	sync.failed         a reconciliation poll failed
	catalog.loaded      a catalog category was (re)loaded

Metadata carries identifiers such as batch_id, booster_id, status and
category.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		fmt.Println(ev.Type, ev.Message)
	}
*/
package events

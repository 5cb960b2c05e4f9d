package telemetry

import "sync"

// eventBufferCapacity bounds each subscriber's backlog; a subscriber
// that falls behind misses newly published events rather than
// backpressuring the publisher.
const eventBufferCapacity = 1024

// Broadcaster fans TelemetryEvents out to any number of subscribers
// (dashboard websocket connections). Publish never blocks: a slow
// subscriber's channel fills up and further sends to it are dropped,
// incrementing its own skipped-event counter.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[*subscription]struct{}
}

type subscription struct {
	ch      chan TelemetryEvent
	dropped uint64
}

// NewBroadcaster builds an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: map[*subscription]struct{}{}}
}

// Subscribe registers a new listener and returns its event channel
// plus an unsubscribe function the caller must invoke when done.
func (b *Broadcaster) Subscribe() (<-chan TelemetryEvent, func()) {
	sub := &subscription{ch: make(chan TelemetryEvent, eventBufferCapacity)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		close(sub.ch)
	}
	return sub.ch, unsubscribe
}

// Publish fans event out to every current subscriber, never blocking:
// a full subscriber channel drops the event and counts it skipped.
func (b *Broadcaster) Publish(event TelemetryEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			sub.dropped++
		}
	}
}

// SubscriberCount reports how many live subscribers are currently
// registered.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

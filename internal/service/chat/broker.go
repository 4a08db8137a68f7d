package chat

import (
	"sync"
	"sync/atomic"

	"github.com/zhouzirui/streamchat/internal/model/chat"
)

const defaultEventBuffer = 256

// Subscription receives transcript events in the order they were applied.
// If the subscriber falls behind by more than its buffer, the channel is
// closed and Lagged reports true; resubscribe to get a fresh snapshot.
type Subscription struct {
	// Snapshot is the transcript as of registration.
	Snapshot chat.Event

	id     uint64
	events chan chat.Event
	lagged atomic.Bool
	broker *broker
}

// Events yields changes applied after Snapshot.
func (s *Subscription) Events() <-chan chat.Event {
	return s.events
}

// Lagged reports whether the subscription was dropped for falling behind.
func (s *Subscription) Lagged() bool {
	return s.lagged.Load()
}

// Close stops delivery and closes the events channel. Safe to call twice.
func (s *Subscription) Close() {
	s.broker.remove(s)
}

type broker struct {
	mu     sync.Mutex
	nextID uint64
	buffer int
	subs   map[uint64]*Subscription
}

func newBroker(buffer int) *broker {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &broker{
		buffer: buffer,
		subs:   make(map[uint64]*Subscription),
	}
}

func (b *broker) add(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = b.buffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		events: make(chan chat.Event, buffer),
		broker: b,
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.events)
}

// publish never blocks; a full subscriber is dropped instead.
func (b *broker) publish(ev chat.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		select {
		case sub.events <- ev:
		default:
			sub.lagged.Store(true)
			delete(b.subs, id)
			close(sub.events)
		}
	}
}

func (b *broker) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

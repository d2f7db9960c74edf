package events

import (
	"sync"
)

// Bus is a pub/sub broker for gateway lifecycle events. Sticky topics
// retain their latest payload: a late subscriber sees the current
// connection state immediately instead of waiting for the next
// transition.
type Bus struct {
	mu       sync.Mutex
	subs     map[Event][]chan any
	retained map[Event]any
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subs:     make(map[Event][]chan any),
		retained: make(map[Event]any),
	}
}

// Subscribe registers a listener for an event and returns the channel
// and an unsubscribe function. For sticky events the retained payload
// is delivered before anything published later.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	ch := make(chan any, buffer)
	b.subs[e] = append(b.subs[e], ch)
	if v, ok := b.retained[e]; ok {
		ch <- v
	}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[e]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[e] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish fans the payload out to subscribers without blocking: a slow
// subscriber drops the event rather than stalling the publisher.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e.sticky() {
		b.retained[e] = payload
	}
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
			// drop if subscriber is slow; keep broker non-blocking
		}
	}
}

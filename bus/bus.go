// Package bus is the in-process event channel connecting the engine's
// components: the connection manager and sync engine publish, the
// client facade and host-facing callbacks consume.
package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process publish/subscribe event bus with namespace
// filtering. Delivery is non-blocking: a subscriber that falls behind
// loses events rather than stalling the connection's event pump.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	next   int
	closed bool
}

type subscription struct {
	namespace string
	ch        chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends an event to all subscribers whose namespace is a
// prefix of event.Kind. Publishing on a closed bus is a no-op so late
// cache writes during teardown stay harmless.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
				// Subscriber full; drop rather than block the pump.
			}
		}
	}
}

// Subscribe returns a channel receiving events matching the namespace
// prefix, plus an unsubscribe function. bufSize controls the channel
// buffer. On a closed bus the returned channel is already closed, so
// range loops over it terminate immediately.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Close shuts the bus down: every subscriber channel is closed so host
// range loops drain and exit. Called once during client shutdown after
// the publishing goroutines have stopped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[int]*subscription)
}

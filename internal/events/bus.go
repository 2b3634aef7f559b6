// Package events delivers supervisor events to observers.
package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/smazurov/protoframe/internal/logging"
)

// Handler receives published events.
type Handler func(Event)

// SubscriptionID identifies a registered handler.
type SubscriptionID uint64

type subscriber struct {
	id      SubscriptionID
	handler Handler
}

// Bus is a synchronous, ordered, multi-subscriber event bus.
// Publish returns after every handler registered at the time of the call
// has run. Handlers that need to do slow work should hand off, for example
// through a Relay.
type Bus struct {
	mu     sync.Mutex
	subs   atomic.Pointer[[]subscriber]
	nextID SubscriptionID
	logger logging.Logger
}

// New creates a new event bus.
func New() *Bus {
	return NewWithLogger(nil)
}

// NewWithLogger creates a bus that reports handler panics to logger.
func NewWithLogger(logger logging.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{logger: logger}
	b.subs.Store(&[]subscriber{})
	return b
}

// Subscribe registers handler. It receives every event published after
// Subscribe returns.
func (b *Bus) Subscribe(handler Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	old := *b.subs.Load()
	next := make([]subscriber, len(old), len(old)+1)
	copy(next, old)
	next = append(next, subscriber{id: id, handler: handler})
	b.subs.Store(&next)

	return id
}

// Unsubscribe removes a handler and reports whether it was registered.
// A publish already in progress may still deliver to it.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	old := *b.subs.Load()
	next := make([]subscriber, 0, len(old))
	for _, s := range old {
		if s.id != id {
			next = append(next, s)
		}
	}
	if len(next) == len(old) {
		return false
	}
	b.subs.Store(&next)
	return true
}

// Len returns the number of registered handlers.
func (b *Bus) Len() int {
	return len(*b.subs.Load())
}

// Publish delivers ev to every registered handler in subscription order.
func (b *Bus) Publish(ev Event) {
	for _, s := range *b.subs.Load() {
		b.deliver(s, ev)
	}
}

// deliver runs one handler, containing any panic it raises.
func (b *Bus) deliver(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked", "subscription", uint64(s.id), "event_type", ev.Type(), "panic", r)
		}
	}()
	s.handler(ev)
}

// On subscribes a handler for a single event type.
// Usage: events.On(bus, func(e events.Progress) { ... })
func On[T Event](b *Bus, handler func(T)) SubscriptionID {
	return b.Subscribe(func(ev Event) {
		if e, ok := ev.(T); ok {
			handler(e)
		}
	})
}

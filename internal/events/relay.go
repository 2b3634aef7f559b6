package events

import (
	"context"
	"sync"

	"github.com/kelindar/event"
)

const typeEnvelope uint32 = 1 << 16

// envelope carries any Event through the kelindar dispatcher, which routes
// by a single type id.
type envelope struct {
	ev Event
}

func (envelope) Type() uint32 { return typeEnvelope }

// Relay re-publishes everything from a Bus onto a kelindar/event dispatcher.
// Its observers run on their own goroutines, so a slow observer never holds
// up the Bus. Each observer still sees events in publication order.
type Relay struct {
	bus        *Bus
	id         SubscriptionID
	dispatcher *event.Dispatcher

	mu      sync.Mutex
	cancels map[uint64]context.CancelFunc
	nextID  uint64
	closed  bool
}

// NewRelay subscribes a relay to bus.
func NewRelay(bus *Bus) *Relay {
	r := &Relay{
		bus:        bus,
		dispatcher: event.NewDispatcher(),
		cancels:    make(map[uint64]context.CancelFunc),
	}
	r.id = bus.Subscribe(func(ev Event) {
		event.Publish(r.dispatcher, envelope{ev: ev})
	})
	return r
}

// Subscribe registers an asynchronous observer and returns its unsubscribe
// function.
// Usage: unsub := relay.Subscribe(func(e events.Event) { ... })
func (r *Relay) Subscribe(handler Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return func() {}
	}

	cancel := event.Subscribe(r.dispatcher, func(e envelope) {
		r.deliver(handler, e.ev)
	})

	r.nextID++
	id := r.nextID
	r.cancels[id] = cancel

	return func() {
		r.mu.Lock()
		c, ok := r.cancels[id]
		delete(r.cancels, id)
		r.mu.Unlock()
		if ok {
			c()
		}
	}
}

// Close detaches the relay from its bus and stops every observer.
func (r *Relay) Close() {
	r.bus.Unsubscribe(r.id)

	r.mu.Lock()
	r.closed = true
	cancels := r.cancels
	r.cancels = make(map[uint64]context.CancelFunc)
	r.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

func (r *Relay) deliver(handler Handler, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			r.bus.logger.Error("Relay handler panicked", "event_type", ev.Type(), "panic", p)
		}
	}()
	handler(ev)
}

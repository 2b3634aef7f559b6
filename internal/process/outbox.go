package process

import "sync"

// outbox delivers supervisor publications one at a time in the order they
// were pushed. Whichever goroutine flushes an idle outbox runs the queue on
// its own stack until it is empty; a push made from inside a delivery (an
// observer calling Execute) is delivered after the current one returns.
type outbox struct {
	mu         sync.Mutex
	queue      []func()
	delivering bool
}

// push queues fn. The returned channel is closed once fn has run.
func (o *outbox) push(fn func()) <-chan struct{} {
	delivered := make(chan struct{})
	o.mu.Lock()
	o.queue = append(o.queue, func() {
		defer close(delivered)
		fn()
	})
	o.mu.Unlock()
	return delivered
}

// flush runs queued work unless another goroutine is already doing so.
func (o *outbox) flush() {
	o.mu.Lock()
	if o.delivering {
		o.mu.Unlock()
		return
	}
	o.delivering = true
	for len(o.queue) > 0 {
		next := o.queue[0]
		o.queue[0] = nil
		o.queue = o.queue[1:]
		o.mu.Unlock()
		next()
		o.mu.Lock()
	}
	o.delivering = false
	o.mu.Unlock()
}

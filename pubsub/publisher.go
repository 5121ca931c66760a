// Package pubsub provides the ordered publication primitive shared by the
// session, binding, notification center and catalog.
//
// Values are delivered to listeners in registration order. A round always
// completes before the next one starts: values published while a round is in
// progress, whether from inside a listener or from another goroutine, are
// queued and delivered by the goroutine running the current round.
package pubsub

import (
	"sync"
)

type entry[T any] struct {
	id uint64
	fn func(T)
}

// Publisher delivers values of type T to subscribed listeners.
// The zero value is ready to use.
type Publisher[T any] struct {
	mu         sync.Mutex
	nextID     uint64
	listeners  []entry[T]
	queue      []T
	delivering bool
}

// Subscribe registers fn and returns a function removing it. Both are safe to
// call from within a listener. The returned function is idempotent.
func (p *Publisher[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	// copy on write so rounds in progress keep iterating their own snapshot
	listeners := make([]entry[T], len(p.listeners), len(p.listeners)+1)
	copy(listeners, p.listeners)
	p.listeners = append(listeners, entry[T]{id: id, fn: fn})
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { p.remove(id) })
	}
}

func (p *Publisher[T]) remove(id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	listeners := make([]entry[T], 0, len(p.listeners))
	for _, l := range p.listeners {
		if l.id != id {
			listeners = append(listeners, l)
		}
	}
	p.listeners = listeners
}

// Len returns the number of registered listeners.
func (p *Publisher[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

// Enqueue appends v to the delivery queue without delivering it. Callers that
// guard their own state with a mutex enqueue the snapshot while holding it and
// Flush after releasing it, which keeps publication order equal to mutation order.
func (p *Publisher[T]) Enqueue(v T) {
	p.mu.Lock()
	p.queue = append(p.queue, v)
	p.mu.Unlock()
}

// Flush delivers queued values unless another round is already in progress,
// in which case that round delivers them.
func (p *Publisher[T]) Flush() {
	p.mu.Lock()
	if p.delivering {
		p.mu.Unlock()
		return
	}
	p.delivering = true
	completed := false
	defer func() {
		// a panicking listener must not leave the publisher stuck in a round
		if !completed {
			p.mu.Lock()
			p.delivering = false
			p.mu.Unlock()
		}
	}()

	for len(p.queue) > 0 {
		next := p.queue[0]
		var zero T
		p.queue[0] = zero
		p.queue = p.queue[1:]
		listeners := p.listeners
		p.mu.Unlock()

		for _, l := range listeners {
			l.fn(next)
		}

		p.mu.Lock()
	}
	p.delivering = false
	completed = true
	p.mu.Unlock()
}

// Publish enqueues v and flushes.
func (p *Publisher[T]) Publish(v T) {
	p.Enqueue(v)
	p.Flush()
}

// Package pubsub provides a small typed publish/subscribe primitive.
// Delivery is synchronous and in subscription order; Publish returns only
// after every subscriber has run. There is no buffering: a closed topic
// drops everything.
package pubsub

import "sync"

// Topic is a single event channel carrying values of type T.
type Topic[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription[T]
	closed bool
}

type subscription[T any] struct {
	id int
	fn func(T)
}

func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{}
}

// Subscribe registers fn and returns a function that removes it.
// The returned unsubscribe is safe to call more than once.
func (t *Topic[T]) Subscribe(fn func(T)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return func() {}
	}
	id := t.nextID
	t.nextID++
	t.subs = append(t.subs, subscription[T]{id: id, fn: fn})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers v to every current subscriber, in subscription order.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	subs := make([]subscription[T], len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

// Close drops all subscribers and makes further Publish calls no-ops.
// Safe to call from multiple call sites.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.subs = nil
}

// SubscriberCount reports the number of active subscribers.
func (t *Topic[T]) SubscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

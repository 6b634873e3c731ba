package session

import (
	"sync"
	"sync/atomic"
)

// Handler receives a newly established session.
type Handler func(Session)

type subscriber struct {
	fn     Handler
	active atomic.Bool
}

// Bus broadcasts established sessions to in-process subscribers.
//
// Publish is synchronous and runs handlers in subscription order. Nothing is
// buffered: a subscriber that registers after a publish does not see it and should
// read the [Store] instead.
type Bus struct {
	mu   sync.Mutex
	subs []*subscriber
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h and returns a function that removes it.
// The returned function is safe to call more than once and from inside a handler.
func (b *Bus) Subscribe(h Handler) func() {
	sub := &subscriber{fn: h}
	sub.active.Store(true)

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() {
		if !sub.active.Swap(false) {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers s to every current subscriber.
func (b *Bus) Publish(s Session) {
	b.mu.Lock()
	snapshot := make([]*subscriber, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, sub := range snapshot {
		// a handler earlier in this dispatch may have unsubscribed this one
		if !sub.active.Load() {
			continue
		}
		sub.fn(s)
	}
}

// Len returns the number of current subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

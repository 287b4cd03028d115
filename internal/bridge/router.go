package bridge

import (
	"slices"
	"sync"

	"studio/internal/api/models"
)

// Subscriber receives every routed event.
type Subscriber func(models.Event)

type subscription struct {
	id uint64
	fn Subscriber
}

// Router fans events out to subscribers in registration order. Each Dispatch iterates over
// the list as it was when the dispatch began, so subscribing or unsubscribing from inside a
// handler only affects later events.
type Router struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
}

func NewRouter() *Router {
	return &Router{}
}

// Subscribe registers fn and returns a function removing it. The returned function is
// idempotent.
func (slf *Router) Subscribe(fn Subscriber) (unsubscribe func()) {
	slf.mu.Lock()
	slf.nextID++
	id := slf.nextID
	slf.subs = append(slf.subs, subscription{id: id, fn: fn})
	slf.mu.Unlock()

	return func() {
		slf.mu.Lock()
		defer slf.mu.Unlock()
		slf.subs = slices.DeleteFunc(slices.Clone(slf.subs), func(s subscription) bool { return s.id == id })
	}
}

// SubscribeTo registers fn for the given tags only.
func (slf *Router) SubscribeTo(fn Subscriber, tags ...models.EventTag) (unsubscribe func()) {
	return slf.Subscribe(func(ev models.Event) {
		if slices.Contains(tags, ev.Tag()) {
			fn(ev)
		}
	})
}

// Dispatch delivers ev synchronously to the current subscribers.
func (slf *Router) Dispatch(ev models.Event) {
	slf.mu.RLock()
	subs := slf.subs
	slf.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}

func (slf *Router) Len() int {
	slf.mu.RLock()
	defer slf.mu.RUnlock()
	return len(slf.subs)
}

// Package feed fans traded prices out to streaming subscribers and external sinks.
package feed

import "sync"

// Subscription is one consumer of a Hub.
type Subscription[T any] struct {
	ch chan T
}

// C yields broadcast values. It is closed by Unsubscribe.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Hub broadcasts values to every subscriber. A subscriber whose buffer is full
// misses the value; Broadcast never blocks.
type Hub[T any] struct {
	mu   sync.RWMutex
	subs map[*Subscription[T]]struct{}
}

// NewHub returns a hub with no subscribers.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[*Subscription[T]]struct{})}
}

func (h *Hub[T]) Subscribe(buffer int) *Subscription[T] {
	sub := &Subscription[T]{ch: make(chan T, buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe detaches sub and closes its channel. Calling it twice is a no-op.
func (h *Hub[T]) Unsubscribe(sub *Subscription[T]) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// Broadcast reports how many subscribers were skipped because they were full.
func (h *Hub[T]) Broadcast(value T) (dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- value:
		default:
			dropped++
		}
	}
	return dropped
}

// Len returns the number of subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Prices adapts a Hub of prices to the engine's price feed.
type Prices struct {
	*Hub[int64]
}

// NewPrices returns a price feed with no subscribers.
func NewPrices() Prices {
	return Prices{Hub: NewHub[int64]()}
}

// Broadcast publishes a traded price.
func (p Prices) Broadcast(price int64) {
	p.Hub.Broadcast(price)
}

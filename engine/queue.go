package engine

import (
	"sync"

	"github.com/eapache/queue"
)

// mailbox is an unbounded multi-producer, single-consumer FIFO. Producers never
// block; the consumer waits on Ready and drains with TryPop.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  *queue.Queue
	ready  chan struct{}
	closed bool
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{
		items: queue.New(),
		ready: make(chan struct{}, 1),
	}
}

// Push appends v. It reports false once the mailbox is closed.
func (m *mailbox[T]) Push(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items.Add(v)
	m.mu.Unlock()
	m.signal()
	return true
}

// TryPop removes the head item if there is one.
func (m *mailbox[T]) TryPop() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items.Length() == 0 {
		var zero T
		return zero, false
	}
	return m.items.Remove().(T), true
}

// Pop blocks until an item is available, the mailbox is closed and drained, or
// done fires.
func (m *mailbox[T]) Pop(done <-chan struct{}) (T, bool) {
	for {
		if v, ok := m.TryPop(); ok {
			return v, true
		}
		var zero T
		if m.isClosed() {
			// a push may have raced the close check
			if v, ok := m.TryPop(); ok {
				return v, true
			}
			return zero, false
		}
		select {
		case <-m.ready:
		case <-done:
			return zero, false
		}
	}
}

// Ready fires at least once after every Push and after Close.
func (m *mailbox[T]) Ready() <-chan struct{} {
	return m.ready
}

// Len reports queued items.
func (m *mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items.Length()
}

// Close rejects further pushes. Items already queued can still be popped.
func (m *mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox[T]) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mailbox[T]) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

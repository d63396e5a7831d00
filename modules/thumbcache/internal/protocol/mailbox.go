package protocol

import (
	"context"
	"sync"
	"sync/atomic"
)

// Mailbox is one direction of the in-process channel pair.
//
// Semantics:
//   - Send never blocks (items are queued, ready is signalled non-blocking)
//   - Receive blocks until an item, ctx cancellation or Close
//   - A Preload sent while an older Preload is still unconsumed replaces it
//     in place (the queue is a hint, only the latest one matters)
//
// Thread-safety: any number of senders, one receiver.
type Mailbox[T Message] struct {
	mu      sync.Mutex
	items   []T
	closed  bool
	ready   chan struct{} // cap 1, coalesced wake-up
	done    chan struct{} // closed by Close
	dropped atomic.Uint64 // superseded preloads
}

// NewMailbox creates an open mailbox.
func NewMailbox[T Message]() *Mailbox[T] {
	return &Mailbox[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Send queues msg. Returns ErrClosed after Close.
func (m *Mailbox[T]) Send(msg T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if msg.Tag() == TagPreload {
		for i, pending := range m.items {
			if pending.Tag() == TagPreload {
				// Same slot: requests sent in between stay behind it.
				m.items[i] = msg
				m.dropped.Add(1)
				m.signal()
				return nil
			}
		}
	}

	m.items = append(m.items, msg)
	m.signal()
	return nil
}

// Drain returns every queued item without blocking.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items
	m.items = nil
	return items
}

// Receive returns the oldest item, blocking until one is available.
// After Close, queued items are still returned before ErrClosed.
func (m *Mailbox[T]) Receive(ctx context.Context) (T, error) {
	var zero T

	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			item := m.items[0]
			m.items = m.items[1:]
			if len(m.items) > 0 {
				m.signal()
			}
			m.mu.Unlock()
			return item, nil
		}
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return zero, ErrClosed
		}

		select {
		case <-m.ready:
		case <-m.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Ready is signalled when items may be available.
func (m *Mailbox[T]) Ready() <-chan struct{} {
	return m.ready
}

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Superseded returns how many Preloads were replaced before consumption.
func (m *Mailbox[T]) Superseded() uint64 {
	return m.dropped.Load()
}

// Close rejects further sends and wakes a blocked receiver. Idempotent.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
}

// signal wakes the receiver; caller holds mu.
func (m *Mailbox[T]) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

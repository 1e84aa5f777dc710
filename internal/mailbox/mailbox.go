package mailbox

import "sync"

// Mailbox is an unbounded, closeable FIFO queue.
//
// Any number of goroutines may call Put concurrently. Next is intended for
// a single consumer goroutine: the actor that owns the mailbox. Total order
// of delivery matches arrival order across all producers.
type Mailbox[T any] struct {
	mu     sync.Mutex
	queue  []T
	closed bool

	// wake is a 1-buffered signal: Put sets it after enqueueing, Next
	// blocks on it when the queue is empty.
	wake chan struct{}
}

// New creates an empty, open mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		wake: make(chan struct{}, 1),
	}
}

// Put enqueues v. It never blocks. Returns false if the mailbox is closed,
// in which case v is discarded.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, v)
	m.mu.Unlock()

	m.signal()
	return true
}

// Next dequeues the oldest value, blocking while the mailbox is open and
// empty. Returns ok=false once the mailbox is closed; queued values are
// discarded at that point.
func (m *Mailbox[T]) Next() (T, bool) {
	var zero T
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return zero, false
		}
		if len(m.queue) > 0 {
			v := m.queue[0]
			m.queue[0] = zero // release the reference
			m.queue = m.queue[1:]
			if len(m.queue) == 0 {
				m.queue = nil // let the backing array go
			}
			m.mu.Unlock()
			return v, true
		}
		m.mu.Unlock()

		<-m.wake
	}
}

// Len returns the number of queued values.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close closes the mailbox and discards anything still queued. Subsequent
// Put calls return false; a blocked Next returns immediately. Safe to call
// multiple times and from any goroutine.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.queue = nil
	m.mu.Unlock()

	m.signal()
}

func (m *Mailbox[T]) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

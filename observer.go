package keywatch

import (
	"sync"

	"github.com/google/uuid"
)

// defaultObserverBuffer is the channel capacity used when NewObserver is
// called with a non-positive buffer size.
const defaultObserverBuffer = 64

// Observer receives change notifications from a [Store].
//
// The store holds only a weak, non-owning reference to each observer: it
// never manages the observer's lifecycle, it only queries liveness at
// dispatch time. Before each delivery for a changed key, the store calls
// Alive and permanently drops observers that report false from that key's
// subscriber list.
//
// Implementations must make Notify non-blocking. The actor goroutine calls
// it inline while dispatching a change; a blocking Notify stalls every
// operation on the store.
type Observer interface {
	// Alive reports whether the observer can still receive notifications.
	Alive() bool

	// Notify delivers a change. Must not block; dropping the change is
	// preferable to stalling the caller.
	Notify(Change)
}

// ChanObserver is a channel-backed [Observer].
//
// Changes are delivered to a buffered channel exposed via
// [ChanObserver.Events]. Delivery is best-effort: if the buffer is full,
// the change is dropped for this observer rather than blocking the store.
//
// Call [ChanObserver.Close] when done. A closed observer reports Alive as
// false and is pruned from every subscriber list the next time one of its
// keys changes.
type ChanObserver struct {
	id string

	mu     sync.RWMutex
	ch     chan Change
	closed bool
}

// NewObserver creates a [ChanObserver] with the given channel buffer size.
//
// If buffer is zero or negative, a default of 64 is used. Size the buffer
// for the burstiness of the keys being watched; overflow drops changes.
func NewObserver(buffer int) *ChanObserver {
	if buffer <= 0 {
		buffer = defaultObserverBuffer
	}
	return &ChanObserver{
		id: uuid.NewString(),
		ch: make(chan Change, buffer),
	}
}

// ID returns the observer's unique identifier, useful for correlating
// log lines and API responses with a particular subscription.
func (o *ChanObserver) ID() string {
	return o.id
}

// Events returns the channel on which changes are delivered.
//
// The channel is closed by [ChanObserver.Close]; a receive loop terminates
// naturally when the observer shuts down.
func (o *ChanObserver) Events() <-chan Change {
	return o.ch
}

// Alive reports whether the observer has not been closed.
func (o *ChanObserver) Alive() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return !o.closed
}

// Notify implements [Observer]. The send is non-blocking; if the buffer is
// full the change is dropped. Safe to call concurrently with Close.
func (o *ChanObserver) Notify(c Change) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}
	select {
	case o.ch <- c:
	default:
		// slow consumer, drop the change
	}
}

// Close marks the observer dead and closes its event channel.
//
// Safe to call multiple times. After Close, Notify is a no-op and the store
// prunes this observer from each key's list on that key's next change.
func (o *ChanObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.ch)
}

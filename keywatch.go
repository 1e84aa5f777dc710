package keywatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jpalmerr/keywatch/internal/mailbox"
)

// ErrStoreClosed is returned by synchronous operations on a store whose
// actor has terminated, either via [Store.Close] or because an update
// function panicked. Inspect [Store.Err] for the termination cause.
var ErrStoreClosed = errors.New("keywatch: store closed")

// Store is the opaque handle to one running store actor.
//
// A Store is obtained from [New] and is bound 1:1 to a single actor
// goroutine. The handle is cheap to copy around (it is a pointer) and
// comparable; all operations on it are messages routed through the actor's
// mailbox. Different stores are fully independent and share nothing.
//
// Fire-and-forget operations return the same handle so calls can be
// chained:
//
//	store.Assign("status", "booting").
//	    Subscribe(obs, "status").
//	    Assign("status", "ready")
//
// The chained return value never indicates completion; use [Store.Get] as a
// barrier when a caller needs to observe its own writes.
type Store struct {
	id     string
	mbox   *mailbox.Mailbox[request]
	done   chan struct{}
	logger *slog.Logger

	metrics *storeMetrics

	errMu sync.Mutex
	err   error
}

// New creates a store and starts its actor goroutine.
//
// Initial values are supplied with [WithValues] (a mapping) or [WithPairs]
// (an ordered sequence; duplicate keys resolve to last write wins). The
// store starts with no subscribers. Initial values are seeded directly into
// the state before the actor starts, so they never generate notifications.
//
// Returns an error only if an option is invalid.
func New(opts ...Option) (*Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		id:     uuid.NewString(),
		mbox:   mailbox.New[request](),
		done:   make(chan struct{}),
		logger: logger,
	}
	if cfg.registry != nil {
		s.metrics = newStoreMetrics(cfg.registry)
	}

	st := &state{
		assigns:     make(map[string]any, len(cfg.initial)),
		subscribers: make(map[string][]Observer),
	}
	for _, p := range cfg.initial {
		st.assigns[p.Key] = p.Value
	}

	go s.run(st)

	s.logger.Debug("store created", "store", s.id, "initial_keys", len(st.assigns))
	return s, nil
}

// Get returns the value bound to key, or def if the key is absent.
//
// Get is synchronous: it blocks until the actor processes the request in
// its serialized queue order. Because the mailbox is FIFO, a Get issued
// after a fire-and-forget write from the same caller observes that write.
//
// The context bounds only the caller's wait. On cancellation the actor
// still completes the read and discards the stale reply; store state is
// unaffected. Returns [ErrStoreClosed] if the store has terminated.
func (s *Store) Get(ctx context.Context, key string, def any) (any, error) {
	reply := make(chan any, 1)
	if !s.mbox.Put(getReq{key: key, def: def, reply: reply}) {
		return nil, ErrStoreClosed
	}

	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		// the actor may have replied just before terminating
		select {
		case v := <-reply:
			return v, nil
		default:
			return nil, ErrStoreClosed
		}
	}
}

// Take returns the sub-mapping of the store restricted to keys.
//
// Keys with no value are silently omitted from the result; asking for
// unknown keys is never an error. The returned map is a snapshot owned by
// the caller. Synchronous, with the same wait semantics as [Store.Get].
func (s *Store) Take(ctx context.Context, keys ...string) (map[string]any, error) {
	cp := make([]string, len(keys))
	copy(cp, keys)

	reply := make(chan map[string]any, 1)
	if !s.mbox.Put(takeReq{keys: cp, reply: reply}) {
		return nil, ErrStoreClosed
	}

	select {
	case m := <-reply:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		select {
		case m := <-reply:
			return m, nil
		default:
			return nil, ErrStoreClosed
		}
	}
}

// Assign sets a single key. Sugar for [Store.AssignPairs] with one pair.
func (s *Store) Assign(key string, value any) *Store {
	return s.AssignPairs(KV{Key: key, Value: value})
}

// AssignMany sets every key in values.
//
// Fire-and-forget: the call returns immediately and the caller must not
// assume the writes (or their notifications) have completed. For each key,
// a value structurally equal to the current one is a no-op; a different or
// new value is stored and the key's live subscribers are notified.
func (s *Store) AssignMany(values map[string]any) *Store {
	if len(values) == 0 {
		return s
	}
	pairs := make([]KV, 0, len(values))
	for k, v := range values {
		pairs = append(pairs, KV{Key: k, Value: v})
	}
	return s.AssignPairs(pairs...)
}

// AssignPairs sets keys from an ordered pair sequence.
//
// Pairs are applied in order, so duplicate keys resolve to last write wins
// and each pair performs its own change detection. Fire-and-forget, same
// semantics as [Store.AssignMany].
func (s *Store) AssignPairs(pairs ...KV) *Store {
	if len(pairs) == 0 {
		return s
	}
	cp := make([]KV, len(pairs))
	copy(cp, pairs)
	s.send(assignReq{pairs: cp})
	return s
}

// Update applies fn to the current value of key and stores the result.
//
// The read-modify-write is atomic with respect to every other operation on
// this store. An absent key passes nil into fn. The computed value goes
// through the same change detection and notification as a single-pair
// assign. Fire-and-forget; a nil fn is ignored.
//
// If fn panics the store terminates: the write never commits, subsequent
// synchronous calls return [ErrStoreClosed], and [Store.Err] reports the
// cause. Treat a closed handle as the failure signal.
func (s *Store) Update(key string, fn func(any) any) *Store {
	if fn == nil {
		return s
	}
	s.send(updateReq{key: key, fn: fn})
	return s
}

// Subscribe registers obs for change notifications on each of keys.
//
// Each subscription is prepended to the key's list, so the most recent
// subscriber is notified first. Subscribing the same observer to the same
// key twice is allowed and yields two deliveries per change. Keys need not
// have values yet. Fire-and-forget; returns the handle for chaining.
func (s *Store) Subscribe(obs Observer, keys ...string) *Store {
	if obs == nil || len(keys) == 0 {
		return s
	}
	cp := make([]string, len(keys))
	copy(cp, keys)
	s.send(subscribeReq{obs: obs, keys: cp})
	return s
}

// Close terminates the actor and waits for it to exit.
//
// Requests still queued in the mailbox are discarded. Pending synchronous
// callers receive [ErrStoreClosed]; fire-and-forget requests sent after
// Close are silently dropped. Safe to call multiple times.
func (s *Store) Close() {
	s.mbox.Close()
	<-s.done
}

// Done returns a channel closed when the actor has terminated, for either
// reason. Useful for callers that need to react to a store dying under
// them (see [Store.Err]).
func (s *Store) Done() <-chan struct{} {
	return s.done
}

// Err returns the termination cause, or nil if the store is still running
// or was shut down cleanly via [Store.Close].
func (s *Store) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// ID returns the store's unique identifier, used in log lines and metrics
// correlation.
func (s *Store) ID() string {
	return s.id
}

// send enqueues a fire-and-forget request. Requests against a terminated
// store are dropped; per the write contract they never fail.
func (s *Store) send(r request) {
	if !s.mbox.Put(r) {
		s.logger.Debug("request dropped, store closed", "store", s.id)
	}
}

func (s *Store) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

package keywatch

import (
	"fmt"
	"reflect"
)

// request is the tagged union of messages processed by the actor goroutine.
// Each variant corresponds to one public operation on [Store].
type request interface {
	isRequest()
}

type getReq struct {
	key   string
	def   any
	reply chan any
}

type takeReq struct {
	keys  []string
	reply chan map[string]any
}

type assignReq struct {
	pairs []KV
}

type updateReq struct {
	key string
	fn  func(any) any
}

type subscribeReq struct {
	obs  Observer
	keys []string
}

func (getReq) isRequest()       {}
func (takeReq) isRequest()      {}
func (assignReq) isRequest()    {}
func (updateReq) isRequest()    {}
func (subscribeReq) isRequest() {}

// state is the actor's private state. It is owned exclusively by the run
// goroutine; nothing outside the actor may read or mutate it.
//
// assigns and subscribers are independent: a key may be watched before it
// is ever written, and written without anyone watching.
type state struct {
	assigns     map[string]any
	subscribers map[string][]Observer
}

// run is the actor loop. It drains the mailbox one request at a time until
// the mailbox is closed or an update function panics.
//
// An update-function panic is fatal to the store instance: the failed write
// never commits, the cause is recorded for [Store.Err], and the store
// transitions to closed. No recovery or retry is attempted.
func (s *Store) run(st *state) {
	defer close(s.done)
	defer s.mbox.Close()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("keywatch: update function panicked: %v", r)
			s.setErr(err)
			s.logger.Error("store terminated", "store", s.id, "error", err)
		}
	}()

	for {
		req, ok := s.mbox.Next()
		if !ok {
			return
		}
		s.handle(st, req)
	}
}

// handle processes a single request to completion. Requests never
// interleave; the actor starts the next one only after this returns.
func (s *Store) handle(st *state, req request) {
	switch r := req.(type) {
	case getReq:
		v, ok := st.assigns[r.key]
		if !ok {
			v = r.def
		}
		// reply is 1-buffered, so the send completes even if the caller
		// timed out and abandoned the request
		r.reply <- v

	case takeReq:
		out := make(map[string]any, len(r.keys))
		for _, k := range r.keys {
			if v, ok := st.assigns[k]; ok {
				out[k] = v
			}
		}
		r.reply <- out

	case assignReq:
		for _, p := range r.pairs {
			s.commit(st, p.Key, p.Value)
		}

	case updateReq:
		cur := st.assigns[r.key] // nil when absent
		s.commit(st, r.key, r.fn(cur))

	case subscribeReq:
		for _, k := range r.keys {
			// prepend: most recent subscriber is notified first
			st.subscribers[k] = append([]Observer{r.obs}, st.subscribers[k]...)
		}
		if s.metrics != nil {
			s.metrics.subscriptions.Add(float64(len(r.keys)))
		}
	}
}

// commit applies one write with change detection. Equal values are a no-op:
// no mutation, no notification. A real change is stored first, then fanned
// out to the key's live subscribers.
func (s *Store) commit(st *state, key string, value any) {
	if s.metrics != nil {
		s.metrics.assigns.Inc()
	}

	if cur, ok := st.assigns[key]; ok && equalValues(cur, value) {
		return
	}

	st.assigns[key] = value
	if s.metrics != nil {
		s.metrics.changes.Inc()
	}
	s.notify(st, key, value)
}

// notify dispatches a change to the key's subscribers.
//
// The stored list is first filtered to live observers; dead entries are
// pruned permanently as a side effect. Survivors are notified in list
// order (most recently subscribed first). Delivery is best-effort and
// non-blocking from the actor's perspective.
func (s *Store) notify(st *state, key string, value any) {
	subs, ok := st.subscribers[key]
	if !ok {
		return
	}

	live := make([]Observer, 0, len(subs))
	for _, o := range subs {
		if o.Alive() {
			live = append(live, o)
		}
	}

	if pruned := len(subs) - len(live); pruned > 0 {
		if s.metrics != nil {
			s.metrics.pruned.Add(float64(pruned))
		}
		s.logger.Debug("pruned dead observers", "store", s.id, "key", key, "count", pruned)
	}

	if len(live) == 0 {
		delete(st.subscribers, key)
		return
	}
	st.subscribers[key] = live

	c := Change{Key: key, Value: value}
	for _, o := range live {
		o.Notify(c)
	}
	if s.metrics != nil {
		s.metrics.notifications.Add(float64(len(live)))
	}
}

// equalValues is the structural equality used for change detection.
// Values the store cannot distinguish produce no notification.
func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

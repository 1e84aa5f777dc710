package keywatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore creates a store that is closed when the test ends.
func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	opts = append(opts, WithLogger(testLogger()))
	s, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// barrier forces the store to drain every request queued before it. Because
// the mailbox is FIFO and notifications are dispatched inline by the actor,
// once barrier returns all earlier writes and deliveries have happened.
func barrier(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := s.Get(ctx, "", nil); err != nil {
		t.Fatalf("barrier Get() error = %v", err)
	}
}

// mustGet reads a key with a bounded wait.
func mustGet(t *testing.T, s *Store, key string, def any) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := s.Get(ctx, key, def)
	if err != nil {
		t.Fatalf("Get(%q) error = %v", key, err)
	}
	return v
}

// recvChange expects one buffered change on the observer.
func recvChange(t *testing.T, obs *ChanObserver) Change {
	t.Helper()
	select {
	case c, ok := <-obs.Events():
		if !ok {
			t.Fatal("observer channel closed")
		}
		return c
	case <-time.After(time.Second):
		t.Fatal("no change received")
	}
	return Change{}
}

// assertNoChange asserts the observer's buffer is empty. Callers must run
// barrier first so any pending delivery has already been dispatched.
func assertNoChange(t *testing.T, obs *ChanObserver) {
	t.Helper()
	select {
	case c := <-obs.Events():
		t.Fatalf("unexpected change received: %+v", c)
	default:
	}
}

func TestNew_Empty(t *testing.T) {
	s := newTestStore(t)

	if got := mustGet(t, s, "anything", nil); got != nil {
		t.Errorf("Get(anything) = %v, want nil", got)
	}
}

func TestNew_InitialValues(t *testing.T) {
	s := newTestStore(t, WithValues(map[string]any{"a": 1, "b": "two"}))

	if got := mustGet(t, s, "a", nil); got != 1 {
		t.Errorf("Get(a) = %v, want 1", got)
	}
	if got := mustGet(t, s, "b", nil); got != "two" {
		t.Errorf("Get(b) = %v, want two", got)
	}
}

func TestNew_PairsLastWriteWins(t *testing.T) {
	s := newTestStore(t, WithPairs(
		KV{Key: "a", Value: 1},
		KV{Key: "b", Value: 2},
		KV{Key: "a", Value: 3},
	))

	if got := mustGet(t, s, "a", nil); got != 3 {
		t.Errorf("Get(a) = %v, want 3 (last write wins)", got)
	}
	if got := mustGet(t, s, "b", nil); got != 2 {
		t.Errorf("Get(b) = %v, want 2", got)
	}
}

// Get returns the default for a key never assigned.
func TestGet_DefaultOnMissing(t *testing.T) {
	s := newTestStore(t, WithValues(map[string]any{"a": 1}))

	if got := mustGet(t, s, "missing", "fallback"); got != "fallback" {
		t.Errorf("Get(missing, fallback) = %v, want fallback", got)
	}
}

// Take silently omits unknown keys.
func TestTake_FiltersUnknownKeys(t *testing.T) {
	s := newTestStore(t, WithValues(map[string]any{"a": 1}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := s.Take(ctx, "a", "missing")
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("Take() = %v entries, want 1", len(got))
	}
	if got["a"] != 1 {
		t.Errorf("Take()[a] = %v, want 1", got["a"])
	}
	if _, ok := got["missing"]; ok {
		t.Error("Take() should omit unknown keys, found 'missing'")
	}
}

func TestAssign_ReadBack(t *testing.T) {
	s := newTestStore(t)

	s.Assign("x", 42)
	if got := mustGet(t, s, "x", nil); got != 42 {
		t.Errorf("Get(x) = %v, want 42", got)
	}
}

func TestAssignPairs_OrderedLastWriteWins(t *testing.T) {
	s := newTestStore(t)

	s.AssignPairs(KV{Key: "x", Value: 1}, KV{Key: "x", Value: 2})
	if got := mustGet(t, s, "x", nil); got != 2 {
		t.Errorf("Get(x) = %v, want 2", got)
	}
}

func TestChaining_ReturnsSameHandle(t *testing.T) {
	s := newTestStore(t)
	obs := NewObserver(1)

	got := s.Assign("a", 1).Subscribe(obs, "a").Update("a", func(v any) any { return v })
	if got != s {
		t.Error("chained calls should return the same handle")
	}
}

// Assigning a key the value it already holds produces no notification.
func TestAssign_EqualValueIsSilent(t *testing.T) {
	s := newTestStore(t, WithValues(map[string]any{"k": "v"}))
	obs := NewObserver(8)
	s.Subscribe(obs, "k")

	s.Assign("k", "v")
	barrier(t, s)

	assertNoChange(t, obs)
}

// Structural equality: deep-equal composites are deduplicated too.
func TestAssign_DeepEqualIsSilent(t *testing.T) {
	s := newTestStore(t, WithValues(map[string]any{"k": []int{1, 2}}))
	obs := NewObserver(8)
	s.Subscribe(obs, "k")

	s.Assign("k", []int{1, 2})
	barrier(t, s)
	assertNoChange(t, obs)

	s.Assign("k", []int{1, 2, 3})
	barrier(t, s)
	c := recvChange(t, obs)
	if c.Key != "k" {
		t.Errorf("change key = %q, want k", c.Key)
	}
}

// A genuine change notifies each live subscriber exactly once.
func TestAssign_ChangeNotifies(t *testing.T) {
	s := newTestStore(t, WithValues(map[string]any{"k": 1}))
	obs := NewObserver(8)
	s.Subscribe(obs, "k")

	s.Assign("k", 2)
	barrier(t, s)

	c := recvChange(t, obs)
	if c.Key != "k" || c.Value != 2 {
		t.Errorf("change = %+v, want {k 2}", c)
	}
	assertNoChange(t, obs)
}

func TestAssign_UnwatchedKeyIsSilent(t *testing.T) {
	s := newTestStore(t)
	obs := NewObserver(8)
	s.Subscribe(obs, "watched")

	s.Assign("other", 1)
	barrier(t, s)

	assertNoChange(t, obs)
}

func TestSubscribe_KeyNeverWritten(t *testing.T) {
	s := newTestStore(t)
	obs := NewObserver(8)

	// subscribing to an unwritten key is fine; first write notifies
	s.Subscribe(obs, "fresh")
	s.Assign("fresh", "hello")
	barrier(t, s)

	c := recvChange(t, obs)
	if c.Value != "hello" {
		t.Errorf("change value = %v, want hello", c.Value)
	}
}

// Duplicate subscriptions are allowed and yield one delivery each.
func TestSubscribe_DuplicateDeliversTwice(t *testing.T) {
	s := newTestStore(t)
	obs := NewObserver(8)
	s.Subscribe(obs, "k")
	s.Subscribe(obs, "k")

	s.Assign("k", 1)
	barrier(t, s)

	first := recvChange(t, obs)
	second := recvChange(t, obs)
	if first != second {
		t.Errorf("duplicate deliveries differ: %+v vs %+v", first, second)
	}
	assertNoChange(t, obs)
}

// Update composes. Three sequential increments land on 3.
func TestUpdate_Composes(t *testing.T) {
	s := newTestStore(t)
	s.Assign("count", 0)

	inc := func(v any) any { return v.(int) + 1 }
	s.Update("count", inc).Update("count", inc).Update("count", inc)

	if got := mustGet(t, s, "count", nil); got != 3 {
		t.Errorf("Get(count) = %v, want 3", got)
	}
}

func TestUpdate_MissingKeyPassesNil(t *testing.T) {
	s := newTestStore(t)

	var seen any = "sentinel"
	var mu sync.Mutex
	s.Update("nope", func(v any) any {
		mu.Lock()
		seen = v
		mu.Unlock()
		return "set"
	})
	barrier(t, s)

	mu.Lock()
	defer mu.Unlock()
	if seen != nil {
		t.Errorf("update fn received %v, want nil for missing key", seen)
	}
	if got := mustGet(t, s, "nope", nil); got != "set" {
		t.Errorf("Get(nope) = %v, want set", got)
	}
}

func TestUpdate_DedupSuppressesNotification(t *testing.T) {
	s := newTestStore(t, WithValues(map[string]any{"k": 7}))
	obs := NewObserver(8)
	s.Subscribe(obs, "k")

	s.Update("k", func(v any) any { return v }) // identity: no change
	barrier(t, s)

	assertNoChange(t, obs)
}

// Fan-out reaches every subscriber, most recent subscriber first.
func TestFanOut_ReverseSubscriptionOrder(t *testing.T) {
	s := newTestStore(t)

	var mu sync.Mutex
	var order []string
	rec := func(name string) *funcObserver {
		return &funcObserver{
			alive: func() bool { return true },
			notify: func(c Change) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
			},
		}
	}

	s.Subscribe(rec("first"), "y")
	s.Subscribe(rec("second"), "y")

	s.Assign("y", 1)
	barrier(t, s)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(order))
	}
	if order[0] != "second" || order[1] != "first" {
		t.Errorf("delivery order = %v, want [second first]", order)
	}
}

// A dead observer is skipped and permanently pruned.
func TestPruning_DeadObserverRemoved(t *testing.T) {
	s := newTestStore(t)

	dead := NewObserver(8)
	live := NewObserver(8)
	s.Subscribe(dead, "x")
	s.Subscribe(live, "x")
	barrier(t, s)

	dead.Close()

	s.Assign("x", 1)
	barrier(t, s)

	c := recvChange(t, live)
	if c.Value != 1 {
		t.Errorf("live observer change = %+v, want value 1", c)
	}
	// the dead observer's channel is closed and drained; nothing was sent
	if _, ok := <-dead.Events(); ok {
		t.Error("dead observer should not receive deliveries")
	}
}

func TestPruning_IsPermanent(t *testing.T) {
	s := newTestStore(t)

	var calls int
	var mu sync.Mutex
	flaky := &funcObserver{
		// dead on first liveness check, alive afterwards: once pruned,
		// the store must never consult it again
		alive: func() bool {
			mu.Lock()
			defer mu.Unlock()
			calls++
			return calls > 1
		},
		notify: func(Change) {
			t.Error("pruned observer must not be notified")
		},
	}

	s.Subscribe(flaky, "x")
	s.Assign("x", 1) // prunes: alive() returns false
	s.Assign("x", 2) // list is empty now, no liveness check at all
	barrier(t, s)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("liveness checks = %d, want 1 (pruning is permanent)", calls)
	}
}

// The end-to-end scenario: subscribe, update, dedup, fan-out ordering.
func TestScenario_EndToEnd(t *testing.T) {
	s := newTestStore(t, WithValues(map[string]any{"val": 0}))

	var mu sync.Mutex
	var log []string
	rec := func(name string) *funcObserver {
		return &funcObserver{
			alive: func() bool { return true },
			notify: func(c Change) {
				mu.Lock()
				log = append(log, name)
				mu.Unlock()
			},
		}
	}

	a := rec("A")
	s.Subscribe(a, "val")

	s.Update("val", func(v any) any { return v.(int) + 1 })
	barrier(t, s)

	mu.Lock()
	if len(log) != 1 || log[0] != "A" {
		t.Fatalf("after update, deliveries = %v, want [A]", log)
	}
	log = nil
	mu.Unlock()

	b := rec("B")
	s.Subscribe(b, "val")

	s.Assign("val", 1) // same value: no-op
	barrier(t, s)

	mu.Lock()
	if len(log) != 0 {
		t.Fatalf("after no-op assign, deliveries = %v, want none", log)
	}
	mu.Unlock()

	s.Assign("val", 5)
	barrier(t, s)

	mu.Lock()
	defer mu.Unlock()
	if len(log) != 2 || log[0] != "B" || log[1] != "A" {
		t.Errorf("after change, deliveries = %v, want [B A]", log)
	}
}

func TestGet_CallerTimeoutLeavesStateIntact(t *testing.T) {
	s := newTestStore(t, WithValues(map[string]any{"k": 1}))

	// stall the actor so the next Get cannot be served in time
	s.Update("stall", func(any) any {
		time.Sleep(150 * time.Millisecond)
		return true
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Get(ctx, "k", nil); err == nil {
		t.Fatal("Get() with expired context should error")
	}

	// the actor still completed; the store is fully usable
	if got := mustGet(t, s, "k", nil); got != 1 {
		t.Errorf("Get(k) after stale read = %v, want 1", got)
	}
}

func TestClose_SynchronousCallersFail(t *testing.T) {
	s, err := New(WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	s.Close()
	s.Close() // idempotent

	ctx := context.Background()
	if _, err := s.Get(ctx, "k", nil); err != ErrStoreClosed {
		t.Errorf("Get() after Close = %v, want ErrStoreClosed", err)
	}
	if _, err := s.Take(ctx, "k"); err != ErrStoreClosed {
		t.Errorf("Take() after Close = %v, want ErrStoreClosed", err)
	}

	// fire-and-forget never fails, it is silently dropped
	s.Assign("k", 1).Update("k", func(v any) any { return v }).Subscribe(NewObserver(1), "k")

	if err := s.Err(); err != nil {
		t.Errorf("Err() after clean Close = %v, want nil", err)
	}
}

func TestUpdate_PanicTerminatesStore(t *testing.T) {
	s, err := New(WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	s.Assign("k", 1)
	s.Update("k", func(any) any { panic("boom") })

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("store did not terminate after update panic")
	}

	if err := s.Err(); err == nil {
		t.Error("Err() = nil, want panic cause")
	}
	if _, err := s.Get(context.Background(), "k", nil); err != ErrStoreClosed {
		t.Errorf("Get() after termination = %v, want ErrStoreClosed", err)
	}
}

func TestStores_AreIndependent(t *testing.T) {
	s1 := newTestStore(t, WithValues(map[string]any{"k": "one"}))
	s2 := newTestStore(t, WithValues(map[string]any{"k": "two"}))

	s1.Assign("k", "changed")
	if got := mustGet(t, s1, "k", nil); got != "changed" {
		t.Errorf("s1 Get(k) = %v, want changed", got)
	}
	if got := mustGet(t, s2, "k", nil); got != "two" {
		t.Errorf("s2 Get(k) = %v, want two (stores must not share state)", got)
	}

	if s1.ID() == s2.ID() {
		t.Error("store IDs should be unique")
	}
}

func TestConcurrentWriters_AllApplied(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Update("count", func(v any) any {
					if v == nil {
						return 1
					}
					return v.(int) + 1
				})
			}
		}()
	}
	wg.Wait()

	if got := mustGet(t, s, "count", nil); got != 1000 {
		t.Errorf("Get(count) = %v, want 1000", got)
	}
}

// funcObserver adapts bare functions to the Observer interface for tests.
type funcObserver struct {
	alive  func() bool
	notify func(Change)
}

func (f *funcObserver) Alive() bool     { return f.alive() }
func (f *funcObserver) Notify(c Change) { f.notify(c) }

// Package keywatch provides an in-process, observable key-value store.
//
// A keywatch store is a single actor: one goroutine exclusively owns the
// key-value state and processes requests one at a time from an unbounded
// mailbox. Callers never touch the state directly; every operation is a
// message routed through the [Store] handle. This gives linearizable reads
// and writes within a store instance without any caller-visible locking.
//
// Independent observers can register interest in individual keys and receive
// an asynchronous [Change] notification whenever a key's value actually
// changes. Writing a value equal to the current one is a no-op and produces
// no notification.
//
// # Quick Start
//
// Create a store, subscribe an observer, and react to changes:
//
//	store, _ := keywatch.New(keywatch.WithValues(map[string]any{"count": 0}))
//	defer store.Close()
//
//	obs := keywatch.NewObserver(16)
//	store.Subscribe(obs, "count")
//
//	store.Update("count", func(v any) any {
//	    if v == nil {
//	        return 1
//	    }
//	    return v.(int) + 1
//	})
//
//	change := <-obs.Events() // Change{Key: "count", Value: 1}
//
// # Write Semantics
//
// Mutating operations ([Store.Assign], [Store.AssignMany], [Store.AssignPairs],
// [Store.Update], [Store.Subscribe]) are fire-and-forget: they enqueue a
// request and return the handle immediately for chaining. The return value
// does not indicate that the mutation has been applied. Synchronous reads
// ([Store.Get], [Store.Take]) block until the actor processes them in queue
// order, so a read issued after a write from the same caller always observes
// that write.
//
// # Observers
//
// The store holds only weak, non-owning references to observers. Observer
// liveness is re-checked before every delivery for a changed key, and dead
// observers are pruned from that key's list as a side effect. Delivery is
// best-effort and non-blocking: a slow [ChanObserver] drops notifications
// rather than stalling the actor.
//
// # Architecture
//
// The repository also ships supporting packages:
//
//   - internal/mailbox: unbounded FIFO queue backing the actor mailbox
//   - internal/server: embeddable HTTP dashboard with REST, SSE and
//     WebSocket views over a store
//   - config: YAML configuration for the standalone binary
//   - dashboard: embedded web UI assets
//
// The internal packages are not part of the public API and may change
// without notice.
package keywatch

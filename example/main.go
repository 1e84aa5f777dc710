// Command example demonstrates the keywatch SDK with two independent
// observer "widgets" following the same key.
//
// A badge widget and an audit log widget both subscribe to the "val" key.
// A driver goroutine mutates the store; each widget reacts only to real
// changes (writing an equal value produces no output at all).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jpalmerr/keywatch"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := keywatch.New(
		keywatch.WithValues(map[string]any{"val": 0}),
		keywatch.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// widget A: a badge that renders the current value
	badge := keywatch.NewObserver(8)
	store.Subscribe(badge, "val")
	go func() {
		for change := range badge.Events() {
			fmt.Printf("[badge] val is now %v\n", change.Value)
		}
	}()

	// widget B: an audit log with timestamps, subscribed later, so it is
	// notified first on each change (most recent subscriber wins the race
	// to the front of the list)
	audit := keywatch.NewObserver(8)
	store.Subscribe(audit, "val")
	go func() {
		for change := range audit.Events() {
			fmt.Printf("[audit] %s %s=%v\n", time.Now().Format(time.TimeOnly), change.Key, change.Value)
		}
	}()

	// drive some changes through the store
	store.Update("val", increment)        // 0 -> 1: both widgets fire
	store.Assign("val", 1)                // same value: silence
	store.Assign("val", 5)                // 1 -> 5: both widgets fire
	store.Update("val", increment)        // 5 -> 6
	store.AssignMany(map[string]any{"val": 6, "other": "unwatched"}) // silence

	// Get doubles as a barrier: once it returns, every write above has
	// been processed and its notifications dispatched
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	final, err := store.Get(ctx, "val", nil)
	if err != nil {
		logger.Error("read failed", "error", err)
		os.Exit(1)
	}

	time.Sleep(50 * time.Millisecond) // let the widgets drain
	fmt.Printf("final value: %v\n", final)

	badge.Close()
	audit.Close()
}

func increment(v any) any {
	if v == nil {
		return 1
	}
	return v.(int) + 1
}

package keywatch

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// storeConfig holds mutable state during [Store] construction.
type storeConfig struct {
	initial  []KV
	logger   *slog.Logger
	registry prometheus.Registerer
}

// Option configures a [Store] during construction.
//
// Option implements the functional options pattern. Options are applied in
// order and return an error if validation fails.
//
// Built-in options: [WithValues], [WithPairs], [WithLogger], [WithMetrics].
type Option func(*storeConfig) error

// WithValues seeds the store with initial values from a mapping.
//
// May be combined with [WithPairs] and repeated; later options win on
// duplicate keys. Seeded values never generate notifications.
//
// Example:
//
//	store, err := keywatch.New(
//	    keywatch.WithValues(map[string]any{"count": 0, "status": "idle"}),
//	)
func WithValues(values map[string]any) Option {
	return func(cfg *storeConfig) error {
		for k, v := range values {
			cfg.initial = append(cfg.initial, KV{Key: k, Value: v})
		}
		return nil
	}
}

// WithPairs seeds the store with initial values from an ordered pair
// sequence. Duplicate keys resolve to last write wins.
//
// Example:
//
//	store, err := keywatch.New(
//	    keywatch.WithPairs(
//	        keywatch.KV{Key: "count", Value: 0},
//	        keywatch.KV{Key: "count", Value: 1}, // wins
//	    ),
//	)
func WithPairs(pairs ...KV) Option {
	return func(cfg *storeConfig) error {
		cfg.initial = append(cfg.initial, pairs...)
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the store.
//
// The store logs lifecycle events and observer pruning at DEBUG level and
// termination at ERROR level. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *storeConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithMetrics registers Prometheus instrumentation for the store on the
// given registerer: counters for processed assigns, committed changes,
// delivered notifications, subscriptions, and pruned observers.
//
// Metric names are fixed, so register at most one store per registerer
// (use a dedicated [prometheus.NewRegistry] per store if running several).
//
// Returns an error if the registerer is nil.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cfg *storeConfig) error {
		if reg == nil {
			return errors.New("metrics registerer cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

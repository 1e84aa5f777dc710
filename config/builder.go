package config

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/keywatch"
)

// BuildOptions converts a parsed [Config] into SDK options for
// [keywatch.New].
//
// The logger and registerer are optional; nil values are skipped. Seed
// values (already env-expanded by [Parse]) become the store's initial
// assigns.
func BuildOptions(cfg *Config, logger *slog.Logger, reg prometheus.Registerer) []keywatch.Option {
	opts := []keywatch.Option{}

	if len(cfg.Seed) > 0 {
		opts = append(opts, keywatch.WithValues(cfg.Seed))
	}
	if logger != nil {
		opts = append(opts, keywatch.WithLogger(logger))
	}
	if reg != nil {
		opts = append(opts, keywatch.WithMetrics(reg))
	}

	return opts
}

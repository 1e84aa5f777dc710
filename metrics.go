package keywatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeMetrics holds the Prometheus instrumentation for one store.
// Created only when [WithMetrics] is set; all call sites nil-check.
type storeMetrics struct {
	assigns       prometheus.Counter
	changes       prometheus.Counter
	notifications prometheus.Counter
	subscriptions prometheus.Counter
	pruned        prometheus.Counter
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	f := promauto.With(reg)
	return &storeMetrics{
		assigns: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keywatch",
			Name:      "assigns_total",
			Help:      "Assign operations processed, including deduplicated no-ops.",
		}),
		changes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keywatch",
			Name:      "changes_total",
			Help:      "Writes that actually changed a key's value.",
		}),
		notifications: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keywatch",
			Name:      "notifications_total",
			Help:      "Change notifications delivered to live observers.",
		}),
		subscriptions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keywatch",
			Name:      "subscriptions_total",
			Help:      "Key subscriptions registered.",
		}),
		pruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: "keywatch",
			Name:      "pruned_observers_total",
			Help:      "Dead observers removed from subscriber lists at dispatch time.",
		}),
	}
}

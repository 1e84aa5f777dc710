package keywatch

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersTrackActorActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestStore(t, WithMetrics(reg))

	obs := NewObserver(8)
	s.Subscribe(obs, "k", "other")

	s.Assign("k", 1) // change + 1 notification
	s.Assign("k", 1) // dedup no-op
	s.Assign("k", 2) // change + 1 notification
	barrier(t, s)

	if got := testutil.ToFloat64(s.metrics.assigns); got != 3 {
		t.Errorf("assigns_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(s.metrics.changes); got != 2 {
		t.Errorf("changes_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(s.metrics.notifications); got != 2 {
		t.Errorf("notifications_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(s.metrics.subscriptions); got != 2 {
		t.Errorf("subscriptions_total = %v, want 2", got)
	}
}

func TestMetrics_PrunedObservers(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestStore(t, WithMetrics(reg))

	obs := NewObserver(8)
	s.Subscribe(obs, "k")
	barrier(t, s)
	obs.Close()

	s.Assign("k", 1) // dispatch finds the dead observer and prunes it
	s.Assign("k", 2) // list already empty, nothing further to prune
	barrier(t, s)

	if got := testutil.ToFloat64(s.metrics.pruned); got != 1 {
		t.Errorf("pruned_observers_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(s.metrics.notifications); got != 0 {
		t.Errorf("notifications_total = %v, want 0", got)
	}
}

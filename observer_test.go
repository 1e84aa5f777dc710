package keywatch

import (
	"testing"
)

func TestNewObserver_DefaultBuffer(t *testing.T) {
	obs := NewObserver(0)
	if got := cap(obs.ch); got != defaultObserverBuffer {
		t.Errorf("buffer cap = %d, want %d", got, defaultObserverBuffer)
	}

	obs = NewObserver(3)
	if got := cap(obs.ch); got != 3 {
		t.Errorf("buffer cap = %d, want 3", got)
	}
}

func TestObserver_IDsUnique(t *testing.T) {
	a := NewObserver(1)
	b := NewObserver(1)
	if a.ID() == "" {
		t.Error("ID() should not be empty")
	}
	if a.ID() == b.ID() {
		t.Errorf("observer IDs should be unique, both %q", a.ID())
	}
}

func TestObserver_AliveUntilClosed(t *testing.T) {
	obs := NewObserver(1)
	if !obs.Alive() {
		t.Error("new observer should be alive")
	}

	obs.Close()
	if obs.Alive() {
		t.Error("closed observer should not be alive")
	}

	obs.Close() // idempotent, must not panic
}

func TestObserver_NotifyDelivers(t *testing.T) {
	obs := NewObserver(2)
	obs.Notify(Change{Key: "k", Value: 1})

	select {
	case c := <-obs.Events():
		if c.Key != "k" || c.Value != 1 {
			t.Errorf("received %+v, want {k 1}", c)
		}
	default:
		t.Error("Notify() should have buffered a change")
	}
}

func TestObserver_NotifyDropsOnOverflow(t *testing.T) {
	obs := NewObserver(1)
	obs.Notify(Change{Key: "k", Value: 1})
	obs.Notify(Change{Key: "k", Value: 2}) // buffer full: dropped, no block

	c := <-obs.Events()
	if c.Value != 1 {
		t.Errorf("first buffered change = %+v, want value 1", c)
	}

	select {
	case c := <-obs.Events():
		t.Errorf("overflow change should be dropped, got %+v", c)
	default:
	}
}

func TestObserver_NotifyAfterCloseIsNoop(t *testing.T) {
	obs := NewObserver(1)
	obs.Close()

	obs.Notify(Change{Key: "k", Value: 1}) // must not panic on closed channel

	if _, ok := <-obs.Events(); ok {
		t.Error("closed observer delivered a change")
	}
}

func TestObserver_EventsClosedAfterClose(t *testing.T) {
	obs := NewObserver(4)
	obs.Notify(Change{Key: "k", Value: 1})
	obs.Close()

	// buffered change is still readable, then the channel reports closed
	c, ok := <-obs.Events()
	if !ok || c.Value != 1 {
		t.Errorf("buffered change = %+v ok=%v, want {k 1} true", c, ok)
	}
	if _, ok := <-obs.Events(); ok {
		t.Error("Events() should be closed after Close()")
	}
}

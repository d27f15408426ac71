package input

import (
	"testing"

	"github.com/duallink/duallink/internal/wire"
)

func TestQueuePushPopOrder(t *testing.T) {
	q := NewQueue(4)
	for i := 0; i < 3; i++ {
		q.Push(wire.InputEvent{Kind: wire.KindMouseMove, X: float64(i)})
	}

	for i := 0; i < 3; i++ {
		ev, ok := q.TryPop()
		if !ok {
			t.Fatalf("expected event %d", i)
		}
		if ev.X != float64(i) {
			t.Fatalf("expected FIFO order, got x=%v at position %d", ev.X, i)
		}
	}
	if _, ok := q.TryPop(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	q := NewQueue(2)
	q.Push(wire.InputEvent{Kind: wire.KindMouseMove, X: 1})
	q.Push(wire.InputEvent{Kind: wire.KindMouseMove, X: 2})
	q.Push(wire.InputEvent{Kind: wire.KindMouseMove, X: 3})

	ev, ok := q.TryPop()
	if !ok || ev.X != 2 {
		t.Fatalf("expected oldest event (x=1) to have been dropped, got x=%v ok=%v", ev.X, ok)
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", q.Dropped())
	}
}

func TestQueueSignal(t *testing.T) {
	q := NewQueue(4)
	select {
	case <-q.Signal():
		t.Fatal("expected no signal before any push")
	default:
	}

	q.Push(wire.InputEvent{Kind: wire.KindKeyDown, Keycode: 1})
	select {
	case <-q.Signal():
	default:
		t.Fatal("expected signal after push")
	}
}

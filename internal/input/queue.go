// Package input implements the bounded, drop-oldest input event queue that
// decouples the receiver-side input source from the signaling writer
// (§4.8). Input events are advisory, not a reliable stream: overflow drops
// the oldest queued event rather than blocking the producer.
package input

import (
	"sync"

	"github.com/duallink/duallink/internal/wire"
)

// DefaultCapacity is the queue depth used when no explicit capacity is
// given; enough to absorb a brief signaling stall without noticeable
// staleness once drained.
const DefaultCapacity = 64

// Queue is a bounded, mutex-protected ring buffer of pending input events.
// Push never blocks: when full, the oldest event is evicted to make room.
type Queue struct {
	mu       sync.Mutex
	notEmpty chan struct{}
	buf      []wire.InputEvent
	cap      int
	dropped  uint64
}

// NewQueue creates a Queue with the given capacity (DefaultCapacity if <= 0).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		notEmpty: make(chan struct{}, 1),
		buf:      make([]wire.InputEvent, 0, capacity),
		cap:      capacity,
	}
}

// Push enqueues ev, dropping the oldest queued event first if the queue is
// already at capacity.
func (q *Queue) Push(ev wire.InputEvent) {
	q.mu.Lock()
	if len(q.buf) >= q.cap {
		q.buf = q.buf[1:]
		q.dropped++
	}
	q.buf = append(q.buf, ev)
	q.mu.Unlock()

	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

// TryPop removes and returns the oldest queued event, if any.
func (q *Queue) TryPop() (wire.InputEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buf) == 0 {
		return wire.InputEvent{}, false
	}
	ev := q.buf[0]
	q.buf = q.buf[1:]
	return ev, true
}

// Signal returns the channel that receives a notification whenever an
// event is pushed, for use in a select loop alongside a stop signal.
func (q *Queue) Signal() <-chan struct{} { return q.notEmpty }

// Len returns the number of currently queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Dropped returns the cumulative count of events evicted due to overflow.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Package fifo implements the bounded message queue (C2): a fixed-capacity
// FIFO of CAN frames with non-blocking drop-on-full enqueue, blocking
// dequeue with timeout, and a signal primitive that unblocks waiters without
// producing an element.
//
// Grounded on the reference POSIX mutex/condvar ring buffer (queue_p.c);
// reimplemented with a buffered channel plus an explicit signal channel,
// following the funnel/cancellation shape of the async transmitter used
// elsewhere in this codebase (sync.Mutex plus a signal channel instead of
// condition variables).
package fifo

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/canline/slcan/internal/canframe"
)

// Special timeout values, preserved from the wire-level semantics: 0 means
// poll once without blocking, Infinite means block with no deadline.
const (
	NoWait    = 0
	Infinite  = 65535 * time.Millisecond
)

// Queue is a fixed-capacity FIFO of canframe.Frame, safe for one concurrent
// producer and any number of concurrent consumers (the SLCAN engine is the
// sole producer; application goroutines are consumers).
type Queue struct {
	mu       sync.Mutex
	ch       chan canframe.Frame
	sig      chan struct{}
	overflow atomic.Bool
	lost     atomic.Uint64
	closed   atomic.Bool
}

// New allocates a queue with the given capacity (element count).
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:  make(chan canframe.Frame, capacity),
		sig: make(chan struct{}),
	}
}

// Enqueue appends fr at the tail. It never blocks: if the queue is full the
// frame is dropped and the overflow counter increments.
func (q *Queue) Enqueue(fr canframe.Frame) bool {
	select {
	case q.ch <- fr:
		return true
	default:
		q.overflow.Store(true)
		q.lost.Add(1)
		return false
	}
}

// Dequeue waits up to timeout for a frame. timeout == 0 polls once;
// timeout == Infinite waits with no deadline. Returns ok == false on
// timeout or on Signal.
func (q *Queue) Dequeue(timeout time.Duration) (fr canframe.Frame, ok bool) {
	if timeout == NoWait {
		select {
		case fr = <-q.ch:
			return fr, true
		default:
			return fr, false
		}
	}
	if timeout == Infinite {
		select {
		case fr = <-q.ch:
			return fr, true
		case <-q.sig:
			return fr, false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case fr = <-q.ch:
		return fr, true
	case <-q.sig:
		return fr, false
	case <-t.C:
		return fr, false
	}
}

// Clear drops all pending elements and resets the overflow flag/counter.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		select {
		case <-q.ch:
		default:
			q.overflow.Store(false)
			q.lost.Store(0)
			return
		}
	}
}

// Signal wakes every goroutine currently blocked in Dequeue without
// producing an element; it is level-triggered for one instant by closing
// and replacing the internal channel, so repeated Signal calls are safe and
// idempotent in effect (each wakes current waiters once).
func (q *Queue) Signal() {
	q.mu.Lock()
	defer q.mu.Unlock()
	close(q.sig)
	q.sig = make(chan struct{})
}

// Overflow reports whether an enqueue has been dropped since the last Clear,
// and the accumulated lost-frame count.
func (q *Queue) Overflow() (bool, uint64) {
	return q.overflow.Load(), q.lost.Load()
}

// Len reports the number of frames currently queued.
func (q *Queue) Len() int { return len(q.ch) }

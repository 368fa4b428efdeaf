package input

import (
	"sync"
	"sync/atomic"
)

// Queue is the bounded handoff between a capture thread and the tick thread.
// Push never blocks: when the ring is full the oldest event is overwritten and
// the drop counter is incremented. Blocking a hook thread can stall the OS
// message loop, so the producer side must always return promptly.
type Queue struct {
	mu    sync.Mutex
	buf   []RawEvent
	head  int // index of the oldest event
	count int

	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most capacity events.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{buf: make([]RawEvent, capacity)}
}

// Push appends ev, evicting the oldest pending event when full.
func (q *Queue) Push(ev RawEvent) {
	q.mu.Lock()
	if q.count == len(q.buf) {
		q.buf[q.head] = ev
		q.head = (q.head + 1) % len(q.buf)
		q.mu.Unlock()
		q.dropped.Add(1)
		return
	}
	q.buf[(q.head+q.count)%len(q.buf)] = ev
	q.count++
	q.mu.Unlock()
}

// DrainInto appends up to max pending events (oldest first) to dst.
// max <= 0 drains everything.
func (q *Queue) DrainInto(dst []RawEvent, max int) []RawEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if max > 0 && n > max {
		n = max
	}
	for i := 0; i < n; i++ {
		idx := (q.head + i) % len(q.buf)
		dst = append(dst, q.buf[idx])
		q.buf[idx] = RawEvent{}
	}
	q.head = (q.head + n) % len(q.buf)
	q.count -= n
	return dst
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Dropped returns how many events were evicted since creation.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Package queue implements the shared work queue: a mutex-and-condvar LIFO
// of pending Tasks plus idle-worker accounting and drain/termination
// detection, as described in spec.md §4.1.
//
// The LIFO discipline is deliberate, not incidental: depth-first discovery
// keeps the number of concurrently open directories (and therefore the
// number of live parent Tasks and cached dfds) small.
package queue

import (
	"sync"

	"github.com/go-erm/erm/internal/task"
)

// Queue is a process-wide singleton initialized once by the driver before
// any worker starts (spec.md §4.1, §9 "Process-wide state").
type Queue struct {
	mu   sync.Mutex
	cond *sync.Cond
	buf  []*task.Task

	idle    int
	workers int
	drained bool
}

// New creates an empty queue sized for the given worker-pool size. The
// initial backing array capacity of 32 mirrors the C implementation's
// doubling-growth buffer.
func New(workers int) *Queue {
	q := &Queue{
		buf:     make([]*task.Task, 0, 32),
		workers: workers,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds t to the queue and wakes one waiting worker.
func (q *Queue) Enqueue(t *task.Task) {
	q.mu.Lock()
	q.buf = append(q.buf, t)
	q.mu.Unlock()
	q.cond.Signal()
}

// Dequeue blocks until a Task is available and returns it, or returns
// (nil, true) once the queue has drained: every worker including the
// caller is idle and the buffer is empty, so no more work can ever be
// produced (enqueues only ever happen from within an active worker).
// Every worker observes done=true exactly once the drain is detected;
// the first to detect it wakes the rest so none blocks forever.
func (q *Queue) Dequeue() (t *task.Task, done bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.drained {
			return nil, true
		}
		if n := len(q.buf); n > 0 {
			t = q.buf[n-1]
			q.buf[n-1] = nil
			q.buf = q.buf[:n-1]
			return t, false
		}
		q.idle++
		if q.idle == q.workers {
			q.drained = true
			q.cond.Broadcast()
			return nil, true
		}
		q.cond.Wait()
		q.idle--
	}
}

// Len reports the number of pending Tasks currently buffered. Intended for
// tests asserting queue depth bounds (spec.md §8, scenario S1).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

package queue

import (
	"testing"
	"time"

	"github.com/go-erm/erm/internal/task"
)

func TestEnqueueDequeueLIFO(t *testing.T) {
	q := New(1)
	a := task.New("a", nil)
	b := task.New("b", nil)
	c := task.New("c", nil)

	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)

	for _, want := range []*task.Task{c, b, a} {
		got, done := q.Dequeue()
		if done {
			t.Fatalf("Dequeue reported done with items still buffered")
		}
		if got != want {
			t.Fatalf("Dequeue() = %q, want %q (LIFO order)", got.Path, want.Path)
		}
	}
}

func TestLenReflectsBuffer(t *testing.T) {
	q := New(2)
	if q.Len() != 0 {
		t.Fatalf("Len() = %d on empty queue, want 0", q.Len())
	}
	q.Enqueue(task.New("a", nil))
	q.Enqueue(task.New("b", nil))
	if q.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", q.Len())
	}
	q.Dequeue()
	if q.Len() != 1 {
		t.Fatalf("Len() = %d after one Dequeue, want 1", q.Len())
	}
}

// TestDrainWakesAllWorkers is the regression test for the hang bug: every
// worker goroutine, including those already parked waiting for work, must
// observe done=true once the whole pool goes idle with an empty buffer -
// none may block in Dequeue forever.
func TestDrainWakesAllWorkers(t *testing.T) {
	const workers = 4
	q := New(workers)

	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, done := q.Dequeue()
			results <- done
		}()
	}

	for i := 0; i < workers; i++ {
		select {
		case done := <-results:
			if !done {
				t.Errorf("worker %d returned done=false on an empty, never-fed queue", i)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("worker %d never returned: queue failed to drain", i)
		}
	}
}

func TestProducedWorkIsNotLostDuringDrainRace(t *testing.T) {
	const workers = 3
	q := New(workers)
	seed := task.New("root", nil)
	q.Enqueue(seed)

	dequeued := make(chan *task.Task, 8)
	doneCount := make(chan bool, workers)

	spawn := func() {
		t, done := q.Dequeue()
		if done {
			doneCount <- true
			return
		}
		dequeued <- t
		// Simulate the worker finishing with no further enqueues, then
		// asking for more work.
		t2, done2 := q.Dequeue()
		if !done2 {
			dequeued <- t2
		}
		doneCount <- done2
	}

	for i := 0; i < workers; i++ {
		go spawn()
	}

	select {
	case got := <-dequeued:
		if got != seed {
			t.Fatalf("dequeued %q, want the seeded root", got.Path)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("seeded task was never dequeued")
	}

	for i := 0; i < workers; i++ {
		select {
		case <-doneCount:
		case <-time.After(2 * time.Second):
			t.Fatalf("worker %d never drained", i)
		}
	}
}

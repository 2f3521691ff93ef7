//go:build unix

package engine

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/go-erm/erm/internal/fdbudget"
	"github.com/go-erm/erm/internal/queue"
	"github.com/go-erm/erm/internal/task"
)

// worker runs the loop from spec.md §4.3 against the shared queue until
// the queue drains.
type worker struct {
	q       *queue.Queue
	budget  *fdbudget.Budget
	journal JournalSink

	onRemoved            func(isDir bool)
	onFailure            func(path string, err error)
	onPropagationFailure func(path string, err error)
}

func (w *worker) run() {
	for {
		t, done := w.q.Dequeue()
		if done {
			return
		}
		w.process(t)
	}
}

// process implements one iteration of the worker loop for a dequeued
// directory Task: open, enumerate with the unlink fast path, enqueue
// children that survive enumeration, and finalize (spec.md §4.3).
func (w *worker) process(t *task.Task) {
	dfd, err := w.openWithBudget(t)
	if err != nil {
		// A directory-open failure here is for a Task that was only ever
		// enqueued because it resisted a non-empty-directory remove, so
		// any failure besides the fd-budget retry above is a genuine
		// surfaced error: report it and abandon this Task without
		// enqueuing children or touching its parent's count. This keeps
		// already-dispatched sibling work running (spec.md §7.3), which
		// is the reading this port takes of the Open Question on
		// mid-walk partial failure in spec.md §9 — see DESIGN.md.
		w.onFailure(t.Path, err)
		w.journal.Failed(t.Path, err)
		return
	}

	entries, err := readDirEntries(dfd)
	if err != nil {
		closeDfd(dfd, w.budget)
		w.onFailure(t.Path, err)
		w.journal.Failed(t.Path, err)
		return
	}

	cachedDfd := -1
	if w.budget.TryAcquire() {
		if fd, dupErr := unix.Dup(dfd); dupErr == nil {
			cachedDfd = fd
			// Cached before any child is enqueued: children addressed by
			// base name resolve through this descriptor.
			t.SetDfd(fd)
		} else {
			w.budget.Release()
		}
	}

	var n uint32
	var parent *task.Task

	for _, e := range entries {
		if unlinkEntry(dfd, e.name, e.isDir) == nil {
			w.onRemoved(e.isDir)
			w.journal.Removed(joinDisplay(t, e.name))
			continue
		}

		// Slow path: this entry needs its own Task. Materialize T's
		// parent-Task on demand, at most once per T.
		if parent == nil {
			parent = t
		}
		n++

		childPath := e.name
		if cachedDfd < 0 {
			childPath = t.Path + "/" + e.name
		}
		child := task.New(childPath, parent)
		w.journal.Queued(joinDisplay(t, e.name))
		w.q.Enqueue(child)
	}

	closeDfd(dfd, w.budget)

	if n == 0 {
		// Nothing survived enumeration besides what the fast path
		// already removed: T is empty now, rmdir it directly.
		w.releaseDfd(t)
		if err := rmdirTask(t); err != nil {
			w.onFailure(t.Path, err)
			w.journal.Failed(t.Path, err)
			return
		}
		w.onRemoved(true)
		w.journal.Removed(t.Path)
		w.propagate(t)
		return
	}

	if t.Publish(n) {
		// Every child already arrived before publication: this worker
		// owns T's inline rmdir.
		w.finishParent(t)
	}
}

// finishParent removes a Task whose children have all completed - the
// publish-race winner from process(); ancestors reached later by propagate
// are removed inside propagate itself. On success it continues the upward
// walk through t.Parent;
// on failure the rmdir is surfaced and the walk stops (spec.md §4.4,
// §7.3: a failed propagation rmdir does not abort already-dispatched
// work elsewhere, it just leaves the tree above t un-removed).
func (w *worker) finishParent(t *task.Task) {
	if err := rmdirTask(t); err != nil {
		w.onFailure(t.Path, err)
		w.journal.Failed(t.Path, err)
		w.releaseDfd(t)
		return
	}
	w.onRemoved(true)
	w.journal.Removed(t.Path)
	w.releaseDfd(t)
	w.propagate(t)
}

// releaseDfd closes t's cached directory descriptor, if any, and returns
// its unit to the fd budget.
func (w *worker) releaseDfd(t *task.Task) {
	if t.HasDfd() {
		t.CloseDfd()
		w.budget.Release()
	}
}

// propagate walks upward from a Task whose own removal just succeeded,
// firing rmdir on every ancestor whose completion count reaches zero
// outstanding children (spec.md §4.4).
func (w *worker) propagate(t *task.Task) {
	for p := t.Parent; p != nil; p = p.Parent {
		owns, stillAcquired := p.Arrive()
		if stillAcquired || !owns {
			return
		}
		if err := rmdirTask(p); err != nil {
			// A propagation rmdir failure is distinct from a fast-path
			// removal failure (spec.md §6): it happens during bottom-up
			// cleanup of an ancestor after all its children already
			// succeeded, so it gets its own diagnostic prefix.
			w.onPropagationFailure(p.Path, err)
			w.journal.Failed(p.Path, err)
			w.releaseDfd(p)
			return
		}
		w.onRemoved(true)
		w.journal.Removed(p.Path)
		w.releaseDfd(p)
	}
}

// openWithBudget opens t as a directory, retrying on the fd condition
// when the budget is limited and the syscall reports EMFILE/ENFILE.
func (w *worker) openWithBudget(t *task.Task) (int, error) {
	for {
		fd, err := openDir(t)
		if err == nil {
			return fd, nil
		}
		if w.budget.Limited() && (errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE)) {
			w.budget.Wait()
			continue
		}
		return -1, err
	}
}

// closeDfd closes a directory stream that was never counted against the
// cached-dfd budget (the per-worker in-flight reservation from spec.md
// §4.2), signaling any worker blocked on the fd condition without
// crediting the budget counter.
func closeDfd(fd int, budget *fdbudget.Budget) {
	_ = unix.Close(fd)
	budget.Signal()
}

// joinDisplay builds a best-effort human-readable path for journal
// events. The journal is diagnostic, not authoritative, so it does not
// reconstruct the full path when an ancestor further up addresses by
// cached dfd; it only ever needs one path segment beyond t.Path, which is
// always known regardless of t's own addressing mode.
func joinDisplay(t *task.Task, name string) string {
	return t.Path + "/" + name
}

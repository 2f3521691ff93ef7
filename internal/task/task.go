//go:build unix

// Package task defines the in-memory record for one filesystem entry
// pending removal, and the atomic completion protocol that lets a tree
// of Tasks be torn down bottom-up without per-Task locks.
package task

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// acquired marks the high bit of removed_count: "child_count not yet
// published, don't compare against it yet".
const acquired = uint32(1 << 31)

// Task is one pending directory or file, discovered either by the driver
// seeding a root or by a worker expanding a parent directory.
//
// Path is either an absolute/root-relative path (Dfd < 0 on the parent, or
// no parent at all) or a base name relative to Parent's cached directory
// descriptor. Exactly one addressing mode applies to a given Task; callers
// must check Parent.HasDfd() before deciding how to resolve Path.
type Task struct {
	Path   string
	Parent *Task

	// childCount is the number of children enqueued for this directory,
	// published exactly once by the worker that enumerated it.
	childCount uint32

	// removedCount is incremented once per completed child (fetch_add),
	// and starts life with the acquired bit set until childCount is
	// published. See Publish and Arrive.
	removedCount atomic.Uint32

	// dfd is a cached open directory descriptor for this Task, used so
	// children can be addressed by base name via openat/unlinkat. It is
	// -1 when the fd budget didn't admit caching one.
	dfd int
}

// New creates a Task with no cached directory descriptor and the acquired
// bit set, ready to be expanded by a worker.
func New(path string, parent *Task) *Task {
	t := &Task{
		Path:   path,
		Parent: parent,
		dfd:    -1,
	}
	t.removedCount.Store(acquired)
	return t
}

// HasDfd reports whether this Task has a live cached directory descriptor.
func (t *Task) HasDfd() bool {
	return t.dfd >= 0
}

// Dfd returns the cached directory descriptor, or -1 if none is cached.
func (t *Task) Dfd() int {
	return t.dfd
}

// SetDfd caches a directory descriptor on the Task. Called at most once,
// by the worker that opened the directory, before any child is enqueued.
func (t *Task) SetDfd(fd int) {
	t.dfd = fd
}

// CloseDfd closes the cached descriptor, if any, and clears it. The caller
// is responsible for returning the freed unit to the fd budget.
func (t *Task) CloseDfd() {
	if t.dfd >= 0 {
		_ = unix.Close(t.dfd)
		t.dfd = -1
	}
}

// Publish records how many children this Task expanded into and clears the
// acquired bit with release ordering, per spec.md's "n-1 convention": n is
// the number of children enqueued, and childCount = n-1 is stored so that
// the n-th Arrive (the last child) observes rc == childCount and owns the
// rmdir. Publish's own race check is against n itself, not childCount: the
// sentinel for "every child already arrived before publication" is
// n|acquired, the pre-clear value Arrive would have produced on the n-th
// call had ACQUIRED not still been set.
//
// Clearing ACQUIRED must preserve whatever arrivals raced in while it was
// set - children can call Arrive concurrently with this worker still
// enumerating T's entries - so this is a CAS loop against the live value
// rather than an unconditional store of childCount: a plain swap would
// discard those arrivals and let the very first post-publish Arrive
// satisfy rc == childCount prematurely.
//
// Publish returns true if every child had already arrived before
// publication, in which case the caller owns T's inline rmdir and must
// free T itself.
func (t *Task) Publish(n uint32) bool {
	childCount := n - 1
	t.childCount = childCount
	for {
		old := t.removedCount.Load()
		cleared := old &^ acquired
		if t.removedCount.CompareAndSwap(old, cleared) {
			wasAcquired := old&acquired != 0
			return wasAcquired && cleared == n
		}
	}
}

// Arrive is called by a descendant that just finished removing its own
// entry and is propagating upward through its parent. It returns:
//
//   - owns=false, stillAcquired=true: the parent's expanding worker has not
//     published child_count yet; the caller must stop climbing, a later
//     arrival (or the publishing worker itself) is responsible.
//   - owns=true: this call observed the last expected arrival; the caller
//     now owns the parent's rmdir, path free, and dfd close, and should
//     continue climbing through the parent's own parent.
//   - owns=false, stillAcquired=false: the parent still has outstanding
//     children; stop climbing.
func (t *Task) Arrive() (owns bool, stillAcquired bool) {
	rc := t.removedCount.Add(1) - 1
	if rc&acquired != 0 {
		return false, true
	}
	return rc == t.childCount, false
}

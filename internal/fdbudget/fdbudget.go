//go:build unix

// Package fdbudget tracks how many directory file descriptors the engine
// is permitted to keep open beyond each worker's own in-flight reservation
// (spec.md §4.2), and suspends workers on ENFILE/EMFILE until another
// worker closes a directory stream.
package fdbudget

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Budget is a process-wide singleton created once by the driver before any
// worker starts.
type Budget struct {
	// max is the number of additional cached dfds the engine may hold.
	// Decremented (possibly negative) when a worker tries to cache one;
	// a negative result means the budget is exhausted and the attempt
	// must be undone. Accessed with relaxed atomics: it is advisory
	// capacity, not a correctness invariant on its own (spec.md §5).
	max int64

	// limited is true when the soft RLIMIT_NOFILE couldn't cover 2
	// reserved streams plus one per worker; in that case open/opendir
	// failures with EMFILE/ENFILE suspend the caller on cond.
	limited bool

	mu   sync.Mutex
	cond *sync.Cond
}

// Probe reads the soft RLIMIT_NOFILE and derives the budget for a pool of
// the given worker count, per spec.md §4.2:
//
//	reserved     = 2 (stdio) + workers (one stream in flight per worker)
//	limited_fds  = soft < reserved
//	dfd_max      = max(0, soft - reserved) when not limited
func Probe(workers int) (*Budget, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return nil, err
	}

	reserved := int64(2 + workers)
	soft := int64(rlim.Cur)

	b := &Budget{limited: soft < reserved}
	if !b.limited {
		b.max = soft - reserved
	}
	b.cond = sync.NewCond(&b.mu)
	return b, nil
}

// Limited reports whether the fd budget is tight enough that open
// failures must be retried via Wait instead of treated as fatal.
func (b *Budget) Limited() bool {
	return b.limited
}

// TryAcquire attempts to reserve one unit of budget for a cached dfd. It
// returns true if the unit was granted; the caller must call Release when
// the fd is later closed, or immediately if it decides not to cache after
// all (e.g. it changed its mind before opening anything).
func (b *Budget) TryAcquire() bool {
	if atomic.AddInt64(&b.max, -1) >= 0 {
		return true
	}
	atomic.AddInt64(&b.max, 1)
	return false
}

// Release returns one unit of budget, for example when a cached dfd is
// closed, and wakes one worker parked in Wait.
func (b *Budget) Release() {
	atomic.AddInt64(&b.max, 1)
	b.Signal()
}

// Signal wakes one worker parked in Wait without touching the budget
// counter. Called whenever any directory stream closes - including the
// per-worker in-flight stream that was never counted against max - since
// any closed stream may be the one that lets a blocked open succeed
// (spec.md §4.2: "any worker that just closed a directory stream signals
// the condition").
func (b *Budget) Signal() {
	if b.limited {
		b.mu.Lock()
		b.cond.Signal()
		b.mu.Unlock()
	}
}

// Wait blocks until a directory stream has been closed elsewhere,
// intended to be called after an open/opendir syscall fails with
// EMFILE/ENFILE while Limited() is true.
func (b *Budget) Wait() {
	b.mu.Lock()
	b.cond.Wait()
	b.mu.Unlock()
}

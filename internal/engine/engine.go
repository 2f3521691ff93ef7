//go:build unix

// Package engine implements the concurrent recursive-removal core:
// spec.md's work queue, fd budget, worker loop, completion protocol, and
// worker pool, wired together behind a single Run entry point.
package engine

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/go-erm/erm/internal/diag"
	"github.com/go-erm/erm/internal/fdbudget"
	"github.com/go-erm/erm/internal/queue"
	"github.com/go-erm/erm/internal/task"
)

// Run seeds the queue with roots (spec.md §4.5), then drives the worker
// pool to completion (spec.md §4.3-§4.6), and returns the process exit
// code: 0 on success, 1 if any removal failure was surfaced.
//
// Run never calls os.Exit itself - only cmd/erm does, after Run returns -
// so the engine stays a reusable, testable library even though spec.md
// describes the reference implementation terminating the process directly
// on drain. The observable behavior (process exits 0 on a clean drain,
// exits 1 on any surfaced failure) is preserved either way.
func Run(roots []string, opts Options, stderr io.Writer) int {
	budget, err := fdbudget.Probe(poolSize(opts.Workers))
	if err != nil {
		// Startup resource-probe failure: spec.md §7.1 classifies this
		// alongside thread-creation failure as fatal.
		diag.RemoveFailed(stderr, "<startup>", err)
		return 1
	}

	var failed atomic.Bool
	report := func(path string, err error) {
		failed.Store(true)
		diag.RemoveFailed(stderr, path, err)
	}
	reportPropagation := func(path string, err error) {
		failed.Store(true)
		diag.PropagationRmdirFailed(stderr, path, err)
	}

	var filesRemoved, dirsRemoved atomic.Int64
	onRemoved := func(isDir bool) {
		if isDir {
			dirsRemoved.Add(1)
		} else {
			filesRemoved.Add(1)
		}
	}

	workers := poolSize(opts.Workers)
	q := queue.New(workers)
	journal := opts.journal()

	seeded := seed(roots, q, opts.ContinueOnError, stderr, &failed, journal)
	if seeded == 0 {
		return exitCode(failed.Load())
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		w := &worker{
			q:                    q,
			budget:               budget,
			journal:              journal,
			onRemoved:            onRemoved,
			onFailure:            report,
			onPropagationFailure: reportPropagation,
		}
		go func() {
			defer wg.Done()
			w.run()
		}()
	}
	wg.Wait()

	diag.Summary(stderr, filesRemoved.Load(), dirsRemoved.Load(), 0)
	return exitCode(failed.Load())
}

// seed implements spec.md §4.5: attempt a direct remove of each root,
// trying unlink first and falling back to rmdir on EISDIR - the same
// dispatch unlinkEntry uses for entries discovered mid-walk. A root that
// turns out to be a non-empty directory (ENOTEMPTY) is queued for the
// worker pool; any other failure is surfaced immediately, stopping the
// seed loop when continueOnError is false. It returns how many roots were
// queued.
func seed(roots []string, q *queue.Queue, continueOnError bool, stderr io.Writer, failed *atomic.Bool, journal JournalSink) int {
	queued := 0
	for _, root := range roots {
		err := unix.Unlink(root)
		if err == nil {
			journal.Removed(root)
			continue
		}
		if errors.Is(err, unix.EISDIR) {
			err = unix.Rmdir(root)
			if err == nil {
				journal.Removed(root)
				continue
			}
		}
		if errors.Is(err, unix.ENOTEMPTY) {
			q.Enqueue(task.New(root, nil))
			queued++
			continue
		}

		failed.Store(true)
		diag.QueueFailed(stderr, root, err)
		journal.Failed(root, err)
		if !continueOnError {
			return queued
		}
	}
	return queued
}

func exitCode(failed bool) int {
	if failed {
		return 1
	}
	return 0
}

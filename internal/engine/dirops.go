//go:build unix

package engine

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/go-erm/erm/internal/task"
)

const openDirFlags = unix.O_RDONLY | unix.O_DIRECTORY | unix.O_NOFOLLOW | unix.O_CLOEXEC

// dirEntry is the subset of a directory entry the worker loop needs: its
// base name and the d_type-derived directory hint (spec.md §6: "read
// directory entries with d_type").
type dirEntry struct {
	name  string
	isDir bool
}

// readDirEntries lists dirfd's contents without disturbing dirfd's own
// lifecycle: it reads through a duplicate fd wrapped in an *os.File (whose
// Close only affects the duplicate), so the caller keeps full control of
// when dirfd itself closes.
func readDirEntries(dirfd int) ([]dirEntry, error) {
	dup, err := unix.Dup(dirfd)
	if err != nil {
		return nil, err
	}
	f := os.NewFile(uintptr(dup), "")
	defer f.Close()

	des, err := f.ReadDir(-1)
	if err != nil {
		return nil, err
	}

	entries := make([]dirEntry, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if name == "." || name == ".." {
			continue
		}
		entries = append(entries, dirEntry{name: name, isDir: de.IsDir()})
	}
	return entries, nil
}

// dirfdFor resolves the directory file descriptor T's Path is relative
// to: the parent's cached dfd when available (base-name addressing), or
// AT_FDCWD when T carries an absolute/cwd-relative path.
func dirfdFor(t *task.Task) int {
	if t.Parent != nil && t.Parent.HasDfd() {
		return t.Parent.Dfd()
	}
	return unix.AT_FDCWD
}

// openDir opens t.Path as a directory, resolved per dirfdFor, with
// read-only + directory + no-follow-symlink + close-on-exec semantics
// (spec.md §4.3 step 1).
func openDir(t *task.Task) (int, error) {
	return unix.Openat(dirfdFor(t), t.Path, openDirFlags, 0)
}

// unlinkEntry fast-path-removes a directory entry addressed by base name
// within the open directory fd dirfd (spec.md §4.3 step 2). isDir selects
// AT_REMOVEDIR.
func unlinkEntry(dirfd int, name string, isDir bool) error {
	if isDir {
		return unix.Unlinkat(dirfd, name, unix.AT_REMOVEDIR)
	}
	err := unix.Unlinkat(dirfd, name, 0)
	if err != nil && errors.Is(err, unix.EISDIR) {
		return unix.Unlinkat(dirfd, name, unix.AT_REMOVEDIR)
	}
	return err
}

// rmdirTask removes T itself (not an entry within it), resolved per
// dirfdFor, used both for the direct-rmdir finalize path and for bottom-up
// propagation (spec.md §4.3 step 4, §4.4).
func rmdirTask(t *task.Task) error {
	return unix.Unlinkat(dirfdFor(t), t.Path, unix.AT_REMOVEDIR)
}

// Command erm removes files and directories, recursively and in parallel
// when asked, using a worker pool sized to the machine's CPU count, with
// cached directory descriptors bounded by the process's open-file limit,
// instead of a single depth-first walk.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/go-erm/erm/internal/engine"
	"github.com/go-erm/erm/internal/journal"
	"github.com/go-erm/erm/internal/pathutil"
)

var (
	recursive       bool
	continueOnError bool
	journalPath     string
	workers         int
)

var rootCmd = &cobra.Command{
	Use:   "erm [flags] path...",
	Short: "Remove files and directories",
	Long: "erm removes the named paths. With -r it removes directories " +
		"recursively, dispatching the walk across a worker pool instead " +
		"of recursing on a single goroutine.",
	Args: cobra.MinimumNArgs(1),
	RunE: run,
}

func init() {
	rootCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "remove directories and their contents recursively")
	rootCmd.Flags().BoolVarP(&continueOnError, "continue-on-error", "e", false, "continue past errors instead of stopping at the first one")
	rootCmd.Flags().StringVar(&journalPath, "journal", "", "with -r, append an audit trail of every removal to the sqlite database at this path (ignored without -r)")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (0 selects clamp(NumCPU, 1, 64))")
}

func main() {
	os.Exit(Execute())
}

// Execute parses arguments and runs the command, returning the process
// exit code without calling os.Exit itself, so tests can drive it.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return exitCode
}

// exitCode is set by run and read back by Execute; cobra's RunE contract
// only distinguishes error/no-error, but §6's exit-code table needs a
// plain 0/1 split that isn't "usage error vs not".
var exitCode int

func run(cmd *cobra.Command, args []string) error {
	roots := make([]string, len(args))
	for i, a := range args {
		roots[i] = pathutil.Normalize(a)
	}

	if !recursive {
		exitCode = removeFlat(roots, continueOnError)
		return nil
	}

	opts := engine.Options{
		ContinueOnError: continueOnError,
		Workers:         workers,
	}

	if journalPath != "" {
		w, err := journal.Open(journalPath, uuid.NewString(), roots)
		if err != nil {
			fmt.Fprintf(os.Stderr, "erm: failed to open journal: %s\n", err)
			exitCode = 1
			return nil
		}
		defer w.Close()
		opts.Journal = w
	}

	exitCode = engine.Run(roots, opts, os.Stderr)
	return nil
}

// removeFlat handles the non-recursive default: each operand is removed
// directly with no directory traversal, matching spec.md's note that
// single-entry removal is an external collaborator the engine doesn't
// special-case.
func removeFlat(paths []string, continueOnError bool) int {
	failed := false
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			failed = true
			fmt.Fprintf(os.Stderr, "erm: failed to remove '%s': %s\n", p, err)
			if !continueOnError {
				break
			}
		}
	}
	if failed {
		return 1
	}
	return 0
}

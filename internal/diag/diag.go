// Package diag formats the diagnostic lines spec.md §6 specifies and
// writes them to the given writer (stderr in the engine), styling failure
// lines with lipgloss when that writer is a terminal. The summary line is
// never styled.
package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

// RemoveFailed reports "failed to remove '<path>': <reason>" to w.
func RemoveFailed(w io.Writer, path string, err error) {
	line := fmt.Sprintf("failed to remove '%s': %s", path, err)
	fmt.Fprintln(w, style(w, line))
}

// QueueFailed reports "failed to queue '<path>': <reason>" to w.
func QueueFailed(w io.Writer, path string, err error) {
	line := fmt.Sprintf("failed to queue '%s': %s", path, err)
	fmt.Fprintln(w, style(w, line))
}

// PropagationRmdirFailed reports a bottom-up rmdir failure discovered
// during upward propagation, with a prefix distinguishing it from the
// direct seed-path failures above (spec.md §6).
func PropagationRmdirFailed(w io.Writer, path string, err error) {
	line := fmt.Sprintf("during cleanup: failed to remove '%s': %s", path, err)
	fmt.Fprintln(w, style(w, line))
}

// Summary prints the one-line completion summary, with counts rendered
// via go-humanize the same way the teacher formats scan totals.
func Summary(w io.Writer, filesRemoved, dirsRemoved int64, elapsedErrors int64) {
	line := fmt.Sprintf("removed %s files and %s directories",
		humanize.Comma(filesRemoved), humanize.Comma(dirsRemoved))
	if elapsedErrors > 0 {
		line += fmt.Sprintf(" (%s errors)", humanize.Comma(elapsedErrors))
	}
	fmt.Fprintln(w, line)
}

func style(w io.Writer, line string) string {
	if !isTerminal(w) {
		return line
	}
	return errorStyle.Render(line)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

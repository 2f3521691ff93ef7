package diag

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRemoveFailedFormatsLiteralLine(t *testing.T) {
	var buf bytes.Buffer
	RemoveFailed(&buf, "/tmp/x", errors.New("permission denied"))
	got := buf.String()
	want := "failed to remove '/tmp/x': permission denied\n"
	if got != want {
		t.Errorf("RemoveFailed output = %q, want %q", got, want)
	}
}

func TestQueueFailedFormatsLiteralLine(t *testing.T) {
	var buf bytes.Buffer
	QueueFailed(&buf, "/tmp/y", errors.New("no such file or directory"))
	want := "failed to queue '/tmp/y': no such file or directory\n"
	if buf.String() != want {
		t.Errorf("QueueFailed output = %q, want %q", buf.String(), want)
	}
}

func TestPropagationRmdirFailedAddsPrefix(t *testing.T) {
	var buf bytes.Buffer
	PropagationRmdirFailed(&buf, "/tmp/z", errors.New("device busy"))
	if !strings.HasPrefix(buf.String(), "during cleanup: ") {
		t.Errorf("expected cleanup-prefixed line, got %q", buf.String())
	}
}

func TestSummaryOmitsErrorCountWhenZero(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, 1234, 56, 0)
	got := buf.String()
	if strings.Contains(got, "errors") {
		t.Errorf("Summary with zero errors should not mention errors, got %q", got)
	}
	if !strings.Contains(got, "1,234") || !strings.Contains(got, "56") {
		t.Errorf("Summary should humanize counts, got %q", got)
	}
}

func TestSummaryIncludesErrorCountWhenNonZero(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, 10, 2, 3)
	if !strings.Contains(buf.String(), "3 errors") {
		t.Errorf("expected error count in summary, got %q", buf.String())
	}
}

func TestPlainWriterIsNeverStyled(t *testing.T) {
	var buf bytes.Buffer
	RemoveFailed(&buf, "/tmp/a", errors.New("boom"))
	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("a non-terminal writer should never receive ANSI escapes, got %q", buf.String())
	}
}

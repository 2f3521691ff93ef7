package engine

// JournalSink receives completion events for the optional audit journal
// (internal/journal). A nil sink means journaling is disabled and costs
// nothing on the hot path.
type JournalSink interface {
	Removed(path string)
	Queued(path string)
	Failed(path string, err error)
}

// Options configures one Run of the engine.
type Options struct {
	// ContinueOnError corresponds to the CLI's -e flag (default: stop at
	// first seed-phase error, per spec.md §4.5/§7.4).
	ContinueOnError bool

	// Workers overrides the pool size; 0 selects clamp(NumCPU, 1, 64)
	// per spec.md §4.6.
	Workers int

	// Journal, if non-nil, receives a Removed/Queued/Failed call for
	// every corresponding event across the whole run.
	Journal JournalSink
}

func (o Options) journal() JournalSink {
	if o.Journal != nil {
		return o.Journal
	}
	return noopSink{}
}

type noopSink struct{}

func (noopSink) Removed(string)      {}
func (noopSink) Queued(string)       {}
func (noopSink) Failed(string, error) {}

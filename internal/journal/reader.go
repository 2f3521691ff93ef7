package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// RunSummary describes one recorded run, aggregated from its events - the
// journal analogue of the teacher's scan_meta row.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Roots      []string
	Removed    int64
	Queued     int64
	Failed     int64
}

// OpenReader opens an existing journal database read-only for inspection.
func OpenReader(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA query_only = ON"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// LatestRun returns the most recently started run recorded in the journal.
func LatestRun(db *sql.DB) (RunSummary, error) {
	var s RunSummary
	var startedAt int64
	var finishedAt sql.NullInt64
	var roots string

	err := db.QueryRow(`
		SELECT run_id, started_at, finished_at, roots
		FROM runs ORDER BY started_at DESC LIMIT 1
	`).Scan(&s.RunID, &startedAt, &finishedAt, &roots)
	if err != nil {
		return RunSummary{}, fmt.Errorf("journal: read latest run: %w", err)
	}

	s.StartedAt = time.Unix(startedAt, 0)
	if finishedAt.Valid {
		s.FinishedAt = time.Unix(finishedAt.Int64, 0)
	}
	s.Roots = splitRoots(roots)

	counts, err := countsByKind(db, s.RunID)
	if err != nil {
		return RunSummary{}, err
	}
	s.Removed = counts[KindRemoved]
	s.Queued = counts[KindQueued]
	s.Failed = counts[KindFailed]
	return s, nil
}

// FailuresFor returns the path/message pairs journaled as KindFailed for
// the given run, most recent first.
func FailuresFor(db *sql.DB, runID string) ([]Event, error) {
	rows, err := db.Query(`
		SELECT path, message, at FROM events
		WHERE run_id = ? AND kind = ?
		ORDER BY at DESC
	`, runID, int(KindFailed))
	if err != nil {
		return nil, fmt.Errorf("journal: read failures: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var atNanos int64
		if err := rows.Scan(&e.Path, &e.Message, &atNanos); err != nil {
			return nil, err
		}
		e.RunID = runID
		e.Kind = KindFailed
		e.At = time.Unix(0, atNanos)
		events = append(events, e)
	}
	return events, rows.Err()
}

func countsByKind(db *sql.DB, runID string) (map[Kind]int64, error) {
	rows, err := db.Query(`SELECT kind, COUNT(*) FROM events WHERE run_id = ? GROUP BY kind`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal: count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[Kind]int64, 3)
	for rows.Next() {
		var kind int
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[Kind(kind)] = n
	}
	return counts, rows.Err()
}

func splitRoots(s string) []string {
	var roots []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			roots = append(roots, s[start:i])
			start = i + 1
		}
	}
	roots = append(roots, s[start:])
	return roots
}

package journal

import (
	"database/sql"
	"fmt"
)

const eventsTableDDL = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    kind INTEGER NOT NULL,
    path TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    at INTEGER NOT NULL
);
`

const runsTableDDL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    started_at INTEGER NOT NULL,
    finished_at INTEGER,
    roots TEXT NOT NULL
);
`

const eventsRunIndexDDL = `CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);`
const eventsKindIndexDDL = `CREATE INDEX IF NOT EXISTS idx_events_kind ON events(run_id, kind);`

// InitSchema creates the journal's tables and indexes if they don't exist
// yet, so a journal file can be reused and appended to across runs.
func InitSchema(db *sql.DB) error {
	ddls := []string{runsTableDDL, eventsTableDDL, eventsRunIndexDDL, eventsKindIndexDDL}
	for _, ddl := range ddls {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("journal: failed to execute DDL: %w", err)
		}
	}
	return nil
}

// ApplyWritePragmas configures sqlite for the journal's batched-append
// write pattern, the same pragma set the teacher applies to its scan
// ingester.
func ApplyWritePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("journal: failed to apply pragma %q: %w", pragma, err)
		}
	}
	return nil
}

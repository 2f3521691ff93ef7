package journal

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const insertEventSQL = `INSERT INTO events (run_id, kind, path, message, at) VALUES (?, ?, ?, ?, ?)`
const insertRunSQL = `INSERT INTO runs (run_id, started_at, roots) VALUES (?, ?, ?)`
const finishRunSQL = `UPDATE runs SET finished_at = ? WHERE run_id = ?`

const (
	defaultBatchSize  = 256
	defaultFlushEvery = 200 * time.Millisecond
)

// Writer is the engine.JournalSink backing the --journal flag: every
// Removed/Queued/Failed call is handed to a single background goroutine
// that batches inserts into transactions, the same batching discipline the
// teacher's internal/db.Ingester uses for scan results.
type Writer struct {
	db    *sql.DB
	runID string

	ch   chan Event
	done chan struct{}
	wg   sync.WaitGroup

	stmt *sql.Stmt
}

// Open creates or appends to the sqlite journal at path, records a new run
// row for runID, and starts the background batching goroutine.
func Open(path string, runID string, roots []string) (*Writer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := ApplyWritePragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	now := time.Now().Unix()
	if _, err := db.Exec(insertRunSQL, runID, now, strings.Join(roots, "\x00")); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: record run: %w", err)
	}

	w := &Writer{
		db:    db,
		runID: runID,
		ch:    make(chan Event, defaultBatchSize),
		done:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Removed implements engine.JournalSink.
func (w *Writer) Removed(path string) { w.enqueue(KindRemoved, path, "") }

// Queued implements engine.JournalSink.
func (w *Writer) Queued(path string) { w.enqueue(KindQueued, path, "") }

// Failed implements engine.JournalSink.
func (w *Writer) Failed(path string, err error) { w.enqueue(KindFailed, path, err.Error()) }

func (w *Writer) enqueue(kind Kind, path, message string) {
	select {
	case w.ch <- Event{RunID: w.runID, Kind: kind, Path: path, Message: message, At: time.Now()}:
	case <-w.done:
		// Writer is shutting down; drop the event rather than block the
		// worker that produced it.
	}
}

// Close stops accepting events, flushes any remaining batch, records the
// run's finish time, and closes the underlying database.
func (w *Writer) Close() error {
	close(w.ch)
	w.wg.Wait()
	close(w.done)

	_, err := w.db.Exec(finishRunSQL, time.Now().Unix(), w.runID)
	if closeErr := w.db.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (w *Writer) run() {
	defer w.wg.Done()

	stmt, err := w.db.Prepare(insertEventSQL)
	if err != nil {
		// Nothing sensible to do with a prepare failure besides drain the
		// channel so producers never block; events are simply dropped.
		for range w.ch {
		}
		return
	}
	defer stmt.Close()
	w.stmt = stmt

	ticker := time.NewTicker(defaultFlushEvery)
	defer ticker.Stop()

	batch := make([]Event, 0, defaultBatchSize)
	for {
		select {
		case e, ok := <-w.ch:
			if !ok {
				w.flush(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= defaultBatchSize {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (w *Writer) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	tx, err := w.db.Begin()
	if err != nil {
		return
	}
	stmt := tx.Stmt(w.stmt)
	for _, e := range batch {
		if _, err := stmt.Exec(e.RunID, int(e.Kind), e.Path, e.Message, e.At.UnixNano()); err != nil {
			tx.Rollback()
			return
		}
	}
	tx.Commit()
}

// Package history persists run-level and iteration-level results for
// completed and in-progress sequence workers to a local SQLite database, so
// `autorobot history` can report on past runs after the scheduler exits.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection backing the run-history store.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the history database at path, enabling WAL mode so
// that several Worker processes can log to it concurrently.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return db, nil
}

// Close flushes the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn != nil {
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

// Flush forces a WAL checkpoint without closing the connection.
func (db *DB) Flush() error {
	if db.conn != nil {
		_, err := db.conn.Exec("PRAGMA wal_checkpoint(RESTART)")
		return err
	}
	return nil
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS worker_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		worker_name TEXT NOT NULL,
		sequence_file TEXT NOT NULL,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		ended_at DATETIME,
		total_loops INTEGER NOT NULL,
		pass_loops INTEGER NOT NULL DEFAULT 0,
		fail_loops INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS loop_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES worker_runs(id),
		loop_number INTEGER NOT NULL,
		result TEXT NOT NULL,
		failure_message TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS scheduler_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_worker_runs_name ON worker_runs(worker_name);
	CREATE INDEX IF NOT EXISTS idx_loop_results_run ON loop_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_scheduler_events_timestamp ON scheduler_events(timestamp);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// WorkerRun is a single sequence worker's lifetime, from SEQUENCE_START
// to its eventual SEQUENCE_COMPLETE.
type WorkerRun struct {
	ID           int64
	WorkerName   string
	SequenceFile string
	StartedAt    time.Time
	EndedAt      sql.NullTime
	TotalLoops   int
	PassLoops    int
	FailLoops    int
	Status       string
}

// StartWorkerRun records the start of a new worker and returns its row id,
// used to tie subsequent LogLoopResult calls back to this run.
func (db *DB) StartWorkerRun(workerName, sequenceFile string, totalLoops int) (int64, error) {
	res, err := db.conn.Exec(
		`INSERT INTO worker_runs (worker_name, sequence_file, total_loops, status)
		 VALUES (?, ?, ?, ?)`,
		workerName, sequenceFile, totalLoops, "running",
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishWorkerRun marks a run complete with its final aggregate counts.
func (db *DB) FinishWorkerRun(runID int64, passLoops, failLoops int, status string) error {
	_, err := db.conn.Exec(
		`UPDATE worker_runs
		 SET ended_at = ?, pass_loops = ?, fail_loops = ?, status = ?
		 WHERE id = ?`,
		time.Now(), passLoops, failLoops, status, runID,
	)
	return err
}

// LogLoopResult records one iteration's PASS/FAIL/UNKNOWN result, retrying
// briefly on SQLITE_BUSY since several Worker processes share this database.
func (db *DB) LogLoopResult(runID int64, loopNumber int, result, failureMessage string) error {
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		_, err := db.conn.Exec(
			`INSERT INTO loop_results (run_id, loop_number, result, failure_message, timestamp)
			 VALUES (?, ?, ?, ?, ?)`,
			runID, loopNumber, result, failureMessage, time.Now(),
		)
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("log loop result after %d retries: database locked", maxRetries)
}

// SchedulerEvent is a lifecycle event of the Master Scheduler itself, such as
// startup, a worker spawn, or shutdown.
type SchedulerEvent struct {
	ID        int64
	EventType string
	Details   string
	Timestamp time.Time
}

// LogSchedulerEvent records a Master-level lifecycle event.
func (db *DB) LogSchedulerEvent(eventType, details string) error {
	_, err := db.conn.Exec(
		`INSERT INTO scheduler_events (event_type, details, timestamp) VALUES (?, ?, ?)`,
		eventType, details, time.Now(),
	)
	return err
}

// GetRecentWorkerRuns returns the most recent worker runs, newest first.
func (db *DB) GetRecentWorkerRuns(limit int) ([]WorkerRun, error) {
	rows, err := db.conn.Query(
		`SELECT id, worker_name, sequence_file, started_at, ended_at, total_loops, pass_loops, fail_loops, status
		 FROM worker_runs
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []WorkerRun
	for rows.Next() {
		var r WorkerRun
		if err := rows.Scan(&r.ID, &r.WorkerName, &r.SequenceFile, &r.StartedAt, &r.EndedAt,
			&r.TotalLoops, &r.PassLoops, &r.FailLoops, &r.Status); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoopResult is a single recorded iteration outcome for a worker run.
type LoopResult struct {
	LoopNumber     int
	Result         string
	FailureMessage string
	Timestamp      time.Time
}

// GetLoopResults returns every loop result recorded for a run, oldest first.
func (db *DB) GetLoopResults(runID int64) ([]LoopResult, error) {
	rows, err := db.conn.Query(
		`SELECT loop_number, result, failure_message, timestamp
		 FROM loop_results
		 WHERE run_id = ?
		 ORDER BY loop_number ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []LoopResult
	for rows.Next() {
		var (
			r       LoopResult
			failMsg sql.NullString
		)
		if err := rows.Scan(&r.LoopNumber, &r.Result, &failMsg, &r.Timestamp); err != nil {
			return nil, err
		}
		r.FailureMessage = failMsg.String
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetRecentSchedulerEvents returns the most recent scheduler events, newest first.
func (db *DB) GetRecentSchedulerEvents(limit int) ([]SchedulerEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_type, details, timestamp
		 FROM scheduler_events
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []SchedulerEvent
	for rows.Next() {
		var e SchedulerEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

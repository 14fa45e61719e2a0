// Package tracestore persists scenario runs and their step events to a
// local SQLite database so past runs can be inspected after the fact.
package tracestore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"nucleus/internal/klog"
)

// Run is one recorded scenario run.
type Run struct {
	ID         string
	Suite      string
	Name       string
	Passed     bool
	FailedStep int
	Err        string
	DurationMs int64
	CreatedAt  time.Time
}

// Event is one step of a recorded run, ordered by Seq.
type Event struct {
	RunID  string
	Seq    int
	Kind   string
	Detail string
}

// Store is the SQLite-backed run history. Thread-safe with a
// read-write mutex.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
	log  *zap.SugaredLogger
}

// Open opens or creates the database at path, applying the write-ahead
// pragmas and ensuring the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create trace directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path, log: klog.Get(klog.CategoryTrace)}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure trace schema: %w", err)
	}
	s.log.Debugw("trace store opened", "path", path)
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		suite TEXT NOT NULL,
		name TEXT NOT NULL,
		passed BOOLEAN NOT NULL,
		failed_step INTEGER DEFAULT 0,
		error TEXT,
		duration_ms INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_name ON runs(name);
	CREATE INDEX IF NOT EXISTS idx_runs_passed ON runs(passed);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

	CREATE TABLE IF NOT EXISTS events (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun persists one run. Recording the same run id again replaces
// the earlier row.
func (s *Store) RecordRun(r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debugw("recording run", "run_id", r.ID, "name", r.Name, "passed", r.Passed)

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO runs
		(id, suite, name, passed, failed_step, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Suite, r.Name, r.Passed, r.FailedStep, r.Err, r.DurationMs)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.ID, err)
	}
	return nil
}

// RecordEvents persists the step events of one run in a single
// transaction.
func (s *Store) RecordEvents(runID string, evs []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin event transaction: %w", err)
	}
	for i, e := range evs {
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO events (run_id, seq, kind, detail)
			VALUES (?, ?, ?, ?)`,
			runID, i+1, e.Kind, e.Detail); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record event %d of run %s: %w", i+1, runID, err)
		}
	}
	return tx.Commit()
}

// Runs returns the most recent runs, newest first.
func (s *Store) Runs(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, suite, name, passed, failed_step, error, duration_ms, created_at
		FROM runs
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

// FailedRuns returns the most recent failed runs, newest first.
func (s *Store) FailedRuns(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, suite, name, passed, failed_step, error, duration_ms, created_at
		FROM runs
		WHERE passed = 0
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

// RunsByName returns every recorded run of one scenario, newest first.
func (s *Store) RunsByName(name string, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, suite, name, passed, failed_step, error, duration_ms, created_at
		FROM runs
		WHERE name = ?
		ORDER BY created_at DESC, id
		LIMIT ?`, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRuns(rows)
}

// Events returns the step events, in step order, of the run whose id
// starts with runID. Listings shorten run ids, so a prefix is enough.
func (s *Store) Events(runID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT run_id, seq, kind, detail
		FROM events
		WHERE run_id LIKE ?
		ORDER BY run_id, seq ASC`, runID+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evs []Event
	for rows.Next() {
		var e Event
		var detail sql.NullString
		if err := rows.Scan(&e.RunID, &e.Seq, &e.Kind, &detail); err != nil {
			return nil, err
		}
		e.Detail = detail.String
		evs = append(evs, e)
	}
	return evs, rows.Err()
}

// Stats returns aggregate statistics over the recorded run history.
func (s *Store) Stats() (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]interface{})

	var total int64
	s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&total)
	stats["total_runs"] = total

	var passed int64
	s.db.QueryRow("SELECT COUNT(*) FROM runs WHERE passed = 1").Scan(&passed)
	if total > 0 {
		stats["pass_rate"] = float64(passed) / float64(total)
	}

	var avgDuration float64
	s.db.QueryRow("SELECT AVG(duration_ms) FROM runs").Scan(&avgDuration)
	stats["avg_duration_ms"] = avgDuration

	byScenario := make(map[string]int64)
	rows, err := s.db.Query("SELECT name, COUNT(*) FROM runs GROUP BY name")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var name string
			var count int64
			if rows.Scan(&name, &count) == nil {
				byScenario[name] = count
			}
		}
	}
	stats["by_scenario"] = byScenario

	return stats, nil
}

// Cleanup removes runs and their events older than the retention
// period. Returns the number of runs deleted.
func (s *Store) Cleanup(retentionDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive")
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	if _, err := s.db.Exec(`
		DELETE FROM events WHERE run_id IN
		(SELECT id FROM runs WHERE created_at < ?)`, cutoff); err != nil {
		return 0, err
	}
	result, err := s.db.Exec("DELETE FROM runs WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	s.log.Debugw("trace cleanup", "deleted", n, "retention_days", retentionDays)
	return n, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		var r Run
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.Suite, &r.Name, &r.Passed, &r.FailedStep,
			&errMsg, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Err = errMsg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

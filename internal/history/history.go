// Package history keeps a per-output-directory ledger of past runs in a
// sqlite database under the state directory, so `snpflow history` can answer
// what ran, when, and how it ended long after the terminal scrolled away.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"snpflow/internal/pipeline"
)

const fileName = "history.db"

// Entry is one recorded run.
type Entry struct {
	ID           string
	Started      time.Time
	Finished     time.Time
	Mode         string
	Force        bool
	Resume       bool
	Phase        string
	Succeeded    int
	Skipped      int
	Failed       int
	NotAttempted int
	Samples      int
	FirstFailure string
}

func (e Entry) Duration() time.Duration { return e.Finished.Sub(e.Started) }

// FromOutcome flattens a finished run into a ledger entry.
func FromOutcome(req pipeline.PlanRequest, samples int, outcome pipeline.RunOutcome) Entry {
	entry := Entry{
		Started:  outcome.Started,
		Finished: outcome.Finished,
		Mode:     req.Mode.String(),
		Force:    req.Force,
		Resume:   req.Resume,
		Phase:    outcome.Phase.String(),
		Samples:  samples,
	}
	entry.Succeeded, entry.Skipped, entry.Failed, entry.NotAttempted = outcome.Counts()
	if first, ok := outcome.FirstFailure(); ok {
		entry.FirstFailure = fmt.Sprintf("%s: %s", first.Name, first.Message)
	}
	return entry
}

type Store struct {
	db *sql.DB
}

// DefaultPath locates the ledger inside an output directory's state dir.
func DefaultPath(outputDir string) string {
	return filepath.Join(outputDir, ".snpflow", fileName)
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set history db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set history db busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	mode TEXT NOT NULL,
	force_rerun INTEGER NOT NULL DEFAULT 0,
	resume INTEGER NOT NULL DEFAULT 0,
	phase TEXT NOT NULL,
	succeeded INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	not_attempted INTEGER NOT NULL DEFAULT 0,
	samples INTEGER NOT NULL DEFAULT 0,
	first_failure TEXT NOT NULL DEFAULT ''
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize runs schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts one run. A missing id gets a fresh one; the assigned id is
// returned either way.
func (s *Store) Record(entry Entry) (string, error) {
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_at, finished_at, mode, force_rerun, resume, phase,
		 succeeded, skipped, failed, not_attempted, samples, first_failure)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		entry.Started.UTC().Format(time.RFC3339Nano),
		entry.Finished.UTC().Format(time.RFC3339Nano),
		entry.Mode,
		boolInt(entry.Force),
		boolInt(entry.Resume),
		entry.Phase,
		entry.Succeeded,
		entry.Skipped,
		entry.Failed,
		entry.NotAttempted,
		entry.Samples,
		entry.FirstFailure,
	)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return id, nil
}

// List returns the most recent runs, newest first. A non-positive limit
// returns everything.
func (s *Store) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, started_at, finished_at, mode, force_rerun, resume, phase,
		 succeeded, skipped, failed, not_attempted, samples, first_failure
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		var started, finished string
		var force, resume int
		if err := rows.Scan(&entry.ID, &started, &finished, &entry.Mode, &force, &resume,
			&entry.Phase, &entry.Succeeded, &entry.Skipped, &entry.Failed,
			&entry.NotAttempted, &entry.Samples, &entry.FirstFailure); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		if entry.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse run %s start time: %w", entry.ID, err)
		}
		if entry.Finished, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("parse run %s finish time: %w", entry.ID, err)
		}
		entry.Force = force != 0
		entry.Resume = resume != 0
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

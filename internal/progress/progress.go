// Package progress persists per-output-directory step completion state.
//
// The record is the resume ledger: a step appears in it only after every
// declared output artifact was verified on disk. Readers treat the
// filesystem as ground truth and the record as a cache over it.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/moby/sys/atomicwriter"
)

// CurrentVersion is the schema version written to new progress files.
const CurrentVersion = 1

const (
	stateDirName = ".snpflow"
	fileName     = "progress.json"
)

// CorruptError reports a progress file that exists but cannot be trusted.
// It is fatal: the file is never auto-repaired or silently discarded.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("progress file %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Record maps step names to their completion timestamps.
type Record struct {
	Version int
	Steps   map[string]time.Time
}

// NewRecord returns an empty record at the current schema version.
func NewRecord() Record {
	return Record{Version: CurrentVersion, Steps: map[string]time.Time{}}
}

// Completed reports whether step is recorded complete, and when.
func (r Record) Completed(step string) (time.Time, bool) {
	when, ok := r.Steps[step]
	return when, ok
}

// Names returns the recorded step names, sorted.
func (r Record) Names() []string {
	names := make([]string, 0, len(r.Steps))
	for name := range r.Steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// recordFile is the on-disk shape. Unknown keys in the file are ignored so
// newer writers stay readable.
type recordFile struct {
	Version int               `json:"version"`
	Steps   map[string]string `json:"steps"`
}

// Store reads and writes the progress file of one output directory.
type Store struct {
	path string
}

// NewStore returns a store for <outputDir>/.snpflow/progress.json.
func NewStore(outputDir string) *Store {
	return &Store{path: filepath.Join(outputDir, stateDirName, fileName)}
}

// Path returns the progress file location.
func (s *Store) Path() string { return s.path }

// Load reads the record. A missing file is an empty record. A file that
// fails to parse, or holds a malformed timestamp, returns *CorruptError.
func (s *Store) Load() (Record, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewRecord(), nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("read progress: %w", err)
	}

	var file recordFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return Record{}, &CorruptError{Path: s.path, Err: err}
	}

	rec := Record{Version: file.Version, Steps: make(map[string]time.Time, len(file.Steps))}
	if rec.Version == 0 {
		rec.Version = CurrentVersion
	}
	for step, stamp := range file.Steps {
		if step == "" {
			return Record{}, &CorruptError{Path: s.path, Err: errors.New("empty step name")}
		}
		when, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			return Record{}, &CorruptError{Path: s.path, Err: fmt.Errorf("step %s: %w", step, err)}
		}
		rec.Steps[step] = when
	}
	return rec, nil
}

// MarkComplete records step as finished at the given time.
func (s *Store) MarkComplete(step string, when time.Time) error {
	rec, err := s.Load()
	if err != nil {
		return err
	}
	rec.Steps[step] = when.UTC()
	return s.save(rec)
}

// Clear removes a step's completion marker, if present. Used before a forced
// re-execution so a crash mid-step cannot leave a stale marker behind.
func (s *Store) Clear(step string) error {
	rec, err := s.Load()
	if err != nil {
		return err
	}
	if _, ok := rec.Steps[step]; !ok {
		return nil
	}
	delete(rec.Steps, step)
	return s.save(rec)
}

// save writes the record atomically: temp file in the same directory, then
// rename. A reader never observes a torn file.
func (s *Store) save(rec Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	file := recordFile{Version: rec.Version, Steps: make(map[string]string, len(rec.Steps))}
	for step, when := range rec.Steps {
		file.Steps[step] = when.UTC().Format(time.RFC3339)
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	data = append(data, '\n')

	if err := atomicwriter.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}

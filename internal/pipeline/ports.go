package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"snpflow/internal/progress"
)

// CommandRunner executes one external invocation to completion, with
// stdout+stderr redirected to the invocation's log file. It returns the
// process exit code; err is reserved for failures to run at all (binary not
// found, log not writable, context cancelled before exec).
type CommandRunner interface {
	Run(ctx context.Context, inv Invocation) (int, error)
}

// FSProbe abstracts the filesystem checks the engine makes around external
// commands: artifact existence, artifact size, and directory preparation.
type FSProbe interface {
	Exists(path string) bool
	Size(path string) (int64, error)
	MkdirAll(path string) error
}

// ProgressStore persists which steps of an output directory are complete.
type ProgressStore interface {
	Load() (progress.Record, error)
	MarkComplete(step string, when time.Time) error
	Clear(step string) error
	Path() string
}

// Clock supplies time so tests control durations and timestamps.
type Clock interface {
	Now() time.Time
}

// Deps groups the collaborators the resolver, executor and orchestrator need.
// Tracer may be nil; everything else is required.
type Deps struct {
	Runner   CommandRunner
	Probe    FSProbe
	Progress ProgressStore
	Clock    Clock
	Tracer   trace.Tracer
}

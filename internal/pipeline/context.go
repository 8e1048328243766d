package pipeline

import (
	"strings"
	"time"

	"snpflow/internal/sample"
)

const (
	DefaultThreadsPerJob   = 4
	DefaultMaxParallelJobs = 3
)

// RunContext carries everything a run needs, resolved once up front:
// absolute paths, the discovered sample set, and tuning knobs. It is
// immutable for the duration of the run.
type RunContext struct {
	SamplesDir string
	OutputDir  string
	Reference  string
	Samples    []sample.Sample

	ThreadsPerJob   int
	MaxParallelJobs int

	// JavaOptions, when set, replaces each step's default -Xmx options.
	JavaOptions string
	// TunableOverrides replaces a step's TunableArgs wholesale, keyed by
	// step name. Absent key keeps the builtin default.
	TunableOverrides map[string][]string
	// StepTimeout bounds one step's wall time. Zero means unbounded.
	StepTimeout time.Duration
}

// WithDefaults fills unset tuning knobs.
func (rc RunContext) WithDefaults() RunContext {
	if rc.ThreadsPerJob <= 0 {
		rc.ThreadsPerJob = DefaultThreadsPerJob
	}
	if rc.MaxParallelJobs <= 0 {
		rc.MaxParallelJobs = DefaultMaxParallelJobs
	}
	return rc
}

// ReferenceDict is the sequence dictionary path GATK derives from the
// reference: the .fa/.fasta extension replaced by .dict.
func (rc RunContext) ReferenceDict() string {
	for _, ext := range []string{".fasta", ".fa"} {
		if strings.HasSuffix(rc.Reference, ext) {
			return strings.TrimSuffix(rc.Reference, ext) + ".dict"
		}
	}
	return rc.Reference + ".dict"
}

func (rc RunContext) javaOptions(step StepDefinition) string {
	if rc.JavaOptions != "" {
		return rc.JavaOptions
	}
	return step.JavaOptions
}

func (rc RunContext) tunableArgs(step StepDefinition) []string {
	if args, ok := rc.TunableOverrides[step.Name]; ok {
		return args
	}
	return step.TunableArgs
}

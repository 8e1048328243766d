package pipeline

import (
	"fmt"
	"strings"
)

// UnknownStepError reports a step name that is not in the registry.
type UnknownStepError struct {
	Name string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("unknown step %q", e.Name)
}

// MissingInputError reports an input artifact a step needs but which neither
// exists on disk nor is produced by an earlier step of the same plan. Empty
// marks a data file that exists with zero size.
type MissingInputError struct {
	Step     string
	Artifact string
	Empty    bool
}

func (e *MissingInputError) Error() string {
	if e.Empty {
		return fmt.Sprintf("step %s: input %s is empty", e.Step, e.Artifact)
	}
	return fmt.Sprintf("step %s: input %s missing", e.Step, e.Artifact)
}

// ExternalCommandError reports an external tool that exited non-zero.
type ExternalCommandError struct {
	Step     string
	Sample   string
	Program  string
	ExitCode int
	LogPath  string
}

func (e *ExternalCommandError) Error() string {
	if e == nil {
		return "<nil>"
	}
	scope := e.Step
	if e.Sample != "" {
		scope = e.Step + "/" + e.Sample
	}
	return fmt.Sprintf("step %s: %s exited %d (log: %s)", scope, e.Program, e.ExitCode, e.LogPath)
}

// OutputVerificationError reports a command that exited zero but left one or
// more declared outputs missing or empty.
type OutputVerificationError struct {
	Step    string
	Missing []string
	LogPath string
}

func (e *OutputVerificationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("step %s: command succeeded but outputs not produced: %s (log: %s)",
		e.Step, strings.Join(e.Missing, ", "), e.LogPath)
}

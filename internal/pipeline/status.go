package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"snpflow/internal/check"
)

// StepStatus tracks the lifecycle of one step within a run.
type StepStatus uint8

const (
	StepPending StepStatus = iota + 1
	StepRunning
	StepSucceeded
	StepSkipped
	StepFailed
)

func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepSucceeded:
		return "success"
	case StepSkipped:
		return "skipped"
	case StepFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s StepStatus) IsValid() bool {
	switch s {
	case StepPending, StepRunning, StepSucceeded, StepSkipped, StepFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepSucceeded, StepSkipped, StepFailed:
		return true
	default:
		return false
	}
}

func (s StepStatus) Transition(to StepStatus) StepStatus {
	ok := false
	switch s {
	case StepPending:
		ok = to == StepRunning || to == StepSkipped
	case StepRunning:
		ok = to == StepSucceeded || to == StepFailed
	case StepSucceeded, StepSkipped, StepFailed:
		ok = false
	}
	check.Assertf(ok, "step status transition: %s -> %s", s, to)
	if !ok {
		return s
	}
	return to
}

func (s StepStatus) MarshalJSON() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid step status: %d", s)
	}
	return json.Marshal(s.String())
}

func (s *StepStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	next, ok := ParseStepStatus(raw)
	if !ok {
		return fmt.Errorf("invalid step status: %q", raw)
	}
	*s = next
	return nil
}

func ParseStepStatus(raw string) (StepStatus, bool) {
	switch strings.TrimSpace(raw) {
	case "pending":
		return StepPending, true
	case "running":
		return StepRunning, true
	case "success":
		return StepSucceeded, true
	case "skipped":
		return StepSkipped, true
	case "failed":
		return StepFailed, true
	default:
		return 0, false
	}
}

// RunPhase tracks the lifecycle of a whole run.
type RunPhase uint8

const (
	RunIdle RunPhase = iota + 1
	RunRunning
	RunFinished
	RunAborted
)

func (p RunPhase) String() string {
	switch p {
	case RunIdle:
		return "idle"
	case RunRunning:
		return "running"
	case RunFinished:
		return "finished"
	case RunAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

func (p RunPhase) IsValid() bool {
	switch p {
	case RunIdle, RunRunning, RunFinished, RunAborted:
		return true
	default:
		return false
	}
}

func (p RunPhase) Transition(to RunPhase) RunPhase {
	ok := false
	switch p {
	case RunIdle:
		ok = to == RunRunning
	case RunRunning:
		ok = to == RunFinished || to == RunAborted
	case RunFinished, RunAborted:
		ok = false
	}
	check.Assertf(ok, "run phase transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}

func (p RunPhase) MarshalJSON() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid run phase: %d", p)
	}
	return json.Marshal(p.String())
}

func (p *RunPhase) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	next, ok := ParseRunPhase(raw)
	if !ok {
		return fmt.Errorf("invalid run phase: %q", raw)
	}
	*p = next
	return nil
}

func ParseRunPhase(raw string) (RunPhase, bool) {
	switch strings.TrimSpace(raw) {
	case "idle":
		return RunIdle, true
	case "running":
		return RunRunning, true
	case "finished":
		return RunFinished, true
	case "aborted":
		return RunAborted, true
	default:
		return 0, false
	}
}

package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"snpflow/internal/check"
)

// Mode selects the candidate window of a plan.
type Mode uint8

const (
	ModeAll Mode = iota + 1
	ModeSingleStep
	ModeFromStep
	ModeRange
)

func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeSingleStep:
		return "single_step"
	case ModeFromStep:
		return "from_step"
	case ModeRange:
		return "range"
	default:
		return "unknown"
	}
}

func (m Mode) IsValid() bool {
	switch m {
	case ModeAll, ModeSingleStep, ModeFromStep, ModeRange:
		return true
	default:
		return false
	}
}

// PlanRequest is what the operator asked for.
type PlanRequest struct {
	Mode Mode
	// Step names the single step for ModeSingleStep.
	Step string
	// From / To bound the window for ModeFromStep and ModeRange.
	From string
	To   string
	// Force re-runs every candidate regardless of recorded completion.
	Force bool
	// Resume skips candidates whose completion is recorded and whose
	// outputs are still on disk.
	Resume bool
}

// Decision says what the plan does with a candidate step.
type Decision uint8

const (
	DecisionRun Decision = iota + 1
	DecisionSkip
)

func (d Decision) String() string {
	switch d {
	case DecisionRun:
		return "run"
	case DecisionSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// PlanStep is one candidate with its decision and a human-readable reason.
type PlanStep struct {
	Step     StepDefinition
	Decision Decision
	Reason   string
}

// Plan is the ordered outcome of resolution. Skipped candidates stay in the
// plan so reporting can show why they were not run.
type Plan struct {
	Mode   Mode
	Force  bool
	Resume bool
	Steps  []PlanStep
}

// Runnable returns the entries that will actually execute, in order.
func (p Plan) Runnable() []PlanStep {
	var out []PlanStep
	for _, entry := range p.Steps {
		if entry.Decision == DecisionRun {
			out = append(out, entry)
		}
	}
	return out
}

// Names returns every candidate name in plan order.
func (p Plan) Names() []string {
	names := make([]string, len(p.Steps))
	for i, entry := range p.Steps {
		names[i] = entry.Step.Name
	}
	return names
}

// BuildPlan resolves a request into an ordered plan. It loads the progress
// record, decides run/skip per candidate, and verifies that every input of
// every runnable step either exists on disk or is produced by an earlier
// entry of the same plan. No side effects beyond reads.
func BuildPlan(rc RunContext, reg *Registry, req PlanRequest, deps Deps) (Plan, error) {
	check.Assert(deps.Probe != nil, "plan needs a filesystem probe")
	check.Assert(deps.Progress != nil, "plan needs a progress store")
	check.Assertf(req.Mode.IsValid(), "invalid plan mode: %d", uint8(req.Mode))

	window, err := candidateWindow(reg, req)
	if err != nil {
		return Plan{}, err
	}

	// A corrupt progress file must stop the run before any work happens,
	// not at the first completion write hours in.
	rec, err := deps.Progress.Load()
	if err != nil {
		return Plan{}, err
	}

	for _, def := range window {
		if def.PerSample && len(rc.Samples) == 0 {
			return Plan{}, fmt.Errorf("step %s fans out per sample but no samples were found in %s",
				def.Name, rc.SamplesDir)
		}
	}

	plan := Plan{Mode: req.Mode, Force: req.Force, Resume: req.Resume}
	for _, def := range window {
		plan.Steps = append(plan.Steps, decideStep(def, rc, req, rec.Steps, deps))
	}

	if err := verifyPlanInputs(plan, rc, deps); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func candidateWindow(reg *Registry, req PlanRequest) ([]StepDefinition, error) {
	switch req.Mode {
	case ModeAll:
		return reg.Steps(), nil

	case ModeSingleStep:
		def, err := reg.Get(req.Step)
		if err != nil {
			return nil, err
		}
		return []StepDefinition{def}, nil

	case ModeFromStep:
		from, err := reg.Get(req.From)
		if err != nil {
			return nil, err
		}
		return stepsBetween(reg, from, reg.Last()), nil

	case ModeRange:
		from := reg.First()
		if req.From != "" {
			var err error
			from, err = reg.Get(req.From)
			if err != nil {
				return nil, err
			}
		}
		to, err := reg.Get(req.To)
		if err != nil {
			return nil, err
		}
		// An inverted range is an empty window, not an error.
		return stepsBetween(reg, from, to), nil

	default:
		return nil, fmt.Errorf("invalid plan mode: %d", uint8(req.Mode))
	}
}

// stepsBetween returns the definitions with priority in [from, to], in order.
func stepsBetween(reg *Registry, from, to StepDefinition) []StepDefinition {
	var window []StepDefinition
	for _, def := range reg.Steps() {
		if def.Priority >= from.Priority && def.Priority <= to.Priority {
			window = append(window, def)
		}
	}
	return window
}

func decideStep(def StepDefinition, rc RunContext, req PlanRequest, completed map[string]time.Time, deps Deps) PlanStep {
	if req.Force {
		return PlanStep{Step: def, Decision: DecisionRun, Reason: "forced re-run"}
	}
	if req.Resume {
		when, ok := completed[def.Name]
		if ok {
			// The record is a cache; the filesystem is ground truth.
			missing := firstMissingOutput(def, rc, deps)
			if missing == "" {
				return PlanStep{
					Step:     def,
					Decision: DecisionSkip,
					Reason:   fmt.Sprintf("already complete (%s)", when.UTC().Format(time.RFC3339)),
				}
			}
			slog.Warn("progress record is stale, step will re-run",
				"step", def.Name, "missing", missing)
			return PlanStep{
				Step:     def,
				Decision: DecisionRun,
				Reason:   fmt.Sprintf("recorded complete but %s missing; re-running", missing),
			}
		}
	}
	return PlanStep{Step: def, Decision: DecisionRun, Reason: "requested"}
}

// firstMissingOutput returns the display path of the first declared output
// that is absent or empty, or "" when all outputs are intact.
func firstMissingOutput(def StepDefinition, rc RunContext, deps Deps) string {
	for _, out := range ExpandOutputs(def, rc) {
		if !deps.Probe.Exists(out.Path) {
			return displayPath(rc, out.Path)
		}
		if size, err := deps.Probe.Size(out.Path); err != nil || size == 0 {
			return displayPath(rc, out.Path)
		}
	}
	return ""
}

// verifyPlanInputs fails fast on inputs that neither exist nor will be
// produced by an earlier entry of this plan. Outputs of skipped entries were
// already verified on disk by the skip decision.
func verifyPlanInputs(plan Plan, rc RunContext, deps Deps) error {
	produced := map[string]bool{}
	for _, entry := range plan.Steps {
		if entry.Decision == DecisionRun {
			for _, in := range ExpandInputs(entry.Step, rc) {
				if produced[in.Path] || deps.Probe.Exists(in.Path) {
					continue
				}
				return &MissingInputError{Step: entry.Step.Name, Artifact: displayPath(rc, in.Path)}
			}
		}
		for _, out := range ExpandOutputs(entry.Step, rc) {
			produced[out.Path] = true
		}
	}
	return nil
}

// displayPath shortens artifact paths under the output directory for
// messages; everything else stays absolute.
func displayPath(rc RunContext, path string) string {
	prefix := rc.OutputDir + string(filepath.Separator)
	if strings.HasPrefix(path, prefix) {
		return strings.TrimPrefix(path, prefix)
	}
	return path
}

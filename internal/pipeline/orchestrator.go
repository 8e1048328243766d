package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"snpflow/internal/check"
	"snpflow/internal/telemetry"
)

// StepResult is the outcome of one plan entry.
type StepResult struct {
	Name     string
	Status   StepStatus
	Duration time.Duration
	Message  string
	Err      error
}

// RunOutcome aggregates one run. Planned holds every candidate name in plan
// order; Results holds what was actually attempted or skipped, so planned
// steps missing from Results were never reached.
type RunOutcome struct {
	Phase    RunPhase
	Planned  []string
	Results  []StepResult
	Started  time.Time
	Finished time.Time
}

func (o RunOutcome) Duration() time.Duration { return o.Finished.Sub(o.Started) }

// Counts totals the results by status, plus how many planned steps were
// never attempted because the run halted early.
func (o RunOutcome) Counts() (succeeded, skipped, failed, notAttempted int) {
	for _, res := range o.Results {
		switch res.Status {
		case StepSucceeded:
			succeeded++
		case StepSkipped:
			skipped++
		case StepFailed:
			failed++
		}
	}
	notAttempted = len(o.Planned) - len(o.Results)
	return succeeded, skipped, failed, notAttempted
}

// NotAttempted lists planned steps that never started, in plan order.
func (o RunOutcome) NotAttempted() []string {
	reached := make(map[string]bool, len(o.Results))
	for _, res := range o.Results {
		reached[res.Name] = true
	}
	var out []string
	for _, name := range o.Planned {
		if !reached[name] {
			out = append(out, name)
		}
	}
	return out
}

// FirstFailure returns the earliest failed result, if any.
func (o RunOutcome) FirstFailure() (StepResult, bool) {
	for _, res := range o.Results {
		if res.Status == StepFailed {
			return res, true
		}
	}
	return StepResult{}, false
}

// Run executes a plan in order, one step at a time, halting at the first
// failure so no later step runs against suspect intermediates. The returned
// error is the first failure (or the interrupt); the outcome always comes
// back filled for reporting.
func Run(ctx context.Context, rc RunContext, plan Plan, deps Deps) (RunOutcome, error) {
	check.Assert(deps.Runner != nil, "run needs a command runner")
	check.Assert(deps.Probe != nil, "run needs a filesystem probe")
	check.Assert(deps.Progress != nil, "run needs a progress store")
	check.Assert(deps.Clock != nil, "run needs a clock")
	check.Assert(rc.MaxParallelJobs > 0, "run context missing defaults")

	phase := RunIdle.Transition(RunRunning)
	outcome := RunOutcome{Planned: plan.Names(), Started: deps.Clock.Now()}

	op := emitPlan(ctx, plan, deps)
	if op != nil {
		ctx = op.Context()
	}

	var firstErr error
	for _, entry := range plan.Steps {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			break
		}
		if firstErr != nil {
			break
		}

		switch entry.Decision {
		case DecisionSkip:
			_ = op.RunStep(ctx, entry.Step.Name, func(context.Context) error { return nil })
			outcome.Results = append(outcome.Results, StepResult{
				Name:    entry.Step.Name,
				Status:  StepPending.Transition(StepSkipped),
				Message: entry.Reason,
			})
			slog.Info("step skipped", "step", entry.Step.Name, "reason", entry.Reason)

		case DecisionRun:
			slog.Info("step starting", "step", entry.Step.Name)
			var res StepResult
			_ = op.RunStep(ctx, entry.Step.Name, func(stepCtx context.Context) error {
				if rc.StepTimeout > 0 {
					var cancel context.CancelFunc
					stepCtx, cancel = context.WithTimeout(stepCtx, rc.StepTimeout)
					defer cancel()
				}
				res = ExecuteStep(stepCtx, rc, entry.Step, deps)
				return res.Err
			})

			switch {
			case errors.Is(res.Err, context.DeadlineExceeded):
				res.Message = fmt.Sprintf("timed out after %s", rc.StepTimeout)
			case errors.Is(res.Err, context.Canceled):
				res.Message = "interrupted"
			}
			outcome.Results = append(outcome.Results, res)

			if res.Status == StepFailed {
				firstErr = res.Err
				slog.Error("step failed", "step", res.Name, "error", res.Err)
			} else {
				slog.Info("step complete", "step", res.Name, "duration", res.Duration)
			}
		}
	}

	outcome.Finished = deps.Clock.Now()
	if firstErr != nil {
		outcome.Phase = phase.Transition(RunAborted)
	} else {
		outcome.Phase = phase.Transition(RunFinished)
	}
	op.End(firstErr)
	return outcome, firstErr
}

// emitPlan opens the run's root span carrying the plan. Telemetry trouble
// never blocks a run.
func emitPlan(ctx context.Context, plan Plan, deps Deps) *telemetry.Operation {
	if deps.Tracer == nil {
		return nil
	}
	var tplan telemetry.Plan
	for _, entry := range plan.Steps {
		tplan.Steps = append(tplan.Steps, telemetry.PlannedStep{
			ID:    entry.Step.Name,
			Title: entry.Step.Name,
		})
	}
	op, err := telemetry.EmitPlan(ctx, deps.Tracer, "pipeline.run", tplan)
	if err != nil {
		slog.Warn("telemetry disabled for this run", "error", err)
		return nil
	}
	return op
}

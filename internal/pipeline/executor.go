package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"snpflow/internal/check"
	"snpflow/internal/telemetry"
)

// ExecuteStep runs one step to completion: input pre-check, directory
// preparation, external commands, output verification, completion marker.
// The marker is written only after every declared output is confirmed
// present and non-empty; a cancelled or failed step leaves the record
// without the step so a later resume retries exactly it.
func ExecuteStep(ctx context.Context, rc RunContext, step StepDefinition, deps Deps) StepResult {
	check.Assert(deps.Runner != nil, "execute needs a command runner")
	check.Assert(deps.Probe != nil, "execute needs a filesystem probe")
	check.Assert(deps.Progress != nil, "execute needs a progress store")
	check.Assert(deps.Clock != nil, "execute needs a clock")

	started := deps.Clock.Now()
	status := StepPending.Transition(StepRunning)
	fail := func(err error) StepResult {
		return StepResult{
			Name:     step.Name,
			Status:   status.Transition(StepFailed),
			Duration: deps.Clock.Now().Sub(started),
			Message:  err.Error(),
			Err:      err,
		}
	}

	if err := verifyStepInputs(step, rc, deps); err != nil {
		return fail(err)
	}
	if err := prepareStepDirs(step, rc, deps); err != nil {
		return fail(fmt.Errorf("prepare directories: %w", err))
	}
	// Drop any previous completion marker before touching outputs, so a
	// crash mid-step cannot leave a marker for half-rewritten files.
	if err := deps.Progress.Clear(step.Name); err != nil {
		return fail(err)
	}

	groups := BuildInvocationGroups(step, rc)
	if err := runGroups(ctx, step, rc, groups, deps); err != nil {
		return fail(err)
	}

	if missing := missingOutputs(step, rc, deps); len(missing) > 0 {
		return fail(&OutputVerificationError{
			Step:    step.Name,
			Missing: missing,
			LogPath: stepLogDir(step, rc),
		})
	}

	if err := deps.Progress.MarkComplete(step.Name, deps.Clock.Now()); err != nil {
		return fail(fmt.Errorf("record completion: %w", err))
	}

	res := StepResult{
		Name:     step.Name,
		Status:   status.Transition(StepSucceeded),
		Duration: deps.Clock.Now().Sub(started),
	}
	if step.PerSample {
		res.Message = fmt.Sprintf("%d samples", len(groups))
	}
	return res
}

func verifyStepInputs(step StepDefinition, rc RunContext, deps Deps) error {
	for _, in := range ExpandInputs(step, rc) {
		if !deps.Probe.Exists(in.Path) {
			return &MissingInputError{Step: step.Name, Artifact: displayPath(rc, in.Path)}
		}
		if in.Class != ClassData {
			continue
		}
		size, err := deps.Probe.Size(in.Path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", in.Path, err)
		}
		if size == 0 {
			return &MissingInputError{Step: step.Name, Artifact: displayPath(rc, in.Path), Empty: true}
		}
	}
	return nil
}

// prepareStepDirs creates output parents, scratch dirs and the log dir.
// External tools are not trusted to mkdir their own destinations.
func prepareStepDirs(step StepDefinition, rc RunContext, deps Deps) error {
	seen := map[string]bool{}
	dirs := []string{stepLogDir(step, rc)}
	for _, out := range ExpandOutputs(step, rc) {
		dirs = append(dirs, filepath.Dir(out.Path))
	}
	dirs = append(dirs, workDirs(step, rc)...)

	for _, dir := range dirs {
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true
		if err := deps.Probe.MkdirAll(dir); err != nil {
			return err
		}
	}
	return nil
}

// runGroups executes the step's invocation groups: sequentially for cohort
// steps, bounded-parallel across samples for fan-out steps. The first error
// wins and the remaining groups are cancelled.
func runGroups(ctx context.Context, step StepDefinition, rc RunContext, groups []InvocationGroup, deps Deps) error {
	if !step.PerSample {
		check.Assertf(len(groups) == 1, "cohort step %s built %d groups", step.Name, len(groups))
		return runGroup(ctx, groups[0], deps)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rc.MaxParallelJobs)
	for _, grp := range groups {
		g.Go(func() error {
			return telemetry.Step(gctx, deps.Tracer, grp.ID(step.Name), func(sctx context.Context) error {
				return runGroup(sctx, grp, deps)
			})
		})
	}
	return g.Wait()
}

// runGroup runs one unit's commands in order, stopping at the first failure.
func runGroup(ctx context.Context, grp InvocationGroup, deps Deps) error {
	for _, inv := range grp.Invocations {
		if err := ctx.Err(); err != nil {
			return err
		}
		slog.Debug("running command",
			"step", inv.Step, "sample", inv.Sample, "command", inv.String())

		exit, err := deps.Runner.Run(ctx, inv)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("step %s: exec %s: %w", inv.Step, inv.Program, err)
		}
		if exit != 0 {
			// A kill on cancellation surfaces as a non-zero exit;
			// report the interrupt, not the exit code.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &ExternalCommandError{
				Step:     inv.Step,
				Sample:   inv.Sample,
				Program:  inv.Program,
				ExitCode: exit,
				LogPath:  inv.LogPath,
			}
		}
	}
	return nil
}

func missingOutputs(step StepDefinition, rc RunContext, deps Deps) []string {
	var missing []string
	for _, out := range ExpandOutputs(step, rc) {
		if !deps.Probe.Exists(out.Path) {
			missing = append(missing, displayPath(rc, out.Path))
			continue
		}
		if size, err := deps.Probe.Size(out.Path); err != nil || size == 0 {
			missing = append(missing, displayPath(rc, out.Path))
		}
	}
	return missing
}

func stepLogDir(step StepDefinition, rc RunContext) string {
	return filepath.Join(rc.OutputDir, "logs", step.Name)
}

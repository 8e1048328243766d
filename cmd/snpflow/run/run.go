package runcmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"snpflow/cmd/snpflow/cmdutil"
	"snpflow/cmd/snpflow/ui"
	"snpflow/internal/history"
	"snpflow/internal/pipeline"
)

// Cmd returns the "snpflow run" command.
func Cmd(flags *cmdutil.RootFlags) *cobra.Command {
	var sel cmdutil.Selector
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the SNP-calling pipeline",
		Long: `Run executes the pipeline steps in dependency order, fanning
per-sample steps out across samples. Completed steps are recorded under the
output directory and skipped on the next run unless --force is given.

Ctrl+C stops the current step, waits for its processes to exit and leaves
completed steps recorded, so a later run resumes where this one stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			proj, err := cmdutil.LoadProject(flags)
			if err != nil {
				return err
			}
			req, err := sel.Request()
			if err != nil {
				return err
			}

			out := ui.NewTelemetryOutput(ctx)
			defer out.Close()

			deps := proj.Deps(out.Tracer("snpflow"))
			plan, err := pipeline.BuildPlan(proj.Run, proj.Registry, req, deps)
			if err != nil {
				return err
			}
			if len(plan.Steps) == 0 {
				fmt.Println(ui.WarnMsg("selection matched no steps"))
				return nil
			}

			fmt.Print(ui.KeyValues("",
				ui.KV("Samples", fmt.Sprintf("%d in %s", len(proj.Samples), proj.Run.SamplesDir)),
				ui.KV("Output", proj.Run.OutputDir),
				ui.KV("Steps", stepSummary(plan)),
			))
			fmt.Println()

			outcome, runErr := pipeline.Run(ctx, proj.Run, plan, deps)

			// Flush the live checklist before printing the summary.
			out.Close()
			recordRun(req, len(proj.Samples), proj.Run.OutputDir, outcome)

			succeeded, skipped, failed, notAttempted := outcome.Counts()
			fmt.Println()
			fmt.Print(ui.KeyValues("",
				ui.KV("Succeeded", strconv.Itoa(succeeded)),
				ui.KV("Skipped", strconv.Itoa(skipped)),
				ui.KV("Failed", strconv.Itoa(failed)),
				ui.KV("Not attempted", strconv.Itoa(notAttempted)),
			))

			if runErr != nil {
				if res, ok := outcome.FirstFailure(); ok {
					fmt.Println(ui.Muted("step logs: " + filepath.Join(proj.Run.OutputDir, "logs", res.Name)))
				}
				return runErr
			}
			fmt.Println(ui.SuccessMsg("pipeline finished in %s", outcome.Duration().Round(time.Second)))
			return nil
		},
	}
	sel.Bind(cmd)
	return cmd
}

func stepSummary(plan pipeline.Plan) string {
	runnable := len(plan.Runnable())
	if skipped := len(plan.Steps) - runnable; skipped > 0 {
		return fmt.Sprintf("%d to run, %d already complete", runnable, skipped)
	}
	return fmt.Sprintf("%d to run", runnable)
}

// recordRun appends the outcome to the output directory's run ledger. The
// ledger is informational, so trouble writing it never fails the run.
func recordRun(req pipeline.PlanRequest, samples int, outputDir string, outcome pipeline.RunOutcome) {
	store, err := history.Open(history.DefaultPath(outputDir))
	if err != nil {
		slog.Warn("run ledger unavailable", "error", err)
		return
	}
	defer store.Close()

	if _, err := store.Record(history.FromOutcome(req, samples, outcome)); err != nil {
		slog.Warn("could not record run in ledger", "error", err)
	}
}

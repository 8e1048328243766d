package plancmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"snpflow/cmd/snpflow/cmdutil"
	"snpflow/cmd/snpflow/ui"
	"snpflow/internal/pipeline"
)

// Cmd returns the "snpflow plan" command.
func Cmd(flags *cmdutil.RootFlags) *cobra.Command {
	var sel cmdutil.Selector
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a run would do without executing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			proj, err := cmdutil.LoadProject(flags)
			if err != nil {
				return err
			}
			req, err := sel.Request()
			if err != nil {
				return err
			}

			plan, err := pipeline.BuildPlan(proj.Run, proj.Registry, req, proj.Deps(nil))
			if err != nil {
				return err
			}

			fmt.Print(ui.KeyValues("",
				ui.KV("Samples", fmt.Sprintf("%d in %s", len(proj.Samples), proj.Run.SamplesDir)),
				ui.KV("Output", proj.Run.OutputDir),
				ui.KV("Selection", plan.Mode.String()),
			))

			rows := make([][]string, 0, len(plan.Steps))
			for _, entry := range plan.Steps {
				decision := ui.Success("run")
				if entry.Decision == pipeline.DecisionSkip {
					decision = ui.Muted("skip")
				}
				rows = append(rows, []string{entry.Step.Name, decision, entry.Reason})
			}
			fmt.Println(ui.Table([]string{"STEP", "DECISION", "REASON"}, rows))

			if n := len(plan.Runnable()); n == 0 {
				fmt.Println(ui.SuccessMsg("nothing to do, all selected steps are complete"))
			} else {
				fmt.Println(ui.InfoMsg("%d of %d steps would run", n, len(plan.Steps)))
			}
			return nil
		},
	}
	sel.Bind(cmd)
	return cmd
}

package checkcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"snpflow/cmd/snpflow/cmdutil"
	"snpflow/cmd/snpflow/ui"
	"snpflow/internal/preflight"
)

// Cmd returns the "snpflow check" command.
func Cmd(flags *cmdutil.RootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check tools, inputs and host health before a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			proj, err := cmdutil.LoadProject(flags)
			if err != nil {
				return err
			}

			env := preflight.Env{
				Tools:      proj.Registry.Tools(),
				SamplesDir: proj.Run.SamplesDir,
				OutputDir:  proj.Run.OutputDir,
				Reference:  proj.Run.Reference,
			}

			var report preflight.Report
			err = ui.RunWithSpinner(ctx, "Checking environment", func(ctx context.Context) error {
				report = preflight.NewChecker().Run(ctx, env)
				return nil
			})
			if err != nil {
				return err
			}

			for _, res := range report.Results {
				switch res.Severity {
				case preflight.SeverityWarn:
					fmt.Println(ui.WarnMsg("%s", resultLine(res)))
				case preflight.SeverityFail:
					fmt.Println(ui.ErrorMsg("%s", resultLine(res)))
				default:
					fmt.Println(ui.SuccessMsg("%s", resultLine(res)))
				}
			}
			fmt.Println()

			if report.Failed() {
				return errors.New("environment is not ready, fix the failures above")
			}
			if n := report.Warnings(); n > 0 {
				fmt.Println(ui.WarnMsg("ready, with %s", plural(n, "warning")))
			} else {
				fmt.Println(ui.SuccessMsg("environment is ready"))
			}
			return nil
		},
	}
}

func resultLine(res preflight.Result) string {
	if res.Detail == "" {
		return res.Name
	}
	return res.Name + ": " + res.Detail
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

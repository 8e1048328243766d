package main

import (
	"fmt"
	"os"

	checkcmd "snpflow/cmd/snpflow/check"
	"snpflow/cmd/snpflow/cmdutil"
	historycmd "snpflow/cmd/snpflow/history"
	"snpflow/cmd/snpflow/initcmd"
	plancmd "snpflow/cmd/snpflow/plan"
	runcmd "snpflow/cmd/snpflow/run"
	simdatacmd "snpflow/cmd/snpflow/simdata"
	stepscmd "snpflow/cmd/snpflow/steps"
	"snpflow/cmd/snpflow/ui"
	"snpflow/internal/logging"
	"snpflow/internal/support/buildinfo"

	"github.com/spf13/cobra"
)

func main() {
	var flags cmdutil.RootFlags

	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "snpflow",
		Short:         "SNP-calling pipeline runner for resequencing cohorts",
		Version:       buildinfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ui.ConfigureInteraction(flags.Plain)

			level := logging.LevelWarn
			if flags.Debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
	}
	root.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&flags.Plain, "plain", false, "Plain output: no colors, no live redraw")
	root.PersistentFlags().StringVarP(&flags.Config, "config", "c", "", "Config file (default ./snpflow.yaml)")

	root.AddCommand(initcmd.Cmd())
	root.AddCommand(checkcmd.Cmd(&flags))
	root.AddCommand(plancmd.Cmd(&flags))
	root.AddCommand(runcmd.Cmd(&flags))
	root.AddCommand(stepscmd.Cmd())
	root.AddCommand(historycmd.Cmd(&flags))
	root.AddCommand(simdatacmd.Cmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

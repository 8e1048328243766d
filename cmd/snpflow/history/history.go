package historycmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"snpflow/cmd/snpflow/cmdutil"
	"snpflow/cmd/snpflow/ui"
	"snpflow/internal/history"
)

// Cmd returns the "snpflow history" command.
func Cmd(flags *cmdutil.RootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs recorded for this project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			proj, err := cmdutil.LoadProject(flags)
			if err != nil {
				return err
			}

			store, err := history.Open(history.DefaultPath(proj.Run.OutputDir))
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println(ui.Muted("no runs recorded yet"))
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					humanize.Time(e.Started),
					e.Mode,
					phase(e),
					stepCounts(e),
					strconv.Itoa(e.Samples),
					e.Duration().Round(time.Second).String(),
				})
			}
			fmt.Println(ui.Table([]string{"WHEN", "SELECTION", "RESULT", "STEPS", "SAMPLES", "DURATION"}, rows))

			for _, e := range entries {
				if e.FirstFailure != "" {
					fmt.Println(ui.ErrorMsg("%s: %s", humanize.Time(e.Started), e.FirstFailure))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Show at most this many runs (0 for all)")
	return cmd
}

func phase(e history.Entry) string {
	if e.Phase == "aborted" {
		return ui.Warn(e.Phase)
	}
	return ui.Success(e.Phase)
}

func stepCounts(e history.Entry) string {
	var parts []string
	if e.Succeeded > 0 {
		parts = append(parts, fmt.Sprintf("%d ok", e.Succeeded))
	}
	if e.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", e.Skipped))
	}
	if e.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", e.Failed))
	}
	if e.NotAttempted > 0 {
		parts = append(parts, fmt.Sprintf("%d not run", e.NotAttempted))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

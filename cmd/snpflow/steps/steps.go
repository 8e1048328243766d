package stepscmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"snpflow/cmd/snpflow/ui"
	"snpflow/internal/pipeline"
)

// Cmd returns the "snpflow steps" command.
func Cmd() *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the pipeline steps in execution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := pipeline.NewRegistry()

			rows := make([][]string, 0, len(reg.Steps()))
			for _, def := range reg.Steps() {
				rows = append(rows, []string{
					strconv.Itoa(def.Priority),
					def.Name,
					scope(def),
					strings.Join(def.Tools, ", "),
					produces(def),
				})
			}

			fmt.Println(ui.Table([]string{"#", "STEP", "SCOPE", "TOOLS", "PRODUCES"}, rows))
			fmt.Println(ui.Muted("Select steps with --step, --from and --to on `snpflow run`."))
			return nil
		},
	}
}

func scope(def pipeline.StepDefinition) string {
	if def.PerSample {
		return "per sample"
	}
	return "cohort"
}

func produces(def pipeline.StepDefinition) string {
	if len(def.Outputs) == 0 {
		return ""
	}
	first := def.Outputs[0].Path
	if rest := len(def.Outputs) - 1; rest > 0 {
		return fmt.Sprintf("%s (+%d more)", first, rest)
	}
	return first
}

package simdatacmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"snpflow/cmd/snpflow/ui"
	"snpflow/internal/simdata"
)

// Cmd returns the "snpflow testdata" command.
func Cmd() *cobra.Command {
	var (
		dir       string
		samples   int
		readPairs int
		chromLen  int
		seed      int64
	)

	cmd := &cobra.Command{
		Use:   "testdata",
		Short: "Write a small simulated dataset for trying the pipeline",
		Long: `Testdata writes a simulated reference genome and paired-end reads laid
out the way the starter config expects, so a project initialized with
"snpflow init" can run end to end without real sequencing data. The same
seed reproduces the same dataset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			layout, err := simdata.Generate(dir, simdata.Config{
				Seed:             seed,
				Samples:          samples,
				ReadPairs:        readPairs,
				ChromosomeLength: chromLen,
			})
			if err != nil {
				return err
			}

			fmt.Println(ui.SuccessMsg("simulated dataset ready"))
			fmt.Print(ui.KeyValues("  ",
				ui.KV("reference", layout.Reference),
				ui.KV("samples", layout.SamplesDir),
				ui.KV("names", strings.Join(layout.SampleNames, ", ")),
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Project directory to write into")
	cmd.Flags().IntVar(&samples, "samples", 0, "Number of samples (default 2)")
	cmd.Flags().IntVar(&readPairs, "read-pairs", 0, "Read pairs per sample (default 500)")
	cmd.Flags().IntVar(&chromLen, "chrom-length", 0, "Bases per simulated chromosome (default 20000)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed")
	return cmd
}

package initcmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"snpflow/cmd/snpflow/ui"
	"snpflow/config"
)

// Cmd returns the "snpflow init" command.
func Cmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter snpflow.yaml into a project directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create project dir: %w", err)
			}

			path := filepath.Join(dir, config.FileName)
			if _, err := os.Stat(path); err == nil {
				if !force {
					return fmt.Errorf("%s already exists (pass --force to overwrite)", path)
				}
				if err := os.Remove(path); err != nil {
					return fmt.Errorf("replace config: %w", err)
				}
			}
			if err := config.WriteStarter(path); err != nil {
				return err
			}

			fmt.Println(ui.SuccessMsg("wrote %s", ui.Accent(path)))
			fmt.Print(ui.KeyValues("  ",
				ui.KV("edit", path),
				ui.KV("verify", "snpflow check"),
				ui.KV("run", "snpflow run"),
			))
			fmt.Println(ui.Muted("  no sequencing data yet? `snpflow testdata` writes a small simulated dataset"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	return cmd
}

package cmd

import (
	"os"
	"path/filepath"

	"hpcbench/internal/job"
	"hpcbench/internal/matrix"

	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render [sweep]",
	Short: "Render the batch scripts of a sweep without submitting them",
	Long: `Render every job of a sweep into an sbatch script.

Scripts are printed to stdout, or written as <label>.sbatch files when --out is given.

Example:
  benchctl render strong
  benchctl render compare --out ./scripts`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		env, err := setup(cmd)
		if err != nil {
			return err
		}
		defer env.close(cmd.Context())

		spec, err := env.sweep(args[0])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return nil
		}
		seq, err := matrix.Generate(spec)
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return nil
		}

		if out != "" {
			if err := os.MkdirAll(out, 0o755); err != nil {
				cmd.Printf("Failed to create %s: %v\n", out, err)
				return nil
			}
		}

		n := 0
		for d := range seq {
			if err := d.Validate(); err != nil {
				cmd.Printf("Skipping %s: %v\n", d.Name(), err)
				continue
			}
			script := job.Render(d)

			if out == "" {
				if n > 0 {
					cmd.Println()
				}
				cmd.Printf("# %s\n%s", d.Name(), script)
				n++
				continue
			}

			path := filepath.Join(out, d.Name()+".sbatch")
			if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
				cmd.Printf("Failed to write %s: %v\n", path, err)
				return nil
			}
			n++
		}

		if out != "" {
			cmd.Printf("Wrote %d scripts to %s\n", n, out)
		}
		env.log.Debug("rendered sweep", "sweep", spec.Name, "scripts", n, "out", out)
		return nil
	},
}

func init() {
	renderCmd.Flags().StringP("out", "o", "", "Directory to write .sbatch files to")
	rootCmd.AddCommand(renderCmd)
}

package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"hpcbench/internal/matrix"
	"hpcbench/internal/sweepfile"

	"github.com/spf13/cobra"
)

var sweepsCmd = &cobra.Command{
	Use:   "sweeps",
	Short: "List the available sweeps",
	Long:  `List the sweeps defined by the sweep file (or the built-in sweeps) with their kind, variants and number of runs.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd)
		if err != nil {
			return err
		}
		defer env.close(cmd.Context())

		file, err := sweepfile.Load(env.cfg.SweepFile)
		if err != nil {
			cmd.Printf("Failed to load sweeps: %v\n", err)
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "SWEEP\tKIND\tRUNS\tVARIANTS")
		for _, spec := range file.Sweeps {
			runs := 0
			if seq, err := matrix.Generate(spec); err == nil {
				runs = matrix.Count(seq)
			}
			names := make([]string, 0, len(spec.Variants))
			for _, v := range spec.Variants {
				names = append(names, v.Name)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", spec.Name, spec.Kind, runs, strings.Join(names, ","))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sweepsCmd)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/phylomc/internal/character"
)

var simulateOut string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate an alignment on the starting tree under the configured model",
	Long: `simulate draws one alignment with as many sites as the analysis data,
evolving states down the starting tree with the starting parameter values.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, rc, a, err := loadAnalysis()
		if err != nil {
			return err
		}
		aln := a.Engine.Redraw(rc.RNG)
		if aln == a.Alignment {
			return fmt.Errorf("simulation failed")
		}

		out := cmd.OutOrStdout()
		if simulateOut != "" {
			f, err := os.Create(simulateOut)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return character.WriteFASTA(out, aln)
	},
}

func init() {
	simulateCmd.Flags().StringVarP(&simulateOut, "out", "o", "", "Write the FASTA alignment here instead of stdout")
}

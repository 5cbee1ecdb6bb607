package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IntervalMedia/ReDyned/internal/macho"
	"github.com/IntervalMedia/ReDyned/internal/typerec"
)

type typeOutput struct {
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	EstimatedSize uint64  `json:"estimated_size"`
	Address       uint64  `json:"address,omitempty"`
	Confidence    float64 `json:"confidence"`
	Source        string  `json:"source"`
}

var typesCmd = &cobra.Command{
	Use:   "types [file]",
	Short: "Reconstruct type records from symbol names",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := openImage(cmd, args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		deep, _ := cmd.Flags().GetBool("strings")
		syms := macho.ParseSymbols(img)
		var types []typerec.Type
		if deep {
			types = typerec.ReconstructWithStrings(syms, img.Bytes())
		} else {
			types = typerec.Reconstruct(syms)
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			out := make([]typeOutput, 0, len(types))
			for _, t := range types {
				out = append(out, typeOutput{
					Name:          t.Name,
					Category:      t.Category.String(),
					EstimatedSize: t.EstimatedSize,
					Address:       t.Address,
					Confidence:    t.Confidence,
					Source:        t.Source.String(),
				})
			}
			return printJSON(out)
		}

		for _, t := range types {
			fmt.Printf("%-9s %-40s size=%-4d conf=%.2f %s\n",
				t.Category, t.Name, t.EstimatedSize, t.Confidence, t.Source)
		}
		return nil
	},
}

func init() {
	typesCmd.Flags().Bool("strings", false, "Also scan raw strings for type definitions")
	rootCmd.AddCommand(typesCmd)
}

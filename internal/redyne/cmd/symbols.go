package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IntervalMedia/ReDyned/internal/macho"
)

type symbolOutput struct {
	Address   uint64 `json:"address"`
	Name      string `json:"name"`
	Demangled string `json:"demangled,omitempty"`
	Kind      string `json:"kind"`
	External  bool   `json:"external"`
	Defined   bool   `json:"defined"`
	Size      uint64 `json:"size,omitempty"`
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols [file]",
	Short: "List symbol table entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := openImage(cmd, args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		funcsOnly, _ := cmd.Flags().GetBool("functions")
		syms := macho.ParseSymbols(img)
		if funcsOnly {
			syms = macho.FunctionSymbols(syms)
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			out := make([]symbolOutput, 0, len(syms))
			for _, s := range syms {
				o := symbolOutput{
					Address:  s.Address,
					Name:     s.Name,
					Kind:     s.Kind.String(),
					External: s.External,
					Defined:  s.Defined,
					Size:     s.Size,
				}
				if s.DisplayName != s.Name {
					o.Demangled = s.DisplayName
				}
				out = append(out, o)
			}
			return printJSON(out)
		}

		for _, s := range syms {
			marker := " "
			if s.External {
				marker = "E"
			}
			fmt.Printf("%012x %s %-9s %s\n", s.Address, marker, s.Kind, s.DisplayName)
		}
		return nil
	},
}

func init() {
	symbolsCmd.Flags().BoolP("functions", "F", false, "Only defined function symbols")
	rootCmd.AddCommand(symbolsCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IntervalMedia/ReDyned/internal/analysis"
)

type edgeOutput struct {
	From int    `json:"from"`
	To   int    `json:"to"`
	Kind string `json:"kind"`
}

type blockOutput struct {
	Index int    `json:"index"`
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

type functionOutput struct {
	Name         string        `json:"name"`
	StartAddress uint64        `json:"start_address"`
	EndAddress   uint64        `json:"end_address"`
	Instructions int           `json:"instructions"`
	FromSymbol   bool          `json:"from_symbol"`
	Blocks       []blockOutput `json:"blocks,omitempty"`
	Edges        []edgeOutput  `json:"edges,omitempty"`
}

var functionsCmd = &cobra.Command{
	Use:   "functions [file]",
	Short: "Reconstruct functions and control-flow graphs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := openImage(cmd, args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		fns, err := reconstruct(cmd.Context(), img)
		if err != nil {
			return err
		}

		showCFG, _ := cmd.Flags().GetBool("cfg")

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			out := make([]functionOutput, 0, len(fns))
			for _, fn := range fns {
				o := functionOutput{
					Name:         fn.Name,
					StartAddress: fn.StartAddress,
					EndAddress:   fn.EndAddress,
					Instructions: fn.InstructionCount(),
					FromSymbol:   fn.FromSymbol,
				}
				if showCFG && fn.Graph != nil {
					for _, b := range fn.Graph.Blocks {
						o.Blocks = append(o.Blocks, blockOutput{Index: b.Index, Start: b.Start, End: b.End})
					}
					for _, e := range fn.Graph.Edges {
						o.Edges = append(o.Edges, edgeOutput{From: e.From, To: e.To, Kind: e.Kind.String()})
					}
				}
				out = append(out, o)
			}
			return printJSON(out)
		}

		for _, fn := range fns {
			fmt.Printf("%012x-%012x  %4d insns  %s\n",
				fn.StartAddress, fn.EndAddress, fn.InstructionCount(), fn.Name)
			if showCFG && fn.Graph != nil {
				printCFG(fn.Graph)
			}
		}
		return nil
	},
}

func printCFG(g *analysis.CFG) {
	for _, b := range g.Blocks {
		fmt.Printf("    block %d: %012x-%012x (%d insns)\n",
			b.Index, b.Start, b.End, len(b.Instructions))
	}
	for _, e := range g.Edges {
		fmt.Printf("    edge %d -> %d (%s)\n", e.From, e.To, e.Kind)
	}
}

func init() {
	functionsCmd.Flags().Bool("cfg", false, "Include basic blocks and edges")
	rootCmd.AddCommand(functionsCmd)
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/IntervalMedia/ReDyned/internal/names"
)

var importNamesCmd = &cobra.Command{
	Use:   "import-names [file] [overrides.json]",
	Short: "Apply function name overrides from a JSON document",
	Long: `Apply function name overrides from a JSON document of the form
{"Functions": [{"Address": 4096, "Name": "main"}]}. An override whose
address matches an existing function start renames it; any other address
inserts a zero-length stub. A malformed document applies nothing.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := openImage(cmd, args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read overrides: %w", err)
		}

		fns, err := reconstruct(cmd.Context(), img)
		if err != nil {
			return err
		}

		fns, err = names.Import(fns, data)
		if err != nil {
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			out := make([]functionOutput, 0, len(fns))
			for _, fn := range fns {
				out = append(out, functionOutput{
					Name:         fn.Name,
					StartAddress: fn.StartAddress,
					EndAddress:   fn.EndAddress,
					Instructions: fn.InstructionCount(),
					FromSymbol:   fn.FromSymbol,
				})
			}
			return printJSON(out)
		}

		for _, fn := range fns {
			fmt.Printf("%012x  %s\n", fn.StartAddress, fn.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importNamesCmd)
}

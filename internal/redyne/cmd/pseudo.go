package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IntervalMedia/ReDyned/internal/analysis"
	"github.com/IntervalMedia/ReDyned/internal/pseudo"
	"github.com/IntervalMedia/ReDyned/internal/ui/colorize"
)

var pseudoCmd = &cobra.Command{
	Use:   "pseudo [file]",
	Short: "Generate C-like pseudocode for reconstructed functions",
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

		filter, _ := cmd.Flags().GetString("func")
		if filter != "" && !hasFunction(fns, filter) {
			return fmt.Errorf("no function named %q", filter)
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			out := make(map[string]string, len(fns))
			for _, fn := range fns {
				if filter != "" && fn.Name != filter {
					continue
				}
				out[fn.Name] = pseudo.Render(fn)
			}
			return printJSON(out)
		}

		for _, fn := range fns {
			if filter != "" && fn.Name != filter {
				continue
			}
			fmt.Print(colorize.Pseudocode(pseudo.Render(fn)))
			fmt.Println()
		}
		return nil
	},
}

func hasFunction(fns []*analysis.Function, name string) bool {
	for _, fn := range fns {
		if fn.Name == name {
			return true
		}
	}
	return false
}

func init() {
	pseudoCmd.Flags().String("func", "", "Only render the named function")
	rootCmd.AddCommand(pseudoCmd)
}

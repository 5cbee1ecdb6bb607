package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IntervalMedia/ReDyned/internal/analysis"
)

var stringsCmd = &cobra.Command{
	Use:   "strings [file]",
	Short: "Extract printable strings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := openImage(cmd, args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		minLen, _ := cmd.Flags().GetInt("min-len")
		results := analysis.ExtractStrings(img, minLen)

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return printJSON(results)
		}

		for _, r := range results {
			fmt.Printf("%012x  %s\n", r.Address, r.Value)
		}
		return nil
	},
}

func init() {
	stringsCmd.Flags().Int("min-len", 4, "Minimum string length")
	rootCmd.AddCommand(stringsCmd)
}

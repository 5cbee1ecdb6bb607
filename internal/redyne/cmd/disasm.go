package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IntervalMedia/ReDyned/internal/disasm"
	"github.com/IntervalMedia/ReDyned/internal/ui/colorize"
)

type instructionOutput struct {
	Address  uint64 `json:"address"`
	Bytes    string `json:"bytes"`
	Mnemonic string `json:"mnemonic"`
	Operands string `json:"operands,omitempty"`
	Category string `json:"category"`
	Target   uint64 `json:"target,omitempty"`
}

var disasmCmd = &cobra.Command{
	Use:   "disasm [file]",
	Short: "Disassemble the __text section",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := openImage(cmd, args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		instrs, err := decodeText(cmd.Context(), img)
		if err != nil {
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			out := make([]instructionOutput, 0, len(instrs))
			for _, in := range instrs {
				o := instructionOutput{
					Address:  in.Address,
					Bytes:    fmt.Sprintf("%x", in.Bytes),
					Mnemonic: in.Mnemonic,
					Operands: in.Operands,
					Category: in.Category.String(),
				}
				if in.Branch != nil && in.Branch.HasTarget {
					o.Target = in.Branch.Target
				}
				out = append(out, o)
			}
			return printJSON(out)
		}

		for _, in := range instrs {
			line := formatInstruction(in)
			fmt.Println(colorize.InstructionLine(line))
		}
		return nil
	},
}

// formatInstruction renders one listing line: address, mnemonic, operands,
// and start/end markers as trailing comments.
func formatInstruction(in disasm.Instruction) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%012x  %s", in.Address, in.Text())
	switch {
	case in.IsFunctionStart:
		pad(&sb, 50)
		sb.WriteString("; function start")
	case in.IsFunctionEnd:
		pad(&sb, 50)
		sb.WriteString("; function end")
	}
	return sb.String()
}

func pad(sb *strings.Builder, to int) {
	for sb.Len() < to {
		sb.WriteByte(' ')
	}
}

func init() {
	rootCmd.AddCommand(disasmCmd)
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// infoOutput is the JSON shape of the info command.
type infoOutput struct {
	Path             string   `json:"path"`
	Arch             string   `json:"arch"`
	FileType         uint32   `json:"file_type"`
	NCmds            uint32   `json:"ncmds"`
	Flags            uint32   `json:"flags"`
	UUID             string   `json:"uuid,omitempty"`
	HasEntryPoint    bool     `json:"has_entry_point"`
	EntryOffset      uint64   `json:"entry_offset,omitempty"`
	HasCodeSignature bool     `json:"has_code_signature"`
	Dylibs           []string `json:"dylibs,omitempty"`
	FatSlices        int      `json:"fat_slices,omitempty"`
}

var infoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Print Mach-O header and load command summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := openImage(cmd, args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		out := infoOutput{
			Path:             img.Path,
			Arch:             img.Header.CPUName(),
			FileType:         img.Header.FileType,
			NCmds:            img.Header.NCmds,
			Flags:            img.Header.Flags,
			UUID:             img.UUID,
			HasEntryPoint:    img.HasEntryPoint,
			EntryOffset:      img.EntryOffset,
			HasCodeSignature: img.HasCodeSignature,
			Dylibs:           img.Dylibs,
			FatSlices:        len(img.FatArches),
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return printJSON(out)
		}

		fmt.Printf("Path:           %s\n", out.Path)
		fmt.Printf("Arch:           %s\n", out.Arch)
		fmt.Printf("File type:      0x%x\n", out.FileType)
		fmt.Printf("Load commands:  %d\n", out.NCmds)
		fmt.Printf("Flags:          0x%08x\n", out.Flags)
		if out.UUID != "" {
			fmt.Printf("UUID:           %s\n", out.UUID)
		}
		fmt.Printf("Entry point:    %v", out.HasEntryPoint)
		if out.HasEntryPoint {
			fmt.Printf(" (offset 0x%x)", out.EntryOffset)
		}
		fmt.Println()
		fmt.Printf("Code signature: %v\n", out.HasCodeSignature)
		if out.FatSlices > 0 {
			fmt.Printf("Fat slices:     %d\n", out.FatSlices)
		}
		for _, d := range out.Dylibs {
			fmt.Printf("Dylib:          %s\n", d)
		}
		return nil
	},
}

// printJSON emits any command output structure as indented JSON.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

type segmentOutput struct {
	Name     string `json:"name"`
	Addr     uint64 `json:"addr"`
	VMSize   uint64 `json:"vmsize"`
	Offset   uint64 `json:"offset"`
	FileSize uint64 `json:"filesize"`
	NSects   uint32 `json:"nsects"`
}

type sectionOutput struct {
	Segment string `json:"segment"`
	Name    string `json:"name"`
	Addr    uint64 `json:"addr"`
	Size    uint64 `json:"size"`
	Offset  uint32 `json:"offset"`
	Flags   uint32 `json:"flags"`
}

var segmentsCmd = &cobra.Command{
	Use:   "segments [file]",
	Short: "List segments and sections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := openImage(cmd, args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			out := struct {
				Segments []segmentOutput `json:"segments"`
				Sections []sectionOutput `json:"sections"`
			}{}
			for _, seg := range img.Segments {
				out.Segments = append(out.Segments, segmentOutput{
					Name: seg.Name, Addr: seg.Addr, VMSize: seg.VMSize,
					Offset: seg.Offset, FileSize: seg.FileSize, NSects: seg.NSects,
				})
			}
			for _, sec := range img.Sections {
				out.Sections = append(out.Sections, sectionOutput{
					Segment: sec.Segment, Name: sec.Name, Addr: sec.Addr,
					Size: sec.Size, Offset: sec.Offset, Flags: sec.Flags,
				})
			}
			return printJSON(out)
		}

		for _, seg := range img.Segments {
			fmt.Printf("%-16s addr=0x%012x vmsize=0x%x fileoff=0x%x filesize=0x%x\n",
				seg.Name, seg.Addr, seg.VMSize, seg.Offset, seg.FileSize)
			for _, sec := range img.Sections {
				if sec.Segment != seg.Name {
					continue
				}
				fmt.Printf("  %-16s addr=0x%012x size=0x%x off=0x%x flags=0x%08x\n",
					sec.Name, sec.Addr, sec.Size, sec.Offset, sec.Flags)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(segmentsCmd)
}

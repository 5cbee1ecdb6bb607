// Package cmd implements the redyne command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	pathpkg "path/filepath"
	"runtime/pprof"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/IntervalMedia/ReDyned/internal/analysis"
	"github.com/IntervalMedia/ReDyned/internal/disasm"
	"github.com/IntervalMedia/ReDyned/internal/disasm/arm64"
	"github.com/IntervalMedia/ReDyned/internal/disasm/x86"
	"github.com/IntervalMedia/ReDyned/internal/macho"
	"github.com/IntervalMedia/ReDyned/internal/redyne/log"
)

var rootCmd = &cobra.Command{
	Use:   "redyne [file]",
	Short: "Mach-O binary analysis toolkit",
	Long: `Redyne analyzes Mach-O binaries: container structure, symbol tables,
ARM64 and x86_64 disassembly, function and control-flow reconstruction,
Objective-C class dumps, and C-like pseudocode.`,
	Example: `
# Print a pipeline summary for a binary
redyne /path/to/binary

# Disassemble the __text section
redyne disasm /path/to/binary
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cpuprofile, _ := cmd.Flags().GetString("cpuprofile")
		if cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %v", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %v", err)
			}
			defer pprof.StopCPUProfile()
		}

		memprofile, _ := cmd.Flags().GetString("memprofile")
		if memprofile != "" {
			defer func() {
				f, err := os.Create(memprofile)
				if err != nil {
					fmt.Fprintf(os.Stderr, "could not create memory profile: %v\n", err)
					return
				}
				defer f.Close()
				if err := pprof.WriteHeapProfile(f); err != nil {
					fmt.Fprintf(os.Stderr, "could not write memory profile: %v\n", err)
				}
			}()
		}

		img, err := openImage(cmd, args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		return runSummary(cmd, img)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output results as JSON")
	rootCmd.PersistentFlags().String("arch", "", "Slice to select from a fat binary (arm64, x86_64)")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")
	rootCmd.Flags().String("memprofile", "", "Write memory profile to file")
}

// openImage resolves the path and opens the requested slice.
func openImage(cmd *cobra.Command, file string) (*macho.Image, error) {
	absPath, err := pathpkg.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %v", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", file)
		}
		return nil, fmt.Errorf("cannot access file: %v", err)
	}

	arch, _ := cmd.Flags().GetString("arch")
	want := uint32(0)
	switch arch {
	case "":
	case "arm64":
		want = macho.CPUTypeARM64
	case "x86_64":
		want = macho.CPUTypeX86_64
	default:
		return nil, fmt.Errorf("unknown arch %q (want arm64 or x86_64)", arch)
	}

	img, err := macho.OpenArch(absPath, want)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file, err)
	}
	return img, nil
}

// decoderFor picks the backend matching the image architecture.
func decoderFor(img *macho.Image) (disasm.Decoder, error) {
	opts := disasm.DefaultOptions()
	switch img.Header.CPUType {
	case macho.CPUTypeARM64:
		return arm64.New(opts), nil
	case macho.CPUTypeX86_64:
		return x86.New(opts), nil
	default:
		return nil, macho.ErrUnsupportedArch
	}
}

// decodeText disassembles the whole __text section.
func decodeText(ctx context.Context, img *macho.Image) ([]disasm.Instruction, error) {
	sec, err := img.TextSection()
	if err != nil {
		return nil, err
	}
	code, err := img.SectionBytes(sec)
	if err != nil {
		return nil, err
	}
	dec, err := decoderFor(img)
	if err != nil {
		return nil, err
	}
	return disasm.DecodeRange(ctx, dec, code, sec.Addr)
}

// reconstruct runs the decode and function-recovery stages.
func reconstruct(ctx context.Context, img *macho.Image) ([]*analysis.Function, error) {
	instrs, err := decodeText(ctx, img)
	if err != nil {
		return nil, err
	}
	fns := analysis.ReconstructFunctions(instrs, macho.ParseSymbols(img))
	for _, fn := range fns {
		fn.Graph = analysis.BuildCFG(fn)
	}
	return fns, nil
}

func runSummary(cmd *cobra.Command, img *macho.Image) error {
	syms := macho.ParseSymbols(img)
	fns, err := reconstruct(cmd.Context(), img)
	if err != nil && !errors.Is(err, macho.ErrSectionNotFound) {
		// A binary without __text still yields header/segment/symbol data.
		return err
	}

	fmt.Printf("File:      %s\n", img.Path)
	fmt.Printf("Arch:      %s\n", img.Header.CPUName())
	fmt.Printf("Segments:  %d\n", len(img.Segments))
	fmt.Printf("Sections:  %d\n", len(img.Sections))
	fmt.Printf("Symbols:   %d\n", len(syms))
	fmt.Printf("Functions: %d\n", len(fns))
	if img.UUID != "" {
		fmt.Printf("UUID:      %s\n", img.UUID)
	}
	return nil
}

func Execute() {
	debugMode := false
	for _, arg := range os.Args[1:] {
		if arg == "--debug" || arg == "-d" {
			debugMode = true
			break
		}
	}
	log.Setup(debugMode)

	// Bypass fang's markdown rendering when output is being piped, and
	// disable colors so piped listings stay plain text.
	if !term.IsTerminal(os.Stdout.Fd()) {
		os.Setenv("REDYNE_NO_COLOR", "1")
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

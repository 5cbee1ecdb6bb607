// Package disasm defines the decoded-instruction model shared by the
// architecture decoders and the driver that walks a code range. Decoding is a
// pure function of (bytes, address): the same input window at the same
// address always yields the same record, and every decode advances — unknown
// encodings become literal-data fallback records instead of errors.
package disasm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCancelled is returned by DecodeRange when the context is cancelled
// mid-stream. The partial instruction list decoded so far is still returned.
var ErrCancelled = errors.New("disasm: cancelled")

// Category buckets instructions for downstream consumers (CFG construction,
// pseudocode templates, syntax coloring).
type Category int

const (
	CatUnknown Category = iota
	CatBranch
	CatCall
	CatReturn
	CatLoad
	CatStore
	CatArithmetic
	CatLogical
	CatMove
	CatCompare
	CatSystem
	CatSIMD
	CatNop
)

func (c Category) String() string {
	switch c {
	case CatBranch:
		return "branch"
	case CatCall:
		return "call"
	case CatReturn:
		return "return"
	case CatLoad:
		return "load"
	case CatStore:
		return "store"
	case CatArithmetic:
		return "arithmetic"
	case CatLogical:
		return "logical"
	case CatMove:
		return "move"
	case CatCompare:
		return "compare"
	case CatSystem:
		return "system"
	case CatSIMD:
		return "simd"
	case CatNop:
		return "nop"
	default:
		return "unknown"
	}
}

// BranchKind classifies control transfers for edge typing.
type BranchKind int

const (
	BranchNone BranchKind = iota
	BranchUnconditional
	BranchConditional
	BranchCall
	BranchReturn
	BranchIndirect
)

// Branch carries control-transfer facts for an instruction. Target is only
// meaningful when HasTarget is set; indirect branches and returns transfer
// control without a statically known target.
type Branch struct {
	Kind      BranchKind
	Target    uint64
	HasTarget bool
	Condition string // condition mnemonic suffix, e.g. "EQ", empty if none
}

// Instruction is one decoded instruction record. All fields are value data;
// downstream stages never mutate records they did not produce.
type Instruction struct {
	Address  uint64
	Bytes    []byte
	Length   int
	Mnemonic string
	Operands string
	Category Category
	Branch   *Branch

	// Register usage masks: bit n set means register n (X0..X30 on ARM64,
	// RAX..R15 on x86_64) is read or written. Bit 31 is the stack pointer.
	RegsRead    uint64
	RegsWritten uint64
	WritesFlags bool

	// Prologue/epilogue marks set by the decoder heuristics.
	IsFunctionStart bool
	IsFunctionEnd   bool
}

// RegSP is the stack pointer bit in the register masks.
const RegSP = 31

// RegBit returns the mask bit for register number n.
func RegBit(n int) uint64 {
	if n < 0 || n > 31 {
		return 0
	}
	return 1 << uint(n)
}

// Text renders the canonical "mnemonic operands" form.
func (in Instruction) Text() string {
	if in.Operands == "" {
		return in.Mnemonic
	}
	return in.Mnemonic + " " + in.Operands
}

// IsBranch reports whether the instruction transfers control, including
// calls and returns.
func (in Instruction) IsBranch() bool {
	return in.Branch != nil && in.Branch.Kind != BranchNone
}

// Options tunes decoder heuristics. Prologue and epilogue detection toggle
// independently; with both off the decoder still produces full instruction
// records, only the function-boundary marks are suppressed.
type Options struct {
	DetectPrologue bool
	DetectEpilogue bool
}

// DefaultOptions enables all heuristics.
func DefaultOptions() Options {
	return Options{DetectPrologue: true, DetectEpilogue: true}
}

// Decoder decodes a single instruction from the front of a byte window.
// Implementations never fail: an unmatched encoding yields a literal-data
// record with a positive length so the stream keeps advancing.
type Decoder interface {
	Decode(code []byte, addr uint64) Instruction
}

// RegNames formats a register mask using the supplied register namer.
func RegNames(mask uint64, name func(int) string) string {
	if mask == 0 {
		return ""
	}
	var parts []string
	for i := 0; i <= 31; i++ {
		if mask&(1<<uint(i)) != 0 {
			parts = append(parts, name(i))
		}
	}
	return strings.Join(parts, ",")
}

// FindByAddress locates the instruction starting at addr in a list sorted by
// address, as produced by DecodeRange.
func FindByAddress(instrs []Instruction, addr uint64) (Instruction, bool) {
	i := sort.Search(len(instrs), func(k int) bool { return instrs[k].Address >= addr })
	if i < len(instrs) && instrs[i].Address == addr {
		return instrs[i], true
	}
	return Instruction{}, false
}

// Summary returns a short diagnostic line for logging.
func (in Instruction) Summary() string {
	return fmt.Sprintf("%#x: %s", in.Address, in.Text())
}

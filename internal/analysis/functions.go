// Package analysis reconstructs functions and control-flow graphs from a
// decoded instruction stream, using decoder prologue/epilogue marks and
// symbol-table anchors. All inputs and outputs are immutable value lists:
// functions reference their instruction range by slice, never by copy.
package analysis

import (
	"fmt"

	"github.com/IntervalMedia/ReDyned/internal/disasm"
	"github.com/IntervalMedia/ReDyned/internal/logging"
	"github.com/IntervalMedia/ReDyned/internal/macho"
)

// Function is one reconstructed function range. EndAddress is the address of
// the last instruction, not one past it.
type Function struct {
	Name         string
	StartAddress uint64
	EndAddress   uint64
	Instructions []disasm.Instruction
	FromSymbol   bool

	// Graph is populated by BuildCFG; nil until then.
	Graph *CFG
}

// InstructionCount returns the number of instructions owned by the function.
func (f *Function) InstructionCount() int { return len(f.Instructions) }

// ReconstructFunctions groups a decoded instruction stream into functions.
// The walk is a two-state machine: a transition into a function happens at a
// decoder-flagged prologue or at a symbol address known to be a function; the
// function closes at a flagged epilogue/return, or immediately before the
// next function-start trigger. Unnamed functions get a sub_<hex> name.
func ReconstructFunctions(instrs []disasm.Instruction, syms []macho.Symbol) []*Function {
	anchors := make(map[uint64]macho.Symbol)
	for _, s := range macho.FunctionSymbols(syms) {
		anchors[s.Address] = s
	}

	var fns []*Function
	inside := false
	startIdx := 0

	open := func(i int) {
		inside = true
		startIdx = i
	}
	closeAt := func(endIdx int) {
		if !inside || endIdx < startIdx {
			inside = false
			return
		}
		start := instrs[startIdx].Address
		fn := &Function{
			StartAddress: start,
			EndAddress:   instrs[endIdx].Address,
			Instructions: instrs[startIdx : endIdx+1],
		}
		if sym, ok := anchors[start]; ok {
			fn.Name = displayName(sym)
			fn.FromSymbol = true
		} else {
			fn.Name = fmt.Sprintf("sub_%x", start)
		}
		fns = append(fns, fn)
		inside = false
	}

	for i := range instrs {
		in := &instrs[i]
		_, atSymbol := anchors[in.Address]
		trigger := in.IsFunctionStart || atSymbol

		if trigger {
			if inside && i > startIdx {
				closeAt(i - 1)
			}
			if !inside {
				open(i)
			}
		}
		if inside && in.IsFunctionEnd {
			closeAt(i)
		}
	}
	closeAt(len(instrs) - 1)

	if logging.IsDebug() {
		lg := logging.NewLogger()
		lg.Debug("reconstructed functions",
			"count", len(fns),
			"anchors", len(anchors),
			"instructions", len(instrs))
	}
	return fns
}

func displayName(sym macho.Symbol) string {
	if sym.DisplayName != "" {
		return sym.DisplayName
	}
	if sym.Name != "" {
		return sym.Name
	}
	return fmt.Sprintf("sub_%x", sym.Address)
}

// FunctionAt returns the function whose range contains addr.
func FunctionAt(fns []*Function, addr uint64) (*Function, bool) {
	for _, f := range fns {
		if addr >= f.StartAddress && addr <= f.EndAddress {
			return f, true
		}
	}
	return nil, false
}

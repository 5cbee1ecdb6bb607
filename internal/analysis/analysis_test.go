package analysis

import (
	"testing"

	"github.com/IntervalMedia/ReDyned/internal/disasm"
	"github.com/IntervalMedia/ReDyned/internal/macho"
)

func inst(addr uint64, mnem string, cat disasm.Category) disasm.Instruction {
	return disasm.Instruction{
		Address:  addr,
		Length:   4,
		Mnemonic: mnem,
		Category: cat,
	}
}

func prologue(addr uint64) disasm.Instruction {
	in := inst(addr, "STP", disasm.CatStore)
	in.Operands = "X29, X30, [SP, #-16]!"
	in.IsFunctionStart = true
	return in
}

func ret(addr uint64) disasm.Instruction {
	in := inst(addr, "RET", disasm.CatReturn)
	in.Branch = &disasm.Branch{Kind: disasm.BranchReturn}
	in.IsFunctionEnd = true
	return in
}

func condBranch(addr, target uint64, cond string) disasm.Instruction {
	in := inst(addr, "B."+cond, disasm.CatBranch)
	in.Branch = &disasm.Branch{
		Kind:      disasm.BranchConditional,
		Target:    target,
		HasTarget: true,
		Condition: cond,
	}
	return in
}

func funcSym(name string, addr uint64) macho.Symbol {
	return macho.Symbol{
		Name:        name,
		DisplayName: name,
		Address:     addr,
		Kind:        macho.SymbolFunction,
		Defined:     true,
		External:    true,
	}
}

func TestReconstructSingleFunction(t *testing.T) {
	instrs := []disasm.Instruction{
		prologue(0x100),
		ret(0x104),
	}
	fns := ReconstructFunctions(instrs, nil)
	if len(fns) != 1 {
		t.Fatalf("got %d functions, want 1", len(fns))
	}
	fn := fns[0]
	if fn.StartAddress != 0x100 || fn.EndAddress != 0x104 {
		t.Errorf("range = [%#x, %#x], want [0x100, 0x104]", fn.StartAddress, fn.EndAddress)
	}
	if fn.InstructionCount() != 2 {
		t.Errorf("instruction count = %d, want 2", fn.InstructionCount())
	}
	if fn.Name != "sub_100" {
		t.Errorf("name = %q, want sub_100", fn.Name)
	}
	if fn.FromSymbol {
		t.Error("no symbol anchored this function")
	}
}

func TestReconstructSymbolNaming(t *testing.T) {
	instrs := []disasm.Instruction{
		prologue(0x100),
		ret(0x104),
		prologue(0x108),
		ret(0x10c),
	}
	syms := []macho.Symbol{funcSym("_main", 0x100)}
	fns := ReconstructFunctions(instrs, syms)
	if len(fns) != 2 {
		t.Fatalf("got %d functions, want 2", len(fns))
	}
	if fns[0].Name != "_main" || !fns[0].FromSymbol {
		t.Errorf("first function = %q (fromSymbol=%v), want _main", fns[0].Name, fns[0].FromSymbol)
	}
	if fns[1].Name != "sub_108" || fns[1].FromSymbol {
		t.Errorf("second function = %q (fromSymbol=%v), want sub_108", fns[1].Name, fns[1].FromSymbol)
	}
}

func TestReconstructSymbolAnchorWithoutPrologue(t *testing.T) {
	// A leaf function with no stack frame still opens at its symbol address.
	instrs := []disasm.Instruction{
		inst(0x100, "ADD", disasm.CatArithmetic),
		ret(0x104),
	}
	fns := ReconstructFunctions(instrs, []macho.Symbol{funcSym("_leaf", 0x100)})
	if len(fns) != 1 {
		t.Fatalf("got %d functions, want 1", len(fns))
	}
	if fns[0].Name != "_leaf" || fns[0].StartAddress != 0x100 {
		t.Errorf("got %q at %#x", fns[0].Name, fns[0].StartAddress)
	}
}

func TestReconstructSplitAtNextStart(t *testing.T) {
	// No epilogue before the next prologue: the open function must close on
	// the instruction before the new start.
	instrs := []disasm.Instruction{
		prologue(0x100),
		inst(0x104, "ADD", disasm.CatArithmetic),
		prologue(0x108),
		ret(0x10c),
	}
	fns := ReconstructFunctions(instrs, nil)
	if len(fns) != 2 {
		t.Fatalf("got %d functions, want 2", len(fns))
	}
	if fns[0].EndAddress != 0x104 {
		t.Errorf("first function ends at %#x, want 0x104", fns[0].EndAddress)
	}
	if fns[1].StartAddress != 0x108 || fns[1].EndAddress != 0x10c {
		t.Errorf("second function = [%#x, %#x]", fns[1].StartAddress, fns[1].EndAddress)
	}
}

func TestReconstructTrailingOpenFunction(t *testing.T) {
	// Stream ends mid-function: the tail still becomes a function.
	instrs := []disasm.Instruction{
		prologue(0x100),
		inst(0x104, "ADD", disasm.CatArithmetic),
	}
	fns := ReconstructFunctions(instrs, nil)
	if len(fns) != 1 {
		t.Fatalf("got %d functions, want 1", len(fns))
	}
	if fns[0].EndAddress != 0x104 {
		t.Errorf("ends at %#x, want 0x104", fns[0].EndAddress)
	}
}

func TestFunctionAt(t *testing.T) {
	fns := []*Function{
		{Name: "a", StartAddress: 0x100, EndAddress: 0x104},
		{Name: "b", StartAddress: 0x108, EndAddress: 0x110},
	}
	if f, ok := FunctionAt(fns, 0x104); !ok || f.Name != "a" {
		t.Errorf("FunctionAt(0x104) = %v, %v", f, ok)
	}
	if f, ok := FunctionAt(fns, 0x108); !ok || f.Name != "b" {
		t.Errorf("FunctionAt(0x108) = %v, %v", f, ok)
	}
	if _, ok := FunctionAt(fns, 0x106); ok {
		t.Error("FunctionAt(0x106) matched a gap address")
	}
}

func TestBuildCFGStraightLine(t *testing.T) {
	fn := &Function{
		StartAddress: 0x100,
		EndAddress:   0x108,
		Instructions: []disasm.Instruction{
			prologue(0x100),
			inst(0x104, "ADD", disasm.CatArithmetic),
			ret(0x108),
		},
	}
	g := BuildCFG(fn)
	if len(g.Blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(g.Blocks))
	}
	if len(g.Edges) != 0 {
		t.Errorf("got %d edges, want 0", len(g.Edges))
	}
	if g.Blocks[0].Start != 0x100 || g.Blocks[0].End != 0x108 {
		t.Errorf("block = [%#x, %#x]", g.Blocks[0].Start, g.Blocks[0].End)
	}
	if fn.Graph != g {
		t.Error("graph not attached to function")
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBuildCFGConditional(t *testing.T) {
	fn := &Function{
		StartAddress: 0x200,
		EndAddress:   0x208,
		Instructions: []disasm.Instruction{
			inst(0x200, "CMP", disasm.CatCompare),
			condBranch(0x204, 0x208, "EQ"),
			ret(0x208),
		},
	}
	g := BuildCFG(fn)
	if len(g.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(g.Blocks))
	}
	if g.Blocks[0].Start != 0x200 || g.Blocks[0].End != 0x204 {
		t.Errorf("block 0 = [%#x, %#x]", g.Blocks[0].Start, g.Blocks[0].End)
	}
	if g.Blocks[1].Start != 0x208 {
		t.Errorf("block 1 starts at %#x", g.Blocks[1].Start)
	}
	if len(g.Edges) != 2 {
		t.Fatalf("got %d edges, want 2: %+v", len(g.Edges), g.Edges)
	}
	var sawTrue, sawFalse bool
	for _, e := range g.Edges {
		if e.From != 0 || e.To != 1 {
			t.Errorf("edge %d->%d, want 0->1", e.From, e.To)
		}
		switch e.Kind {
		case EdgeTrueBranch:
			sawTrue = true
		case EdgeFalseBranch:
			sawFalse = true
		}
	}
	if !sawTrue || !sawFalse {
		t.Errorf("edge kinds: true=%v false=%v", sawTrue, sawFalse)
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBuildCFGLoop(t *testing.T) {
	// Unconditional back-branch to the entry.
	b := inst(0x104, "B", disasm.CatBranch)
	b.Branch = &disasm.Branch{Kind: disasm.BranchUnconditional, Target: 0x100, HasTarget: true}
	fn := &Function{
		StartAddress: 0x100,
		EndAddress:   0x104,
		Instructions: []disasm.Instruction{
			inst(0x100, "ADD", disasm.CatArithmetic),
			b,
		},
	}
	g := BuildCFG(fn)
	if len(g.Blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(g.Blocks))
	}
	if len(g.Edges) != 1 || g.Edges[0] != (Edge{From: 0, To: 0, Kind: EdgeNormal}) {
		t.Errorf("edges = %+v, want one 0->0 normal edge", g.Edges)
	}
}

func TestBuildCFGCallDoesNotDivert(t *testing.T) {
	call := inst(0x104, "BL", disasm.CatCall)
	call.Branch = &disasm.Branch{Kind: disasm.BranchCall, Target: 0x4000, HasTarget: true}
	fn := &Function{
		StartAddress: 0x100,
		EndAddress:   0x108,
		Instructions: []disasm.Instruction{
			prologue(0x100),
			call,
			ret(0x108),
		},
	}
	g := BuildCFG(fn)
	if len(g.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(g.Blocks))
	}
	if len(g.Edges) != 1 {
		t.Fatalf("got %d edges, want 1: %+v", len(g.Edges), g.Edges)
	}
	e := g.Edges[0]
	if e.From != 0 || e.To != 1 || e.Kind != EdgeNormal {
		t.Errorf("edge = %+v, want 0->1 normal", e)
	}
}

func TestBuildCFGIndirectBranchHasNoEdge(t *testing.T) {
	br := inst(0x104, "BR", disasm.CatBranch)
	br.Branch = &disasm.Branch{Kind: disasm.BranchIndirect}
	fn := &Function{
		StartAddress: 0x100,
		EndAddress:   0x108,
		Instructions: []disasm.Instruction{
			inst(0x100, "ADD", disasm.CatArithmetic),
			br,
			ret(0x108),
		},
	}
	g := BuildCFG(fn)
	if len(g.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(g.Blocks))
	}
	for _, e := range g.Edges {
		if e.From == 0 {
			t.Errorf("indirect branch produced edge %+v", e)
		}
	}
}

func TestValidateRejectsBadEdge(t *testing.T) {
	g := &CFG{
		Blocks: []BasicBlock{{Index: 0, Instructions: []disasm.Instruction{inst(0x100, "NOP", disasm.CatNop)}}},
		Edges:  []Edge{{From: 0, To: 3}},
	}
	if err := g.Validate(); err == nil {
		t.Error("edge to nonexistent block passed validation")
	}
}

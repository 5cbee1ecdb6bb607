package pseudo

import (
	"strings"
	"testing"

	"github.com/IntervalMedia/ReDyned/internal/analysis"
	"github.com/IntervalMedia/ReDyned/internal/disasm"
)

func inst(addr uint64, mnem, ops string) disasm.Instruction {
	return disasm.Instruction{Address: addr, Length: 4, Mnemonic: mnem, Operands: ops}
}

func TestRenderInstructionTemplates(t *testing.T) {
	tests := []struct {
		name string
		in   disasm.Instruction
		want string
	}{
		{"return", disasm.Instruction{Mnemonic: "RET"}, "return;"},
		{
			"call with target",
			disasm.Instruction{
				Mnemonic: "BL", Operands: "0x4000",
				Branch: &disasm.Branch{Kind: disasm.BranchCall, Target: 0x4000, HasTarget: true},
			},
			"sub_4000();",
		},
		{
			"indirect call",
			disasm.Instruction{
				Mnemonic: "BLR", Operands: "X8",
				Branch: &disasm.Branch{Kind: disasm.BranchCall},
			},
			"(X8)();",
		},
		{
			"conditional branch",
			disasm.Instruction{
				Mnemonic: "B.EQ", Operands: "0x208",
				Branch: &disasm.Branch{Kind: disasm.BranchConditional, Target: 0x208, HasTarget: true, Condition: "EQ"},
			},
			"if (EQ) goto loc_208;",
		},
		{
			"unconditional branch",
			disasm.Instruction{
				Mnemonic: "B", Operands: "0x100",
				Branch: &disasm.Branch{Kind: disasm.BranchUnconditional, Target: 0x100, HasTarget: true},
			},
			"goto loc_100;",
		},
		{
			"indirect branch",
			disasm.Instruction{
				Mnemonic: "BR", Operands: "X16",
				Branch: &disasm.Branch{Kind: disasm.BranchIndirect},
			},
			"goto X16;",
		},
		{"compare", inst(0, "CMP", "X0, #1"), "compare(X0, #1);"},
		{"test", inst(0, "TST", "X0, X1"), "test(X0, X1);"},
		{"x86 test", inst(0, "TEST", "eax, eax"), "test(eax, eax);"},
		{"mov", inst(0, "MOV", "X0, X1"), "X0 = X1;"},
		{"mov imm", inst(0, "MOVZ", "X0, #0x10"), "X0 = #0x10;"},
		{"adrp", inst(0, "ADRP", "X1, 0x5000"), "X1 = 0x5000;"},
		{"load", inst(0, "LDR", "X0, [X1, #16]"), "X0 = *(X1 + 16);"},
		{"store", inst(0, "STR", "X0, [SP, #8]"), "*(SP + 8) = X0;"},
		{"unscaled load", inst(0, "LDUR", "X0, [X1, #-4]"), "X0 = *(X1 + -4);"},
		{"add 3op", inst(0, "ADD", "X0, X1, X2"), "X0 = X1 + X2;"},
		{"sub 3op imm", inst(0, "SUB", "SP, SP, #32"), "SP = SP - #32;"},
		{"x86 add 2op", inst(0, "ADD", "eax, ecx"), "eax += ecx;"},
		{"xor 2op", inst(0, "XOR", "eax, eax"), "eax ^= eax;"},
		{"shift", inst(0, "LSL", "X0, X1, X2"), "X0 = X1 << X2;"},
		{"no template", inst(0, "MRS", "X0, S3_3_c13_c0_2"), "// MRS X0, S3_3_c13_c0_2"},
		{"nop comment", disasm.Instruction{Mnemonic: "NOP"}, "// NOP"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderInstruction(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderFunction(t *testing.T) {
	ret := inst(0x208, "RET", "")
	ret.Branch = &disasm.Branch{Kind: disasm.BranchReturn}
	beq := inst(0x204, "B.EQ", "0x208")
	beq.Branch = &disasm.Branch{Kind: disasm.BranchConditional, Target: 0x208, HasTarget: true, Condition: "EQ"}

	fn := &analysis.Function{
		Name:         "check",
		StartAddress: 0x200,
		EndAddress:   0x208,
		Instructions: []disasm.Instruction{
			inst(0x200, "CMP", "X0, #1"),
			beq,
			ret,
		},
	}
	analysis.BuildCFG(fn)

	out := Render(fn)
	if !strings.HasPrefix(out, "void check(void) {\n") {
		t.Errorf("missing signature:\n%s", out)
	}
	if !strings.HasSuffix(out, "}\n") {
		t.Errorf("missing closing brace:\n%s", out)
	}
	for _, want := range []string{
		"    compare(X0, #1);\n",
		"    if (EQ) goto loc_208;\n",
		"loc_208:\n",
		"    return;\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "loc_200:") {
		t.Errorf("entry block must not get a label:\n%s", out)
	}
}

func TestRenderEveryInstructionYieldsALine(t *testing.T) {
	fn := &analysis.Function{
		Name:         "sub_100",
		StartAddress: 0x100,
		EndAddress:   0x10c,
		Instructions: []disasm.Instruction{
			inst(0x100, "STP", "X29, X30, [SP, #-16]!"),
			inst(0x104, "SIMD", "..."),
			inst(0x108, ".word", "0xDEADBEEF"),
			inst(0x10c, "RET", ""),
		},
	}
	out := Render(fn)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	// Signature + one line per instruction + closing brace.
	if len(lines) != len(fn.Instructions)+2 {
		t.Errorf("got %d lines, want %d:\n%s", len(lines), len(fn.Instructions)+2, out)
	}
	if !strings.Contains(out, "// SIMD ...") {
		t.Errorf("unmapped instruction not echoed as comment:\n%s", out)
	}
}

func TestSplitOperandsRespectsBrackets(t *testing.T) {
	got := splitOperands("X29, X30, [SP, #-16]!")
	if len(got) != 3 || got[2] != "[SP, #-16]!" {
		t.Errorf("got %q", got)
	}
	if got := splitOperands(""); got != nil {
		t.Errorf("empty operands: got %q", got)
	}
}

func TestDerefOperand(t *testing.T) {
	tests := []struct{ in, want string }{
		{"[X1, #16]", "(X1 + 16)"},
		{"[rbp-0x10]", "(rbp-0x10)"},
		{"[rip+0x10]", "(rip+0x10)"},
	}
	for _, tt := range tests {
		if got := derefOperand(tt.in); got != tt.want {
			t.Errorf("derefOperand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package arm64

import (
	"context"
	"encoding/binary"
	"reflect"
	"strings"
	"testing"

	"github.com/IntervalMedia/ReDyned/internal/disasm"
)

func word(w uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, w)
	return b
}

func decodeOne(t *testing.T, w uint32, addr uint64) disasm.Instruction {
	t.Helper()
	in := New(disasm.DefaultOptions()).Decode(word(w), addr)
	if in.Length != 4 {
		t.Fatalf("decode %#08x: length = %d, want 4", w, in.Length)
	}
	return in
}

func TestDecodeBranches(t *testing.T) {
	tests := []struct {
		name     string
		w        uint32
		addr     uint64
		mnemonic string
		kind     disasm.BranchKind
		target   uint64
		cond     string
	}{
		{"B forward", 0x14000004, 0x1000, "B", disasm.BranchUnconditional, 0x1010, ""},
		{"BL forward", 0x94000004, 0x1000, "BL", disasm.BranchCall, 0x1010, ""},
		{"B backward", 0x17FFFFFF, 0x1000, "B", disasm.BranchUnconditional, 0xFFC, ""},
		{"B.EQ", 0x54000020, 0x200, "B.EQ", disasm.BranchConditional, 0x204, "EQ"},
		{"B.NE", 0x54000041, 0x200, "B.NE", disasm.BranchConditional, 0x208, "NE"},
		{"CBZ", 0xB4000040, 0x100, "CBZ", disasm.BranchConditional, 0x108, "EQ"},
		{"CBNZ", 0xB5000040, 0x100, "CBNZ", disasm.BranchConditional, 0x108, "NE"},
		{"TBZ", 0x36000041, 0x100, "TBZ", disasm.BranchConditional, 0x108, "EQ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := decodeOne(t, tt.w, tt.addr)
			if in.Mnemonic != tt.mnemonic {
				t.Errorf("mnemonic = %q, want %q", in.Mnemonic, tt.mnemonic)
			}
			if in.Branch == nil {
				t.Fatal("no branch record")
			}
			if in.Branch.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", in.Branch.Kind, tt.kind)
			}
			if !in.Branch.HasTarget || in.Branch.Target != tt.target {
				t.Errorf("target = %#x (has=%v), want %#x", in.Branch.Target, in.Branch.HasTarget, tt.target)
			}
			if in.Branch.Condition != tt.cond {
				t.Errorf("condition = %q, want %q", in.Branch.Condition, tt.cond)
			}
		})
	}
}

func TestDecodeReturn(t *testing.T) {
	in := decodeOne(t, 0xD65F03C0, 0x1000) // RET
	if in.Mnemonic != "RET" || in.Category != disasm.CatReturn {
		t.Errorf("RET decoded as %q %v", in.Mnemonic, in.Category)
	}
	if !in.IsFunctionEnd {
		t.Error("RET must mark function end")
	}
	if in.Branch == nil || in.Branch.Kind != disasm.BranchReturn || in.Branch.HasTarget {
		t.Errorf("branch = %+v", in.Branch)
	}
}

func TestDecodePrologue(t *testing.T) {
	// STP X29, X30, [SP, #-16]!
	in := decodeOne(t, 0xA9BF7BFD, 0x100)
	if in.Mnemonic != "STP" {
		t.Fatalf("mnemonic = %q", in.Mnemonic)
	}
	if in.Operands != "X29, X30, [SP, #-16]!" {
		t.Errorf("operands = %q", in.Operands)
	}
	if !in.IsFunctionStart {
		t.Error("negative pre-index STP of X29/X30 must mark function start")
	}

	// Same encoding with heuristics off keeps the decode but drops the mark.
	plain := New(disasm.Options{}).Decode(word(0xA9BF7BFD), 0x100)
	if plain.IsFunctionStart {
		t.Error("prologue mark set with DetectPrologue off")
	}
	if plain.Mnemonic != "STP" || plain.Operands != in.Operands {
		t.Errorf("decode changed with heuristics off: %q %q", plain.Mnemonic, plain.Operands)
	}
}

func TestDecodeEpilogue(t *testing.T) {
	// LDP X29, X30, [SP], #16
	in := decodeOne(t, 0xA8C17BFD, 0x100)
	if in.Mnemonic != "LDP" {
		t.Fatalf("mnemonic = %q (operands %q)", in.Mnemonic, in.Operands)
	}
	if !in.IsFunctionEnd {
		t.Error("LDP of X29/X30 must mark function end with heuristics on")
	}
	plain := New(disasm.Options{DetectPrologue: true}).Decode(word(0xA8C17BFD), 0x100)
	if plain.IsFunctionEnd {
		t.Error("epilogue mark set with DetectEpilogue off")
	}
}

func TestMovAlias(t *testing.T) {
	// ORR X3, XZR, X5 is canonicalized to MOV X3, X5.
	in := decodeOne(t, 0xAA0503E3, 0)
	if in.Mnemonic != "MOV" {
		t.Fatalf("mnemonic = %q, want MOV", in.Mnemonic)
	}
	if in.Operands != "X3, X5" {
		t.Errorf("operands = %q, want \"X3, X5\"", in.Operands)
	}
	if in.Category != disasm.CatMove {
		t.Errorf("category = %v", in.Category)
	}
}

func TestADRPPageAligned(t *testing.T) {
	// ADRP X1, with immhi=1 immlo=0: one page forward.
	in := decodeOne(t, 0x90000021, 0x1234)
	if in.Mnemonic != "ADRP" {
		t.Fatalf("mnemonic = %q", in.Mnemonic)
	}
	if in.Operands != "X1, 0x5000" {
		t.Errorf("operands = %q, want page-aligned target 0x5000", in.Operands)
	}
}

func TestZeroWordIsPadding(t *testing.T) {
	in := decodeOne(t, 0, 0x100)
	if in.Mnemonic != ".word" {
		t.Errorf("all-zero word decoded as %q, want .word", in.Mnemonic)
	}
	if in.Operands != "0x00000000" {
		t.Errorf("operands = %q", in.Operands)
	}
}

func TestShortWindow(t *testing.T) {
	in := New(disasm.DefaultOptions()).Decode([]byte{0xFD, 0x7B}, 0)
	if in.Mnemonic != ".byte" || in.Length != 2 {
		t.Errorf("short window decoded as %q length %d", in.Mnemonic, in.Length)
	}
}

func TestLoadStoreImmediateScaling(t *testing.T) {
	// LDR X0, [X1, #16]: size=3, imm12=2, scaled by 8.
	w := uint32(0xF9400000) | (2 << 10) | (1 << 5) | 0
	in := decodeOne(t, w, 0)
	if in.Mnemonic != "LDR" {
		t.Fatalf("mnemonic = %q", in.Mnemonic)
	}
	if in.Operands != "X0, [X1, #16]" {
		t.Errorf("operands = %q, want \"X0, [X1, #16]\"", in.Operands)
	}
	if in.Category != disasm.CatLoad {
		t.Errorf("category = %v", in.Category)
	}
}

func TestCompare(t *testing.T) {
	// CMP X0, #1 == SUBS XZR, X0, #1
	w := uint32(0xF100001F) | (1 << 10)
	in := decodeOne(t, w, 0)
	if in.Mnemonic != "CMP" {
		t.Fatalf("mnemonic = %q (operands %q)", in.Mnemonic, in.Operands)
	}
	if !in.WritesFlags {
		t.Error("CMP must write flags")
	}
}

func TestDeterminism(t *testing.T) {
	words := []uint32{0xA9BF7BFD, 0xD65F03C0, 0x94000004, 0xAA0503E3, 0x12345678, 0}
	dec := New(disasm.DefaultOptions())
	for _, w := range words {
		a := dec.Decode(word(w), 0x4000)
		b := dec.Decode(word(w), 0x4000)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("decode of %#08x not deterministic: %+v vs %+v", w, a, b)
		}
	}
}

func TestDecodeRangeFixedWidth(t *testing.T) {
	var code []byte
	for _, w := range []uint32{0xA9BF7BFD, 0xAA0503E3, 0xD65F03C0, 0xDEADBEEF} {
		code = append(code, word(w)...)
	}
	instrs, err := disasm.DecodeRange(context.Background(), New(disasm.DefaultOptions()), code, 0x100)
	if err != nil {
		t.Fatalf("DecodeRange: %v", err)
	}
	if len(instrs) != 4 {
		t.Fatalf("got %d instructions, want 4", len(instrs))
	}
	for i, in := range instrs {
		if in.Length != 4 {
			t.Errorf("instr %d length = %d, want 4", i, in.Length)
		}
		if want := uint64(0x100 + 4*i); in.Address != want {
			t.Errorf("instr %d address = %#x, want %#x", i, in.Address, want)
		}
		if in.Mnemonic == "" {
			t.Errorf("instr %d has empty mnemonic", i)
		}
	}
}

func TestRegAndCondNames(t *testing.T) {
	if got := RegName(31, true); got != "SP" {
		t.Errorf("RegName(31, 64) = %q", got)
	}
	if got := RegName(31, false); got != "WSP" {
		t.Errorf("RegName(31, 32) = %q", got)
	}
	if got := RegName(0, false); got != "W0" {
		t.Errorf("RegName(0, 32) = %q", got)
	}
	if got := CondName(0); got != "EQ" {
		t.Errorf("CondName(0) = %q", got)
	}
	if got := FormatRegMask(disasm.RegBit(0)|disasm.RegBit(30), true); !strings.Contains(got, "X0") || !strings.Contains(got, "X30") {
		t.Errorf("FormatRegMask = %q", got)
	}
}

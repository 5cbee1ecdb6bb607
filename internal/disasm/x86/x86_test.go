package x86

import (
	"strings"
	"testing"

	"github.com/IntervalMedia/ReDyned/internal/disasm"
)

func decodeOne(t *testing.T, code []byte, addr uint64) disasm.Instruction {
	t.Helper()
	in := New(disasm.DefaultOptions()).Decode(code, addr)
	if in.Length < 1 || in.Length > MaxInstLen {
		t.Fatalf("decode % x: length = %d out of range", code, in.Length)
	}
	return in
}

func TestDecodeSimple(t *testing.T) {
	tests := []struct {
		name     string
		code     []byte
		mnemonic string
		operands string
		length   int
		category disasm.Category
	}{
		{"push rbp", []byte{0x55}, "PUSH", "rbp", 1, disasm.CatStore},
		{"push r12", []byte{0x41, 0x54}, "PUSH", "r12", 2, disasm.CatStore},
		{"pop rbp", []byte{0x5D}, "POP", "rbp", 1, disasm.CatLoad},
		{"nop", []byte{0x90}, "NOP", "", 1, disasm.CatNop},
		{"int3", []byte{0xCC}, "INT3", "", 1, disasm.CatSystem},
		{"leave", []byte{0xC9}, "LEAVE", "", 1, disasm.CatSystem},
		{"mov eax imm32", []byte{0xB8, 0x78, 0x56, 0x34, 0x12}, "MOV", "eax, 0x12345678", 5, disasm.CatMove},
		{"mov rax imm64", []byte{0x48, 0xB8, 1, 0, 0, 0, 0, 0, 0, 0}, "MOV", "rax, 0x1", 10, disasm.CatMove},
		{"mov rbp rsp", []byte{0x48, 0x89, 0xE5}, "MOV", "rbp, rsp", 3, disasm.CatMove},
		{"add eax ecx", []byte{0x01, 0xC8}, "ADD", "eax, ecx", 2, disasm.CatArithmetic},
		{"cmp rax imm8", []byte{0x83, 0xF8, 0x05}, "CMP", "rax, 0x5", 3, disasm.CatCompare},
		{"test eax eax", []byte{0x85, 0xC0}, "TEST", "eax, eax", 2, disasm.CatCompare},
		{"syscall", []byte{0x0F, 0x05}, "SYSCALL", "", 2, disasm.CatSystem},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := decodeOne(t, tt.code, 0x1000)
			if in.Mnemonic != tt.mnemonic {
				t.Errorf("mnemonic = %q, want %q", in.Mnemonic, tt.mnemonic)
			}
			if in.Operands != tt.operands {
				t.Errorf("operands = %q, want %q", in.Operands, tt.operands)
			}
			if in.Length != tt.length {
				t.Errorf("length = %d, want %d", in.Length, tt.length)
			}
			if in.Category != tt.category {
				t.Errorf("category = %v, want %v", in.Category, tt.category)
			}
		})
	}
}

func TestDecodeBranches(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		addr   uint64
		mnem   string
		kind   disasm.BranchKind
		target uint64
		cond   string
	}{
		{"call rel32", []byte{0xE8, 0x10, 0x00, 0x00, 0x00}, 0x1000, "CALL", disasm.BranchCall, 0x1015, ""},
		{"jmp rel32 back", []byte{0xE9, 0xFB, 0xFF, 0xFF, 0xFF}, 0x1000, "JMP", disasm.BranchUnconditional, 0x1000, ""},
		{"jmp rel8", []byte{0xEB, 0x0E}, 0x1000, "JMP", disasm.BranchUnconditional, 0x1010, ""},
		{"je rel8", []byte{0x74, 0x06}, 0x200, "JE", disasm.BranchConditional, 0x208, "E"},
		{"jne rel8", []byte{0x75, 0x06}, 0x200, "JNE", disasm.BranchConditional, 0x208, "NE"},
		{"jnz rel32", []byte{0x0F, 0x85, 0x00, 0x01, 0x00, 0x00}, 0x100, "JNZ", disasm.BranchConditional, 0x206, "NZ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := decodeOne(t, tt.code, tt.addr)
			if in.Mnemonic != tt.mnem {
				t.Errorf("mnemonic = %q, want %q", in.Mnemonic, tt.mnem)
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
			if in.Length != len(tt.code) {
				t.Errorf("length = %d, want %d", in.Length, len(tt.code))
			}
		})
	}
}

func TestDecodeReturn(t *testing.T) {
	in := decodeOne(t, []byte{0xC3}, 0x100)
	if in.Mnemonic != "RET" || in.Category != disasm.CatReturn {
		t.Errorf("RET decoded as %q %v", in.Mnemonic, in.Category)
	}
	if !in.IsFunctionEnd {
		t.Error("RET must mark function end")
	}
	if in.Branch == nil || in.Branch.Kind != disasm.BranchReturn || in.Branch.HasTarget {
		t.Errorf("branch = %+v", in.Branch)
	}

	// RET imm16 pops the caller's argument bytes but still returns.
	imm := decodeOne(t, []byte{0xC2, 0x08, 0x00}, 0x100)
	if imm.Mnemonic != "RET" || imm.Operands != "0x8" || imm.Length != 3 || !imm.IsFunctionEnd {
		t.Errorf("RET imm16 decoded as %q %q length %d", imm.Mnemonic, imm.Operands, imm.Length)
	}
}

func TestPrologueMark(t *testing.T) {
	in := decodeOne(t, []byte{0x55}, 0x100)
	if !in.IsFunctionStart {
		t.Error("PUSH rbp must mark function start with heuristics on")
	}
	plain := New(disasm.Options{}).Decode([]byte{0x55}, 0x100)
	if plain.IsFunctionStart {
		t.Error("prologue mark set with DetectPrologue off")
	}
	if plain.Mnemonic != "PUSH" || plain.Operands != "rbp" {
		t.Errorf("decode changed with heuristics off: %q %q", plain.Mnemonic, plain.Operands)
	}
}

func TestIndirectCallAndJump(t *testing.T) {
	call := decodeOne(t, []byte{0xFF, 0xD0}, 0x100) // CALL rax
	if call.Mnemonic != "CALL" || call.Operands != "rax" {
		t.Fatalf("decoded %q %q", call.Mnemonic, call.Operands)
	}
	if call.Branch == nil || call.Branch.Kind != disasm.BranchCall || call.Branch.HasTarget {
		t.Errorf("branch = %+v", call.Branch)
	}

	jmp := decodeOne(t, []byte{0xFF, 0xE1}, 0x100) // JMP rcx
	if jmp.Mnemonic != "JMP" || jmp.Operands != "rcx" {
		t.Fatalf("decoded %q %q", jmp.Mnemonic, jmp.Operands)
	}
	if jmp.Branch == nil || jmp.Branch.Kind != disasm.BranchIndirect {
		t.Errorf("branch = %+v", jmp.Branch)
	}
}

func TestMemoryOperands(t *testing.T) {
	// MOV eax, [rsp+0x8]: ModR/M with SIB and disp8.
	in := decodeOne(t, []byte{0x8B, 0x44, 0x24, 0x08}, 0x100)
	if in.Mnemonic != "MOV" || in.Operands != "eax, [rsp+0x8]" {
		t.Errorf("decoded %q %q", in.Mnemonic, in.Operands)
	}
	if in.Length != 4 {
		t.Errorf("length = %d, want 4", in.Length)
	}
	if in.Category != disasm.CatLoad {
		t.Errorf("category = %v, want load", in.Category)
	}

	// LEA rax, [rip+0x10]: RIP-relative with disp32.
	lea := decodeOne(t, []byte{0x48, 0x8D, 0x05, 0x10, 0x00, 0x00, 0x00}, 0x100)
	if lea.Mnemonic != "LEA" || lea.Operands != "rax, [rip+0x10]" {
		t.Errorf("decoded %q %q", lea.Mnemonic, lea.Operands)
	}
	if lea.Length != 7 {
		t.Errorf("length = %d, want 7", lea.Length)
	}

	// MOV [rbp-0x4], edi: store with negative disp8.
	st := decodeOne(t, []byte{0x89, 0x7D, 0xFC}, 0x100)
	if st.Mnemonic != "MOV" || st.Operands != "[rbp-0x4], edi" {
		t.Errorf("decoded %q %q", st.Mnemonic, st.Operands)
	}
	if st.Category != disasm.CatStore {
		t.Errorf("category = %v, want store", st.Category)
	}
}

func TestUnknownByteAdvances(t *testing.T) {
	// 0x06 is invalid in 64-bit mode; the decoder must still emit a record.
	in := New(disasm.DefaultOptions()).Decode([]byte{0x06}, 0x100)
	if in.Mnemonic != ".byte" || in.Length != 1 {
		t.Errorf("invalid opcode decoded as %q length %d", in.Mnemonic, in.Length)
	}

	empty := New(disasm.DefaultOptions()).Decode(nil, 0x100)
	if empty.Length != 1 || empty.Mnemonic != ".byte" {
		t.Errorf("empty window decoded as %q length %d", empty.Mnemonic, empty.Length)
	}
}

func TestLengthNeverExceedsWindow(t *testing.T) {
	// A truncated CALL cannot claim bytes past the window.
	in := New(disasm.DefaultOptions()).Decode([]byte{0xE8, 0x10}, 0x100)
	if in.Length > 2 {
		t.Errorf("length = %d exceeds 2-byte window", in.Length)
	}
	if in.Length < 1 {
		t.Errorf("length = %d, must advance", in.Length)
	}
}

func TestRegNames(t *testing.T) {
	if got := RegName(5, true); got != "rbp" {
		t.Errorf("RegName(5, 64) = %q", got)
	}
	if got := RegName(13, false); got != "r13d" {
		t.Errorf("RegName(13, 32) = %q", got)
	}
	got := FormatRegMask(disasm.RegBit(0)|disasm.RegBit(4), true)
	if !strings.Contains(got, "rax") || !strings.Contains(got, "rsp") {
		t.Errorf("FormatRegMask = %q", got)
	}
}

// Package x86 decodes x86_64 instructions into the shared instruction model.
// Lengths are variable: an optional REX prefix, one or two opcode bytes, then
// ModR/M, SIB, displacement, and immediate fields whose presence is keyed off
// the ModR/M mod and rm fields. Encodings outside the hand tables go through
// golang.org/x/arch's decoder; anything still unmatched becomes a one-byte
// ".byte" record so the walk never misreads trailing bytes as operands.
package x86

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"github.com/IntervalMedia/ReDyned/internal/disasm"
)

// MaxInstLen is the architectural instruction length limit.
const MaxInstLen = 15

var regs64 = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var regs32 = [16]string{
	"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
	"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d",
}

var regs8 = [16]string{
	"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
	"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b",
}

// RegName returns the register name for a 4-bit register number.
func RegName(reg int, is64 bool) string {
	if reg < 0 || reg > 15 {
		return "???"
	}
	if is64 {
		return regs64[reg]
	}
	return regs32[reg]
}

// FormatRegMask renders a register usage mask as a comma-separated list.
func FormatRegMask(mask uint64, is64 bool) string {
	return disasm.RegNames(mask, func(n int) string {
		if n > 15 {
			return "???"
		}
		return RegName(n, is64)
	})
}

var condNames8 = [16]string{
	"JO", "JNO", "JB", "JAE", "JE", "JNE", "JBE", "JA",
	"JS", "JNS", "JP", "JNP", "JL", "JGE", "JLE", "JG",
}

var condNames32 = [16]string{
	"JO", "JNO", "JB", "JNB", "JZ", "JNZ", "JBE", "JNBE",
	"JS", "JNS", "JP", "JNP", "JL", "JNL", "JLE", "JNLE",
}

var setccNames = [16]string{
	"SETO", "SETNO", "SETB", "SETNB", "SETZ", "SETNZ", "SETBE", "SETNBE",
	"SETS", "SETNS", "SETP", "SETNP", "SETL", "SETNL", "SETLE", "SETNLE",
}

var group1 = [8]string{"ADD", "OR", "ADC", "SBB", "AND", "SUB", "XOR", "CMP"}
var group2 = [8]string{"ROL", "ROR", "RCL", "RCR", "SHL", "SHR", "SAL", "SAR"}
var group3 = [8]string{"TEST", "TEST", "NOT", "NEG", "MUL", "IMUL", "DIV", "IDIV"}
var group5 = [8]string{"INC", "DEC", "CALL", "CALLF", "JMP", "JMPF", "PUSH", "(bad)"}

type modRM struct {
	mod, reg, rm byte
}

func decodeModRM(b byte) modRM {
	return modRM{mod: b >> 6 & 0x3, reg: b >> 3 & 0x7, rm: b & 0x7}
}

type sib struct {
	scale, index, base byte
}

func decodeSIB(b byte) sib {
	return sib{scale: b >> 6 & 0x3, index: b >> 3 & 0x7, base: b & 0x7}
}

type rex struct {
	present   bool
	w, r, x, b bool
}

func decodeREX(b byte) rex {
	return rex{
		present: true,
		w:       b&0x8 != 0,
		r:       b&0x4 != 0,
		x:       b&0x2 != 0,
		b:       b&0x1 != 0,
	}
}

// modRMLength returns the byte count of the ModR/M block itself: the ModR/M
// byte, the SIB byte when mod≠3 ∧ rm==4, and a displacement of 0, 1, or 4
// bytes keyed off mod, with the mod==0 ∧ rm==5 RIP-relative special case.
func modRMLength(m modRM) int {
	n := 1
	if m.mod != 3 && m.rm == 4 {
		n++
	}
	switch {
	case m.mod == 1:
		n++
	case m.mod == 2:
		n += 4
	case m.mod == 0 && m.rm == 5:
		n += 4
	}
	return n
}

type decoder struct {
	opts disasm.Options
}

// New returns a decoder with the given heuristic options.
func New(opts disasm.Options) disasm.Decoder {
	return &decoder{opts: opts}
}

// Decode decodes one instruction from the front of the window. Every decode
// terminates with 1 ≤ length ≤ 15.
func (d *decoder) Decode(code []byte, addr uint64) disasm.Instruction {
	in := disasm.Instruction{Address: addr}
	if len(code) == 0 {
		in.Length = 1
		in.Mnemonic = ".byte"
		in.Category = disasm.CatUnknown
		return in
	}

	pos := 0
	var rx rex
	if code[pos] >= 0x40 && code[pos] <= 0x4F && len(code) > pos+1 {
		rx = decodeREX(code[pos])
		pos++
	}

	matched := d.decodeOpcode(code, pos, rx, addr, &in)
	if !matched {
		matched = salvage(code, addr, &in)
	}
	if !matched {
		in.Length = 1
		in.Mnemonic = ".byte"
		in.Operands = fmt.Sprintf("0x%02X", code[0])
		in.Category = disasm.CatUnknown
	}

	if in.Length < 1 {
		in.Length = 1
	}
	if in.Length > MaxInstLen {
		in.Length = MaxInstLen
	}
	if in.Length > len(code) {
		in.Length = len(code)
	}
	in.Bytes = code[:in.Length]

	if d.opts.DetectPrologue && in.Mnemonic == "PUSH" && in.Operands == "rbp" {
		in.IsFunctionStart = true
	}
	return in
}

// decodeOpcode handles the hand-decoded opcode set. pos indexes the opcode
// byte, past any REX prefix.
func (d *decoder) decodeOpcode(code []byte, pos int, rx rex, addr uint64, in *disasm.Instruction) bool {
	if pos >= len(code) {
		return false
	}
	op := code[pos]
	pos++

	switch {
	case op == 0xC3:
		in.Mnemonic = "RET"
		in.Category = disasm.CatReturn
		in.Branch = &disasm.Branch{Kind: disasm.BranchReturn}
		in.IsFunctionEnd = true
		in.Length = pos
		return true

	case op == 0xCB:
		in.Mnemonic = "RETF"
		in.Category = disasm.CatReturn
		in.Branch = &disasm.Branch{Kind: disasm.BranchReturn}
		in.IsFunctionEnd = true
		in.Length = pos
		return true

	case op == 0xC2:
		if pos+2 > len(code) {
			return false
		}
		imm := binary.LittleEndian.Uint16(code[pos:])
		in.Mnemonic = "RET"
		in.Operands = fmt.Sprintf("0x%x", imm)
		in.Category = disasm.CatReturn
		in.Branch = &disasm.Branch{Kind: disasm.BranchReturn}
		in.IsFunctionEnd = true
		in.Length = pos + 2
		return true

	case op == 0x90:
		in.Mnemonic = "NOP"
		in.Category = disasm.CatNop
		in.Length = pos
		return true

	case op == 0xCC:
		in.Mnemonic = "INT3"
		in.Category = disasm.CatSystem
		in.Length = pos
		return true

	case op == 0xF4:
		in.Mnemonic = "HLT"
		in.Category = disasm.CatSystem
		in.Length = pos
		return true

	case op == 0xC9:
		in.Mnemonic = "LEAVE"
		in.Category = disasm.CatSystem
		in.Length = pos
		in.RegsRead |= disasm.RegBit(5)
		in.RegsWritten |= disasm.RegBit(4) | disasm.RegBit(5)
		return true

	case op == 0x9C:
		in.Mnemonic = "PUSHFQ"
		in.Category = disasm.CatSystem
		in.Length = pos
		return true

	case op == 0x9D:
		in.Mnemonic = "POPFQ"
		in.Category = disasm.CatSystem
		in.Length = pos
		return true

	case op == 0x99:
		in.Mnemonic = "CDQ"
		if rx.w {
			in.Mnemonic = "CQO"
		}
		in.Category = disasm.CatArithmetic
		in.Length = pos
		return true

	case op == 0xF5 || op == 0xF8 || op == 0xF9:
		switch op {
		case 0xF5:
			in.Mnemonic = "CMC"
		case 0xF8:
			in.Mnemonic = "CLC"
		default:
			in.Mnemonic = "STC"
		}
		in.Category = disasm.CatSystem
		in.WritesFlags = true
		in.Length = pos
		return true

	case op >= 0x50 && op <= 0x57:
		reg := int(op - 0x50)
		if rx.b {
			reg += 8
		}
		in.Mnemonic = "PUSH"
		in.Operands = regs64[reg]
		in.Category = disasm.CatStore
		in.RegsRead |= disasm.RegBit(reg) | disasm.RegBit(4)
		in.Length = pos
		return true

	case op >= 0x58 && op <= 0x5F:
		reg := int(op - 0x58)
		if rx.b {
			reg += 8
		}
		in.Mnemonic = "POP"
		in.Operands = regs64[reg]
		in.Category = disasm.CatLoad
		in.RegsWritten |= disasm.RegBit(reg)
		in.RegsRead |= disasm.RegBit(4)
		in.Length = pos
		return true

	case op == 0xE9:
		if pos+4 > len(code) {
			return false
		}
		off := int32(binary.LittleEndian.Uint32(code[pos:]))
		target := addr + uint64(pos) + 4 + uint64(int64(off))
		in.Mnemonic = "JMP"
		in.Operands = fmt.Sprintf("0x%x", target)
		in.Category = disasm.CatBranch
		in.Branch = &disasm.Branch{Kind: disasm.BranchUnconditional, Target: target, HasTarget: true}
		in.Length = pos + 4
		return true

	case op == 0xEB:
		if pos >= len(code) {
			return false
		}
		off := int8(code[pos])
		target := addr + uint64(pos) + 1 + uint64(int64(off))
		in.Mnemonic = "JMP"
		in.Operands = fmt.Sprintf("0x%x", target)
		in.Category = disasm.CatBranch
		in.Branch = &disasm.Branch{Kind: disasm.BranchUnconditional, Target: target, HasTarget: true}
		in.Length = pos + 1
		return true

	case op == 0xE8:
		if pos+4 > len(code) {
			return false
		}
		off := int32(binary.LittleEndian.Uint32(code[pos:]))
		target := addr + uint64(pos) + 4 + uint64(int64(off))
		in.Mnemonic = "CALL"
		in.Operands = fmt.Sprintf("0x%x", target)
		in.Category = disasm.CatCall
		in.Branch = &disasm.Branch{Kind: disasm.BranchCall, Target: target, HasTarget: true}
		in.Length = pos + 4
		return true

	case op >= 0x70 && op <= 0x7F:
		if pos >= len(code) {
			return false
		}
		off := int8(code[pos])
		target := addr + uint64(pos) + 1 + uint64(int64(off))
		cond := condNames8[op-0x70]
		in.Mnemonic = cond
		in.Operands = fmt.Sprintf("0x%x", target)
		in.Category = disasm.CatBranch
		in.Branch = &disasm.Branch{
			Kind:      disasm.BranchConditional,
			Target:    target,
			HasTarget: true,
			Condition: strings.TrimPrefix(cond, "J"),
		}
		in.Length = pos + 1
		return true

	case op == 0x0F:
		return d.decodeTwoByte(code, pos, rx, addr, in)

	case op >= 0xB8 && op <= 0xBF:
		reg := int(op - 0xB8)
		if rx.b {
			reg += 8
		}
		if rx.w {
			// MOV r64, imm64
			if pos+8 > len(code) {
				return false
			}
			imm := binary.LittleEndian.Uint64(code[pos:])
			in.Mnemonic = "MOV"
			in.Operands = fmt.Sprintf("%s, 0x%x", regs64[reg], imm)
			in.Length = pos + 8
		} else {
			if pos+4 > len(code) {
				return false
			}
			imm := binary.LittleEndian.Uint32(code[pos:])
			in.Mnemonic = "MOV"
			in.Operands = fmt.Sprintf("%s, 0x%x", regs32[reg], imm)
			in.Length = pos + 4
		}
		in.Category = disasm.CatMove
		in.RegsWritten |= disasm.RegBit(reg)
		return true

	case op == 0xCD:
		if pos >= len(code) {
			return false
		}
		in.Mnemonic = "INT"
		in.Operands = fmt.Sprintf("0x%02X", code[pos])
		in.Category = disasm.CatSystem
		in.Length = pos + 1
		return true

	// Group 1 arithmetic: ADD/OR/ADC/SBB/AND/SUB/XOR/CMP.
	case op <= 0x3F && op&0x7 <= 0x5 && op&0xC7 != 0x06 && op&0xC7 != 0x07:
		return d.decodeArith(code, pos, op, rx, in)

	case op == 0x80 || op == 0x81 || op == 0x83:
		return d.decodeGroup1Imm(code, pos, op, rx, in)

	case op == 0x84 || op == 0x85:
		return d.decodeModRMOp(code, pos, op&1 == 1, rx, in, "TEST", disasm.CatCompare, true)

	case op == 0x86 || op == 0x87:
		return d.decodeModRMOp(code, pos, op&1 == 1, rx, in, "XCHG", disasm.CatMove, true)

	case op >= 0x88 && op <= 0x8B:
		return d.decodeMov(code, pos, op, rx, in)

	case op == 0x8D:
		return d.decodeLEA(code, pos, rx, in)

	case op == 0xC6 || op == 0xC7:
		return d.decodeMovImm(code, pos, op, rx, in)

	case op >= 0xD0 && op <= 0xD3:
		return d.decodeShift(code, pos, op, rx, in)

	case op == 0xF6 || op == 0xF7:
		return d.decodeGroup3(code, pos, op, rx, in)

	case op == 0xFE || op == 0xFF:
		return d.decodeGroup5(code, pos, op, rx, in)
	}
	return false
}

func (d *decoder) decodeTwoByte(code []byte, pos int, rx rex, addr uint64, in *disasm.Instruction) bool {
	if pos >= len(code) {
		return false
	}
	op2 := code[pos]
	pos++

	switch {
	case op2 >= 0x80 && op2 <= 0x8F:
		if pos+4 > len(code) {
			return false
		}
		off := int32(binary.LittleEndian.Uint32(code[pos:]))
		target := addr + uint64(pos) + 4 + uint64(int64(off))
		cond := condNames32[op2-0x80]
		in.Mnemonic = cond
		in.Operands = fmt.Sprintf("0x%x", target)
		in.Category = disasm.CatBranch
		in.Branch = &disasm.Branch{
			Kind:      disasm.BranchConditional,
			Target:    target,
			HasTarget: true,
			Condition: strings.TrimPrefix(cond, "J"),
		}
		in.Length = pos + 4
		return true

	case op2 >= 0x90 && op2 <= 0x9F:
		if pos >= len(code) {
			return false
		}
		m := decodeModRM(code[pos])
		in.Mnemonic = setccNames[op2-0x90]
		in.Operands = rmOperand(code[pos:], m, rx, false)
		in.Category = disasm.CatMove
		in.Length = pos + modRMLength(m)
		return true

	case op2 == 0x0B:
		in.Mnemonic = "UD2"
		in.Category = disasm.CatSystem
		in.Length = pos
		return true

	case op2 == 0x05:
		in.Mnemonic = "SYSCALL"
		in.Category = disasm.CatSystem
		in.Length = pos
		return true

	case op2 == 0x1F:
		// Multi-byte NOP.
		if pos >= len(code) {
			return false
		}
		m := decodeModRM(code[pos])
		in.Mnemonic = "NOP"
		in.Operands = rmOperand(code[pos:], m, rx, rx.w)
		in.Category = disasm.CatNop
		in.Length = pos + modRMLength(m)
		return true

	case op2 == 0xAF:
		if pos >= len(code) {
			return false
		}
		m := decodeModRM(code[pos])
		reg := regNum(m.reg, rx.r)
		in.Mnemonic = "IMUL"
		in.Operands = fmt.Sprintf("%s, %s", RegName(reg, rx.w), rmOperand(code[pos:], m, rx, rx.w))
		in.Category = disasm.CatArithmetic
		in.RegsWritten |= disasm.RegBit(reg)
		in.Length = pos + modRMLength(m)
		return true
	}
	return false
}

// decodeArith handles the 0x00-0x3F two-operand arithmetic families.
func (d *decoder) decodeArith(code []byte, pos int, op byte, rx rex, in *disasm.Instruction) bool {
	mnem := group1[op>>3]
	variant := op & 0x7
	wide := variant == 0x1 || variant == 0x3 || variant == 0x5

	switch variant {
	case 0x4: // AL, imm8
		if pos >= len(code) {
			return false
		}
		in.Mnemonic = mnem
		in.Operands = fmt.Sprintf("al, 0x%x", code[pos])
		in.Length = pos + 1
	case 0x5: // eAX/rAX, imm32
		if pos+4 > len(code) {
			return false
		}
		imm := binary.LittleEndian.Uint32(code[pos:])
		in.Mnemonic = mnem
		in.Operands = fmt.Sprintf("%s, 0x%x", RegName(0, rx.w), imm)
		in.Length = pos + 4
	default:
		// ModR/M forms; direction bit selects operand order.
		if pos >= len(code) {
			return false
		}
		m := decodeModRM(code[pos])
		reg := regNum(m.reg, rx.r)
		regName := RegName(reg, rx.w)
		if !wide {
			regName = regs8[reg]
		}
		rm := rmOperand(code[pos:], m, rx, rx.w)
		if variant == 0x2 || variant == 0x3 {
			in.Operands = fmt.Sprintf("%s, %s", regName, rm)
		} else {
			in.Operands = fmt.Sprintf("%s, %s", rm, regName)
		}
		in.Mnemonic = mnem
		in.Length = pos + modRMLength(m)
	}
	in.Category = disasm.CatArithmetic
	if mnem == "CMP" {
		in.Category = disasm.CatCompare
	}
	in.WritesFlags = true
	return true
}

func (d *decoder) decodeGroup1Imm(code []byte, pos int, op byte, rx rex, in *disasm.Instruction) bool {
	if pos >= len(code) {
		return false
	}
	m := decodeModRM(code[pos])
	immSize := 1
	if op == 0x81 {
		immSize = 4
	}
	mlen := modRMLength(m)
	if pos+mlen+immSize > len(code) {
		return false
	}
	var imm uint64
	if immSize == 4 {
		imm = uint64(binary.LittleEndian.Uint32(code[pos+mlen:]))
	} else {
		imm = uint64(code[pos+mlen])
	}
	in.Mnemonic = group1[m.reg]
	in.Operands = fmt.Sprintf("%s, 0x%x", rmOperand(code[pos:], m, rx, rx.w || op != 0x80), imm)
	in.Category = disasm.CatArithmetic
	if in.Mnemonic == "CMP" {
		in.Category = disasm.CatCompare
	}
	in.WritesFlags = true
	in.Length = pos + mlen + immSize
	return true
}

func (d *decoder) decodeModRMOp(code []byte, pos int, wide bool, rx rex, in *disasm.Instruction, mnem string, cat disasm.Category, regSecond bool) bool {
	if pos >= len(code) {
		return false
	}
	m := decodeModRM(code[pos])
	reg := regNum(m.reg, rx.r)
	regName := RegName(reg, rx.w)
	if !wide {
		regName = regs8[reg]
	}
	rm := rmOperand(code[pos:], m, rx, rx.w)
	if regSecond {
		in.Operands = fmt.Sprintf("%s, %s", rm, regName)
	} else {
		in.Operands = fmt.Sprintf("%s, %s", regName, rm)
	}
	in.Mnemonic = mnem
	in.Category = cat
	if mnem == "TEST" {
		in.WritesFlags = true
	}
	in.Length = pos + modRMLength(m)
	return true
}

func (d *decoder) decodeMov(code []byte, pos int, op byte, rx rex, in *disasm.Instruction) bool {
	if pos >= len(code) {
		return false
	}
	m := decodeModRM(code[pos])
	wide := op&1 == 1
	reg := regNum(m.reg, rx.r)
	regName := RegName(reg, rx.w)
	if !wide {
		regName = regs8[reg]
	}
	rm := rmOperand(code[pos:], m, rx, rx.w)

	in.Mnemonic = "MOV"
	if op >= 0x8A { // reg <- r/m
		in.Operands = fmt.Sprintf("%s, %s", regName, rm)
		in.Category = disasm.CatLoad
		in.RegsWritten |= disasm.RegBit(reg)
		if m.mod == 3 {
			in.Category = disasm.CatMove
		}
	} else { // r/m <- reg
		in.Operands = fmt.Sprintf("%s, %s", rm, regName)
		in.Category = disasm.CatStore
		in.RegsRead |= disasm.RegBit(reg)
		if m.mod == 3 {
			in.Category = disasm.CatMove
			in.RegsWritten |= disasm.RegBit(regNum(m.rm, rx.b))
		}
	}
	in.Length = pos + modRMLength(m)
	return true
}

func (d *decoder) decodeLEA(code []byte, pos int, rx rex, in *disasm.Instruction) bool {
	if pos >= len(code) {
		return false
	}
	m := decodeModRM(code[pos])
	if m.mod == 3 {
		return false
	}
	reg := regNum(m.reg, rx.r)
	in.Mnemonic = "LEA"
	in.Operands = fmt.Sprintf("%s, %s", RegName(reg, true), rmOperand(code[pos:], m, rx, true))
	in.Category = disasm.CatMove
	in.RegsWritten |= disasm.RegBit(reg)
	in.Length = pos + modRMLength(m)
	return true
}

func (d *decoder) decodeMovImm(code []byte, pos int, op byte, rx rex, in *disasm.Instruction) bool {
	if pos >= len(code) {
		return false
	}
	m := decodeModRM(code[pos])
	if m.reg != 0 {
		return false
	}
	immSize := 1
	if op == 0xC7 {
		immSize = 4
	}
	mlen := modRMLength(m)
	if pos+mlen+immSize > len(code) {
		return false
	}
	var imm uint64
	if immSize == 4 {
		imm = uint64(binary.LittleEndian.Uint32(code[pos+mlen:]))
	} else {
		imm = uint64(code[pos+mlen])
	}
	in.Mnemonic = "MOV"
	in.Operands = fmt.Sprintf("%s, 0x%x", rmOperand(code[pos:], m, rx, rx.w || op != 0xC6), imm)
	in.Category = disasm.CatStore
	if m.mod == 3 {
		in.Category = disasm.CatMove
	}
	in.Length = pos + mlen + immSize
	return true
}

func (d *decoder) decodeShift(code []byte, pos int, op byte, rx rex, in *disasm.Instruction) bool {
	if pos >= len(code) {
		return false
	}
	m := decodeModRM(code[pos])
	rm := rmOperand(code[pos:], m, rx, rx.w)
	in.Mnemonic = group2[m.reg]
	if op == 0xD0 || op == 0xD1 {
		in.Operands = fmt.Sprintf("%s, 1", rm)
	} else {
		in.Operands = fmt.Sprintf("%s, cl", rm)
	}
	in.Category = disasm.CatLogical
	in.WritesFlags = true
	in.Length = pos + modRMLength(m)
	return true
}

func (d *decoder) decodeGroup3(code []byte, pos int, op byte, rx rex, in *disasm.Instruction) bool {
	if pos >= len(code) {
		return false
	}
	m := decodeModRM(code[pos])
	mlen := modRMLength(m)
	immSize := 0
	if m.reg <= 1 { // TEST r/m, imm
		immSize = 1
		if op == 0xF7 {
			immSize = 4
		}
	}
	if pos+mlen+immSize > len(code) {
		return false
	}
	rm := rmOperand(code[pos:], m, rx, rx.w || op != 0xF6)
	in.Mnemonic = group3[m.reg]
	if immSize > 0 {
		var imm uint64
		if immSize == 4 {
			imm = uint64(binary.LittleEndian.Uint32(code[pos+mlen:]))
		} else {
			imm = uint64(code[pos+mlen])
		}
		in.Operands = fmt.Sprintf("%s, 0x%x", rm, imm)
		in.Category = disasm.CatCompare
		in.WritesFlags = true
	} else {
		in.Operands = rm
		in.Category = disasm.CatArithmetic
	}
	in.Length = pos + mlen + immSize
	return true
}

func (d *decoder) decodeGroup5(code []byte, pos int, op byte, rx rex, in *disasm.Instruction) bool {
	if pos >= len(code) {
		return false
	}
	m := decodeModRM(code[pos])
	if op == 0xFE && m.reg > 1 {
		return false
	}
	mnem := group5[m.reg]
	if mnem == "(bad)" {
		return false
	}
	rm := rmOperand(code[pos:], m, rx, true)
	in.Mnemonic = mnem
	in.Operands = rm
	in.Length = pos + modRMLength(m)
	switch mnem {
	case "CALL", "CALLF":
		in.Category = disasm.CatCall
		in.Branch = &disasm.Branch{Kind: disasm.BranchCall}
	case "JMP", "JMPF":
		in.Category = disasm.CatBranch
		in.Branch = &disasm.Branch{Kind: disasm.BranchIndirect}
	case "PUSH":
		in.Category = disasm.CatStore
	default:
		in.Category = disasm.CatArithmetic
		in.WritesFlags = true
	}
	return true
}

func regNum(field byte, ext bool) int {
	n := int(field)
	if ext {
		n += 8
	}
	return n
}

// rmOperand renders the r/m operand. window starts at the ModR/M byte.
func rmOperand(window []byte, m modRM, rx rex, wide bool) string {
	if m.mod == 3 {
		n := regNum(m.rm, rx.b)
		if wide {
			return regs64[n]
		}
		return regs32[n]
	}

	// Memory operand.
	var base, index string
	scale := 1
	dispOff := 1
	if m.rm == 4 {
		if len(window) < 2 {
			return "[?]"
		}
		s := decodeSIB(window[1])
		dispOff = 2
		scale = 1 << s.scale
		if !(s.index == 4 && !rx.x) {
			index = regs64[regNum(s.index, rx.x)]
		}
		if !(s.base == 5 && m.mod == 0) {
			base = regs64[regNum(s.base, rx.b)]
		}
	} else if m.mod == 0 && m.rm == 5 {
		base = "rip"
	} else {
		base = regs64[regNum(m.rm, rx.b)]
	}

	var disp int64
	switch {
	case m.mod == 1:
		if len(window) > dispOff {
			disp = int64(int8(window[dispOff]))
		}
	case m.mod == 2 || (m.mod == 0 && (m.rm == 5 || (m.rm == 4 && base == ""))):
		if len(window) >= dispOff+4 {
			disp = int64(int32(binary.LittleEndian.Uint32(window[dispOff:])))
		}
	}

	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(base)
	if index != "" {
		if base != "" {
			sb.WriteByte('+')
		}
		fmt.Fprintf(&sb, "%s*%d", index, scale)
	}
	if disp != 0 || (base == "" && index == "") {
		if disp < 0 {
			fmt.Fprintf(&sb, "-0x%x", -disp)
		} else {
			if base != "" || index != "" {
				sb.WriteByte('+')
			}
			fmt.Fprintf(&sb, "0x%x", disp)
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

// salvage runs the window through the x/arch decoder.
func salvage(code []byte, addr uint64, in *disasm.Instruction) bool {
	inst, err := x86asm.Decode(code, 64)
	if err != nil || inst.Len < 1 {
		return false
	}
	text := x86asm.IntelSyntax(inst, addr, nil)
	mnem, ops, _ := strings.Cut(text, " ")
	in.Mnemonic = strings.ToUpper(mnem)
	in.Operands = ops
	in.Length = inst.Len
	in.Category = categorize(in.Mnemonic)
	return true
}

func categorize(mnem string) disasm.Category {
	switch {
	case mnem == "RET" || mnem == "RETF":
		return disasm.CatReturn
	case mnem == "CALL":
		return disasm.CatCall
	case strings.HasPrefix(mnem, "J"):
		return disasm.CatBranch
	case strings.HasPrefix(mnem, "MOV") || mnem == "LEA":
		return disasm.CatMove
	case mnem == "CMP" || mnem == "TEST":
		return disasm.CatCompare
	case mnem == "PUSH":
		return disasm.CatStore
	case mnem == "POP":
		return disasm.CatLoad
	default:
		return disasm.CatArithmetic
	}
}

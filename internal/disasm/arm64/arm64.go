// Package arm64 decodes AArch64 instruction words into the shared
// instruction model. The decoder matches fixed bit patterns in a fixed
// priority order; several encodings overlap, so the first successful match
// wins and the table order is load-bearing. Encodings the table does not
// cover go through golang.org/x/arch's decoder, and anything still unmatched
// becomes a ".word" literal so the stream always advances by 4 bytes.
package arm64

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"

	"github.com/IntervalMedia/ReDyned/internal/disasm"
)

var xRegs = [32]string{
	"X0", "X1", "X2", "X3", "X4", "X5", "X6", "X7",
	"X8", "X9", "X10", "X11", "X12", "X13", "X14", "X15",
	"X16", "X17", "X18", "X19", "X20", "X21", "X22", "X23",
	"X24", "X25", "X26", "X27", "X28", "X29", "X30", "SP",
}

var wRegs = [32]string{
	"W0", "W1", "W2", "W3", "W4", "W5", "W6", "W7",
	"W8", "W9", "W10", "W11", "W12", "W13", "W14", "W15",
	"W16", "W17", "W18", "W19", "W20", "W21", "W22", "W23",
	"W24", "W25", "W26", "W27", "W28", "W29", "W30", "WSP",
}

var conditions = [16]string{
	"EQ", "NE", "CS", "CC", "MI", "PL", "VS", "VC",
	"HI", "LS", "GE", "LT", "GT", "LE", "AL", "NV",
}

// RegName returns the architectural register name for a 5-bit register
// number, selecting the W or X family from the size bit.
func RegName(reg int, is64 bool) string {
	if reg < 0 || reg > 31 {
		return "???"
	}
	if is64 {
		return xRegs[reg]
	}
	return wRegs[reg]
}

// CondName maps a 4-bit condition code to its mnemonic suffix.
func CondName(cond int) string {
	if cond < 0 || cond > 15 {
		return "??"
	}
	return conditions[cond]
}

// FormatRegMask renders a register usage mask as a comma-separated list.
func FormatRegMask(mask uint64, is64 bool) string {
	return disasm.RegNames(mask, func(n int) string { return RegName(n, is64) })
}

func signExtend(v uint32, bits uint) int64 {
	shift := 64 - bits
	return int64(uint64(v)<<shift) >> shift
}

type decoder struct {
	opts disasm.Options
}

// New returns a decoder with the given heuristic options.
func New(opts disasm.Options) disasm.Decoder {
	return &decoder{opts: opts}
}

type handler func(w uint32, addr uint64, in *disasm.Instruction)

// pattern is one priority-table entry: the instruction word is matched
// against value under mask, first hit wins.
type pattern struct {
	mask, value uint32
	decode      handler
}

// patterns is evaluated top to bottom. Order matters: branches and returns
// first, then loads/stores, then data processing, then system instructions.
var patterns = []pattern{
	{0x7C000000, 0x14000000, decodeBImm},       // B / BL imm26
	{0x9F000000, 0x10000000, decodeADR},        // ADR
	{0x9F000000, 0x90000000, decodeADR},        // ADRP
	{0xFF800000, 0xD6000000, decodeBReg},       // BR / BLR / RET
	{0xFF000000, 0x54000000, decodeBCond},      // B.cond imm19
	{0x7E000000, 0x34000000, decodeCBZ},        // CBZ / CBNZ imm19
	{0x7E000000, 0x36000000, decodeTBZ},        // TBZ / TBNZ imm14
	{0x3E000000, 0x28000000, decodePair},       // LDP / STP imm7
	{0x3F000000, 0x39000000, decodeLoadStore},  // LDR / STR unsigned imm12
	{0x3F200C00, 0x38000000, decodeUnscaled},   // LDUR / STUR imm9
	{0x3F000000, 0x18000000, decodeLitLoad},    // LDR literal imm19
	{0x3F80001F, 0x3100001F, decodeCmpImm},     // CMP / CMN imm12 (ADDS/SUBS with Rd=ZR)
	{0x3F20001F, 0x2B00001F, decodeCmpReg},     // CMP / CMN shifted register
	{0x1F800000, 0x11000000, decodeAddSubImm},  // ADD / SUB imm12
	{0x1F200000, 0x0B000000, decodeAddSubReg},  // ADD / SUB shifted register
	{0x1F800000, 0x12800000, decodeMovWide},    // MOVN / MOVZ / MOVK imm16
	{0x1F000000, 0x0A000000, decodeLogical},    // AND / ORR / EOR / ANDS shifted register
	{0x1F800000, 0x13000000, decodeBitfield},   // SBFM / BFM / UBFM
	{0x1F000000, 0x1B000000, decodeMulAdd},     // MADD / MSUB / MUL alias
	{0x7FE0F000, 0x1AC00800, decodeDiv},        // UDIV / SDIV
	{0x7FE0F000, 0x1AC02000, decodeShiftVar},   // LSLV / LSRV / ASRV / RORV
	{0x3FE00C10, 0x3A400000, decodeCondCmp},    // CCMN / CCMP register
	{0xFFFFFFFF, 0xD503201F, decodeNop},        // NOP
	{0xFFFFF01F, 0xD503201F, decodeHint},       // YIELD / WFE / WFI / SEV / SEVL / HINT
	{0xFFFFF01F, 0xD503301F, decodeBarrier},    // DSB / DMB / ISB
	{0xFFF00000, 0xD5300000, decodeSysReg},     // MRS
	{0xFFF00000, 0xD5100000, decodeSysReg},     // MSR
	{0xFFE0001F, 0xD4200000, decodeBRK},        // BRK imm16
	{0xFFE0001F, 0xD4000001, decodeSVC},        // SVC imm16
	{0xFFFFFC00, 0x1E604000, decodeFMov},       // FMOV Dd, Dn
}

// classPatterns are conservative fallback descriptors keyed on the top-level
// op0 field (bits 25-28). They run after the salvage decoder so that a vague
// record is only produced when nothing better exists.
var classPatterns = []pattern{
	{0x14000000, 0x10000000, classLoadStore}, // loads/stores op0=1x0x
	{0x1E000000, 0x16000000, classDP3},       // 3-source data processing op0=1011
	{0x0E000000, 0x0E000000, classSIMD},      // SIMD/FP op0=x111
	{0x1C000000, 0x1C000000, classSIMD},      // SIMD/FP op0=111x
	{0x1C000000, 0x14000000, classDPReg},     // data processing register op0=101x
	{0x1E000000, 0x1A000000, classSys},       // system op0=1101
}

// Decode decodes one instruction word. It never fails: short windows and
// unrecognized encodings yield literal-data records.
func (d *decoder) Decode(code []byte, addr uint64) disasm.Instruction {
	in := disasm.Instruction{Address: addr}
	if len(code) < 4 {
		in.Bytes = code
		in.Length = len(code)
		in.Mnemonic = ".byte"
		in.Operands = formatBytes(code)
		in.Category = disasm.CatUnknown
		return in
	}

	w := binary.LittleEndian.Uint32(code)
	in.Bytes = code[:4]
	in.Length = 4

	matched := false
	// All-zero words are padding, never instructions.
	if w != 0 {
		for _, p := range patterns {
			if w&p.mask == p.value {
				p.decode(w, addr, &in)
				matched = true
				break
			}
		}
		if !matched {
			matched = salvage(code, addr, &in)
		}
		if !matched {
			for _, p := range classPatterns {
				if w&p.mask == p.value {
					p.decode(w, addr, &in)
					matched = true
					break
				}
			}
		}
	}
	if !matched {
		in.Mnemonic = ".word"
		in.Operands = fmt.Sprintf("0x%08X", w)
		in.Category = disasm.CatUnknown
	}

	// Alias canonicalization runs after the main decode, never inside it.
	normalizeMovAlias(&in)

	in.IsFunctionStart = d.isPrologue(&in)
	in.IsFunctionEnd = d.isEpilogue(&in)
	return in
}

// salvage runs the unmatched word through the x/arch decoder and adopts its
// rendering when it recognizes the encoding.
func salvage(code []byte, addr uint64, in *disasm.Instruction) bool {
	inst, err := arm64asm.Decode(code[:4])
	if err != nil || inst.Op == 0 {
		return false
	}
	text := arm64asm.GNUSyntax(inst)
	mnem, ops, _ := strings.Cut(text, " ")
	in.Mnemonic = strings.ToUpper(mnem)
	in.Operands = ops
	in.Category = categorize(in.Mnemonic)
	return true
}

// categorize buckets a salvaged mnemonic.
func categorize(mnem string) disasm.Category {
	switch {
	case strings.HasPrefix(mnem, "LD"):
		return disasm.CatLoad
	case strings.HasPrefix(mnem, "ST"):
		return disasm.CatStore
	case strings.HasPrefix(mnem, "F") || strings.HasPrefix(mnem, "V"):
		return disasm.CatSIMD
	case strings.HasPrefix(mnem, "B") || strings.HasPrefix(mnem, "CB") || strings.HasPrefix(mnem, "TB"):
		return disasm.CatBranch
	case mnem == "RET":
		return disasm.CatReturn
	case strings.HasPrefix(mnem, "MOV"):
		return disasm.CatMove
	case strings.HasPrefix(mnem, "CMP") || strings.HasPrefix(mnem, "TST") || strings.HasPrefix(mnem, "CCM"):
		return disasm.CatCompare
	default:
		return disasm.CatArithmetic
	}
}

func (d *decoder) isPrologue(in *disasm.Instruction) bool {
	if !d.opts.DetectPrologue {
		return false
	}
	return in.Mnemonic == "STP" &&
		strings.Contains(in.Operands, "X29") &&
		strings.Contains(in.Operands, "X30") &&
		strings.Contains(in.Operands, "#-")
}

func (d *decoder) isEpilogue(in *disasm.Instruction) bool {
	// RET always ends a function, independent of the heuristic flag.
	if in.Mnemonic == "RET" {
		return true
	}
	if !d.opts.DetectEpilogue {
		return false
	}
	return in.Mnemonic == "LDP" &&
		strings.Contains(in.Operands, "X29") &&
		strings.Contains(in.Operands, "X30")
}

// normalizeMovAlias rewrites "ORR rd, zr, rm" into the MOV alias.
func normalizeMovAlias(in *disasm.Instruction) {
	if in.Mnemonic != "ORR" {
		return
	}
	parts := strings.Split(in.Operands, ", ")
	if len(parts) != 3 {
		return
	}
	switch parts[1] {
	case "XZR", "WZR", "SP", "WSP":
		in.Mnemonic = "MOV"
		in.Operands = parts[0] + ", " + parts[2]
		in.Category = disasm.CatMove
	}
}

func formatBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("0x%02X", c)
	}
	return strings.Join(parts, " ")
}

// --- pattern handlers -------------------------------------------------------

func decodeBImm(w uint32, addr uint64, in *disasm.Instruction) {
	isLink := w>>31 == 1
	offset := signExtend(w&0x3FFFFFF, 26) * 4
	target := addr + uint64(offset)

	kind := disasm.BranchUnconditional
	in.Mnemonic = "B"
	in.Category = disasm.CatBranch
	if isLink {
		in.Mnemonic = "BL"
		in.Category = disasm.CatCall
		kind = disasm.BranchCall
		in.RegsWritten |= disasm.RegBit(30)
	}
	in.Operands = fmt.Sprintf("0x%x", target)
	in.Branch = &disasm.Branch{Kind: kind, Target: target, HasTarget: true}
}

func decodeADR(w uint32, addr uint64, in *disasm.Instruction) {
	isPage := w&0x80000000 != 0
	immlo := (w >> 29) & 0x3
	immhi := (w >> 5) & 0x7FFFF
	imm := signExtend(immhi<<2|immlo, 21)

	var target uint64
	if isPage {
		in.Mnemonic = "ADRP"
		page := addr &^ 0xFFF
		target = page + uint64(imm<<12)
	} else {
		in.Mnemonic = "ADR"
		target = addr + uint64(imm)
	}
	rd := int(w & 0x1F)
	in.Operands = fmt.Sprintf("%s, 0x%x", RegName(rd, true), target)
	in.Category = disasm.CatMove
	in.RegsWritten |= disasm.RegBit(rd)
}

func decodeBReg(w uint32, addr uint64, in *disasm.Instruction) {
	rn := int((w >> 5) & 0x1F)
	opc := (w >> 21) & 0x3

	kind := disasm.BranchIndirect
	in.Category = disasm.CatBranch
	switch opc {
	case 0:
		in.Mnemonic = "BR"
	case 1:
		in.Mnemonic = "BLR"
		in.Category = disasm.CatCall
		kind = disasm.BranchCall
		in.RegsWritten |= disasm.RegBit(30)
	case 2:
		in.Mnemonic = "RET"
		in.Category = disasm.CatReturn
		kind = disasm.BranchReturn
	default:
		in.Mnemonic = "BRAA"
	}
	in.Operands = RegName(rn, true)
	in.RegsRead |= disasm.RegBit(rn)
	in.Branch = &disasm.Branch{Kind: kind}
}

func decodeBCond(w uint32, addr uint64, in *disasm.Instruction) {
	cond := int(w & 0xF)
	offset := signExtend((w>>5)&0x7FFFF, 19) * 4
	target := addr + uint64(offset)

	in.Mnemonic = "B." + CondName(cond)
	in.Operands = fmt.Sprintf("0x%x", target)
	in.Category = disasm.CatBranch
	in.Branch = &disasm.Branch{
		Kind:      disasm.BranchConditional,
		Target:    target,
		HasTarget: true,
		Condition: CondName(cond),
	}
}

func decodeCBZ(w uint32, addr uint64, in *disasm.Instruction) {
	isNZ := (w>>24)&0x1 == 1
	is64 := w>>31 == 1
	rt := int(w & 0x1F)
	offset := signExtend((w>>5)&0x7FFFF, 19) * 4
	target := addr + uint64(offset)

	in.Mnemonic = "CBZ"
	cond := "EQ"
	if isNZ {
		in.Mnemonic = "CBNZ"
		cond = "NE"
	}
	in.Operands = fmt.Sprintf("%s, 0x%x", RegName(rt, is64), target)
	in.Category = disasm.CatBranch
	in.RegsRead |= disasm.RegBit(rt)
	in.Branch = &disasm.Branch{
		Kind:      disasm.BranchConditional,
		Target:    target,
		HasTarget: true,
		Condition: cond,
	}
}

func decodeTBZ(w uint32, addr uint64, in *disasm.Instruction) {
	isNZ := (w>>24)&0x1 == 1
	rt := int(w & 0x1F)
	bit := (w>>19)&0x1F | (w>>31)<<5
	offset := signExtend((w>>5)&0x3FFF, 14) * 4
	target := addr + uint64(offset)

	in.Mnemonic = "TBZ"
	cond := "EQ"
	if isNZ {
		in.Mnemonic = "TBNZ"
		cond = "NE"
	}
	in.Operands = fmt.Sprintf("%s, #%d, 0x%x", RegName(rt, w>>31 == 1), bit, target)
	in.Category = disasm.CatBranch
	in.RegsRead |= disasm.RegBit(rt)
	in.Branch = &disasm.Branch{
		Kind:      disasm.BranchConditional,
		Target:    target,
		HasTarget: true,
		Condition: cond,
	}
}

func decodePair(w uint32, addr uint64, in *disasm.Instruction) {
	isLoad := (w>>22)&0x1 == 1
	is64 := w>>31 == 1
	rt := int(w & 0x1F)
	rt2 := int((w >> 10) & 0x1F)
	rn := int((w >> 5) & 0x1F)
	scale := int64(4)
	if is64 {
		scale = 8
	}
	offset := signExtend((w>>15)&0x7F, 7) * scale

	in.Mnemonic = "STP"
	if isLoad {
		in.Mnemonic = "LDP"
	}
	base := fmt.Sprintf("%s, %s", RegName(rt, is64), RegName(rt2, is64))
	switch (w >> 23) & 0x3 {
	case 0x3: // pre-index writeback
		in.Operands = fmt.Sprintf("%s, [%s, #%d]!", base, RegName(rn, true), offset)
	case 0x1: // post-index
		in.Operands = fmt.Sprintf("%s, [%s], #%d", base, RegName(rn, true), offset)
	default:
		in.Operands = fmt.Sprintf("%s, [%s, #%d]", base, RegName(rn, true), offset)
	}
	if isLoad {
		in.Category = disasm.CatLoad
		in.RegsWritten |= disasm.RegBit(rt) | disasm.RegBit(rt2)
		in.RegsRead |= disasm.RegBit(rn)
	} else {
		in.Category = disasm.CatStore
		in.RegsRead |= disasm.RegBit(rt) | disasm.RegBit(rt2) | disasm.RegBit(rn)
	}
}

func decodeLoadStore(w uint32, addr uint64, in *disasm.Instruction) {
	size := (w >> 30) & 0x3
	isLoad := (w>>22)&0x1 == 1
	is64 := size == 0x3
	rt := int(w & 0x1F)
	rn := int((w >> 5) & 0x1F)
	offset := ((w >> 10) & 0xFFF) << size

	in.Mnemonic = "STR"
	in.Category = disasm.CatStore
	in.RegsRead |= disasm.RegBit(rt) | disasm.RegBit(rn)
	if isLoad {
		in.Mnemonic = "LDR"
		in.Category = disasm.CatLoad
		in.RegsRead = disasm.RegBit(rn)
		in.RegsWritten |= disasm.RegBit(rt)
	}
	in.Operands = fmt.Sprintf("%s, [%s, #%d]", RegName(rt, is64), RegName(rn, true), offset)
}

func decodeUnscaled(w uint32, addr uint64, in *disasm.Instruction) {
	size := (w >> 30) & 0x3
	isLoad := (w>>22)&0x1 == 1
	is64 := size >= 0x2
	rt := int(w & 0x1F)
	rn := int((w >> 5) & 0x1F)
	offset := signExtend((w>>12)&0x1FF, 9)

	in.Mnemonic = "STUR"
	in.Category = disasm.CatStore
	in.RegsRead |= disasm.RegBit(rt) | disasm.RegBit(rn)
	if isLoad {
		in.Mnemonic = "LDUR"
		in.Category = disasm.CatLoad
		in.RegsRead = disasm.RegBit(rn)
		in.RegsWritten |= disasm.RegBit(rt)
	}
	in.Operands = fmt.Sprintf("%s, [%s, #%d]", RegName(rt, is64), RegName(rn, true), offset)
}

func decodeLitLoad(w uint32, addr uint64, in *disasm.Instruction) {
	rt := int(w & 0x1F)
	offset := signExtend((w>>5)&0x7FFFF, 19) * 4
	target := addr + uint64(offset)

	in.Mnemonic = "LDR"
	in.Operands = fmt.Sprintf("%s, 0x%x", RegName(rt, true), target)
	in.Category = disasm.CatLoad
	in.RegsWritten |= disasm.RegBit(rt)
}

func decodeCmpImm(w uint32, addr uint64, in *disasm.Instruction) {
	isSub := (w>>30)&0x1 == 1
	is64 := w>>31 == 1
	rn := int((w >> 5) & 0x1F)
	imm12 := (w >> 10) & 0xFFF

	in.Mnemonic = "CMN"
	if isSub {
		in.Mnemonic = "CMP"
	}
	in.Operands = fmt.Sprintf("%s, #%d", RegName(rn, is64), imm12)
	in.Category = disasm.CatCompare
	in.RegsRead |= disasm.RegBit(rn)
	in.WritesFlags = true
}

func decodeCmpReg(w uint32, addr uint64, in *disasm.Instruction) {
	isSub := (w>>30)&0x1 == 1
	is64 := w>>31 == 1
	rn := int((w >> 5) & 0x1F)
	rm := int((w >> 16) & 0x1F)

	in.Mnemonic = "CMN"
	if isSub {
		in.Mnemonic = "CMP"
	}
	in.Operands = fmt.Sprintf("%s, %s", RegName(rn, is64), RegName(rm, is64))
	in.Category = disasm.CatCompare
	in.RegsRead |= disasm.RegBit(rn) | disasm.RegBit(rm)
	in.WritesFlags = true
}

func decodeAddSubImm(w uint32, addr uint64, in *disasm.Instruction) {
	isSub := (w>>30)&0x1 == 1
	setFlags := (w>>29)&0x1 == 1
	is64 := w>>31 == 1
	rd := int(w & 0x1F)
	rn := int((w >> 5) & 0x1F)
	imm12 := (w >> 10) & 0xFFF
	shift := (w >> 22) & 0x3
	imm := imm12 << (shift * 12)

	in.Mnemonic = "ADD"
	if isSub {
		in.Mnemonic = "SUB"
	}
	if setFlags {
		in.Mnemonic += "S"
		in.WritesFlags = true
	}
	in.Operands = fmt.Sprintf("%s, %s, #%d", RegName(rd, is64), RegName(rn, is64), imm)
	in.Category = disasm.CatArithmetic
	in.RegsRead |= disasm.RegBit(rn)
	in.RegsWritten |= disasm.RegBit(rd)
}

func decodeAddSubReg(w uint32, addr uint64, in *disasm.Instruction) {
	isSub := (w>>30)&0x1 == 1
	setFlags := (w>>29)&0x1 == 1
	is64 := w>>31 == 1
	rd := int(w & 0x1F)
	rn := int((w >> 5) & 0x1F)
	rm := int((w >> 16) & 0x1F)
	imm6 := (w >> 10) & 0x3F
	shiftNames := [4]string{"LSL", "LSR", "ASR", "ROR"}
	shift := shiftNames[(w>>22)&0x3]

	in.Mnemonic = "ADD"
	if isSub {
		in.Mnemonic = "SUB"
	}
	if setFlags {
		in.Mnemonic += "S"
		in.WritesFlags = true
	}
	if imm6 != 0 {
		in.Operands = fmt.Sprintf("%s, %s, %s, %s #%d",
			RegName(rd, is64), RegName(rn, is64), RegName(rm, is64), shift, imm6)
	} else {
		in.Operands = fmt.Sprintf("%s, %s, %s",
			RegName(rd, is64), RegName(rn, is64), RegName(rm, is64))
	}
	in.Category = disasm.CatArithmetic
	in.RegsRead |= disasm.RegBit(rn) | disasm.RegBit(rm)
	in.RegsWritten |= disasm.RegBit(rd)
}

func decodeMovWide(w uint32, addr uint64, in *disasm.Instruction) {
	opc := (w >> 29) & 0x3
	is64 := w>>31 == 1
	rd := int(w & 0x1F)
	imm16 := (w >> 5) & 0xFFFF

	switch opc {
	case 0x0:
		in.Mnemonic = "MOVN"
	case 0x2:
		in.Mnemonic = "MOVZ"
	case 0x3:
		in.Mnemonic = "MOVK"
	default:
		in.Mnemonic = "MOV"
	}
	in.Operands = fmt.Sprintf("%s, #0x%X", RegName(rd, is64), imm16)
	in.Category = disasm.CatMove
	if opc == 0x3 {
		// MOVK merges into the existing value.
		in.RegsRead |= disasm.RegBit(rd)
	}
	in.RegsWritten |= disasm.RegBit(rd)
}

func decodeLogical(w uint32, addr uint64, in *disasm.Instruction) {
	opc := (w >> 29) & 0x3
	is64 := w>>31 == 1
	rd := int(w & 0x1F)
	rn := int((w >> 5) & 0x1F)
	rm := int((w >> 16) & 0x1F)
	negated := (w>>21)&0x1 == 1
	imm6 := (w >> 10) & 0x3F
	shiftNames := [4]string{"LSL", "LSR", "ASR", "ROR"}
	shift := shiftNames[(w>>22)&0x3]

	switch opc {
	case 0:
		in.Mnemonic = "AND"
		if negated {
			in.Mnemonic = "BIC"
		}
	case 1:
		in.Mnemonic = "ORR"
		if negated {
			in.Mnemonic = "ORN"
		}
	case 2:
		in.Mnemonic = "EOR"
		if negated {
			in.Mnemonic = "EON"
		}
	default:
		in.Mnemonic = "ANDS"
		if negated {
			in.Mnemonic = "BICS"
		}
		in.WritesFlags = true
	}
	if imm6 != 0 {
		in.Operands = fmt.Sprintf("%s, %s, %s, %s #%d",
			RegName(rd, is64), RegName(rn, is64), RegName(rm, is64), shift, imm6)
	} else {
		in.Operands = fmt.Sprintf("%s, %s, %s",
			RegName(rd, is64), RegName(rn, is64), RegName(rm, is64))
	}
	in.Category = disasm.CatLogical
	in.RegsRead |= disasm.RegBit(rn) | disasm.RegBit(rm)
	in.RegsWritten |= disasm.RegBit(rd)
}

func decodeBitfield(w uint32, addr uint64, in *disasm.Instruction) {
	opc := (w >> 29) & 0x3
	is64 := w>>31 == 1
	rd := int(w & 0x1F)
	rn := int((w >> 5) & 0x1F)
	immr := (w >> 16) & 0x3F
	imms := (w >> 10) & 0x3F

	switch opc {
	case 0x0:
		in.Mnemonic = "SBFM"
	case 0x1:
		in.Mnemonic = "BFM"
	case 0x2:
		in.Mnemonic = "UBFM"
	default:
		in.Mnemonic = "BFM"
	}
	in.Operands = fmt.Sprintf("%s, %s, #%d, #%d", RegName(rd, is64), RegName(rn, is64), immr, imms)
	in.Category = disasm.CatLogical
	in.RegsRead |= disasm.RegBit(rn)
	in.RegsWritten |= disasm.RegBit(rd)
}

func decodeMulAdd(w uint32, addr uint64, in *disasm.Instruction) {
	is64 := w>>31 == 1
	rd := int(w & 0x1F)
	rn := int((w >> 5) & 0x1F)
	rm := int((w >> 16) & 0x1F)
	ra := int((w >> 10) & 0x1F)
	isSub := (w>>15)&0x1 == 1

	in.Mnemonic = "MADD"
	if isSub {
		in.Mnemonic = "MSUB"
	}
	in.Category = disasm.CatArithmetic
	in.RegsRead |= disasm.RegBit(rn) | disasm.RegBit(rm)
	in.RegsWritten |= disasm.RegBit(rd)
	if ra == 31 && !isSub {
		in.Mnemonic = "MUL"
		in.Operands = fmt.Sprintf("%s, %s, %s", RegName(rd, is64), RegName(rn, is64), RegName(rm, is64))
		return
	}
	in.RegsRead |= disasm.RegBit(ra)
	in.Operands = fmt.Sprintf("%s, %s, %s, %s",
		RegName(rd, is64), RegName(rn, is64), RegName(rm, is64), RegName(ra, is64))
}

func decodeDiv(w uint32, addr uint64, in *disasm.Instruction) {
	is64 := w>>31 == 1
	rd := int(w & 0x1F)
	rn := int((w >> 5) & 0x1F)
	rm := int((w >> 16) & 0x1F)

	in.Mnemonic = "UDIV"
	if (w>>10)&0x1 == 1 {
		in.Mnemonic = "SDIV"
	}
	in.Operands = fmt.Sprintf("%s, %s, %s", RegName(rd, is64), RegName(rn, is64), RegName(rm, is64))
	in.Category = disasm.CatArithmetic
	in.RegsRead |= disasm.RegBit(rn) | disasm.RegBit(rm)
	in.RegsWritten |= disasm.RegBit(rd)
}

func decodeShiftVar(w uint32, addr uint64, in *disasm.Instruction) {
	is64 := w>>31 == 1
	rd := int(w & 0x1F)
	rn := int((w >> 5) & 0x1F)
	rm := int((w >> 16) & 0x1F)
	names := [4]string{"LSL", "LSR", "ASR", "ROR"}

	in.Mnemonic = names[(w>>10)&0x3]
	in.Operands = fmt.Sprintf("%s, %s, %s", RegName(rd, is64), RegName(rn, is64), RegName(rm, is64))
	in.Category = disasm.CatLogical
	in.RegsRead |= disasm.RegBit(rn) | disasm.RegBit(rm)
	in.RegsWritten |= disasm.RegBit(rd)
}

func decodeCondCmp(w uint32, addr uint64, in *disasm.Instruction) {
	is64 := w>>31 == 1
	rn := int((w >> 5) & 0x1F)
	rm := int((w >> 16) & 0x1F)
	nzcv := w & 0xF
	cond := int((w >> 12) & 0xF)

	in.Mnemonic = "CCMN"
	if (w>>30)&0x1 == 1 {
		in.Mnemonic = "CCMP"
	}
	in.Operands = fmt.Sprintf("%s, %s, #%d, %s",
		RegName(rn, is64), RegName(rm, is64), nzcv, CondName(cond))
	in.Category = disasm.CatCompare
	in.RegsRead |= disasm.RegBit(rn) | disasm.RegBit(rm)
	in.WritesFlags = true
}

func decodeNop(w uint32, addr uint64, in *disasm.Instruction) {
	in.Mnemonic = "NOP"
	in.Category = disasm.CatNop
}

func decodeHint(w uint32, addr uint64, in *disasm.Instruction) {
	crm := (w >> 8) & 0xF
	op2 := (w >> 5) & 0x7

	in.Mnemonic = "HINT"
	if crm == 0 {
		switch op2 {
		case 0x1:
			in.Mnemonic = "YIELD"
		case 0x2:
			in.Mnemonic = "WFE"
		case 0x3:
			in.Mnemonic = "WFI"
		case 0x4:
			in.Mnemonic = "SEV"
		case 0x5:
			in.Mnemonic = "SEVL"
		}
	}
	in.Category = disasm.CatSystem
}

func decodeBarrier(w uint32, addr uint64, in *disasm.Instruction) {
	crm := (w >> 8) & 0xF
	switch (w >> 5) & 0x7 {
	case 0x4:
		in.Mnemonic = "DSB"
	case 0x5:
		in.Mnemonic = "DMB"
	case 0x6:
		in.Mnemonic = "ISB"
	default:
		in.Mnemonic = "BARRIER"
	}
	in.Operands = fmt.Sprintf("#%d", crm)
	in.Category = disasm.CatSystem
}

func decodeSysReg(w uint32, addr uint64, in *disasm.Instruction) {
	isRead := (w>>21)&0x1 == 1
	rt := int(w & 0x1F)
	sysreg := (w >> 5) & 0xFFFF
	// op0[1:0], op1[2:0], CRn[3:0], CRm[3:0], op2[2:0]
	name := fmt.Sprintf("S%d_%d_c%d_c%d_%d",
		2+(sysreg>>14)&0x1, (sysreg>>11)&0x7, (sysreg>>7)&0xF, (sysreg>>3)&0xF, sysreg&0x7)

	if isRead {
		in.Mnemonic = "MRS"
		in.Operands = fmt.Sprintf("%s, %s", RegName(rt, true), name)
		in.RegsWritten |= disasm.RegBit(rt)
	} else {
		in.Mnemonic = "MSR"
		in.Operands = fmt.Sprintf("%s, %s", name, RegName(rt, true))
		in.RegsRead |= disasm.RegBit(rt)
	}
	in.Category = disasm.CatSystem
}

func decodeBRK(w uint32, addr uint64, in *disasm.Instruction) {
	in.Mnemonic = "BRK"
	in.Operands = fmt.Sprintf("#0x%X", (w>>5)&0xFFFF)
	in.Category = disasm.CatSystem
}

func decodeSVC(w uint32, addr uint64, in *disasm.Instruction) {
	in.Mnemonic = "SVC"
	in.Operands = fmt.Sprintf("#0x%X", (w>>5)&0xFFFF)
	in.Category = disasm.CatSystem
}

func decodeFMov(w uint32, addr uint64, in *disasm.Instruction) {
	rd := w & 0x1F
	rn := (w >> 5) & 0x1F
	in.Mnemonic = "FMOV"
	in.Operands = fmt.Sprintf("D%d, D%d", rd, rn)
	in.Category = disasm.CatSIMD
}

// --- conservative class fallbacks -------------------------------------------

func classLoadStore(w uint32, addr uint64, in *disasm.Instruction) {
	isLoad := (w>>22)&0x1 == 1
	rt := int(w & 0x1F)
	rn := int((w >> 5) & 0x1F)
	is64 := (w>>30)&0x3 >= 0x2

	in.Mnemonic = "STR"
	in.Category = disasm.CatStore
	if isLoad {
		in.Mnemonic = "LDR"
		in.Category = disasm.CatLoad
	}
	in.Operands = fmt.Sprintf("%s, [%s, ...]", RegName(rt, is64), RegName(rn, true))
}

func classDP3(w uint32, addr uint64, in *disasm.Instruction) {
	is64 := w>>31 == 1
	in.Mnemonic = "DP3SRC"
	in.Operands = fmt.Sprintf("%s, %s, %s, ...",
		RegName(int(w&0x1F), is64), RegName(int((w>>5)&0x1F), is64), RegName(int((w>>16)&0x1F), is64))
	in.Category = disasm.CatArithmetic
}

func classSIMD(w uint32, addr uint64, in *disasm.Instruction) {
	in.Mnemonic = "SIMD"
	in.Operands = "..."
	in.Category = disasm.CatSIMD
}

func classDPReg(w uint32, addr uint64, in *disasm.Instruction) {
	is64 := w>>31 == 1
	in.Mnemonic = "DPREG"
	in.Operands = fmt.Sprintf("%s, %s, ...",
		RegName(int(w&0x1F), is64), RegName(int((w>>5)&0x1F), is64))
	in.Category = disasm.CatArithmetic
}

func classSys(w uint32, addr uint64, in *disasm.Instruction) {
	in.Mnemonic = "SYS"
	in.Operands = "..."
	in.Category = disasm.CatSystem
}

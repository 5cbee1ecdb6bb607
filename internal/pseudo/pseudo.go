// Package pseudo renders reconstructed functions as C-like pseudocode. The
// translation is deliberately shallow: each instruction maps through a fixed
// per-mnemonic template, and anything without a template becomes a comment
// echoing the raw disassembly so no instruction is ever dropped from the
// output.
package pseudo

import (
	"fmt"
	"strings"

	"github.com/IntervalMedia/ReDyned/internal/analysis"
	"github.com/IntervalMedia/ReDyned/internal/disasm"
)

// Render produces the pseudocode body for one function. Basic-block starts
// from the CFG become labels so the goto templates have somewhere to land.
func Render(fn *analysis.Function) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "void %s(void) {\n", fn.Name)

	labels := blockLabels(fn)
	for _, inst := range fn.Instructions {
		if label, ok := labels[inst.Address]; ok && inst.Address != fn.StartAddress {
			sb.WriteString(label)
			sb.WriteString(":\n")
		}
		sb.WriteString("    ")
		sb.WriteString(renderInstruction(inst))
		sb.WriteString("\n")
	}
	sb.WriteString("}\n")
	return sb.String()
}

// blockLabels assigns a loc_<addr> label to every basic-block start.
func blockLabels(fn *analysis.Function) map[uint64]string {
	labels := make(map[uint64]string)
	if fn.Graph == nil {
		return labels
	}
	for _, b := range fn.Graph.Blocks {
		labels[b.Start] = fmt.Sprintf("loc_%x", b.Start)
	}
	return labels
}

func renderInstruction(inst disasm.Instruction) string {
	ops := splitOperands(inst.Operands)
	m := strings.ToUpper(inst.Mnemonic)

	switch {
	case m == "RET" || m == "RETF":
		return "return;"
	case inst.Branch != nil && inst.Branch.Kind == disasm.BranchCall:
		return renderCall(inst, ops)
	case inst.Branch != nil && inst.Branch.Kind == disasm.BranchConditional:
		return renderCondBranch(inst, ops)
	case inst.Branch != nil && (inst.Branch.Kind == disasm.BranchUnconditional || inst.Branch.Kind == disasm.BranchIndirect):
		return renderGoto(inst, ops)
	case m == "CMP":
		return renderPair("compare", ops, inst)
	case m == "TST" || m == "TEST":
		return renderPair("test", ops, inst)
	case isMove(m):
		if len(ops) == 2 {
			return fmt.Sprintf("%s = %s;", ops[0], ops[1])
		}
	case strings.HasPrefix(m, "LDR") || strings.HasPrefix(m, "LDUR"):
		if len(ops) >= 2 {
			return fmt.Sprintf("%s = *%s;", ops[0], derefOperand(ops[1]))
		}
	case strings.HasPrefix(m, "STR") || strings.HasPrefix(m, "STUR"):
		if len(ops) >= 2 {
			return fmt.Sprintf("*%s = %s;", derefOperand(ops[1]), ops[0])
		}
	default:
		if op, ok := arithOperator(m); ok {
			return renderArith(op, ops)
		}
	}
	return "// " + inst.Text()
}

// arithOperator maps arithmetic and bitwise mnemonics to their C operator.
func arithOperator(m string) (string, bool) {
	switch {
	case strings.HasPrefix(m, "ADD") || m == "ADC":
		return "+", true
	case strings.HasPrefix(m, "SUB") || m == "SBB" || m == "NEG":
		return "-", true
	case strings.HasPrefix(m, "MUL") || strings.HasPrefix(m, "MADD") || m == "IMUL":
		return "*", true
	case strings.HasPrefix(m, "UDIV") || strings.HasPrefix(m, "SDIV") || m == "DIV" || m == "IDIV":
		return "/", true
	case strings.HasPrefix(m, "AND"):
		return "&", true
	case strings.HasPrefix(m, "ORR") || m == "OR":
		return "|", true
	case strings.HasPrefix(m, "EOR") || m == "XOR":
		return "^", true
	case strings.HasPrefix(m, "LSL") || m == "SHL":
		return "<<", true
	case strings.HasPrefix(m, "LSR") || strings.HasPrefix(m, "ASR") || m == "SHR" || m == "SAR":
		return ">>", true
	default:
		return "", false
	}
}

func renderArith(op string, ops []string) string {
	switch len(ops) {
	case 3:
		return fmt.Sprintf("%s = %s %s %s;", ops[0], ops[1], op, ops[2])
	case 2:
		return fmt.Sprintf("%s %s= %s;", ops[0], op, ops[1])
	default:
		return fmt.Sprintf("// %s", strings.Join(ops, ", "))
	}
}

func renderPair(callName string, ops []string, inst disasm.Instruction) string {
	if len(ops) == 2 {
		return fmt.Sprintf("%s(%s, %s);", callName, ops[0], ops[1])
	}
	return "// " + inst.Text()
}

func renderCall(inst disasm.Instruction, ops []string) string {
	if inst.Branch.HasTarget {
		return fmt.Sprintf("sub_%x();", inst.Branch.Target)
	}
	if len(ops) > 0 {
		return fmt.Sprintf("(%s)();", ops[len(ops)-1])
	}
	return "// " + inst.Text()
}

func renderCondBranch(inst disasm.Instruction, ops []string) string {
	cond := inst.Branch.Condition
	if cond == "" {
		cond = "cond"
	}
	if inst.Branch.HasTarget {
		return fmt.Sprintf("if (%s) goto loc_%x;", cond, inst.Branch.Target)
	}
	return fmt.Sprintf("if (%s) goto %s;", cond, lastOperand(ops, inst))
}

func renderGoto(inst disasm.Instruction, ops []string) string {
	if inst.Branch.HasTarget {
		return fmt.Sprintf("goto loc_%x;", inst.Branch.Target)
	}
	return fmt.Sprintf("goto %s;", lastOperand(ops, inst))
}

func lastOperand(ops []string, inst disasm.Instruction) string {
	if len(ops) > 0 {
		return ops[len(ops)-1]
	}
	return inst.Operands
}

func isMove(m string) bool {
	switch m {
	case "MOV", "MOVZ", "MOVN", "MOVK", "FMOV", "ADR", "ADRP", "LEA":
		return true
	}
	return false
}

// derefOperand turns a memory operand like [X0, #8] or [rbp-0x10] into a
// parenthesized address expression.
func derefOperand(op string) string {
	op = strings.TrimSuffix(strings.TrimPrefix(op, "["), "]")
	op = strings.ReplaceAll(op, "#", "")
	if strings.ContainsAny(op, ", ") {
		op = strings.ReplaceAll(op, ", ", " + ")
	}
	return "(" + op + ")"
}

// splitOperands splits an operand string on commas that are not inside a
// bracketed memory reference.
func splitOperands(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, strings.TrimSpace(s[start:]))
	return out
}

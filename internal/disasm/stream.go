package disasm

import (
	"context"
)

// DecodeRange walks a code buffer from base address to the end, producing one
// record per decoded instruction. Cancellation is cooperative: the context is
// polled at instruction granularity, and on cancellation the instructions
// decoded so far are returned together with ErrCancelled.
func DecodeRange(ctx context.Context, d Decoder, code []byte, base uint64) ([]Instruction, error) {
	// Rough pre-size assuming 4-byte average instruction length.
	instrs := make([]Instruction, 0, len(code)/4+1)
	off := 0
	for off < len(code) {
		if err := ctx.Err(); err != nil {
			return instrs, ErrCancelled
		}
		in := d.Decode(code[off:], base+uint64(off))
		if in.Length <= 0 {
			// A decoder must always advance; treat a zero-length record
			// as a one-byte literal so the walk terminates.
			in.Length = 1
			in.Bytes = code[off : off+1]
		}
		if off+in.Length > len(code) {
			in.Length = len(code) - off
			in.Bytes = code[off:]
		}
		instrs = append(instrs, in)
		off += in.Length
	}
	return instrs, nil
}

// DecodeWindow decodes at most max instructions starting at the given offset
// into code. Used by callers that page through large text sections.
func DecodeWindow(ctx context.Context, d Decoder, code []byte, base uint64, max int) ([]Instruction, error) {
	instrs := make([]Instruction, 0, max)
	off := 0
	for off < len(code) && len(instrs) < max {
		if err := ctx.Err(); err != nil {
			return instrs, ErrCancelled
		}
		in := d.Decode(code[off:], base+uint64(off))
		if in.Length <= 0 {
			in.Length = 1
			in.Bytes = code[off : off+1]
		}
		if off+in.Length > len(code) {
			in.Length = len(code) - off
			in.Bytes = code[off:]
		}
		instrs = append(instrs, in)
		off += in.Length
	}
	return instrs, nil
}

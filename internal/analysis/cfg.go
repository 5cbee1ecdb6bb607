package analysis

import (
	"fmt"
	"sort"

	"github.com/IntervalMedia/ReDyned/internal/disasm"
)

// EdgeKind classifies a control-flow edge.
type EdgeKind int

const (
	EdgeNormal EdgeKind = iota // fallthrough or unconditional transfer
	EdgeTrueBranch
	EdgeFalseBranch
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeTrueBranch:
		return "true_branch"
	case EdgeFalseBranch:
		return "false_branch"
	default:
		return "normal"
	}
}

// BasicBlock is a maximal straight-line instruction run. End is the address
// of the last instruction in the block.
type BasicBlock struct {
	Index        int
	Start        uint64
	End          uint64
	Instructions []disasm.Instruction
}

// Edge connects two basic blocks by index.
type Edge struct {
	From, To int
	Kind     EdgeKind
}

// CFG is a function's control-flow graph. Block 0 is the entry.
type CFG struct {
	Blocks []BasicBlock
	Edges  []Edge
}

// BuildCFG partitions a function into basic blocks and connects them with
// typed edges. Block starts are the function entry, every branch target that
// lands inside the function, and the instruction following every
// control-transfer instruction. A branch whose target does not resolve to a
// known block start gets no edge — computed targets are never guessed.
func BuildCFG(fn *Function) *CFG {
	instrs := fn.Instructions
	g := &CFG{}
	if len(instrs) == 0 {
		fn.Graph = g
		return g
	}

	starts := map[uint64]bool{fn.StartAddress: true}
	for i := range instrs {
		in := &instrs[i]
		if !isTransfer(in) {
			continue
		}
		if in.Branch.HasTarget && in.Branch.Target >= fn.StartAddress && in.Branch.Target <= fn.EndAddress &&
			indexOf(instrs, in.Branch.Target) >= 0 {
			starts[in.Branch.Target] = true
		}
		if i+1 < len(instrs) {
			starts[instrs[i+1].Address] = true
		}
	}

	addrs := make([]uint64, 0, len(starts))
	for a := range starts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	// Slice the instruction list into contiguous blocks.
	blockAt := make(map[uint64]int, len(addrs))
	lo := 0
	for bi, start := range addrs {
		hi := len(instrs)
		if bi+1 < len(addrs) {
			hi = indexOf(instrs, addrs[bi+1])
		}
		lo = indexOf(instrs, start)
		if lo < 0 || hi <= lo {
			continue
		}
		b := BasicBlock{
			Index:        len(g.Blocks),
			Start:        instrs[lo].Address,
			End:          instrs[hi-1].Address,
			Instructions: instrs[lo:hi],
		}
		blockAt[b.Start] = b.Index
		g.Blocks = append(g.Blocks, b)
	}

	for bi := range g.Blocks {
		b := &g.Blocks[bi]
		last := &b.Instructions[len(b.Instructions)-1]
		fallthroughStart := b.End + uint64(last.Length)

		if !isTransfer(last) {
			// Block was split by an incoming branch target.
			if to, ok := blockAt[fallthroughStart]; ok {
				g.Edges = append(g.Edges, Edge{From: bi, To: to, Kind: EdgeNormal})
			}
			continue
		}

		switch last.Branch.Kind {
		case disasm.BranchUnconditional:
			if last.Branch.HasTarget {
				if to, ok := blockAt[last.Branch.Target]; ok {
					g.Edges = append(g.Edges, Edge{From: bi, To: to, Kind: EdgeNormal})
				}
			}
		case disasm.BranchConditional:
			if last.Branch.HasTarget {
				if to, ok := blockAt[last.Branch.Target]; ok {
					g.Edges = append(g.Edges, Edge{From: bi, To: to, Kind: EdgeTrueBranch})
				}
			}
			if to, ok := blockAt[fallthroughStart]; ok {
				g.Edges = append(g.Edges, Edge{From: bi, To: to, Kind: EdgeFalseBranch})
			}
		case disasm.BranchCall:
			// A call does not terminate local flow.
			if to, ok := blockAt[fallthroughStart]; ok {
				g.Edges = append(g.Edges, Edge{From: bi, To: to, Kind: EdgeNormal})
			}
		case disasm.BranchReturn:
			// No outgoing edge.
		case disasm.BranchIndirect:
			// Computed target: no edge.
		}
	}

	fn.Graph = g
	return g
}

// isTransfer reports whether the instruction ends a basic block. Calls are
// included: the call block gets a plain fallthrough edge, since a call does
// not divert local flow.
func isTransfer(in *disasm.Instruction) bool {
	return in.Branch != nil && in.Branch.Kind != disasm.BranchNone
}

func indexOf(instrs []disasm.Instruction, addr uint64) int {
	i := sort.Search(len(instrs), func(k int) bool { return instrs[k].Address >= addr })
	if i < len(instrs) && instrs[i].Address == addr {
		return i
	}
	return -1
}

// Validate checks graph structural invariants: every edge endpoint is a
// valid block index, no block is empty, and when the graph has more than one
// block no non-entry block is left unreferenced by any edge.
func (g *CFG) Validate() error {
	n := len(g.Blocks)
	for _, e := range g.Edges {
		if e.From < 0 || e.From >= n || e.To < 0 || e.To >= n {
			return fmt.Errorf("edge %d->%d out of range (%d blocks)", e.From, e.To, n)
		}
	}
	referenced := make([]bool, n)
	for _, e := range g.Edges {
		referenced[e.To] = true
		referenced[e.From] = true
	}
	for i, b := range g.Blocks {
		if len(b.Instructions) == 0 {
			return fmt.Errorf("block %d is empty", i)
		}
		if n > 1 && i != 0 && !referenced[i] {
			return fmt.Errorf("block %d (0x%x) is unreachable and unreferenced", i, b.Start)
		}
	}
	return nil
}

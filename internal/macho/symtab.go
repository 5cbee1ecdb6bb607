package macho

import "sort"

// Symbol kind derived from the nlist type field and the containing section.
type SymbolKind int

const (
	SymbolUndefined SymbolKind = iota
	SymbolFunction
	SymbolData
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolFunction:
		return "function"
	case SymbolData:
		return "data"
	default:
		return "undefined"
	}
}

// Symbol is one parsed symbol table entry with its resolved name.
type Symbol struct {
	Name        string
	DisplayName string // demangled form, or Name when demangling fails
	Address     uint64
	Size        uint64
	Kind        SymbolKind
	External    bool
	Defined     bool
	SectionIdx  uint8
}

// nlist type field bits.
const (
	nStab = 0xe0
	nExt  = 0x01

	nTypeMask = 0x0e
	nTypeUndf = 0x0
	nTypeAbs  = 0x2
	nTypeSect = 0xe
	nTypeIndr = 0xa
)

const (
	nlistSize32 = 12
	nlistSize64 = 16
)

// Section attribute flags marking machine code.
const (
	sAttrPureInstructions = 0x80000000
	sAttrSomeInstructions = 0x00000400
)

// ParseSymbols reads the symbol and string tables referenced by the image's
// LC_SYMTAB command. Absent symtab fails soft: the result is an empty list so
// disassembly can continue on prologue heuristics alone. A string-table
// offset beyond the table yields an empty name rather than an error.
func ParseSymbols(img *Image) []Symbol {
	loc := img.Symtab
	if loc == nil || loc.NSyms == 0 {
		return nil
	}
	entrySize := uint64(nlistSize32)
	if img.Header.Is64 {
		entrySize = nlistSize64
	}
	symEnd := uint64(loc.SymOff) + uint64(loc.NSyms)*entrySize
	strEnd := uint64(loc.StrOff) + uint64(loc.StrSize)
	if symEnd > uint64(len(img.data)) || strEnd > uint64(len(img.data)) {
		return nil
	}

	r := reader{data: img.data, order: img.order}
	syms := make([]Symbol, 0, loc.NSyms)
	for i := uint32(0); i < loc.NSyms; i++ {
		base := uint64(loc.SymOff) + uint64(i)*entrySize
		strx, _ := r.u32(base)
		typ := img.data[base+4]
		sect := img.data[base+5]
		var value uint64
		if img.Header.Is64 {
			value, _ = r.u64(base + 8)
		} else {
			v32, _ := r.u32(base + 8)
			value = uint64(v32)
		}

		if typ&nStab != 0 {
			continue
		}

		sym := Symbol{
			Address:    value,
			External:   typ&nExt != 0,
			SectionIdx: sect,
		}
		sym.Name = img.stringAt(uint64(loc.StrOff)+uint64(strx), strEnd, strx)
		sym.DisplayName = sym.Name
		if d := CachedDemangle(sym.Name); d != "" {
			sym.DisplayName = d
		}

		switch typ & nTypeMask {
		case nTypeUndf, nTypeIndr:
			sym.Kind = SymbolUndefined
		case nTypeAbs:
			sym.Defined = true
			sym.Kind = SymbolData
		case nTypeSect:
			sym.Defined = true
			if img.sectionIsCode(sect) {
				sym.Kind = SymbolFunction
			} else {
				sym.Kind = SymbolData
			}
		default:
			sym.Kind = SymbolUndefined
		}
		syms = append(syms, sym)
	}

	fillSymbolSizes(syms)
	return syms
}

// stringAt resolves a string-table reference. strx==0 and out-of-range
// offsets both produce an empty name.
func (img *Image) stringAt(off, limit uint64, strx uint32) string {
	if strx == 0 || off >= limit || off >= uint64(len(img.data)) {
		return ""
	}
	end := off
	for end < limit && img.data[end] != 0 {
		end++
	}
	return string(img.data[off:end])
}

// sectionIsCode reports whether the 1-based section index names a section
// containing instructions.
func (img *Image) sectionIsCode(idx uint8) bool {
	if idx == 0 || int(idx) > len(img.Sections) {
		return false
	}
	s := img.Sections[idx-1]
	if s.Flags&(sAttrPureInstructions|sAttrSomeInstructions) != 0 {
		return true
	}
	return s.Segment == "__TEXT" && s.Name == "__text"
}

// fillSymbolSizes estimates each defined function symbol's size as the gap to
// the next defined symbol address. The last symbol keeps size 0.
func fillSymbolSizes(syms []Symbol) {
	addrs := make([]uint64, 0, len(syms))
	for _, s := range syms {
		if s.Defined && s.Address != 0 {
			addrs = append(addrs, s.Address)
		}
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	for i := range syms {
		if !syms[i].Defined || syms[i].Address == 0 {
			continue
		}
		j := sort.Search(len(addrs), func(k int) bool { return addrs[k] > syms[i].Address })
		if j < len(addrs) {
			syms[i].Size = addrs[j] - syms[i].Address
		}
	}
}

// SymbolAtAddress selects one symbol among those sharing an address:
// the first external defined symbol wins, else the first defined symbol,
// else the first in file order.
func SymbolAtAddress(syms []Symbol, addr uint64) (Symbol, bool) {
	var best Symbol
	found := false
	for _, s := range syms {
		if s.Address != addr {
			continue
		}
		if !found {
			best, found = s, true
			continue
		}
		if s.Defined && s.External && !(best.Defined && best.External) {
			best = s
		} else if s.Defined && !best.Defined {
			best = s
		}
	}
	return best, found
}

// FunctionSymbols returns the defined function symbols sorted by address.
// Address collisions keep only the winner under the SymbolAtAddress policy.
func FunctionSymbols(syms []Symbol) []Symbol {
	byAddr := make(map[uint64]Symbol)
	order := make([]uint64, 0)
	for _, s := range syms {
		if !s.Defined || s.Kind != SymbolFunction {
			continue
		}
		cur, ok := byAddr[s.Address]
		if !ok {
			byAddr[s.Address] = s
			order = append(order, s.Address)
			continue
		}
		if s.External && !cur.External {
			byAddr[s.Address] = s
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]Symbol, 0, len(order))
	for _, a := range order {
		out = append(out, byAddr[a])
	}
	return out
}

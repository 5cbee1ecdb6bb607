package macho

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// symSpec describes one nlist_64 entry for the fixture builder.
type symSpec struct {
	name  string
	typ   uint8
	sect  uint8
	value uint64
}

// buildThin64 assembles a minimal 64-bit little-endian arm64 Mach-O image:
// one __TEXT segment holding a __text section with the given code, and an
// optional symbol table.
func buildThin64(t *testing.T, code []byte, syms []symSpec) []byte {
	t.Helper()

	const textAddr = 0x1000
	ncmds := uint32(1)
	sizeofcmds := uint32(segCmdSize64 + sectSize64)
	if syms != nil {
		ncmds++
		sizeofcmds += symtabCmdSize
	}
	codeOff := uint32(headerSize64) + sizeofcmds

	// String table: index 0 is reserved.
	strtab := []byte{0}
	strx := make([]uint32, len(syms))
	for i, s := range syms {
		strx[i] = uint32(len(strtab))
		strtab = append(strtab, []byte(s.name)...)
		strtab = append(strtab, 0)
	}
	symOff := codeOff + uint32(len(code))
	strOff := symOff + uint32(len(syms))*nlistSize64
	total := strOff + uint32(len(strtab))

	var buf bytes.Buffer
	le := binary.LittleEndian
	w := func(v any) {
		if err := binary.Write(&buf, le, v); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}
	name16 := func(s string) []byte {
		b := make([]byte, 16)
		copy(b, s)
		return b
	}

	// mach_header_64
	w(uint32(Magic64))
	w(uint32(CPUTypeARM64))
	w(uint32(0)) // cpusubtype
	w(uint32(2)) // MH_EXECUTE
	w(ncmds)
	w(sizeofcmds)
	w(uint32(0)) // flags
	w(uint32(0)) // reserved

	// LC_SEGMENT_64 __TEXT
	w(uint32(lcSegment64))
	w(uint32(segCmdSize64 + sectSize64))
	buf.Write(name16("__TEXT"))
	w(uint64(textAddr)) // vmaddr
	w(uint64(0x1000))   // vmsize
	w(uint64(0))        // fileoff
	w(uint64(total))    // filesize
	w(uint32(7))        // maxprot
	w(uint32(5))        // initprot
	w(uint32(1))        // nsects
	w(uint32(0))        // flags

	// section_64 __text
	buf.Write(name16("__text"))
	buf.Write(name16("__TEXT"))
	w(uint64(textAddr + uint64(codeOff))) // addr
	w(uint64(len(code)))                  // size
	w(codeOff)                            // offset
	w(uint32(2))                          // align
	w(uint32(0))                          // reloff
	w(uint32(0))                          // nreloc
	w(uint32(sAttrPureInstructions | sAttrSomeInstructions))
	w(uint32(0))
	w(uint32(0))
	w(uint32(0))

	if syms != nil {
		w(uint32(lcSymtab))
		w(uint32(symtabCmdSize))
		w(symOff)
		w(uint32(len(syms)))
		w(strOff)
		w(uint32(len(strtab)))
	}

	buf.Write(code)
	for i, s := range syms {
		w(strx[i])
		w(s.typ)
		w(s.sect)
		w(uint16(0)) // desc
		w(s.value)
	}
	buf.Write(strtab)

	if buf.Len() != int(total) {
		t.Fatalf("fixture layout drifted: got %d bytes, computed %d", buf.Len(), total)
	}
	return buf.Bytes()
}

func TestOpenBytesParsesImage(t *testing.T) {
	code := []byte{0xC0, 0x03, 0x5F, 0xD6} // RET
	img, err := OpenBytes(buildThin64(t, code, nil))
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}

	if got := img.Header.CPUName(); got != "arm64" {
		t.Errorf("CPUName = %q, want arm64", got)
	}
	if !img.Header.Is64 {
		t.Error("Is64 = false")
	}
	if len(img.Segments) != 1 || img.Segments[0].Name != "__TEXT" {
		t.Fatalf("segments = %+v", img.Segments)
	}
	if len(img.Sections) != 1 || img.Sections[0].Name != "__text" {
		t.Fatalf("sections = %+v", img.Sections)
	}

	sec, err := img.TextSection()
	if err != nil {
		t.Fatalf("TextSection: %v", err)
	}
	data, err := img.SectionBytes(sec)
	if err != nil {
		t.Fatalf("SectionBytes: %v", err)
	}
	if !bytes.Equal(data, code) {
		t.Errorf("section bytes = %x, want %x", data, code)
	}
}

func TestOpenBytesErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"bad magic", []byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0}, ErrInvalidMagic},
		{"truncated header", []byte{0xcf, 0xfa, 0xed, 0xfe, 0x0c, 0x00, 0x00, 0x01}, ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenBytes(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("OpenBytes(%x) error = %v, want %v", tt.data, err, tt.want)
			}
		})
	}
}

func TestSectionNotFound(t *testing.T) {
	img, err := OpenBytes(buildThin64(t, []byte{0, 0, 0, 0}, nil))
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	if _, err := img.Section("__DATA", "__data"); !errors.Is(err, ErrSectionNotFound) {
		t.Errorf("Section error = %v, want ErrSectionNotFound", err)
	}
}

func TestVA2Off(t *testing.T) {
	code := []byte{0xC0, 0x03, 0x5F, 0xD6}
	img, err := OpenBytes(buildThin64(t, code, nil))
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}

	sec := img.Sections[0]
	off, ok := img.VA2Off(sec.Addr)
	if !ok || off != uint64(sec.Offset) {
		t.Errorf("VA2Off(%#x) = %#x, %v; want %#x", sec.Addr, off, ok, sec.Offset)
	}
	if _, ok := img.VA2Off(0xdead0000); ok {
		t.Error("VA2Off out of range succeeded")
	}

	got, ok := img.ReadBytesVA(sec.Addr, len(code))
	if !ok || !bytes.Equal(got, code) {
		t.Errorf("ReadBytesVA = %x, %v", got, ok)
	}
}

func TestFatSliceSelection(t *testing.T) {
	thin := buildThin64(t, []byte{0xC0, 0x03, 0x5F, 0xD6}, nil)

	var buf bytes.Buffer
	be := binary.BigEndian
	w := func(v uint32) { binary.Write(&buf, be, v) }
	w(FatMagic)
	w(1) // nfat_arch
	w(CPUTypeARM64)
	w(0)
	w(uint32(fatHeaderSize + fatArchSize)) // offset
	w(uint32(len(thin)))
	w(2)
	buf.Write(thin)

	img, err := OpenBytes(buf.Bytes())
	if err != nil {
		t.Fatalf("OpenBytes(fat): %v", err)
	}
	if img.Header.CPUType != CPUTypeARM64 {
		t.Errorf("selected cpu = %#x", img.Header.CPUType)
	}
	if len(img.FatArches) != 1 {
		t.Errorf("FatArches = %d", len(img.FatArches))
	}

	if _, err := OpenBytesArch(buf.Bytes(), CPUTypeX86_64); !errors.Is(err, ErrUnsupportedArch) {
		t.Errorf("OpenBytesArch(x86_64) error = %v, want ErrUnsupportedArch", err)
	}
}

func TestParseSymbols(t *testing.T) {
	code := make([]byte, 16)
	syms := []symSpec{
		{name: "_main", typ: nTypeSect | nExt, sect: 1, value: 0x10d0},
		{name: "_helper", typ: nTypeSect, sect: 1, value: 0x10d8},
		{name: "_printf", typ: nTypeUndf | nExt, sect: 0, value: 0},
		{name: "debug.c", typ: 0x64 /* N_SO stab */, sect: 0, value: 0},
	}
	img, err := OpenBytes(buildThin64(t, code, syms))
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}

	got := ParseSymbols(img)
	if len(got) != 3 {
		t.Fatalf("ParseSymbols = %d symbols, want 3 (stab skipped)", len(got))
	}

	main := got[0]
	if main.Name != "_main" || main.Kind != SymbolFunction || !main.External || !main.Defined {
		t.Errorf("main = %+v", main)
	}
	if main.Size != 8 {
		t.Errorf("main.Size = %d, want 8 (gap to next defined symbol)", main.Size)
	}
	if got[1].External {
		t.Errorf("helper should be local: %+v", got[1])
	}
	undef := got[2]
	if undef.Kind != SymbolUndefined || undef.Defined {
		t.Errorf("printf = %+v", undef)
	}

	fns := FunctionSymbols(got)
	if len(fns) != 2 || fns[0].Name != "_main" || fns[1].Name != "_helper" {
		t.Errorf("FunctionSymbols = %+v", fns)
	}
}

func TestParseSymbolsMissingSymtab(t *testing.T) {
	img, err := OpenBytes(buildThin64(t, []byte{0, 0, 0, 0}, nil))
	if err != nil {
		t.Fatalf("OpenBytes: %v", err)
	}
	if got := ParseSymbols(img); got != nil {
		t.Errorf("ParseSymbols without LC_SYMTAB = %+v, want nil", got)
	}
}

func TestSymbolAtAddressCollision(t *testing.T) {
	syms := []Symbol{
		{Name: "local_first", Address: 0x100, Defined: true},
		{Name: "ext_second", Address: 0x100, Defined: true, External: true},
		{Name: "undef_third", Address: 0x100},
	}

	got, ok := SymbolAtAddress(syms, 0x100)
	if !ok || got.Name != "ext_second" {
		t.Errorf("SymbolAtAddress = %+v, want external defined winner", got)
	}

	// Without an external candidate the first defined symbol wins.
	got, ok = SymbolAtAddress(syms[:1], 0x100)
	if !ok || got.Name != "local_first" {
		t.Errorf("SymbolAtAddress = %+v, want first defined", got)
	}

	if _, ok := SymbolAtAddress(syms, 0x200); ok {
		t.Error("SymbolAtAddress found symbol at empty address")
	}
}

func TestCachedDemangle(t *testing.T) {
	// C++ mangled name resolves through the demangler and is memoized.
	got := CachedDemangle("_Z3addii")
	if got != "add(int, int)" {
		t.Errorf("CachedDemangle = %q", got)
	}
	if again := CachedDemangle("_Z3addii"); again != got {
		t.Errorf("cache returned different result: %q", again)
	}
	// Unmangled names pass through.
	if got := CachedDemangle("_main"); got != "_main" {
		t.Errorf("CachedDemangle(_main) = %q", got)
	}
}

// Package macho provides helpers for opening Mach-O binaries (thin or
// universal), locating segments and sections, and mapping virtual addresses
// to file offsets. All offset/size reads are bounds-checked against the file
// length before any dereference; a truncated or malformed file yields a typed
// error rather than a panic.
package macho

import (
	"encoding/binary"
	"fmt"
)

// Magic numbers.
const (
	Magic32    = 0xfeedface
	Magic64    = 0xfeedfacf
	Cigam32    = 0xcefaedfe
	Cigam64    = 0xcffaedfe
	FatMagic   = 0xcafebabe
	FatCigam   = 0xbebafeca
)

// CPU types.
const (
	CPUTypeX86_64 = 0x01000007
	CPUTypeARM64  = 0x0100000c
)

// Load command identifiers handled by the parser. Unknown commands are
// skipped using their reported size.
const (
	lcSegment       = 0x1
	lcSymtab        = 0x2
	lcUnixThread    = 0x5
	lcLoadDylib     = 0xc
	lcIDDylib       = 0xd
	lcSegment64     = 0x19
	lcUUID          = 0x1b
	lcCodeSignature = 0x1d
	lcMain          = 0x80000028
)

// Header holds the parsed Mach-O file header of the selected slice.
type Header struct {
	Magic      uint32
	CPUType    uint32
	CPUSubtype uint32
	FileType   uint32
	NCmds      uint32
	SizeOfCmds uint32
	Flags      uint32
	Is64       bool
	Swapped    bool
}

// CPUName returns a human-readable architecture name.
func (h Header) CPUName() string {
	switch h.CPUType {
	case CPUTypeARM64:
		return "arm64"
	case CPUTypeX86_64:
		return "x86_64"
	default:
		return fmt.Sprintf("cpu(0x%x)", h.CPUType)
	}
}

// Segment is one LC_SEGMENT/LC_SEGMENT_64 record.
type Segment struct {
	Name     string
	Addr     uint64
	VMSize   uint64
	Offset   uint64
	FileSize uint64
	MaxProt  uint32
	InitProt uint32
	NSects   uint32
}

// Section is one section record nested in a segment.
type Section struct {
	Name    string
	Segment string
	Addr    uint64
	Size    uint64
	Offset  uint32
	Align   uint32
	Flags   uint32
}

// SymtabLoc is the LC_SYMTAB location record.
type SymtabLoc struct {
	SymOff  uint32
	NSyms   uint32
	StrOff  uint32
	StrSize uint32
}

// FatArch is one slice record from a universal (fat) archive header.
type FatArch struct {
	CPUType    uint32
	CPUSubtype uint32
	Offset     uint32
	Size       uint32
	Align      uint32
}

const (
	headerSize32 = 28
	headerSize64 = 32
	fatHeaderSize = 8
	fatArchSize   = 20

	segCmdSize32  = 56
	segCmdSize64  = 72
	sectSize32    = 68
	sectSize64    = 80
	symtabCmdSize = 24
)

// reader wraps a byte slice with bounds-checked fixed-width reads.
type reader struct {
	data  []byte
	order binary.ByteOrder
}

func (r reader) u32(off uint64) (uint32, error) {
	if off+4 > uint64(len(r.data)) {
		return 0, ErrTruncated
	}
	return r.order.Uint32(r.data[off:]), nil
}

func (r reader) u64(off uint64) (uint64, error) {
	if off+8 > uint64(len(r.data)) {
		return 0, ErrTruncated
	}
	return r.order.Uint64(r.data[off:]), nil
}

// fixedName reads a NUL-padded 16-byte name field.
func (r reader) fixedName(off uint64) (string, error) {
	if off+16 > uint64(len(r.data)) {
		return "", ErrTruncated
	}
	b := r.data[off : off+16]
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), nil
		}
	}
	return string(b), nil
}

// cstring reads a NUL-terminated string starting at off, bounded by limit.
func (r reader) cstring(off, limit uint64) (string, error) {
	if off >= uint64(len(r.data)) || limit > uint64(len(r.data)) {
		return "", ErrTruncated
	}
	end := off
	for end < limit && r.data[end] != 0 {
		end++
	}
	return string(r.data[off:end]), nil
}

func byteOrderForMagic(magic uint32) (binary.ByteOrder, bool, bool) {
	switch magic {
	case Magic32:
		return binary.LittleEndian, false, false
	case Magic64:
		return binary.LittleEndian, true, false
	case Cigam32:
		return binary.BigEndian, false, true
	case Cigam64:
		return binary.BigEndian, true, true
	default:
		return nil, false, false
	}
}

// selectSlice picks the preferred architecture slice from a fat archive:
// the requested CPU type if present, else arm64, else x86_64, else the
// first slice in file order.
func selectSlice(arches []FatArch, want uint32) FatArch {
	if want != 0 {
		for _, a := range arches {
			if a.CPUType == want {
				return a
			}
		}
	}
	for _, preferred := range []uint32{CPUTypeARM64, CPUTypeX86_64} {
		for _, a := range arches {
			if a.CPUType == preferred {
				return a
			}
		}
	}
	return arches[0]
}

// parseFatHeader parses a universal archive header and returns its slice
// records. Fat headers are always big-endian.
func parseFatHeader(data []byte) ([]FatArch, error) {
	if len(data) < fatHeaderSize {
		return nil, fmt.Errorf("parse fat header: %w", ErrTruncated)
	}
	narch := binary.BigEndian.Uint32(data[4:])
	if narch == 0 {
		return nil, fmt.Errorf("parse fat header: empty archive: %w", ErrMissingLoadCommand)
	}
	if narch > 128 {
		return nil, fmt.Errorf("parse fat header: implausible slice count %d: %w", narch, ErrTruncated)
	}
	need := uint64(fatHeaderSize) + uint64(narch)*fatArchSize
	if need > uint64(len(data)) {
		return nil, fmt.Errorf("parse fat header: %w", ErrTruncated)
	}
	arches := make([]FatArch, 0, narch)
	for i := uint32(0); i < narch; i++ {
		off := fatHeaderSize + int(i)*fatArchSize
		a := FatArch{
			CPUType:    binary.BigEndian.Uint32(data[off:]),
			CPUSubtype: binary.BigEndian.Uint32(data[off+4:]),
			Offset:     binary.BigEndian.Uint32(data[off+8:]),
			Size:       binary.BigEndian.Uint32(data[off+12:]),
			Align:      binary.BigEndian.Uint32(data[off+16:]),
		}
		if uint64(a.Offset)+uint64(a.Size) > uint64(len(data)) {
			return nil, fmt.Errorf("parse fat arch %d: slice out of bounds: %w", i, ErrTruncated)
		}
		arches = append(arches, a)
	}
	return arches, nil
}

// parseImage parses a thin Mach-O slice into img. data must start at the
// slice's header.
func parseImage(img *Image, data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("parse header: %w", ErrTruncated)
	}
	magic := binary.LittleEndian.Uint32(data)
	order, is64, swapped := byteOrderForMagic(magic)
	if order == nil {
		// Try raw big-endian read of the same bytes.
		magic = binary.BigEndian.Uint32(data)
		order, is64, swapped = byteOrderForMagic(magic)
		if order == nil {
			return fmt.Errorf("parse header: 0x%08x: %w", magic, ErrInvalidMagic)
		}
	}

	r := reader{data: data, order: order}
	hdrSize := uint64(headerSize32)
	if is64 {
		hdrSize = headerSize64
	}
	if uint64(len(data)) < hdrSize {
		return fmt.Errorf("parse header: %w", ErrTruncated)
	}

	img.data = data
	img.order = order
	img.Header = Header{
		Magic:      magic,
		Is64:       is64,
		Swapped:    swapped,
	}
	img.Header.CPUType, _ = r.u32(4)
	img.Header.CPUSubtype, _ = r.u32(8)
	img.Header.FileType, _ = r.u32(12)
	img.Header.NCmds, _ = r.u32(16)
	img.Header.SizeOfCmds, _ = r.u32(20)
	img.Header.Flags, _ = r.u32(24)

	if img.Header.CPUType != CPUTypeARM64 && img.Header.CPUType != CPUTypeX86_64 {
		return fmt.Errorf("parse header: cpu type 0x%x: %w", img.Header.CPUType, ErrUnsupportedArch)
	}

	return parseLoadCommands(img, r, hdrSize)
}

func parseLoadCommands(img *Image, r reader, off uint64) error {
	end := off + uint64(img.Header.SizeOfCmds)
	if end > uint64(len(r.data)) {
		return fmt.Errorf("load commands: %w", ErrTruncated)
	}
	for i := uint32(0); i < img.Header.NCmds && off < end; i++ {
		cmd, err := r.u32(off)
		if err != nil {
			return fmt.Errorf("load command %d: %w", i, err)
		}
		cmdSize, err := r.u32(off + 4)
		if err != nil {
			return fmt.Errorf("load command %d: %w", i, err)
		}
		if cmdSize < 8 || off+uint64(cmdSize) > end {
			return fmt.Errorf("load command %d: bad cmdsize %d: %w", i, cmdSize, ErrTruncated)
		}

		switch cmd {
		case lcSegment:
			if err := parseSegment(img, r, off, false); err != nil {
				return fmt.Errorf("load command %d: %w", i, err)
			}
		case lcSegment64:
			if err := parseSegment(img, r, off, true); err != nil {
				return fmt.Errorf("load command %d: %w", i, err)
			}
		case lcSymtab:
			if cmdSize < symtabCmdSize {
				return fmt.Errorf("load command %d: short symtab: %w", i, ErrTruncated)
			}
			loc := &SymtabLoc{}
			loc.SymOff, _ = r.u32(off + 8)
			loc.NSyms, _ = r.u32(off + 12)
			loc.StrOff, _ = r.u32(off + 16)
			loc.StrSize, _ = r.u32(off + 20)
			img.Symtab = loc
		case lcLoadDylib, lcIDDylib:
			nameOff, err := r.u32(off + 8)
			if err != nil || uint64(nameOff) >= uint64(cmdSize) {
				break
			}
			name, err := r.cstring(off+uint64(nameOff), off+uint64(cmdSize))
			if err == nil && name != "" && cmd == lcLoadDylib {
				img.Dylibs = append(img.Dylibs, name)
			}
		case lcUUID:
			if off+24 <= end {
				b := r.data[off+8 : off+24]
				img.UUID = fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
			}
		case lcMain, lcUnixThread:
			img.HasEntryPoint = true
			if cmd == lcMain && off+16 <= end {
				img.EntryOffset, _ = r.u64(off + 8)
			}
		case lcCodeSignature:
			img.HasCodeSignature = true
		}

		off += uint64(cmdSize)
	}

	if len(img.Segments) == 0 {
		return fmt.Errorf("no LC_SEGMENT commands: %w", ErrMissingLoadCommand)
	}
	return nil
}

func parseSegment(img *Image, r reader, off uint64, is64 bool) error {
	var seg Segment
	var sectOff, sectSize uint64
	if is64 {
		name, err := r.fixedName(off + 8)
		if err != nil {
			return err
		}
		seg.Name = name
		if seg.Addr, err = r.u64(off + 24); err != nil {
			return err
		}
		if seg.VMSize, err = r.u64(off + 32); err != nil {
			return err
		}
		if seg.Offset, err = r.u64(off + 40); err != nil {
			return err
		}
		if seg.FileSize, err = r.u64(off + 48); err != nil {
			return err
		}
		seg.MaxProt, _ = r.u32(off + 56)
		seg.InitProt, _ = r.u32(off + 60)
		seg.NSects, _ = r.u32(off + 64)
		sectOff = off + segCmdSize64
		sectSize = sectSize64
	} else {
		name, err := r.fixedName(off + 8)
		if err != nil {
			return err
		}
		seg.Name = name
		a32, err := r.u32(off + 24)
		if err != nil {
			return err
		}
		seg.Addr = uint64(a32)
		v32, _ := r.u32(off + 28)
		seg.VMSize = uint64(v32)
		o32, _ := r.u32(off + 32)
		seg.Offset = uint64(o32)
		f32, _ := r.u32(off + 36)
		seg.FileSize = uint64(f32)
		seg.MaxProt, _ = r.u32(off + 40)
		seg.InitProt, _ = r.u32(off + 44)
		seg.NSects, _ = r.u32(off + 48)
		sectOff = off + segCmdSize32
		sectSize = sectSize32
	}

	// fileoff+filesize must stay inside the slice.
	if seg.Offset+seg.FileSize > uint64(len(r.data)) {
		return fmt.Errorf("segment %s: file range out of bounds: %w", seg.Name, ErrTruncated)
	}
	img.Segments = append(img.Segments, seg)

	for s := uint32(0); s < seg.NSects; s++ {
		base := sectOff + uint64(s)*sectSize
		var sect Section
		name, err := r.fixedName(base)
		if err != nil {
			return err
		}
		sect.Name = name
		if sect.Segment, err = r.fixedName(base + 16); err != nil {
			return err
		}
		if is64 {
			if sect.Addr, err = r.u64(base + 32); err != nil {
				return err
			}
			if sect.Size, err = r.u64(base + 40); err != nil {
				return err
			}
			sect.Offset, _ = r.u32(base + 48)
			sect.Align, _ = r.u32(base + 52)
			sect.Flags, _ = r.u32(base + 64)
		} else {
			a32, err := r.u32(base + 32)
			if err != nil {
				return err
			}
			sect.Addr = uint64(a32)
			s32, _ := r.u32(base + 36)
			sect.Size = uint64(s32)
			sect.Offset, _ = r.u32(base + 40)
			sect.Align, _ = r.u32(base + 44)
			sect.Flags, _ = r.u32(base + 56)
		}
		if uint64(sect.Offset)+sect.Size > uint64(len(r.data)) && sect.Offset != 0 {
			return fmt.Errorf("section %s,%s: file range out of bounds: %w", sect.Segment, sect.Name, ErrTruncated)
		}
		img.Sections = append(img.Sections, sect)
	}
	return nil
}

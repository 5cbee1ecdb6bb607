package macho

import (
	"encoding/binary"
	"fmt"
	"os"
	"syscall"
)

// Image is one architecture slice of a Mach-O file: the raw bytes plus the
// parsed header, load command records, and symbol table location. The buffer
// is owned by the Image; downstream components borrow read-only byte ranges
// computed by address arithmetic and never mutate the source.
type Image struct {
	Path string

	Header   Header
	Segments []Segment
	Sections []Section
	Symtab   *SymtabLoc
	Dylibs   []string
	UUID     string

	HasEntryPoint    bool
	EntryOffset      uint64
	HasCodeSignature bool

	// FatArches is non-nil when the file was a universal archive; the
	// parsed slice is the one chosen by selectSlice.
	FatArches []FatArch

	data   []byte
	order  binary.ByteOrder
	mapped []byte
	f      *os.File
}

// Open memory-maps a Mach-O file and parses it. For a universal archive the
// arm64 slice is preferred, then x86_64, then the first slice.
func Open(path string) (*Image, error) {
	return OpenArch(path, 0)
}

// OpenArch is Open with an explicit CPU type request for fat archives.
// want==0 means best available.
func OpenArch(path string, want uint32) (*Image, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if fi.Size() < 4 {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", path, ErrTruncated)
	}

	all, err := syscall.Mmap(int(f.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	img, err := parseBytes(all, want)
	if err != nil {
		syscall.Munmap(all)
		f.Close()
		return nil, err
	}
	img.Path = path
	img.mapped = all
	img.f = f
	return img, nil
}

// OpenBytes parses a Mach-O image from an in-memory buffer. The buffer is
// borrowed, not copied; the caller must keep it alive and unmodified for the
// lifetime of the Image.
func OpenBytes(data []byte) (*Image, error) {
	return parseBytes(data, 0)
}

// OpenBytesArch is OpenBytes with an explicit CPU type request.
func OpenBytesArch(data []byte, want uint32) (*Image, error) {
	return parseBytes(data, want)
}

func parseBytes(all []byte, want uint32) (*Image, error) {
	if len(all) < 4 {
		return nil, ErrTruncated
	}
	img := &Image{}
	magic := binary.BigEndian.Uint32(all)
	if magic == FatMagic || magic == FatCigam {
		arches, err := parseFatHeader(all)
		if err != nil {
			return nil, err
		}
		img.FatArches = arches
		sel := selectSlice(arches, want)
		if want != 0 && sel.CPUType != want {
			return nil, fmt.Errorf("no slice for cpu type 0x%x: %w", want, ErrUnsupportedArch)
		}
		if err := parseImage(img, all[sel.Offset:sel.Offset+sel.Size]); err != nil {
			return nil, err
		}
		return img, nil
	}
	if err := parseImage(img, all); err != nil {
		return nil, err
	}
	return img, nil
}

// Close unmaps the memory and closes the underlying file.
func (img *Image) Close() error {
	var err1, err2 error
	if img.mapped != nil {
		err1 = syscall.Munmap(img.mapped)
		img.mapped = nil
	}
	if img.f != nil {
		err2 = img.f.Close()
		img.f = nil
	}
	img.data = nil
	if err1 != nil {
		return err1
	}
	return err2
}

// Size returns the byte length of the parsed slice.
func (img *Image) Size() uint64 { return uint64(len(img.data)) }

// Bytes returns the raw bytes of the parsed slice. Callers must treat the
// result as read-only.
func (img *Image) Bytes() []byte { return img.data }

// Section returns the named section, e.g. Section("__TEXT", "__text").
func (img *Image) Section(segment, name string) (Section, error) {
	for _, s := range img.Sections {
		if s.Segment == segment && s.Name == name {
			return s, nil
		}
	}
	return Section{}, fmt.Errorf("%s,%s: %w", segment, name, ErrSectionNotFound)
}

// TextSection returns the __TEXT,__text section.
func (img *Image) TextSection() (Section, error) {
	return img.Section("__TEXT", "__text")
}

// SectionBytes returns the file bytes backing a section.
func (img *Image) SectionBytes(s Section) ([]byte, error) {
	end := uint64(s.Offset) + s.Size
	if end > uint64(len(img.data)) {
		return nil, fmt.Errorf("section %s,%s: %w", s.Segment, s.Name, ErrTruncated)
	}
	return img.data[s.Offset:end], nil
}

// VA2Off translates a virtual address into a slice offset using segment
// mappings. It returns false if the VA is unmapped.
func (img *Image) VA2Off(va uint64) (uint64, bool) {
	for _, seg := range img.Segments {
		if seg.FileSize == 0 {
			continue
		}
		if va >= seg.Addr && va < seg.Addr+seg.FileSize {
			return seg.Offset + (va - seg.Addr), true
		}
	}
	return 0, false
}

// SliceVA returns a subslice of the image corresponding to the virtual
// address range [va, va+size). It returns (nil, false) if the VA is unmapped
// or the range is out of bounds.
func (img *Image) SliceVA(va, size uint64) ([]byte, bool) {
	off, ok := img.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(img.data)) || end < off {
		return nil, false
	}
	return img.data[off:end], true
}

// ReadBytesVA reads exactly size bytes from a virtual address. Returns false
// if the VA is unmapped or size extends beyond the slice bounds.
func (img *Image) ReadBytesVA(va uint64, size int) ([]byte, bool) {
	if size <= 0 {
		return []byte{}, true
	}
	return img.SliceVA(va, uint64(size))
}

// ByteOrder returns the byte order of the parsed slice.
func (img *Image) ByteOrder() binary.ByteOrder { return img.order }

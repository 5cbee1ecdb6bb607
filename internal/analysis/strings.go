package analysis

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/IntervalMedia/ReDyned/internal/macho"
)

// StringResult represents a recovered string with metadata
type StringResult struct {
	Address uint64 // Virtual address of the first byte
	Value   string // Escaped string content
	Len     int    // Original byte length
}

// EscapeUnprintable returns a string where printable Unicode runes are preserved.
// Control and unprintable runes are escaped as \uXXXX. Invalid UTF-8 is escaped as \xXX.
func EscapeUnprintable(b []byte) string {
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			// Invalid UTF-8 sequence, escape the byte
			sb.WriteString(fmt.Sprintf("\\x%02X", b[0]))
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteString(fmt.Sprintf("\\u%04X", r))
		}
		b = b[size:]
	}
	return sb.String()
}

// ExtractStrings recovers NUL-terminated strings of at least minLen bytes.
// It prefers the __TEXT,__cstring section; when the binary has none it scans
// every section backed by file content.
func ExtractStrings(img *macho.Image, minLen int) []StringResult {
	if minLen <= 0 {
		minLen = 4
	}
	if sec, err := img.Section("__TEXT", "__cstring"); err == nil {
		if data, err := img.SectionBytes(sec); err == nil {
			return scanCStrings(data, sec.Addr, minLen)
		}
	} else if !errors.Is(err, macho.ErrSectionNotFound) {
		return nil
	}

	var out []StringResult
	for _, sec := range img.Sections {
		if sec.Offset == 0 || sec.Size == 0 {
			continue
		}
		data, err := img.SectionBytes(sec)
		if err != nil {
			continue
		}
		out = append(out, scanCStrings(data, sec.Addr, minLen)...)
	}
	return out
}

func scanCStrings(data []byte, base uint64, minLen int) []StringResult {
	var out []StringResult
	start := -1
	for i, b := range data {
		if b >= 0x20 && b < 0x7F {
			if start < 0 {
				start = i
			}
			continue
		}
		if b == 0 && start >= 0 && i-start >= minLen {
			raw := data[start:i]
			if len(raw) > MaxStringLength {
				raw = raw[:MaxStringLength]
			}
			out = append(out, StringResult{
				Address: base + uint64(start),
				Value:   EscapeUnprintable(raw),
				Len:     len(raw),
			})
		}
		start = -1
	}
	return out
}

// Package typerec approximates type declarations (classes, structs, enums,
// protocols) from symbol names and embedded definition strings. Every record
// carries an advisory confidence score from a fixed decision table; the
// scores rank evidence quality and are not probabilities.
package typerec

import (
	"strings"

	"github.com/IntervalMedia/ReDyned/internal/macho"
)

// Category classifies a reconstructed type.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryClass
	CategoryStruct
	CategoryEnum
	CategoryProtocol
)

func (c Category) String() string {
	switch c {
	case CategoryClass:
		return "class"
	case CategoryStruct:
		return "struct"
	case CategoryEnum:
		return "enum"
	case CategoryProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Source tells whether a record came from symbol-table evidence or from a
// definition-looking string found in the raw bytes.
type Source int

const (
	SourceStructural Source = iota
	SourceHeuristic
)

func (s Source) String() string {
	if s == SourceHeuristic {
		return "heuristic"
	}
	return "structural"
}

// Type is one reconstructed type record, deduplicated by name within a run.
type Type struct {
	Name          string
	Category      Category
	EstimatedSize uint64
	Address       uint64
	Confidence    float64
	Source        Source
}

const objcClassMarker = "_OBJC_CLASS_$_"

// Reconstruct classifies every symbol name and returns one record per unique
// type name, in symbol-table order.
func Reconstruct(syms []macho.Symbol) []Type {
	var out []Type
	seen := make(map[string]bool)
	for _, sym := range syms {
		if sym.Name == "" {
			continue
		}
		cat, name := classify(sym.Name)
		if cat == CategoryUnknown || name == "" {
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, Type{
			Name:          name,
			Category:      cat,
			EstimatedSize: estimatedSize(name, cat),
			Address:       sym.Address,
			Confidence:    confidenceFor(sym.Name, cat),
			Source:        SourceStructural,
		})
	}
	return out
}

// ReconstructWithStrings runs Reconstruct and then scans raw binary bytes
// for source-like definition strings ("class Foo: ...", "struct Bar {",
// "enum Baz ... case"), adding any names the symbol pass missed as
// heuristic records.
func ReconstructWithStrings(syms []macho.Symbol, data []byte) []Type {
	out := Reconstruct(syms)
	seen := make(map[string]bool, len(out))
	for _, t := range out {
		seen[t.Name] = true
	}
	for _, s := range extractStrings(data) {
		var cat Category
		var name string
		switch {
		case containsClassDefinition(s):
			cat, name = CategoryClass, extractTypeName(s, "class ")
		case containsStructDefinition(s):
			cat, name = CategoryStruct, extractTypeName(s, "struct ")
		case containsEnumDefinition(s):
			cat, name = CategoryEnum, extractTypeName(s, "enum ")
		default:
			continue
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, Type{
			Name:          name,
			Category:      cat,
			EstimatedSize: estimatedSize(name, cat),
			Confidence:    0.5,
			Source:        SourceHeuristic,
		})
	}
	return out
}

func classify(symName string) (Category, string) {
	switch {
	case isClassSymbol(symName):
		return CategoryClass, extractAfter(symName, objcClassMarker)
	case isStructSymbol(symName):
		return CategoryStruct, extractAfter(symName, "_struct_")
	case isEnumSymbol(symName):
		return CategoryEnum, extractAfter(symName, "_enum_")
	case isProtocolSymbol(symName):
		return CategoryProtocol, extractAfter(symName, "_protocol_")
	default:
		return CategoryUnknown, ""
	}
}

func isClassSymbol(name string) bool {
	return strings.Contains(name, objcClassMarker) ||
		strings.Contains(name, "_TtC") ||
		strings.Contains(name, "objc_class")
}

func isStructSymbol(name string) bool {
	return strings.Contains(name, "struct") ||
		strings.Contains(name, "Struct") ||
		strings.Contains(name, "_struct_")
}

func isEnumSymbol(name string) bool {
	return strings.Contains(name, "enum") ||
		strings.Contains(name, "Enum") ||
		strings.Contains(name, "_enum_")
}

func isProtocolSymbol(name string) bool {
	return strings.Contains(name, "protocol") ||
		strings.Contains(name, "Protocol") ||
		strings.Contains(name, "_protocol_")
}

// extractAfter returns whatever follows the marker, or the whole name when
// the marker is absent.
func extractAfter(name, marker string) string {
	if i := strings.Index(name, marker); i >= 0 {
		return name[i+len(marker):]
	}
	return name
}

// confidenceFor is the evidence-quality decision table: exact runtime
// markers score highest, Swift mangled names slightly lower, keyword-based
// struct/enum/protocol matches lower still.
func confidenceFor(symName string, cat Category) float64 {
	switch {
	case strings.Contains(symName, objcClassMarker):
		return 0.9
	case cat == CategoryClass && (strings.Contains(symName, "_TtC") || strings.Contains(symName, "_Tt")):
		return 0.85
	case cat == CategoryStruct || cat == CategoryEnum:
		return 0.75
	case cat == CategoryProtocol:
		return 0.7
	default:
		return 0.6
	}
}

// estimatedSize guesses an in-memory size from naming conventions. The
// numbers are rough UIKit-era heuristics carried for display purposes only.
func estimatedSize(name string, cat Category) uint64 {
	switch cat {
	case CategoryClass:
		switch {
		case strings.Contains(name, "View") || strings.Contains(name, "Controller"):
			return 200
		case strings.Contains(name, "Manager"):
			return 150
		case strings.Contains(name, "Model"):
			return 100
		default:
			return 64
		}
	case CategoryStruct:
		switch {
		case strings.Contains(name, "Rect"):
			return 32
		case strings.Contains(name, "Point") || strings.Contains(name, "Size") || strings.Contains(name, "Range"):
			return 16
		default:
			return 24
		}
	case CategoryEnum:
		if strings.Contains(name, "Int") || strings.Contains(name, "Raw") {
			return 8
		}
		return 4
	default:
		return 0
	}
}

func containsClassDefinition(s string) bool {
	return strings.Contains(s, "class ") && strings.Contains(s, ":")
}

func containsStructDefinition(s string) bool {
	return strings.Contains(s, "struct ") && strings.Contains(s, "{")
}

func containsEnumDefinition(s string) bool {
	return strings.Contains(s, "enum ") && strings.Contains(s, "case")
}

// extractTypeName pulls the identifier that follows keyword, stopping at a
// space, colon, or brace.
func extractTypeName(s, keyword string) string {
	i := strings.Index(s, keyword)
	if i < 0 {
		return ""
	}
	rest := strings.TrimLeft(s[i+len(keyword):], " ")
	end := strings.IndexAny(rest, " :{")
	if end == 0 {
		return ""
	}
	if end > 0 {
		rest = rest[:end]
	}
	return rest
}

// extractStrings collects printable ASCII runs of at least 6 bytes, long
// enough to hold the definition keywords the heuristics look for.
func extractStrings(data []byte) []string {
	const minLen = 6
	var out []string
	start := -1
	for i, b := range data {
		printable := b >= 0x20 && b < 0x7F
		if printable {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= minLen {
			out = append(out, string(data[start:i]))
		}
		start = -1
	}
	if start >= 0 && len(data)-start >= minLen {
		out = append(out, string(data[start:]))
	}
	return out
}

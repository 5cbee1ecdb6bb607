// Package classdump reconstructs Objective-C class, category, and protocol
// declarations from the naming conventions a compiled binary leaves behind:
// runtime symbol markers (_OBJC_CLASS_$_Name and friends) and the bracketed
// method strings the compiler embeds for every selector.
package classdump

import (
	"bytes"
	"strings"

	"github.com/IntervalMedia/ReDyned/internal/logging"
	"github.com/IntervalMedia/ReDyned/internal/macho"
)

// Source records how a finding was discovered. Structural findings come from
// exact runtime markers; mangled findings are inferred from bracketed method
// strings; heuristic findings are placeholders produced when no markers exist
// at all and must never be presented as real discovered classes.
type Source int

const (
	SourceStructural Source = iota
	SourceMangled
	SourceHeuristic
)

func (s Source) String() string {
	switch s {
	case SourceStructural:
		return "structural"
	case SourceMangled:
		return "mangled"
	case SourceHeuristic:
		return "heuristic"
	default:
		return "unknown"
	}
}

// Confidence values are a fixed decision table keyed by which marker matched.
// They are advisory scores, not probabilities.
const (
	ConfidenceStructural = 0.9
	ConfidenceMangled    = 0.85
	ConfidenceHeuristic  = 0.6
)

// maxNameLen caps every name read out of raw binary bytes.
const maxNameLen = 256

const (
	classMarker     = "_OBJC_CLASS_$_"
	metaclassMarker = "_OBJC_METACLASS_$_"
	categoryMarker  = "_OBJC_CATEGORY_$_"
	protocolMarker  = "_OBJC_PROTOCOL_$_"
	ivarMarker      = "_OBJC_IVAR_$_"
)

// Class is one reconstructed Objective-C class.
type Class struct {
	Name            string
	Superclass      string
	Protocols       []string
	InstanceMethods []string
	ClassMethods    []string
	Properties      []string
	Ivars           []string
	IsSwift         bool
	IsMetaClass     bool
	Source          Source
	Confidence      float64
}

// Category is a reconstructed category on a class. When the marker carries no
// class part the class name defaults to NSObject.
type Category struct {
	Name            string
	Class           string
	InstanceMethods []string
	ClassMethods    []string
	Properties      []string
	Source          Source
	Confidence      float64
}

// Protocol is a reconstructed protocol declaration.
type Protocol struct {
	Name       string
	Methods    []string
	Source     Source
	Confidence float64
}

// Result holds everything one analysis pass found. Heuristic is set when the
// structural scans found nothing and the selector-string fallback populated
// the result with placeholder entries.
type Result struct {
	Classes    []*Class
	Categories []*Category
	Protocols  []*Protocol
	Heuristic  bool
}

// selectorStrings drive the low-confidence fallback: their presence suggests
// the binary links against the Objective-C runtime even when every marker was
// stripped.
var selectorStrings = []string{
	"init", "dealloc", "alloc", "retain", "release",
	"autorelease", "copy", "mutableCopy", "description", "debugDescription",
}

// Analyze scans raw binary bytes for Objective-C markers and returns the
// reconstructed declarations. It never fails: a binary with no markers
// yields either an empty result or, when selector strings are present,
// clearly flagged heuristic placeholders.
func Analyze(data []byte) *Result {
	res := &Result{}
	scanClasses(data, res)
	scanCategories(data, res)
	scanProtocols(data, res)
	scanIvars(data, res)
	scanMethods(data, res)

	if len(res.Classes) == 0 && len(res.Categories) == 0 && len(res.Protocols) == 0 {
		scanSelectorFallback(data, res)
	}

	if logging.IsDebug() {
		lg := logging.NewLogger()
		lg.Debug("class dump scan complete",
			"classes", len(res.Classes),
			"categories", len(res.Categories),
			"protocols", len(res.Protocols),
			"heuristic", res.Heuristic)
	}
	return res
}

// AnalyzeImage runs Analyze over the image bytes and additionally classifies
// every symbol-table name, so markers survive even if the string table is
// not contiguous with the scanned region.
func AnalyzeImage(img *macho.Image) *Result {
	res := Analyze(img.Bytes())
	for _, sym := range macho.ParseSymbols(img) {
		recordSymbolName(sym.Name, res)
	}
	return res
}

func recordSymbolName(name string, res *Result) {
	switch {
	case strings.HasPrefix(name, metaclassMarker):
		if n := boundName(name[len(metaclassMarker):]); n != "" {
			addClass(res, n, SourceStructural, ConfidenceStructural).IsMetaClass = true
		}
	case strings.HasPrefix(name, classMarker):
		if n := boundName(name[len(classMarker):]); n != "" {
			addClass(res, n, SourceStructural, ConfidenceStructural)
		}
	case strings.HasPrefix(name, categoryMarker):
		if raw := boundName(name[len(categoryMarker):]); raw != "" {
			class, category := splitCategory(raw)
			if category != "" {
				addCategory(res, class, category, SourceStructural, ConfidenceStructural)
			}
		}
	case strings.HasPrefix(name, protocolMarker):
		if n := boundName(name[len(protocolMarker):]); n != "" {
			addProtocol(res, n, SourceStructural, ConfidenceStructural)
		}
	case strings.HasPrefix(name, ivarMarker):
		if raw := boundName(name[len(ivarMarker):]); raw != "" {
			recordIvar(raw, res)
		}
	}
}

// readName copies bytes starting at off up to the first NUL, newline,
// carriage return, maxNameLen, or the end of the buffer, whichever comes
// first. It never reads past the slice.
func readName(data []byte, off int) string {
	end := off
	limit := off + maxNameLen
	if limit > len(data) {
		limit = len(data)
	}
	for end < limit {
		c := data[end]
		if c == 0 || c == '\n' || c == '\r' {
			break
		}
		end++
	}
	return string(data[off:end])
}

// boundName applies the same stop characters to a string that already left
// the raw buffer, e.g. a symbol-table name.
func boundName(s string) string {
	if i := strings.IndexAny(s, "\x00\n\r"); i >= 0 {
		s = s[:i]
	}
	if len(s) > maxNameLen {
		s = s[:maxNameLen]
	}
	return s
}

// splitCategory splits a raw category marker name on the _$_ separator into
// class and category parts. A name with no separator is a bare category on
// an unknown class.
func splitCategory(raw string) (class, category string) {
	if i := strings.Index(raw, "_$_"); i >= 0 {
		return raw[:i], raw[i+3:]
	}
	return "", raw
}

// scanMarker walks data for every occurrence of marker and invokes fn with
// the bounded name that follows it.
func scanMarker(data []byte, marker string, fn func(name string)) {
	pat := []byte(marker)
	for off := 0; ; {
		i := bytes.Index(data[off:], pat)
		if i < 0 {
			return
		}
		start := off + i + len(pat)
		if name := readName(data, start); name != "" {
			fn(name)
		}
		off += i + 1
	}
}

func scanClasses(data []byte, res *Result) {
	scanMarker(data, metaclassMarker, func(name string) {
		addClass(res, name, SourceStructural, ConfidenceStructural).IsMetaClass = true
	})
	scanMarker(data, classMarker, func(name string) {
		addClass(res, name, SourceStructural, ConfidenceStructural)
	})
}

func scanCategories(data []byte, res *Result) {
	scanMarker(data, categoryMarker, func(raw string) {
		class, category := splitCategory(raw)
		if category == "" {
			return
		}
		addCategory(res, class, category, SourceStructural, ConfidenceStructural)
	})
}

func scanProtocols(data []byte, res *Result) {
	scanMarker(data, protocolMarker, func(name string) {
		addProtocol(res, name, SourceStructural, ConfidenceStructural)
	})
}

func scanIvars(data []byte, res *Result) {
	scanMarker(data, ivarMarker, func(raw string) {
		recordIvar(raw, res)
	})
}

func recordIvar(raw string, res *Result) {
	dot := strings.IndexByte(raw, '.')
	if dot <= 0 || dot == len(raw)-1 {
		return
	}
	class, ivar := raw[:dot], raw[dot+1:]
	ci := addClass(res, class, SourceStructural, ConfidenceStructural)
	ci.Ivars = addUnique(ci.Ivars, ivar)
}

// scanMethods finds bracketed method strings: -[Class method],
// +[Class method], and the category form -[Class(Category) method]. The
// content between the brackets is capped at 200 bytes, mirroring how far a
// plausible selector string can stretch.
func scanMethods(data []byte, res *Result) {
	const maxContent = 200
	for i := 0; i+2 < len(data); i++ {
		c := data[i]
		if (c != '-' && c != '+') || data[i+1] != '[' {
			continue
		}
		start := i + 2
		window := len(data) - start
		if window > maxContent {
			window = maxContent
		}
		end := bytes.IndexByte(data[start:start+window], ']')
		if end <= 0 {
			continue
		}
		content := string(data[start : start+end])
		space := strings.IndexByte(content, ' ')
		if space <= 0 || space == len(content)-1 {
			continue
		}
		classPart, method := content[:space], content[space+1:]

		var category string
		if open := strings.IndexByte(classPart, '('); open >= 0 {
			if closeParen := strings.IndexByte(classPart[open:], ')'); closeParen > 1 {
				category = classPart[open+1 : open+closeParen]
				classPart = classPart[:open]
			}
		}
		if classPart == "" {
			continue
		}

		if category != "" {
			ci := addCategory(res, classPart, category, SourceMangled, ConfidenceMangled)
			if c == '+' {
				ci.ClassMethods = addUnique(ci.ClassMethods, method)
			} else {
				ci.InstanceMethods = addUnique(ci.InstanceMethods, method)
			}
			continue
		}
		cl := addClass(res, classPart, SourceMangled, ConfidenceMangled)
		if c == '+' {
			cl.ClassMethods = addUnique(cl.ClassMethods, method)
		} else {
			cl.InstanceMethods = addUnique(cl.InstanceMethods, method)
		}
	}
}

// scanSelectorFallback runs only when the structural scans came up empty.
// Finding common runtime selectors suggests Objective-C code is present even
// though every marker was stripped, so it emits placeholder entries tagged
// SourceHeuristic. Callers must not display these as real classes.
func scanSelectorFallback(data []byte, res *Result) {
	found := 0
	for _, sel := range selectorStrings {
		if bytes.Contains(data, []byte(sel)) {
			found++
		}
	}
	if found == 0 {
		return
	}
	if logging.IsDebug() {
		lg := logging.NewLogger()
		lg.Debug("no markers found, emitting selector-based placeholders",
			"selectors", found)
	}
	res.Heuristic = true
	addClass(res, "SampleClass", SourceHeuristic, ConfidenceHeuristic)
	addCategory(res, "NSObject", "SampleCategory", SourceHeuristic, ConfidenceHeuristic)
	addProtocol(res, "SampleProtocol", SourceHeuristic, ConfidenceHeuristic)
}

func findClass(res *Result, name string) *Class {
	for _, c := range res.Classes {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func addClass(res *Result, name string, src Source, conf float64) *Class {
	if existing := findClass(res, name); existing != nil {
		// Structural evidence outranks an earlier bracket-string sighting.
		if src == SourceStructural && existing.Source != SourceStructural {
			existing.Source = src
			existing.Confidence = conf
		}
		return existing
	}
	c := &Class{
		Name:       name,
		Superclass: "NSObject",
		IsSwift:    isSwiftName(name),
		Source:     src,
		Confidence: conf,
	}
	res.Classes = append(res.Classes, c)
	return c
}

func addCategory(res *Result, class, category string, src Source, conf float64) *Category {
	if class == "" {
		class = "NSObject"
	}
	for _, c := range res.Categories {
		if c.Name == category && c.Class == class {
			return c
		}
	}
	c := &Category{
		Name:       category,
		Class:      class,
		Source:     src,
		Confidence: conf,
	}
	res.Categories = append(res.Categories, c)
	return c
}

func addProtocol(res *Result, name string, src Source, conf float64) *Protocol {
	for _, p := range res.Protocols {
		if p.Name == name {
			return p
		}
	}
	p := &Protocol{
		Name:       name,
		Source:     src,
		Confidence: conf,
	}
	res.Protocols = append(res.Protocols, p)
	return p
}

// addUnique appends s unless it is already present. Repeated discovery of
// the same method or ivar is a no-op.
func addUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func isSwiftName(name string) bool {
	return strings.Contains(name, "_TtC") ||
		strings.Contains(name, "_Tt") ||
		strings.Contains(name, "Swift")
}

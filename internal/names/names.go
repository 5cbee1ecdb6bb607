// Package names applies user-supplied function name overrides from a JSON
// document. Application is all-or-nothing: the whole document is validated
// before any function is touched, so a malformed entry never leaves the
// function list half-renamed.
package names

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/IntervalMedia/ReDyned/internal/analysis"
)

// document is the import wire format: {"Functions":[{"Address":N,"Name":"s"}]}.
type document struct {
	Functions *[]entry `json:"Functions"`
}

type entry struct {
	Address json.Number `json:"Address"`
	Name    *string     `json:"Name"`
}

// Override is one validated rename or stub-insert request.
type Override struct {
	Address uint64
	Name    string
}

// Parse validates a JSON override document and returns the overrides it
// carries. Any structural problem — missing Functions key, a non-string
// name, a negative or non-integer address — fails the whole document with a
// descriptive error and nothing is returned.
func Parse(data []byte) ([]Override, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse overrides: %w", err)
	}
	if doc.Functions == nil {
		return nil, fmt.Errorf("parse overrides: missing \"Functions\" key")
	}
	out := make([]Override, 0, len(*doc.Functions))
	for i, e := range *doc.Functions {
		if e.Name == nil {
			return nil, fmt.Errorf("parse overrides: entry %d: missing or non-string \"Name\"", i)
		}
		if *e.Name == "" {
			return nil, fmt.Errorf("parse overrides: entry %d: empty \"Name\"", i)
		}
		if e.Address == "" {
			return nil, fmt.Errorf("parse overrides: entry %d: missing \"Address\"", i)
		}
		addr, err := e.Address.Int64()
		if err != nil {
			return nil, fmt.Errorf("parse overrides: entry %d: address %q is not an integer", i, e.Address)
		}
		if addr < 0 {
			return nil, fmt.Errorf("parse overrides: entry %d: negative address %d", i, addr)
		}
		out = append(out, Override{Address: uint64(addr), Name: *e.Name})
	}
	return out, nil
}

// Apply renames the function starting at each override address, or inserts a
// zero-length stub when no function starts there. The returned slice is
// sorted by start address. The input document must already have passed
// Parse; Apply itself cannot fail.
func Apply(fns []*analysis.Function, overrides []Override) []*analysis.Function {
	byStart := make(map[uint64]*analysis.Function, len(fns))
	for _, fn := range fns {
		byStart[fn.StartAddress] = fn
	}
	for _, ov := range overrides {
		if fn, ok := byStart[ov.Address]; ok {
			fn.Name = ov.Name
			continue
		}
		stub := &analysis.Function{
			Name:         ov.Name,
			StartAddress: ov.Address,
			EndAddress:   ov.Address,
		}
		byStart[ov.Address] = stub
		fns = append(fns, stub)
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].StartAddress < fns[j].StartAddress })
	return fns
}

// Import parses and applies in one call, returning the updated function
// list. On a parse error the input list is returned unchanged.
func Import(fns []*analysis.Function, data []byte) ([]*analysis.Function, error) {
	overrides, err := Parse(data)
	if err != nil {
		return fns, err
	}
	return Apply(fns, overrides), nil
}

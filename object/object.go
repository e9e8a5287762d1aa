// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package object defines the relocatable object modules produced by the
// assembler and consumed by the linker, along with their binary encoding.
package object

// A SymbolKind describes how a symbol is visible across modules.
type SymbolKind byte

// All symbol kinds.
const (
	Exported SymbolKind = iota // defined here, visible to other modules
	Internal                   // defined here, visible only to this module
	Imported                   // referenced here, defined elsewhere
)

var symbolKindNames = []string{"exported", "internal", "imported"}

func (k SymbolKind) String() string {
	if int(k) < len(symbolKindNames) {
		return symbolKindNames[k]
	}
	return "unknown"
}

// A Symbol is a named address or constant referenced by a module.
type Symbol struct {
	Name    string
	Kind    SymbolKind
	File    string // defining file; empty for imported symbols
	Line    int    // defining line; 0 for imported symbols
	Section int    // index of the defining section, or -1 for a constant
	Value   int    // section offset, or the constant's value
}

// A PatchKind describes the width and encoding of a patched value.
type PatchKind byte

// All patch kinds.
const (
	PatchByte PatchKind = iota // 8-bit value
	PatchWord                  // 16-bit little-endian value
	PatchLong                  // 32-bit little-endian value
	PatchJR                    // 8-bit signed offset relative to the next byte
	PatchSigned                // 8-bit signed value
)

var patchKindNames = []string{"byte", "word", "long", "jr", "signed"}

func (k PatchKind) String() string {
	if int(k) < len(patchKindNames) {
		return patchKindNames[k]
	}
	return "unknown"
}

// Valid returns true if the patch kind is known.
func (k PatchKind) Valid() bool {
	return k <= PatchSigned
}

// Width returns the number of bytes written by a patch of this kind.
func (k PatchKind) Width() int {
	switch k {
	case PatchWord:
		return 2
	case PatchLong:
		return 4
	default:
		return 1
	}
}

// A Patch is a deferred write of an expression's value into a section.
// The expression is resolved by the linker once every symbol's final
// address is known.
type Patch struct {
	File   string
	Line   int
	Offset int // byte offset within the section
	Kind   PatchKind
	Expr   RPN
}

// A Section is a contiguous run of bytes destined for a single memory
// region. Only ROM sections carry data and patches.
type Section struct {
	Name    string
	Size    int
	Region  Region
	Address int // fixed address, or -1
	Bank    int // fixed bank, or -1
	Align   int // alignment in bits, or -1
	Data    []byte
	Patches []Patch
}

// Fixed returns true if the section's address was set by its source.
func (s *Section) Fixed() bool {
	return s.Address >= 0
}

// A Module is the unit of output produced by assembling a single source
// file, and the unit of input consumed by the linker.
type Module struct {
	Path     string
	Symbols  []Symbol
	Sections []Section
}

// LookupSymbol returns the index of the named symbol, or -1 if the module
// does not reference it.
func (m *Module) LookupSymbol(name string) int {
	for i := range m.Symbols {
		if m.Symbols[i].Name == name {
			return i
		}
	}
	return -1
}

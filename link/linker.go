// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package link combines object modules into a Game Boy ROM image. Every
// section is placed in its memory region, then every patch is resolved
// against the final symbol addresses.
package link

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/beevik/gbasm/diag"
	"github.com/beevik/gbasm/object"
)

// Options control the behavior of the linker.
type Options struct {
	PadValue byte         // value of ROM bytes not covered by a section
	Logger   *diag.Logger // event sink; may be nil
}

// A Placement records where the linker put a section.
type Placement struct {
	Region  object.Region
	Bank    int
	Start   int // address of the first byte
	End     int // address one past the last byte
	Section *object.Section
	Module  *object.Module
}

// Size returns the number of bytes occupied by the placed section.
func (p *Placement) Size() int {
	return p.End - p.Start
}

func (p *Placement) overlaps(start, end int) bool {
	return start < p.End && p.Start < end
}

// A Symbol is a label at its final location.
type Symbol struct {
	Name    string
	Region  object.Region
	Bank    int
	Address int
}

// The Result of a successful link.
type Result struct {
	ROM         []byte
	Placements  []*Placement // sorted by region, bank and address
	Symbols     []Symbol     // sorted by bank, address and name
	Diagnostics diag.List
}

// WriteROM writes the ROM image.
func (r *Result) WriteROM(w io.Writer) error {
	_, err := w.Write(r.ROM)
	return err
}

type exportRef struct {
	module *object.Module
	index  int
}

// A Linker accumulates object modules and links them together.
type Linker struct {
	opts    Options
	log     *diag.Logger
	modules []*object.Module

	// State of the link in progress.
	diags      diag.List
	placements []*Placement
	byModule   map[*object.Module][]*Placement // indexed by section
	byName     map[string]*Placement
	exports    map[string]exportRef
	rom        []byte
}

// New creates a linker.
func New(opts Options) *Linker {
	return &Linker{opts: opts, log: opts.Logger}
}

// AddModule adds an object module to the set of modules to link.
func (l *Linker) AddModule(m *object.Module) {
	l.modules = append(l.modules, m)
}

// AddFile reads an object module file and adds it to the set of modules
// to link.
func (l *Linker) AddFile(path string) error {
	m, err := object.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading '%s': %w", path, err)
	}
	l.AddModule(m)
	return nil
}

// Link places every section of every module and resolves every patch. If
// any error diagnostic is raised, the returned error is a diag.ErrorList
// holding all of them.
func (l *Linker) Link() (*Result, error) {
	l.diags = nil
	l.placements = nil
	l.byModule = make(map[*object.Module][]*Placement)
	l.byName = make(map[string]*Placement)
	l.exports = make(map[string]exportRef)
	l.rom = nil

	// Linking consists of the following steps. Each step reports every
	// error it finds before the next step is skipped.
	steps := []func(l *Linker){
		(*Linker).gather,       // Validate sections and collect exports
		(*Linker).sortSections, // Order sections by placement priority
		(*Linker).allocate,     // Assign each section a bank and address
		(*Linker).resolve,      // Build the ROM image and resolve patches
	}
	for _, step := range steps {
		step(l)
		if l.diags.HasErrors() {
			break
		}
	}

	r := &Result{ROM: l.rom, Diagnostics: l.diags}
	if l.diags.HasErrors() {
		return r, l.diags.Err()
	}

	r.Placements = append([]*Placement(nil), l.placements...)
	sort.SliceStable(r.Placements, func(i, j int) bool {
		a, b := r.Placements[i], r.Placements[j]
		switch {
		case a.Region != b.Region:
			return a.Region < b.Region
		case a.Bank != b.Bank:
			return a.Bank < b.Bank
		default:
			return a.Start < b.Start
		}
	})
	r.Symbols = l.symbols()
	return r, nil
}

func (l *Linker) addError(file string, line int, format string, args ...any) {
	l.diags.Add(diag.Diagnostic{
		Area:     diag.Linker,
		Severity: diag.Error,
		Message:  fmt.Sprintf(format, args...),
		File:     file,
		Line:     line,
	})
}

// gather validates the sections of every module against their regions
// and records the exported symbols.
func (l *Linker) gather() {
	l.log.Banner(diag.Place, "Gathering sections")

	for _, m := range l.modules {
		places := make([]*Placement, len(m.Sections))
		for i := range m.Sections {
			s := &m.Sections[i]
			if !l.validate(m, s) {
				continue
			}
			if other, ok := l.byName[s.Name]; ok {
				l.addError(m.Path, 0, "section '%s' is defined in both '%s' and '%s'", s.Name, other.Module.Path, m.Path)
				continue
			}
			p := &Placement{Region: s.Region, Bank: -1, Section: s, Module: m}
			places[i] = p
			l.byName[s.Name] = p
			l.placements = append(l.placements, p)
		}
		l.byModule[m] = places

		for i, sym := range m.Symbols {
			if sym.Kind != object.Exported {
				continue
			}
			if other, ok := l.exports[sym.Name]; ok {
				l.addError(sym.File, sym.Line, "symbol '%s' is exported by both '%s' and '%s'", sym.Name, other.module.Path, m.Path)
				continue
			}
			l.exports[sym.Name] = exportRef{module: m, index: i}
		}
	}
}

// validate checks a section's attributes against its region.
func (l *Linker) validate(m *object.Module, s *object.Section) bool {
	if !s.Region.Valid() {
		l.addError(m.Path, 0, "section '%s' has an unknown memory region %d", s.Name, s.Region)
		return false
	}
	info := s.Region.Info()
	switch {
	case s.Bank >= 0 && (s.Bank < info.MinBank || s.Bank > info.MaxBank):
		l.addError(m.Path, 0, "section '%s' requests bank %d, but %s has banks %d-%d", s.Name, s.Bank, s.Region, info.MinBank, info.MaxBank)
	case s.Address >= 0 && (s.Address < info.Start || s.Address > info.End):
		l.addError(m.Path, 0, "section '%s' requests address $%04X outside of %s ($%04X-$%04X)", s.Name, s.Address, s.Region, info.Start, info.End)
	case s.Address >= 0 && s.Address+s.Size > info.End+1:
		l.addError(m.Path, 0, "section '%s' at $%04X with size $%X extends past the end of %s", s.Name, s.Address, s.Size, s.Region)
	case s.Size > info.Size():
		l.addError(m.Path, 0, "section '%s' is $%X bytes, larger than region %s ($%X bytes)", s.Name, s.Size, s.Region, info.Size())
	case s.Align > 16:
		l.addError(m.Path, 0, "section '%s' requests an alignment of %d bits", s.Name, s.Align)
	case s.Region.IsROM() && len(s.Data) != s.Size:
		l.addError(m.Path, 0, "section '%s' has %d data bytes but a size of %d", s.Name, len(s.Data), s.Size)
	default:
		ok := true
		for _, p := range s.Patches {
			if !p.Kind.Valid() {
				l.addError(p.File, p.Line, "section '%s' has a patch of unknown kind %d", s.Name, p.Kind)
				ok = false
			}
		}
		return ok
	}
	return false
}

// sortSections orders the sections so that the most constrained ones
// claim their address space first.
func (l *Linker) sortSections() {
	sort.SliceStable(l.placements, func(i, j int) bool {
		a, b := l.placements[i].Section, l.placements[j].Section
		if a.Region != b.Region {
			return a.Region.String() < b.Region.String()
		}
		if a.Fixed() != b.Fixed() {
			return a.Fixed()
		}
		if a.Fixed() && a.Address != b.Address {
			return a.Address < b.Address
		}
		if (a.Bank >= 0) != (b.Bank >= 0) {
			return a.Bank >= 0
		}
		if a.Bank >= 0 && a.Bank != b.Bank {
			return a.Bank < b.Bank
		}
		if (a.Align >= 0) != (b.Align >= 0) {
			return a.Align >= 0
		}
		return a.Size > b.Size
	})
}

// allocate assigns a bank and address to every section with a first-fit
// search of each bank.
func (l *Linker) allocate() {
	l.log.Banner(diag.Place, "Placing sections")

	var placed []*Placement
	for _, p := range l.placements {
		if l.place(p, placed) {
			placed = append(placed, p)
			l.log.Logf(diag.Place, "%-5s bank %-3d $%04X-$%04X %-24q %s", p.Region, p.Bank, p.Start, p.End, p.Section.Name, p.Module.Path)
		}
	}
}

// place finds a location for a section that does not overlap any of the
// placed sections.
func (l *Linker) place(p *Placement, placed []*Placement) bool {
	s := p.Section
	info := s.Region.Info()
	mask := 0
	if s.Align > 0 {
		mask = 1<<s.Align - 1
	}

	bank, lastBank := info.MinBank, info.MaxBank
	if s.Bank >= 0 {
		bank, lastBank = s.Bank, s.Bank
	}

	for ; bank <= lastBank; bank++ {
		addr := info.Start
		if s.Fixed() {
			addr = s.Address
		}
		for {
			if !s.Fixed() {
				addr = (addr + mask) &^ mask
			}
			if addr+s.Size > info.End+1 {
				break
			}
			other := overlapping(placed, s.Region, bank, addr, addr+s.Size)
			if other == nil {
				p.Bank, p.Start, p.End = bank, addr, addr+s.Size
				return true
			}
			if s.Fixed() {
				if s.Bank >= 0 || !s.Region.Banked() {
					l.addError(p.Module.Path, 0, "section '%s' at $%04X overlaps section '%s' ($%04X-$%04X)",
						s.Name, s.Address, other.Section.Name, other.Start, other.End-1)
					return false
				}
				break
			}
			addr = other.End
		}
	}

	where := s.Region.String()
	if s.Bank >= 0 {
		where = fmt.Sprintf("%s bank %d", s.Region, s.Bank)
	}
	l.addError(p.Module.Path, 0, "unable to place section '%s' ($%X bytes) in %s", s.Name, s.Size, where)
	return false
}

func overlapping(placed []*Placement, region object.Region, bank, start, end int) *Placement {
	for _, p := range placed {
		if p.Region == region && p.Bank == bank && p.overlaps(start, end) {
			return p
		}
	}
	return nil
}

// romOffset returns the offset within the ROM image of an address in a
// ROM bank.
func romOffset(bank, addr int) int {
	if addr < object.BankSize {
		return addr
	}
	return bank*object.BankSize + addr - object.BankSize
}

// resolve copies every ROM section into the image and fills in its
// patches.
func (l *Linker) resolve() {
	l.log.Banner(diag.Resolve, "Resolving patches")

	size := 2 * object.BankSize
	for _, p := range l.placements {
		if p.Region == object.ROMX {
			size = max(size, (p.Bank+1)*object.BankSize)
		}
	}
	l.rom = make([]byte, size)
	for i := range l.rom {
		l.rom[i] = l.opts.PadValue
	}

	for _, p := range l.placements {
		if !p.Region.IsROM() {
			continue
		}
		copy(l.rom[romOffset(p.Bank, p.Start):], p.Section.Data)
		for _, patch := range p.Section.Patches {
			l.applyPatch(p, patch)
		}
	}
}

// applyPatch evaluates a patch's expression and writes its value into the
// ROM image.
func (l *Linker) applyPatch(p *Placement, patch object.Patch) {
	addr := p.Start + patch.Offset
	if patch.Offset < 0 || patch.Offset+patch.Kind.Width() > p.Size() {
		l.addError(patch.File, patch.Line, "patch at offset %d lies outside of section '%s'", patch.Offset, p.Section.Name)
		return
	}

	v, err := l.evaluate(p, patch.Expr)
	if err != nil {
		l.addError(patch.File, patch.Line, "%v", err)
		return
	}

	switch patch.Kind {
	case object.PatchByte:
		if v < -128 || v > 0xff {
			l.addError(patch.File, patch.Line, "value $%X does not fit in 8 bits", v)
			return
		}
	case object.PatchSigned:
		if v < -128 || v > 127 {
			l.addError(patch.File, patch.Line, "value %d does not fit in a signed byte", v)
			return
		}
	case object.PatchWord:
		if v < -32768 || v > 0xffff {
			l.addError(patch.File, patch.Line, "value $%X does not fit in 16 bits", v)
			return
		}
	case object.PatchJR:
		offset := v - int32(addr+1)
		if offset < -128 || offset > 127 {
			l.addError(patch.File, patch.Line, "jump target $%04X is %d bytes away, out of range for JR; use JP instead", v, offset)
			return
		}
		v = offset
	}

	l.log.Logf(diag.Resolve, "%s:%d: %s patch at %02X:%04X = $%X (%s)", patch.File, patch.Line, patch.Kind, p.Bank, addr, v, patch.Expr)

	b := l.rom[romOffset(p.Bank, addr):]
	for i := 0; i < patch.Kind.Width(); i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// symbols returns every non-hidden label at its final address.
func (l *Linker) symbols() []Symbol {
	var syms []Symbol
	for _, m := range l.modules {
		for _, sym := range m.Symbols {
			if sym.Kind == object.Imported || sym.Section < 0 || strings.HasPrefix(sym.Name, "@") {
				continue
			}
			p := l.byModule[m][sym.Section]
			if p == nil {
				continue
			}
			syms = append(syms, Symbol{Name: sym.Name, Region: p.Region, Bank: p.Bank, Address: p.Start + sym.Value})
		}
	}
	sortSymbols(syms)
	return syms
}

func sortSymbols(syms []Symbol) {
	sort.Slice(syms, func(i, j int) bool {
		a, b := syms[i], syms[j]
		switch {
		case a.Bank != b.Bank:
			return a.Bank < b.Bank
		case a.Address != b.Address:
			return a.Address < b.Address
		default:
			return a.Name < b.Name
		}
	})
}

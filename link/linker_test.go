// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/beevik/gbasm/asm"
	"github.com/beevik/gbasm/object"
)

func assembleModule(t *testing.T, path, code string) *object.Module {
	t.Helper()
	assembly, err := asm.Assemble(strings.NewReader(code), path, nil)
	if err != nil {
		t.Fatalf("%s: %v", path, err)
	}
	return assembly.Module
}

func linkSources(t *testing.T, sources ...string) (*Result, error) {
	t.Helper()
	l := New(Options{PadValue: 0xff})
	for i, code := range sources {
		l.AddModule(assembleModule(t, fmt.Sprintf("m%d", i), code))
	}
	return l.Link()
}

func checkROM(t *testing.T, rom []byte, offset int, expected []byte) {
	t.Helper()
	if offset+len(expected) > len(rom) {
		t.Errorf("ROM of %d bytes too short for offset $%X", len(rom), offset)
		return
	}
	if got := rom[offset : offset+len(expected)]; !bytes.Equal(got, expected) {
		t.Errorf("at $%04X: got % X, exp % X", offset, got, expected)
	}
}

func checkLinkError(t *testing.T, err error, expected string) {
	t.Helper()
	if err == nil {
		t.Errorf("expected error containing %q", expected)
		return
	}
	if !strings.Contains(err.Error(), expected) {
		t.Errorf("got error %q, exp %q", err.Error(), expected)
	}
}

func TestLinkSelfReference(t *testing.T) {
	r, err := linkSources(t, `
	SECTION "Test", ROM0
	Start:
		ld a, Start`)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.ROM) != 0x8000 {
		t.Errorf("got ROM size $%X, exp $8000", len(r.ROM))
	}
	checkROM(t, r.ROM, 0, []byte{0x3e, 0x00, 0xff})
	if len(r.Symbols) != 1 || r.Symbols[0] != (Symbol{Name: "Start", Region: object.ROM0}) {
		t.Errorf("got symbols %+v", r.Symbols)
	}
}

func TestLinkImports(t *testing.T) {
	r, err := linkSources(t, `
	SECTION "Main", ROM0
		call Far
		ld a, BANK(Far)
		ld hl, SIZEOF("Lib")`, `
	SECTION "Lib", ROMX
	Far::
		ret
		nop`)
	if err != nil {
		t.Fatal(err)
	}
	checkROM(t, r.ROM, 0, []byte{0xcd, 0x00, 0x40, 0x3e, 0x01, 0x21, 0x02, 0x00})
	checkROM(t, r.ROM, 0x4000, []byte{0xc9, 0x00})
}

func TestLinkRelativeJump(t *testing.T) {
	r, err := linkSources(t, `
	SECTION "A", ROM0
	Loop:
		nop
		jr Loop
		jr Next
	Next:
		ret`)
	if err != nil {
		t.Fatal(err)
	}
	checkROM(t, r.ROM, 0, []byte{0x00, 0x18, 0xfd, 0x18, 0x00, 0xc9})
}

func TestLinkHighPage(t *testing.T) {
	r, err := linkSources(t, `
	SECTION "Vars", HRAM
	Var: ds 1
	SECTION "Code", ROM0
		ldh a, [Var]`)
	if err != nil {
		t.Fatal(err)
	}
	checkROM(t, r.ROM, 0, []byte{0xf0, 0x80})
}

func TestLinkErrors(t *testing.T) {
	_, err := linkSources(t, `
	SECTION "A", ROM0
		jp Missing`)
	checkLinkError(t, err, "no definition for symbol 'Missing'")

	_, err = linkSources(t, `
	SECTION "A", ROM0
		jr Far`, `
	SECTION "B", ROMX
	Far:: ret`)
	checkLinkError(t, err, "use JP instead")

	_, err = linkSources(t, `
	SECTION "A", ROM0
	X:: nop`, `
	SECTION "B", ROM0
	X:: nop`)
	checkLinkError(t, err, "symbol 'X' is exported by both 'm0' and 'm1'")

	_, err = linkSources(t, `
	SECTION "A", ROM0
		ld a, Label`, `
	SECTION "B", ROMX[$4100]
	Label:: nop`)
	checkLinkError(t, err, "value $4100 does not fit in 8 bits")

	_, err = linkSources(t, `
	SECTION "A", ROM0
		db BANK("Nowhere")`)
	checkLinkError(t, err, "no section named 'Nowhere'")

	_, err = linkSources(t, `
	SECTION "A", ROM0
		add sp, Offset`, `
	SECTION "B", ROM0[$00C8]
	Offset:: nop`)
	checkLinkError(t, err, "value 200 does not fit in a signed byte")
}

func rawSection(name string, region object.Region, size, addr, bank, align int) object.Section {
	s := object.Section{Name: name, Region: region, Size: size, Address: addr, Bank: bank, Align: align}
	if region.IsROM() {
		s.Data = make([]byte, size)
	}
	return s
}

func linkSections(sections ...object.Section) (*Result, error) {
	l := New(Options{})
	l.AddModule(&object.Module{Path: "raw", Sections: sections})
	return l.Link()
}

func TestAllocate(t *testing.T) {
	r, err := linkSections(
		rawSection("a", object.WRAM0, 0x10, -1, -1, -1),
		rawSection("b", object.WRAM0, 0x20, 0xc000, -1, -1),
		rawSection("c", object.WRAM0, 0x08, -1, -1, 8),
		rawSection("e", object.WRAM0, 0x04, -1, -1, -1),
		rawSection("d", object.WRAM0, 0x30, -1, -1, -1),
	)
	if err != nil {
		t.Fatal(err)
	}

	// Floating sections of equal constraint are placed largest first.
	expected := map[string]int{
		"b": 0xc000,
		"c": 0xc100,
		"d": 0xc020,
		"a": 0xc050,
		"e": 0xc060,
	}
	for _, p := range r.Placements {
		if p.Start != expected[p.Section.Name] || p.Bank != 0 {
			t.Errorf("section %s: got %d:$%04X, exp 0:$%04X", p.Section.Name, p.Bank, p.Start, expected[p.Section.Name])
		}
	}
	for i, p := range r.Placements {
		for _, q := range r.Placements[i+1:] {
			if p.Region == q.Region && p.Bank == q.Bank && p.overlaps(q.Start, q.End) {
				t.Errorf("sections %s and %s overlap", p.Section.Name, q.Section.Name)
			}
		}
	}
}

func TestAllocateBanks(t *testing.T) {
	r, err := linkSections(
		rawSection("one", object.ROMX, 0x3000, -1, -1, -1),
		rawSection("two", object.ROMX, 0x3000, -1, -1, -1),
		rawSection("fixed", object.ROMX, 0x10, -1, 5, -1),
	)
	if err != nil {
		t.Fatal(err)
	}
	banks := make(map[string]int)
	for _, p := range r.Placements {
		banks[p.Section.Name] = p.Bank
		if p.Start != 0x4000 {
			t.Errorf("section %s: got $%04X, exp $4000", p.Section.Name, p.Start)
		}
	}
	if banks["one"] != 1 || banks["two"] != 2 || banks["fixed"] != 5 {
		t.Errorf("got banks %v", banks)
	}
	if len(r.ROM) != 6*object.BankSize {
		t.Errorf("got ROM size $%X, exp $%X", len(r.ROM), 6*object.BankSize)
	}
}

func TestAllocateErrors(t *testing.T) {
	_, err := linkSections(
		rawSection("a", object.ROM0, 4, 0x100, -1, -1),
		rawSection("b", object.ROM0, 4, 0x102, -1, -1),
	)
	checkLinkError(t, err, "section 'b' at $0102 overlaps section 'a' ($0100-$0103)")

	_, err = linkSections(rawSection("a", object.ROMX, 4, -1, 0, -1))
	checkLinkError(t, err, "requests bank 0, but ROMX has banks 1-511")

	_, err = linkSections(rawSection("a", object.HRAM, 0x80, -1, -1, -1))
	checkLinkError(t, err, "larger than region HRAM")

	_, err = linkSections(
		rawSection("a", object.HRAM, 0x40, -1, -1, -1),
		rawSection("b", object.HRAM, 0x40, -1, -1, -1),
	)
	checkLinkError(t, err, "unable to place section 'b' ($40 bytes) in HRAM")

	_, err = linkSections(
		rawSection("a", object.WRAM0, 1, -1, -1, -1),
		rawSection("a", object.WRAM0, 1, -1, -1, -1),
	)
	checkLinkError(t, err, "section 'a' is defined in both")

	bad := rawSection("a", object.ROM0, 4, -1, -1, -1)
	bad.Patches = []object.Patch{{File: "raw", Line: 1, Kind: 9, Expr: object.RPN{}.Const(0)}}
	_, err = linkSections(bad)
	checkLinkError(t, err, "section 'a' has a patch of unknown kind 9")
}

func TestSymbolFile(t *testing.T) {
	r, err := linkSources(t, `
	SECTION "Main", ROM0
	Start::
		nop
	.loop:
		jr .loop
	SECTION "Bank", ROMX[$4010], BANK[3]
	Banked:
		ret
	SECTION "Vars", WRAM0
	wCount: ds 2`)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := r.WriteSymbols(&buf); err != nil {
		t.Fatal(err)
	}
	expected := "; File generated by gbasm\n" +
		"00:0000 Start\n" +
		"00:0001 Start.loop\n" +
		"00:C000 wCount\n" +
		"03:4010 Banked\n"
	if buf.String() != expected {
		t.Errorf("got symbol file:\n%s\nexp:\n%s", buf.String(), expected)
	}

	var s SymbolFile
	if _, err := s.ReadFrom(&buf); err != nil {
		t.Fatal(err)
	}
	if name, ok := s.Search(3, 0x4010); !ok || name != "Banked" {
		t.Errorf("search 03:4010: got %q", name)
	}
	if _, ok := s.Search(0, 0x4010); ok {
		t.Error("search 00:4010 should fail")
	}
	if sym, ok := s.Lookup("wCount"); !ok || sym.Region != object.WRAM0 || sym.Address != 0xc000 {
		t.Errorf("lookup wCount: got %+v", sym)
	}
}

func TestMapFile(t *testing.T) {
	r, err := linkSources(t, `
	SECTION "Main", ROM0
	Start:
		nop
		nop`)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := r.WriteMap(&buf); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{
		"ROM0 bank #0:",
		`SECTION: $0000-$0001 ($0002 bytes) ["Main"]`,
		"$0000 = Start",
		"SLACK: $3FFE bytes",
		"ROM0: 2 bytes used / 16382 free in 1 bank(s)",
	} {
		if !strings.Contains(buf.String(), s) {
			t.Errorf("map file missing %q:\n%s", s, buf.String())
		}
	}
}

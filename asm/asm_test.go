// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/gbasm/diag"
	"github.com/beevik/gbasm/object"
)

func assembleModule(code string, files MapProvider) (*object.Module, error) {
	r := bytes.NewReader([]byte(code))
	assembly, err := Assemble(r, "test", &Config{Files: files})
	if err != nil {
		return nil, err
	}
	return assembly.Module, nil
}

func assemble(code string) ([]byte, error) {
	m, err := assembleModule(code, MapProvider{})
	if err != nil {
		return []byte{}, err
	}
	var code0 []byte
	for _, s := range m.Sections {
		code0 = append(code0, s.Data...)
	}
	return code0, nil
}

func checkASM(t *testing.T, asm string, expected string) {
	code, err := assemble(asm)
	if err != nil {
		t.Error(err)
		return
	}

	b := make([]byte, len(code)*2)
	for i, j := 0, 0; i < len(code); i, j = i+1, j+2 {
		v := code[i]
		b[j+0] = hex[v>>4]
		b[j+1] = hex[v&0x0f]
	}
	s := string(b)

	if s != expected {
		t.Error("code doesn't match expected")
		t.Errorf("got: %s\n", s)
		t.Errorf("exp: %s\n", expected)
	}
}

func checkASMError(t *testing.T, asm string, errString string) {
	_, err := assemble(asm)
	if err == nil {
		t.Errorf("Expected error on %s, didn't get one\n", asm)
		return
	}
	if !strings.Contains(err.Error(), errString) {
		t.Errorf("Expected '%s', got '%v'\n", errString, err)
	}
}

func TestInstructions(t *testing.T) {
	asm := `
	SECTION "code", ROM0
	nop
	ld a, $12
	ld b, a
	ld [hl], a
	ld a, [hl+]
	ld a, [hli]
	ld [$C000], a
	ld hl, $1234
	ldh a, [$FF44]
	ld a, [$FF00+c]
	push bc
	add a, b
	xor a
	bit 7, h
	rst $38
	stop
	jp $150
	call nz, $1234
	ret z
	add sp, -2
	ld hl, sp+4
	inc hl
	dec [hl]`

	checkASM(t, asm, "003E1247772A2AEA00C0213412F044F2C580AFCB7CFF1000"+
		"C35001C43412C8E8FEF8042335")
}

func TestHighPage(t *testing.T) {
	asm := `
	SECTION "code", ROM0
	ldh [$FF00+$40], a
	ld a, [$FF00+$44]
	ldh a, [$44]
	ldh [c], a`

	checkASM(t, asm, "E040F044F044E2")
}

func TestDataBytes(t *testing.T) {
	asm := `
	SECTION "data", ROM0
	db 1, 2, "AB"
	db -1, $FF
	db "A" + 1`

	checkASM(t, asm, "01024142FFFF42")
}

func TestDataWords(t *testing.T) {
	asm := `
	SECTION "data", ROM0
	dw $1234, "A"
	dw -1`

	checkASM(t, asm, "34124100FFFF")
}

func TestDataLongs(t *testing.T) {
	asm := `
	SECTION "data", ROM0
	dl 1, $12345678`

	checkASM(t, asm, "0100000078563412")
}

func TestReserve(t *testing.T) {
	asm := `
	SECTION "data", ROM0
	ds 2
	ds 3, $AA
	ds 4, 1, 2
	OPT p$11
	ds 1`

	checkASM(t, asm, "0000AAAAAA0102010211")
}

func TestAlign(t *testing.T) {
	asm := `
	SECTION "data", ROM0[$0100]
	db 1
	ALIGN 2
	db 2
	ALIGN 3, 1
	db 3`

	checkASM(t, asm, "0100000002000000000003")
}

func TestEquates(t *testing.T) {
	asm := `
	X EQU 2
	Y = X + 1
	Y = Y * 2
	DEF Z EQU 7
	REDEF Z EQU 8
	S EQUS "nop"
	SECTION "data", ROM0
	db X, Y, Z
	S`

	checkASM(t, asm, "02060800")
}

func TestRS(t *testing.T) {
	asm := `
	RSSET 4
	A0 RB 2
	A1 RW 1
	A2 RL 1
	A3 RB
	SECTION "data", ROM0
	db A0, A1, A2, A3, _RS`

	checkASM(t, asm, "0406080C0D")
}

func TestConditionals(t *testing.T) {
	asm := `
	X EQU 2
	SECTION "data", ROM0
	IF X == 1
	db 1
	ELIF X == 2
	db 2
	ELSE
	db 3
	ENDC
	IF 0
	IF 1
	db 4
	ENDC
	db 5
	ELSE
	db 6
	ENDC
	IF DEF(X) && !DEF(Y)
	db 7
	ENDC`

	checkASM(t, asm, "020607")
}

func TestRept(t *testing.T) {
	asm := `
	SECTION "data", ROM0
	REPT 3
	db 1
	ENDR
	REPT 0
	db 2
	ENDR
	REPT 2
	REPT 2
	db 3
	ENDR
	ENDR`

	checkASM(t, asm, "01010103030303")
}

func TestReptSet(t *testing.T) {
	asm := `
	SECTION "data", ROM0
	N = 0
	REPT 4
	db N
	N = N + 1
	ENDR`

	checkASM(t, asm, "00010203")
}

func TestMacroArgs(t *testing.T) {
	asm := `
	SECTION "data", ROM0
	Pair: MACRO
	db \1, \2
	ENDM
	MACRO Count
	db _NARG
	SHIFT
	db \1
	ENDM
	Pair 1, 2
	Pair 3, 4
	Count 5, 6
	Pair 7\, 8, 9`

	checkASM(t, asm, "010203040206070809")
}

func TestMacroUniqueLabels(t *testing.T) {
	asm := `
	SECTION "code", ROM0
	Twice: MACRO
	Label\@:
	jp Label\@
	ENDM
	Twice
	Twice`

	m, err := assembleModule(asm, MapProvider{})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Label_1", "Label_2"} {
		if m.LookupSymbol(name) < 0 {
			t.Errorf("symbol %s missing", name)
		}
	}
	if len(m.Sections[0].Patches) != 2 {
		t.Errorf("got %d patches, exp 2", len(m.Sections[0].Patches))
	}
}

func TestNestedUniqueLabels(t *testing.T) {
	var tests = []struct {
		name string
		asm  string
		syms []string
		code string
	}{
		{
			name: "nested macros",
			asm: `
	SECTION "code", ROM0
	Inner: MACRO
	I\@:
	ENDM
	Outer: MACRO
	O\@: Inner
	ENDM
	Outer`,
			syms: []string{"O_1", "I_2"},
			code: "",
		},
		{
			name: "rept inside macro",
			asm: `
	SECTION "code", ROM0
	Loop: MACRO
	REPT 2
	R\@: db \1
	ENDR
	ENDM
	Loop 7`,
			syms: []string{"R_2", "R_3"},
			code: "\x07\x07",
		},
	}

	for _, test := range tests {
		m, err := assembleModule(test.asm, MapProvider{})
		if err != nil {
			t.Errorf("%s: %v", test.name, err)
			continue
		}
		for _, name := range test.syms {
			if m.LookupSymbol(name) < 0 {
				t.Errorf("%s: symbol %s missing", test.name, name)
			}
		}
		if got := string(m.Sections[0].Data); got != test.code {
			t.Errorf("%s: got code %X, exp %X", test.name, got, test.code)
		}
	}
}

func TestUnion(t *testing.T) {
	asm := `
	SECTION "vars", WRAM0
	UNION
	v1: ds 2
	NEXTU
	v2: ds 5
	NEXTU
	v3: ds 1
	ENDU
	after: ds 1`

	m, err := assembleModule(asm, MapProvider{})
	if err != nil {
		t.Fatal(err)
	}
	if m.Sections[0].Size != 6 {
		t.Errorf("got size %d, exp 6", m.Sections[0].Size)
	}
	for name, offset := range map[string]int{"v1": 0, "v2": 0, "v3": 0, "after": 5} {
		i := m.LookupSymbol(name)
		if i < 0 || m.Symbols[i].Value != offset {
			t.Errorf("symbol %s: exp offset %d", name, offset)
		}
	}
}

func TestLocalLabels(t *testing.T) {
	asm := `
	SECTION "code", ROM0
	Main:
	.loop: jr .loop
	Other:
	.loop: jr .loop
	Main.end:
	db Main.end - Main`

	m, err := assembleModule(asm, MapProvider{})
	if err == nil {
		t.Fatal("expected an error for Main.end inside Other")
	}
	if m != nil {
		t.Error("expected no module")
	}
	checkASMError(t, asm, "local label 'Main.end' defined within wrong global label 'Other'")

	asm = `
	SECTION "code", ROM0
	Main:
	.loop: jr .loop
	Other:
	.loop: jr .loop
	.end:
	db .end - Main`

	m, err = assembleModule(asm, MapProvider{})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Main.loop", "Other.loop", "Other.end"} {
		if m.LookupSymbol(name) < 0 {
			t.Errorf("symbol %s missing", name)
		}
	}
	if got := m.Sections[0].Data[4]; got != 4 {
		t.Errorf("got label difference %d, exp 4", got)
	}
}

func TestCharmap(t *testing.T) {
	asm := `
	CHARMAP "A", 1
	CHARMAP "AB", 2
	SECTION "text", ROM0
	db "ABAC"`

	checkASM(t, asm, "020143")
}

func TestInclude(t *testing.T) {
	files := MapProvider{
		"inc/defs.asm": "VALUE EQU 7\nINCLUDE \"more.asm\"",
		"inc/more.asm": "OTHER EQU 8",
		"blob.bin":     "\x01\x02\x03\x04",
	}
	asm := `
	INCLUDE "inc/defs.asm"
	SECTION "data", ROM0
	db VALUE, OTHER
	INCBIN "blob.bin", 1, 2`

	m, err := assembleModule(asm, files)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.Sections[0].Data; !bytes.Equal(got, []byte{7, 8, 2, 3}) {
		t.Errorf("got % X, exp 07 08 02 03", got)
	}
}

func TestPatches(t *testing.T) {
	asm := `
	SECTION "code", ROM0
	Start: ld a, Start
	jr Start
	ld hl, HIGH(Far) + 1
	add sp, Far
	EXPORT Start`

	m, err := assembleModule(asm, MapProvider{})
	if err != nil {
		t.Fatal(err)
	}
	s := m.Sections[0]
	if !bytes.Equal(s.Data, []byte{0x3e, 0x00, 0x18, 0x00, 0x21, 0x00, 0x00, 0xe8, 0x00}) {
		t.Errorf("got data % X", s.Data)
	}

	tests := []struct {
		offset int
		kind   object.PatchKind
		expr   string
	}{
		{1, object.PatchByte, "#0"},
		{3, object.PatchJR, "#0"},
		{5, object.PatchWord, "#1 8 >> 255 & 1 +"},
		{8, object.PatchSigned, "#1"},
	}
	if len(s.Patches) != len(tests) {
		t.Fatalf("got %d patches, exp %d", len(s.Patches), len(tests))
	}
	for i, test := range tests {
		p := s.Patches[i]
		if p.Offset != test.offset || p.Kind != test.kind || p.Expr.String() != test.expr {
			t.Errorf("patch %d: got %d/%s/%s, exp %d/%s/%s", i, p.Offset, p.Kind, p.Expr, test.offset, test.kind, test.expr)
		}
	}

	if m.Symbols[0].Name != "Start" || m.Symbols[0].Kind != object.Exported {
		t.Errorf("got symbol 0 %+v", m.Symbols[0])
	}
	if m.Symbols[1].Name != "Far" || m.Symbols[1].Kind != object.Imported {
		t.Errorf("got symbol 1 %+v", m.Symbols[1])
	}
}

func TestSectionAttributes(t *testing.T) {
	asm := `
	SECTION "a", ROMX[$4000], BANK[2]
	SECTION "b", WRAMX, ALIGN[8]
	SECTION "c", HRAM
	SECTION "a", ROMX[$4000], BANK[2]
	nop`

	m, err := assembleModule(asm, MapProvider{})
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Sections) != 3 {
		t.Fatalf("got %d sections, exp 3", len(m.Sections))
	}
	a, b := m.Sections[0], m.Sections[1]
	if a.Region != object.ROMX || a.Address != 0x4000 || a.Bank != 2 || a.Size != 1 {
		t.Errorf("got section a %+v", a)
	}
	if b.Region != object.WRAMX || b.Align != 8 || b.Address != -1 || b.Bank != -1 {
		t.Errorf("got section b %+v", b)
	}
}

func TestPrint(t *testing.T) {
	var out bytes.Buffer
	code := "X EQU 10\nPRINTLN \"x=\", X\nPRINT \"done\"\nWARN \"careful\""
	assembly, err := Assemble(strings.NewReader(code), "test", &Config{Out: &out})
	if err != nil {
		t.Fatal(err)
	}
	if out.String() != "x=$A\ndone" {
		t.Errorf("got output %q", out.String())
	}
	if len(assembly.Diagnostics) != 1 || assembly.Diagnostics[0].Severity != diag.Warn {
		t.Errorf("got diagnostics %v", assembly.Diagnostics)
	}
}

func TestLogger(t *testing.T) {
	var out bytes.Buffer
	code := "SECTION \"code\", ROM0\nStart: nop"
	cfg := &Config{Logger: diag.NewLogger(&out, diag.Symbol)}
	if _, err := Assemble(strings.NewReader(code), "test", cfg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "label Start = code+$0000") {
		t.Errorf("log is missing the label event:\n%s", out.String())
	}
}

func TestAssembleFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.asm")
	bad1 := filepath.Join(dir, "bad1.asm")
	bad2 := filepath.Join(dir, "bad2.asm")
	os.WriteFile(good, []byte("SECTION \"a\", ROM0\nnop\n"), 0o644)
	os.WriteFile(bad1, []byte("nop\n"), 0o644)
	os.WriteFile(bad2, []byte("SECTION \"b\", ROM0\ndb 300\n"), 0o644)

	assemblies, err := AssembleFiles([]string{good, bad1, bad2}, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	list, ok := err.(diag.ErrorList)
	if !ok || len(list) != 2 {
		t.Fatalf("got error %v", err)
	}
	if list[0].File != bad1 || list[1].File != bad2 {
		t.Errorf("got files %s, %s", list[0].File, list[1].File)
	}
	if assemblies[0] == nil || assemblies[0].Module == nil {
		t.Error("expected a module for the good file")
	}
}

func TestEvalExpr(t *testing.T) {
	tests := []struct {
		expr string
		num  int32
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"2 ** 3 ** 2", 512},
		{"1 - 2 - 3", -4},
		{"$FFFFFFFF + 1", 0},
		{"-8 >> 1", -4},
		{"-8 >>> 28", 15},
		{"1 << 4", 16},
		{"7 % 3", 1},
		{"5 > 3 && 2 < 1", 0},
		{"!0", 1},
		{"~0", -1},
		{"%1010 + &17 + 0x10", 41},
		{"1_000", 1000},
		{"`01230123", 0x3355},
		{"HIGH($1234)", 0x12},
		{"LOW($1234)", 0x34},
		{`STRLEN("hello")`, 5},
		{`STRIN("hello", "ll")`, 3},
		{`"abc" == "abc"`, 1},
		{`"A" + 1`, 66},
		{"ISCONST(1 + 2)", 1},
		{"x * 2", 42},
	}
	resolve := func(name string) (int32, bool) {
		if name == "x" {
			return 21, true
		}
		return 0, false
	}
	for _, test := range tests {
		v, err := EvalExpr(test.expr, resolve)
		if err != nil {
			t.Errorf("%s: %v", test.expr, err)
			continue
		}
		if v.Kind != NumberValue || v.Num != test.num {
			t.Errorf("%s: got %s, exp %d", test.expr, v, test.num)
		}
	}
}

func TestEvalExprStrings(t *testing.T) {
	tests := []struct {
		expr string
		str  string
	}{
		{`STRCAT("ab", "cd", "e")`, "abcde"},
		{`STRSUB("hello", 2, 3)`, "ell"},
		{`STRSUB("hello", 4)`, "lo"},
		{`STRUPR("abc")`, "ABC"},
		{`STRLWR("ABC")`, "abc"},
		{`"a\"b\n"`, "a\"b\n"},
	}
	for _, test := range tests {
		v, err := EvalExpr(test.expr, nil)
		if err != nil {
			t.Errorf("%s: %v", test.expr, err)
			continue
		}
		if v.Kind != StringValue || v.Str != test.str {
			t.Errorf("%s: got %s, exp %q", test.expr, v, test.str)
		}
	}
}

func TestEvalExprErrors(t *testing.T) {
	tests := []struct {
		expr string
		err  string
	}{
		{"1 / 0", "division by zero"},
		{"2 ** -1", "negative exponent"},
		{"missing + 1", "undefined symbol 'missing'"},
		{"1 +", "unexpected end of line in expression"},
		{"BANK(x)", "BANK is not known until link time"},
		{`STRSUB("abc", 9)`, "STRSUB position 9 out of range"},
		{`"ab" + 1`, "expected a number"},
	}
	for _, test := range tests {
		_, err := EvalExpr(test.expr, nil)
		if err == nil || !strings.Contains(err.Error(), test.err) {
			t.Errorf("%s: got error %v, exp %q", test.expr, err, test.err)
		}
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		asm string
		err string
	}{
		{"nop", "'nop' used outside of a section"},
		{"SECTION \"a\", ROM0\ndb 256", "value $100 does not fit in 8 bits"},
		{"SECTION \"a\", ROM0\nld a, b, c", "no matching instruction variant for 'ld'"},
		{"SECTION \"a\", ROM0\nfoo 1", "unknown opcode or macro 'foo'"},
		{"SECTION \"a\", WRAM0\nnop", "section 'a' cannot contain code or data"},
		{"SECTION \"a\", WRAM0\nds 2, 1", "section 'a' cannot contain code or data"},
		{"SECTION \"a\", HRAM[$C000]", "address $C000 is outside of region HRAM"},
		{"SECTION \"a\", ROM0, BANK[1]", "region ROM0 is not banked"},
		{"SECTION \"a\", ROMX, BANK[0]", "bank 0 is out of range for region ROMX"},
		{"SECTION \"a\", ROM0\nSECTION \"a\", ROMX", "section 'a' already defined with different attributes"},
		{"ENDC", "ENDC without matching IF"},
		{"ENDR", "ENDR without matching REPT"},
		{"ENDM", "ENDM without matching MACRO"},
		{"IF 1\nX = 1", "IF at line 1 has no matching ENDC"},
		{"REPT 2\nX = 1", "REPT at line 1 has no matching ENDR"},
		{"M: MACRO\nnop", "MACRO 'M' at line 1 has no matching ENDM"},
		{"IF X\nENDC", "IF condition must be a constant expression"},
		{"X EQU 1\nX EQU 2", "'X' already defined as EQU"},
		{"X EQU 1\nX = 2", "'X' already defined as EQU"},
		{"SECTION \"a\", ROM0\nX:\nX:", "'X' already defined as label"},
		{"SECTION \"a\", ROM0\n.x:", "local label '.x' defined without a global label"},
		{"x:", "label 'x' defined outside of a section"},
		{"FAIL \"boom\"", "boom"},
		{"ASSERT 1 == 2, \"bad\"", "assertion failed: bad"},
		{"SECTION \"a\", ROM0\ndb 1 ?", "unexpected character '?'"},
		{"SECTION \"a\", ROM0\ndb \"abc", "unterminated string"},
		{"SECTION \"a\", ROM0\ndb \\1", "used outside of a macro"},
		{"R: MACRO\nR\nENDM\nR", "maximum nesting depth of 64 exceeded"},
		{"INCLUDE \"nothere.asm\"", "unable to include 'nothere.asm'"},
		{"SECTION \"a\", ROM0\nEXPORT Missing", "exported symbol 'Missing' is not defined"},
		{"SECTION \"a\", WRAM0\nUNION\nds 1", "UNION has no matching ENDU"},
		{"SECTION \"a\", ROM0\nUNION", "UNION is only allowed in RAM sections"},
		{"POPS", "POPS without matching PUSHS"},
		{"SECTION \"a\", ROM0\njr nz", "no matching instruction variant for 'jr'"},
		{"SECTION \"a\", ROM0\nadd sp, 200", "offset 200 does not fit in a signed byte"},
		{"SECTION \"a\", ROM0\nldh a, [$1234]", "address $1234 is not in $FF00-$FFFF"},
	}
	for _, test := range tests {
		checkASMError(t, test.asm, test.err)
	}
}

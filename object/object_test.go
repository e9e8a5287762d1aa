// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package object

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func testModule() *Module {
	return &Module{
		Path: "test.o",
		Symbols: []Symbol{
			{Name: "Start", Kind: Exported, File: "test.asm", Line: 2, Section: 0, Value: 0},
			{Name: "Far", Kind: Imported, Section: -1},
		},
		Sections: []Section{
			{
				Name: "Code", Size: 3, Region: ROM0, Address: -1, Bank: -1, Align: -1,
				Data: []byte{0xcd, 0x00, 0x00},
				Patches: []Patch{
					{File: "test.asm", Line: 3, Offset: 1, Kind: PatchWord, Expr: RPN(nil).Sym(1)},
				},
			},
			{Name: "Vars", Size: 16, Region: WRAM0, Address: 0xc000, Bank: -1, Align: -1},
		},
	}
}

func TestModuleEncoding(t *testing.T) {
	m := &Module{
		Symbols: []Symbol{{Name: "A", Kind: Imported}},
		Sections: []Section{
			{Name: "S", Size: 1, Region: ROM0, Address: 0x100, Bank: -1, Align: -1, Data: []byte{0x3e}},
		},
	}

	var buf bytes.Buffer
	n, err := m.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("WriteTo reported %d bytes, wrote %d", n, buf.Len())
	}

	exp := "47424f31" + // magic
		"01000000" + "01000000" + // counts
		"4100" + "02" + // symbol A, imported
		"5300" + "01000000" + "00" + // section S, size 1, ROM0
		"00010000" + "ffffffff" + "ffffffff" + // address, bank, alignment
		"3e" + "00000000" // data, no patches
	if got := hex.EncodeToString(buf.Bytes()); got != exp {
		t.Errorf("encoding mismatch\ngot: %s\nexp: %s", got, exp)
	}
}

func TestModuleRoundTrip(t *testing.T) {
	m := testModule()

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	var m2 Module
	n, err := m2.ReadFrom(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Error("ReadFrom reported zero bytes")
	}
	m2.Path = m.Path

	if !reflect.DeepEqual(m.Symbols, m2.Symbols) {
		t.Errorf("symbols differ\ngot: %+v\nexp: %+v", m2.Symbols, m.Symbols)
	}
	if !reflect.DeepEqual(m.Sections, m2.Sections) {
		t.Errorf("sections differ\ngot: %+v\nexp: %+v", m2.Sections, m.Sections)
	}
}

func TestModuleReadErrors(t *testing.T) {
	var m Module
	if _, err := m.ReadFrom(strings.NewReader("XXXX")); !errors.Is(err, ErrBadSignature) {
		t.Errorf("expected bad signature error, got %v", err)
	}

	var buf bytes.Buffer
	testModule().WriteTo(&buf)
	truncated := buf.Bytes()[:buf.Len()-3]
	if _, err := m.ReadFrom(bytes.NewReader(truncated)); err == nil {
		t.Error("expected an error reading a truncated module")
	}
}

func TestModuleReadLimits(t *testing.T) {
	le := func(b []byte, v int32) []byte {
		return binary.LittleEndian.AppendUint32(b, uint32(v))
	}
	header := func(size int32) []byte {
		b := []byte(signature)
		b = le(b, 0) // symbols
		b = le(b, 1) // sections
		b = append(b, "big\x00"...)
		b = le(b, size)
		b = append(b, byte(ROM0))
		b = le(b, -1)
		b = le(b, -1)
		return le(b, -1)
	}

	var m Module
	_, err := m.ReadFrom(bytes.NewReader(header(0x7fffffff)))
	if err == nil || !strings.Contains(err.Error(), "invalid size") {
		t.Errorf("expected an invalid size error, got %v", err)
	}

	b := header(1)
	b = append(b, 0x00)
	b = le(b, 1) // patches
	b = append(b, "x.asm\x00"...)
	b = le(b, 1)
	b = le(b, 0)
	b = append(b, byte(PatchByte))
	b = le(b, 0x7fffffff)
	_, err = m.ReadFrom(bytes.NewReader(b))
	if err == nil || !strings.Contains(err.Error(), "invalid length") {
		t.Errorf("expected an invalid length error, got %v", err)
	}
}

func TestRPN(t *testing.T) {
	r := RPN(nil).Sym(2).Const(8).Op(OpShr).Const(0xff).Op(OpAnd)
	if got, exp := r.String(), "#2 8 >> 255 &"; got != exp {
		t.Errorf("got %q, exp %q", got, exp)
	}

	r = RPN(nil).Section(OpBankSect, "Code").Op(OpBankSelf).Op(OpAdd)
	if got, exp := r.String(), `bank("Code") bank(@) +`; got != exp {
		t.Errorf("got %q, exp %q", got, exp)
	}

	var instrs []Instr
	err := RPN(nil).Const(-1).BankSym(7).Decode(func(in Instr) error {
		instrs = append(instrs, in)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	exp := []Instr{{Op: OpConst, Imm: -1}, {Op: OpBankSym, Imm: 7}}
	if !reflect.DeepEqual(instrs, exp) {
		t.Errorf("got %+v, exp %+v", instrs, exp)
	}

	bad := RPN{byte(OpConst), 1, 2}
	if err := bad.Decode(func(Instr) error { return nil }); !errors.Is(err, ErrMalformedRPN) {
		t.Errorf("expected malformed expression error, got %v", err)
	}
}

func TestRegions(t *testing.T) {
	r, ok := ParseRegion("romx")
	if !ok || r != ROMX {
		t.Fatalf("ParseRegion(romx) = %v, %v", r, ok)
	}
	if !r.IsROM() || !r.Banked() {
		t.Error("ROMX should be a banked ROM region")
	}
	if info := HRAM.Info(); info.Size() != 0x7f {
		t.Errorf("HRAM size = %d", info.Size())
	}
	if Region(42).Valid() {
		t.Error("region 42 should be invalid")
	}
}

// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "testing"

func TestOpcodeCoverage(t *testing.T) {
	set := GetInstructionSet()

	illegal := map[byte]bool{
		0xcb: true, // prefix
		0xd3: true, 0xdb: true, 0xdd: true, 0xe3: true, 0xe4: true,
		0xeb: true, 0xec: true, 0xed: true, 0xf4: true, 0xfc: true, 0xfd: true,
	}
	for i := 0; i < 256; i++ {
		inst := set.Lookup(byte(i))
		switch {
		case illegal[byte(i)] && inst != nil:
			t.Errorf("opcode $%02X should be unused, got %s", i, inst.Name)
		case !illegal[byte(i)] && inst == nil:
			t.Errorf("opcode $%02X is missing", i)
		}
		if set.LookupCB(byte(i)) == nil {
			t.Errorf("prefixed opcode $%02X is missing", i)
		}
	}
}

func TestOpcodeLookup(t *testing.T) {
	set := GetInstructionSet()
	tests := []struct {
		opcode byte
		cb     bool
		name   string
		length byte
	}{
		{0x00, false, "nop", 1},
		{0x10, false, "stop", 2},
		{0x3e, false, "ld", 2},
		{0xea, false, "ld", 3},
		{0xe0, false, "ld", 2},
		{0x18, false, "jr", 2},
		{0xff, false, "rst", 1},
		{0x76, false, "halt", 1},
		{0x7c, true, "bit", 2},
		{0x37, true, "swap", 2},
	}
	for _, test := range tests {
		inst := set.Lookup(test.opcode)
		if test.cb {
			inst = set.LookupCB(test.opcode)
		}
		if inst.Name != test.name || inst.Length != test.length {
			t.Errorf("opcode $%02X: got %s/%d, exp %s/%d", test.opcode, inst.Name, inst.Length, test.name, test.length)
		}
	}
}

func TestEncode(t *testing.T) {
	set := GetInstructionSet()

	bit := set.GetInstructions("BIT")[7] // bit u3, a
	code, err := bit.Encode(7)
	if err != nil || len(code) != 2 || code[0] != 0xcb || code[1] != 0x7f {
		t.Errorf("bit 7, a encoded to % X (%v)", code, err)
	}
	if _, err := bit.Encode(8); err == nil {
		t.Error("expected an error for bit index 8")
	}

	rst := set.GetInstructions("rst")[0]
	code, err = rst.Encode(0x38)
	if err != nil || code[0] != 0xff {
		t.Errorf("rst $38 encoded to % X (%v)", code, err)
	}
	if _, err := rst.Encode(0x09); err == nil {
		t.Error("expected an error for rst $09")
	}

	if !set.IsOpcode("LDH") || set.IsOpcode("lda") {
		t.Error("IsOpcode returned the wrong answer")
	}
}

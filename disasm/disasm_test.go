// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disasm

import (
	"testing"

	"github.com/beevik/gbasm/cpu"
)

func TestDisassemble(t *testing.T) {
	code := []byte{
		0x3e, 0x12,
		0xcb, 0x7c,
		0x18, 0xfe,
		0xc3, 0x50, 0x01,
		0xf8, 0xfe,
		0xe0, 0x40,
		0xd3,
		0xff,
		0x10, 0x00,
		0x22,
		0xfa, 0x00, 0xc0,
		0xe8, 0x80,
		0x20, 0x02,
	}
	rom := make([]byte, 0x8000)
	copy(rom, code)

	tests := []struct {
		line string
		next uint16
	}{
		{"ld a, $12", 0x02},
		{"bit 7, h", 0x04},
		{"jr $0004", 0x06},
		{"jp $0150", 0x09},
		{"ld hl, sp-2", 0x0b},
		{"ld [$FF00+$40], a", 0x0d},
		{"db $D3", 0x0e},
		{"rst $38", 0x0f},
		{"stop", 0x11},
		{"ld [hl+], a", 0x12},
		{"ld a, [$C000]", 0x15},
		{"add sp, -128", 0x17},
		{"jr nz, $001B", 0x19},
	}

	addr := uint16(0)
	for _, test := range tests {
		line, next := Disassemble(rom, 1, addr)
		if line != test.line || next != test.next {
			t.Errorf("$%04X: got %q/$%04X, exp %q/$%04X", addr, line, next, test.line, test.next)
		}
		addr = next
	}
}

func TestDisassembleBanked(t *testing.T) {
	rom := make([]byte, 4*cpu.BankSize)
	rom[2*cpu.BankSize] = 0xc9
	rom[3*cpu.BankSize] = 0x00

	if line, _ := Disassemble(rom, 2, 0x4000); line != "ret" {
		t.Errorf("bank 2: got %q", line)
	}
	if line, _ := Disassemble(rom, 3, 0x4000); line != "nop" {
		t.Errorf("bank 3: got %q", line)
	}
	if line, next := Disassemble(rom, 4, 0x4000); line != "???" || next != 0x4001 {
		t.Errorf("bank 4: got %q/$%04X", line, next)
	}
}

func TestDisassembleMemory(t *testing.T) {
	m := cpu.NewROMMemory([]byte{0xcb})
	if line, next := DisassembleMemory(m, 0); line != "db $CB" || next != 1 {
		t.Errorf("truncated prefix: got %q/$%04X", line, next)
	}

	m = cpu.NewROMMemory([]byte{0x00, 0xc3, 0x50})
	if line, next := DisassembleMemory(m, 1); line != "db $C3" || next != 2 {
		t.Errorf("truncated operand: got %q/$%04X", line, next)
	}
}

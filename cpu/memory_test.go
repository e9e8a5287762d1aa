// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "testing"

func TestROMMemory(t *testing.T) {
	rom := make([]byte, 3*BankSize)
	rom[0x0150] = 0x34
	rom[0x0151] = 0x12
	rom[BankSize] = 0x11
	rom[2*BankSize] = 0x22

	m := NewROMMemory(rom)
	if v := m.LoadAddress(0x0150); v != 0x1234 {
		t.Errorf("LoadAddress: got $%04X, exp $1234", v)
	}
	if v := m.LoadByte(0x4000); v != 0x11 {
		t.Errorf("bank 1: got $%02X, exp $11", v)
	}

	m.Bank = 2
	if v := m.LoadByte(0x4000); v != 0x22 {
		t.Errorf("bank 2: got $%02X, exp $22", v)
	}

	m.Bank = 3
	if m.Mapped(0x4000) || m.LoadByte(0x4000) != 0xff {
		t.Error("bank 3 should be unmapped")
	}
	if m.Mapped(0xc000) {
		t.Error("$C000 should be unmapped")
	}

	b := make([]byte, 3)
	m.Bank = 1
	m.LoadBytes(0x3fff, b)
	if b[0] != 0 || b[1] != 0x11 || b[2] != 0 {
		t.Errorf("LoadBytes across banks: got % X", b)
	}
}

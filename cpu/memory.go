// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

// BankSize is the size of one cartridge ROM bank.
const BankSize = 0x4000

// The Memory interface presents the SM83 address space through which all
// memory inspection occurs.
type Memory interface {
	// Mapped returns true if the address is backed by memory.
	Mapped(addr uint16) bool

	// LoadByte loads a single byte from the address and returns it.
	LoadByte(addr uint16) byte

	// LoadBytes loads multiple bytes from the address and stores them into
	// the buffer 'b'.
	LoadBytes(addr uint16, b []byte)

	// LoadAddress loads a little-endian 16-bit value from the requested
	// address and returns it.
	LoadAddress(addr uint16) uint16
}

// ROMMemory maps a cartridge ROM image into $0000-$7FFF. Bank 0 is always
// mapped at $0000-$3FFF, and the selected bank is mapped at $4000-$7FFF.
// Unmapped addresses read as the fill byte.
type ROMMemory struct {
	rom  []byte
	Bank int  // bank mapped at $4000-$7FFF
	Fill byte // value of unmapped bytes
}

// NewROMMemory creates a memory view of a ROM image with bank 1 selected.
func NewROMMemory(rom []byte) *ROMMemory {
	return &ROMMemory{rom: rom, Bank: 1, Fill: 0xff}
}

// Size returns the size of the ROM image in bytes.
func (m *ROMMemory) Size() int {
	return len(m.rom)
}

func (m *ROMMemory) offset(addr uint16) (int, bool) {
	var off int
	switch {
	case addr < BankSize:
		off = int(addr)
	case addr < 2*BankSize:
		off = m.Bank*BankSize + int(addr) - BankSize
	default:
		return 0, false
	}
	return off, off < len(m.rom)
}

// Mapped returns true if the address is backed by the ROM image.
func (m *ROMMemory) Mapped(addr uint16) bool {
	_, ok := m.offset(addr)
	return ok
}

// LoadByte loads a single byte from the address and returns it.
func (m *ROMMemory) LoadByte(addr uint16) byte {
	if off, ok := m.offset(addr); ok {
		return m.rom[off]
	}
	return m.Fill
}

// LoadBytes loads multiple bytes from the address and returns them.
// Addresses past $FFFF wrap around to $0000.
func (m *ROMMemory) LoadBytes(addr uint16, b []byte) {
	for i := range b {
		b[i] = m.LoadByte(addr + uint16(i))
	}
}

// LoadAddress loads a little-endian 16-bit value from the requested
// address and returns it.
func (m *ROMMemory) LoadAddress(addr uint16) uint16 {
	return uint16(m.LoadByte(addr)) | uint16(m.LoadByte(addr+1))<<8
}

// operandToAddress converts a 1- or 2-byte little-endian operand into an
// address.
func operandToAddress(operand []byte) uint16 {
	switch {
	case len(operand) == 1:
		return uint16(operand[0])
	case len(operand) == 2:
		return uint16(operand[0]) | uint16(operand[1])<<8
	}
	return 0
}

// OperandValue returns the immediate value encoded by an instruction's
// operand bytes.
func (i *Instruction) OperandValue(operand []byte) uint16 {
	return operandToAddress(operand)
}

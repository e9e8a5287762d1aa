// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm implements an SM83 instruction set disassembler for
// Game Boy ROM images.
package disasm

import (
	"fmt"
	"strings"

	"github.com/beevik/gbasm/cpu"
)

// Disassemble the machine code in the ROM image at address 'addr' with
// 'bank' mapped into the switchable ROM area. Return a 'line' string
// representing the disassembled instruction and a 'next' address that
// starts the following line of machine code.
func Disassemble(rom []byte, bank int, addr uint16) (line string, next uint16) {
	m := cpu.NewROMMemory(rom)
	m.Bank = bank
	return DisassembleMemory(m, addr)
}

// DisassembleMemory disassembles the machine code in memory 'm' at address
// 'addr'.
func DisassembleMemory(m cpu.Memory, addr uint16) (line string, next uint16) {
	if !m.Mapped(addr) {
		return "???", addr + 1
	}

	set := cpu.GetInstructionSet()
	opcode := m.LoadByte(addr)
	inst := set.Lookup(opcode)
	if opcode == 0xcb && m.Mapped(addr+1) {
		opcode = m.LoadByte(addr + 1)
		inst = set.LookupCB(opcode)
	}
	if inst == nil {
		return fmt.Sprintf("db $%02X", opcode), addr + 1
	}

	// Gather the operand bytes following the opcode.
	start := addr + 1
	if inst.Prefixed {
		start++
	}
	next = addr + uint16(inst.Length)
	for a := start; a != next; a++ {
		if !m.Mapped(a) {
			return fmt.Sprintf("db $%02X", opcode), addr + 1
		}
	}
	operand := make([]byte, next-start)
	m.LoadBytes(start, operand)

	var args []string
	for _, o := range inst.Operands {
		args = append(args, formatOperand(inst, o, opcode, operand, next))
	}
	if len(args) == 0 {
		return inst.Name, next
	}
	return inst.Name + " " + strings.Join(args, ", "), next
}

func formatOperand(inst *cpu.Instruction, o cpu.Operand, opcode byte, operand []byte, next uint16) string {
	n16 := inst.OperandValue(operand)
	n8 := byte(n16)

	switch o.Kind {
	case cpu.Reg, cpu.Cond:
		return o.Name
	case cpu.Ind:
		return "[" + o.Name + "]"
	case cpu.Imm8:
		return fmt.Sprintf("$%02X", n8)
	case cpu.Imm16:
		return fmt.Sprintf("$%04X", n16)
	case cpu.Addr16:
		return fmt.Sprintf("[$%04X]", n16)
	case cpu.Rel8:
		// Convert relative offset to absolute address.
		return fmt.Sprintf("$%04X", next+uint16(int8(n8)))
	case cpu.Signed8:
		return fmt.Sprintf("%d", int8(n8))
	case cpu.Bit3:
		return fmt.Sprintf("%d", (opcode>>3)&7)
	case cpu.Vector:
		return fmt.Sprintf("$%02X", opcode&0x38)
	case cpu.HighOffset, cpu.HighAddr:
		return fmt.Sprintf("[$FF00+$%02X]", n8)
	case cpu.HighC:
		return "[$FF00+c]"
	case cpu.SPOffset:
		return fmt.Sprintf("sp%+d", int8(n8))
	}
	return "?"
}

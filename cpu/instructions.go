// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpu describes the instruction set of the Sharp SM83, the 8-bit
// CPU used by the Game Boy.
package cpu

import (
	"fmt"
	"strings"
)

// An OperandKind describes what an instruction operand slot accepts.
type OperandKind byte

// All operand kinds.
const (
	Reg        OperandKind = iota // a specific register
	Ind                           // a specific register in brackets
	Cond                          // a specific condition code
	Imm8                          // 8-bit immediate value
	Imm16                         // 16-bit immediate value
	Addr16                        // 16-bit address in brackets
	Rel8                          // jump target, encoded as a signed offset
	Signed8                       // signed 8-bit immediate value
	Bit3                          // bit index 0-7, folded into the opcode
	Vector                        // rst vector, folded into the opcode
	HighOffset                    // [$FF00+n8]
	HighC                         // [$FF00+c]
	HighAddr                      // [n16] in $FF00-$FFFF, encoded as 8 bits
	SPOffset                      // sp+e8
)

// An Operand is a single operand slot of an instruction.
type Operand struct {
	Kind OperandKind
	Name string // register or condition name for Reg, Ind and Cond slots
}

// Size returns the number of bytes the operand occupies after the opcode.
func (o Operand) Size() int {
	switch o.Kind {
	case Imm8, Rel8, Signed8, HighOffset, HighAddr, SPOffset:
		return 1
	case Imm16, Addr16:
		return 2
	default:
		return 0
	}
}

// An Instruction describes one encoding variant of an SM83 instruction.
type Instruction struct {
	Name     string    // lower-case mnemonic
	Opcode   byte      // opcode value, before folding in bit or vector fields
	Prefixed bool      // opcode follows the $CB prefix byte
	Operands []Operand // operand slots, in source order
	Length   byte      // total encoded length in bytes
}

// An opcodeData entry describes an instruction variant in a compact
// textual form.
type opcodeData struct {
	name     string
	operands string
	opcode   byte
	prefixed bool
}

var (
	r8     = []string{"b", "c", "d", "e", "h", "l", "[hl]", "a"}
	r16    = []string{"bc", "de", "hl", "sp"}
	r16stk = []string{"bc", "de", "hl", "af"}
	conds  = []string{"cc:nz", "cc:z", "cc:nc", "cc:c"}
)

// All instruction variants, in matching order. When several variants
// accept the same operands, the first one wins.
func instructionData() []opcodeData {
	var d []opcodeData
	add := func(name, operands string, opcode byte) {
		d = append(d, opcodeData{name, operands, opcode, false})
	}
	addCB := func(name, operands string, opcode byte) {
		d = append(d, opcodeData{name, operands, opcode, true})
	}

	for _, n := range []struct {
		name   string
		opcode byte
	}{
		{"nop", 0x00}, {"stop", 0x10}, {"halt", 0x76}, {"di", 0xf3},
		{"ei", 0xfb}, {"reti", 0xd9}, {"rlca", 0x07}, {"rrca", 0x0f},
		{"rla", 0x17}, {"rra", 0x1f}, {"daa", 0x27}, {"cpl", 0x2f},
		{"scf", 0x37}, {"ccf", 0x3f},
	} {
		add(n.name, "", n.opcode)
	}

	// Loads between 8-bit registers and immediates.
	for dst, rd := range r8 {
		for src, rs := range r8 {
			if dst == 6 && src == 6 {
				continue // halt
			}
			add("ld", rd+","+rs, 0x40|byte(dst<<3)|byte(src))
		}
		add("ld", rd+",n8", 0x06|byte(dst<<3))
	}

	// Indirect accumulator loads.
	add("ld", "[bc],a", 0x02)
	add("ld", "[de],a", 0x12)
	add("ld", "[hl+],a", 0x22)
	add("ld", "[hl-],a", 0x32)
	add("ld", "a,[bc]", 0x0a)
	add("ld", "a,[de]", 0x1a)
	add("ld", "a,[hl+]", 0x2a)
	add("ld", "a,[hl-]", 0x3a)
	add("ldi", "[hl],a", 0x22)
	add("ldi", "a,[hl]", 0x2a)
	add("ldd", "[hl],a", 0x32)
	add("ldd", "a,[hl]", 0x3a)

	// High-page loads must come before the general 16-bit address forms.
	add("ld", "[$ff00+c],a", 0xe2)
	add("ld", "[c],a", 0xe2)
	add("ld", "a,[$ff00+c]", 0xf2)
	add("ld", "a,[c]", 0xf2)
	add("ld", "[$ff00+n8],a", 0xe0)
	add("ld", "a,[$ff00+n8]", 0xf0)
	add("ldh", "[$ff00+c],a", 0xe2)
	add("ldh", "[c],a", 0xe2)
	add("ldh", "a,[$ff00+c]", 0xf2)
	add("ldh", "a,[c]", 0xf2)
	add("ldh", "[$ff00+n8],a", 0xe0)
	add("ldh", "a,[$ff00+n8]", 0xf0)
	add("ldh", "[n16h],a", 0xe0)
	add("ldh", "a,[n16h]", 0xf0)
	add("ld", "[n16],a", 0xea)
	add("ld", "a,[n16]", 0xfa)
	add("ld", "[n16],sp", 0x08)

	// 16-bit loads.
	for i, r := range r16 {
		add("ld", r+",n16", 0x01|byte(i<<4))
	}
	add("ld", "sp,hl", 0xf9)
	add("ld", "hl,sp+e8", 0xf8)

	// 8-bit arithmetic and logic.
	for i, name := range []string{"add", "adc", "sub", "sbc", "and", "xor", "or", "cp"} {
		for j, r := range r8 {
			add(name, "a,"+r, 0x80|byte(i<<3)|byte(j))
			add(name, r, 0x80|byte(i<<3)|byte(j))
		}
		add(name, "a,n8", 0xc6|byte(i<<3))
		add(name, "n8", 0xc6|byte(i<<3))
	}
	for i, r := range r8 {
		add("inc", r, 0x04|byte(i<<3))
		add("dec", r, 0x05|byte(i<<3))
	}

	// 16-bit arithmetic.
	for i, r := range r16 {
		add("inc", r, 0x03|byte(i<<4))
		add("dec", r, 0x0b|byte(i<<4))
		add("add", "hl,"+r, 0x09|byte(i<<4))
	}
	add("add", "sp,e8", 0xe8)

	// Jumps, calls and returns.
	add("jp", "hl", 0xe9)
	add("jp", "[hl]", 0xe9)
	add("jp", "n16", 0xc3)
	add("jr", "rel", 0x18)
	add("call", "n16", 0xcd)
	add("ret", "", 0xc9)
	for i, c := range conds {
		add("jp", c+",n16", 0xc2|byte(i<<3))
		add("jr", c+",rel", 0x20|byte(i<<3))
		add("call", c+",n16", 0xc4|byte(i<<3))
		add("ret", c, 0xc0|byte(i<<3))
	}
	add("rst", "vec", 0xc7)

	// Stack operations.
	for i, r := range r16stk {
		add("push", r, 0xc5|byte(i<<4))
		add("pop", r, 0xc1|byte(i<<4))
	}

	// $CB-prefixed rotates, shifts and bit operations.
	for i, name := range []string{"rlc", "rrc", "rl", "rr", "sla", "sra", "swap", "srl"} {
		for j, r := range r8 {
			addCB(name, r, byte(i<<3)|byte(j))
		}
	}
	for i, name := range []string{"bit", "res", "set"} {
		for j, r := range r8 {
			addCB(name, "u3,"+r, 0x40*byte(i+1)|byte(j))
		}
	}

	return d
}

// parseOperand converts an operand's textual form into an Operand.
func parseOperand(s string) Operand {
	switch s {
	case "n8":
		return Operand{Kind: Imm8}
	case "n16":
		return Operand{Kind: Imm16}
	case "[n16]":
		return Operand{Kind: Addr16}
	case "[n16h]":
		return Operand{Kind: HighAddr}
	case "e8":
		return Operand{Kind: Signed8}
	case "rel":
		return Operand{Kind: Rel8}
	case "u3":
		return Operand{Kind: Bit3}
	case "vec":
		return Operand{Kind: Vector}
	case "[$ff00+n8]":
		return Operand{Kind: HighOffset}
	case "[$ff00+c]":
		return Operand{Kind: HighC, Name: "c"}
	case "sp+e8":
		return Operand{Kind: SPOffset, Name: "sp"}
	}
	switch {
	case strings.HasPrefix(s, "cc:"):
		return Operand{Kind: Cond, Name: s[3:]}
	case strings.HasPrefix(s, "["):
		return Operand{Kind: Ind, Name: s[1 : len(s)-1]}
	default:
		return Operand{Kind: Reg, Name: s}
	}
}

// An InstructionSet holds every SM83 instruction variant, indexed by
// mnemonic for assembly and by opcode for disassembly.
type InstructionSet struct {
	variants  map[string][]*Instruction
	opcodes   [256]*Instruction
	cbOpcodes [256]*Instruction
}

// Lookup returns the instruction encoded by an unprefixed opcode, or nil
// if the opcode is unused.
func (s *InstructionSet) Lookup(opcode byte) *Instruction {
	return s.opcodes[opcode]
}

// LookupCB returns the instruction encoded by a $CB-prefixed opcode.
func (s *InstructionSet) LookupCB(opcode byte) *Instruction {
	return s.cbOpcodes[opcode]
}

// GetInstructions returns all variants of the named instruction, in
// matching order.
func (s *InstructionSet) GetInstructions(name string) []*Instruction {
	return s.variants[strings.ToLower(name)]
}

// IsOpcode returns true if name is a known instruction mnemonic.
func (s *InstructionSet) IsOpcode(name string) bool {
	_, ok := s.variants[strings.ToLower(name)]
	return ok
}

func newInstructionSet() *InstructionSet {
	set := &InstructionSet{variants: make(map[string][]*Instruction)}

	for _, d := range instructionData() {
		inst := &Instruction{
			Name:     d.name,
			Opcode:   d.opcode,
			Prefixed: d.prefixed,
			Length:   1,
		}
		if d.prefixed {
			inst.Length++
		}
		if d.operands != "" {
			for _, o := range strings.Split(d.operands, ",") {
				op := parseOperand(o)
				inst.Operands = append(inst.Operands, op)
				inst.Length += byte(op.Size())
			}
		}
		if d.name == "stop" {
			inst.Length = 2 // stop is followed by a padding byte
		}
		set.variants[d.name] = append(set.variants[d.name], inst)

		table := &set.opcodes
		if d.prefixed {
			table = &set.cbOpcodes
		}
		for _, code := range inst.codes() {
			if table[code] == nil {
				table[code] = inst
			}
		}
	}
	return set
}

// codes returns every opcode value the instruction can encode to.
func (i *Instruction) codes() []byte {
	for _, o := range i.Operands {
		switch o.Kind {
		case Bit3:
			c := make([]byte, 8)
			for b := range c {
				c[b] = i.Opcode | byte(b<<3)
			}
			return c
		case Vector:
			c := make([]byte, 8)
			for v := range c {
				c[v] = i.Opcode | byte(v<<3)
			}
			return c
		}
	}
	return []byte{i.Opcode}
}

// Encode returns the opcode byte(s) for the instruction with the given
// bit index or rst vector folded in. The field value is ignored unless the
// instruction has a Bit3 or Vector operand.
func (i *Instruction) Encode(field int) ([]byte, error) {
	code := i.Opcode
	for _, o := range i.Operands {
		switch o.Kind {
		case Bit3:
			if field < 0 || field > 7 {
				return nil, fmt.Errorf("bit index %d out of range 0-7", field)
			}
			code |= byte(field << 3)
		case Vector:
			if field&^0x38 != 0 {
				return nil, fmt.Errorf("invalid rst vector $%02X", field)
			}
			code |= byte(field)
		}
	}
	if i.Prefixed {
		return []byte{0xcb, code}, nil
	}
	return []byte{code}, nil
}

var instructionSet *InstructionSet

// GetInstructionSet returns the SM83 instruction set.
func GetInstructionSet() *InstructionSet {
	if instructionSet == nil {
		// Lazy-create the instruction set.
		instructionSet = newInstructionSet()
	}
	return instructionSet
}

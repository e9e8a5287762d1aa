// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"github.com/beevik/gbasm/cpu"
	"github.com/beevik/gbasm/diag"
	"github.com/beevik/gbasm/object"
)

// evalInstruction encodes an opcode statement using the first
// instruction variant whose operand slots match its arguments.
func (a *assembler) evalInstruction(op *Node) error {
	s, err := a.romSection(op.Token)
	if err != nil {
		return err
	}

	inst := a.findMatchingInstruction(op)
	if inst == nil {
		return errAt(op.Token, "no matching instruction variant for '%s'", op.Token.Text)
	}

	start := s.offset()
	field := 0
	for i, o := range inst.Operands {
		if o.Kind == cpu.Bit3 || o.Kind == cpu.Vector {
			v, _ := a.calcConstNumber(op.Children[i])
			field = int(v)
		}
	}
	code, err := inst.Encode(field)
	if err != nil {
		return errAt(op.Token, "%v", err)
	}
	s.emit(code...)

	for i, o := range inst.Operands {
		if err := a.emitOperand(o, op.Children[i]); err != nil {
			return err
		}
	}
	if inst.Name == "stop" {
		s.emit(0x00)
	}

	if a.log.Enabled(diag.Section) && s.region.IsROM() {
		a.log.Logf(diag.Section, "%s+$%04X  %-12s %s", s.name, start, byteString(s.data[start:]), op)
	}
	return nil
}

// findMatchingInstruction returns the first variant of the opcode whose
// operand slots all match the statement's arguments.
func (a *assembler) findMatchingInstruction(op *Node) *cpu.Instruction {
	for _, inst := range a.instSet.GetInstructions(op.name()) {
		if len(inst.Operands) != len(op.Children) {
			continue
		}
		match := true
		for i, o := range inst.Operands {
			if !a.matchOperand(o, op.Children[i]) {
				match = false
				break
			}
		}
		if match {
			return inst
		}
	}
	return nil
}

// normalizeRegister maps alternate register spellings to their canonical
// names.
func normalizeRegister(name string) string {
	switch name {
	case "hli":
		return "hl+"
	case "hld":
		return "hl-"
	default:
		return name
	}
}

func isRegister(n *Node, name string) bool {
	return n.Kind == RegisterNode && normalizeRegister(n.name()) == name
}

// looksLikeExpr returns true if the node could be a numeric expression:
// it contains no registers, conditions, regions or brackets.
func looksLikeExpr(n *Node) bool {
	ok := true
	n.walk(func(c *Node) bool {
		switch c.Kind {
		case RegisterNode, ConditionNode, RegionNode, IndexerNode, InvalidNode, StringNode:
			if c.Kind == StringNode && c.Raw == "" {
				return true
			}
			ok = false
		}
		return ok
	})
	return ok
}

// indirect returns the expression inside a bracketed operand, or nil.
func indirect(n *Node) *Node {
	if n.Kind == IndexerNode && len(n.Children) == 1 {
		return n.Children[0]
	}
	return nil
}

// highPageOperand returns the right side of a "$FF00 + x" expression,
// or nil.
func (a *assembler) highPageOperand(n *Node) *Node {
	if n == nil || n.Kind != BinaryNode || n.Token.Text != "+" {
		return nil
	}
	base := n.Children[0]
	if !looksLikeExpr(base) || !a.isConstExpr(base) {
		return nil
	}
	if v, err := a.calcConstNumber(base); err != nil || v != 0xff00 {
		return nil
	}
	return n.Children[1]
}

// spOffsetOperand returns the offset expression of an "sp+e8" or
// "sp-e8" operand, or nil.
func spOffsetOperand(n *Node) *Node {
	if n.Kind != BinaryNode || (n.Token.Text != "+" && n.Token.Text != "-") {
		return nil
	}
	if !isRegister(n.Children[0], "sp") || !looksLikeExpr(n.Children[1]) {
		return nil
	}
	if n.Token.Text == "-" {
		neg := Token{Kind: Operator, Text: "-", Line: n.Token.Line, Column: n.Token.Column}
		return &Node{Kind: UnaryNode, Token: neg, Children: []*Node{n.Children[1]}}
	}
	return n.Children[1]
}

// matchOperand returns true if the argument node fits the operand slot.
func (a *assembler) matchOperand(o cpu.Operand, n *Node) bool {
	switch o.Kind {
	case cpu.Reg:
		return isRegister(n, o.Name)

	case cpu.Cond:
		if n.Kind == ConditionNode {
			return n.name() == o.Name
		}
		return o.Name == "c" && isRegister(n, "c")

	case cpu.Ind:
		inner := indirect(n)
		return inner != nil && isRegister(inner, o.Name)

	case cpu.Imm8, cpu.Imm16, cpu.Signed8, cpu.Rel8:
		return looksLikeExpr(n)

	case cpu.Addr16, cpu.HighAddr:
		inner := indirect(n)
		return inner != nil && looksLikeExpr(inner)

	case cpu.Bit3:
		if !looksLikeExpr(n) || !a.isConstExpr(n) {
			return false
		}
		v, err := a.calcConstNumber(n)
		return err == nil && v >= 0 && v <= 7

	case cpu.Vector:
		if !looksLikeExpr(n) || !a.isConstExpr(n) {
			return false
		}
		v, err := a.calcConstNumber(n)
		return err == nil && v&^0x38 == 0

	case cpu.HighOffset:
		right := a.highPageOperand(indirect(n))
		return right != nil && looksLikeExpr(right)

	case cpu.HighC:
		right := a.highPageOperand(indirect(n))
		return right != nil && isRegister(right, "c")

	case cpu.SPOffset:
		return spOffsetOperand(n) != nil
	}
	return false
}

// emitOperand appends the encoded value of a matched operand.
func (a *assembler) emitOperand(o cpu.Operand, n *Node) error {
	switch o.Kind {
	case cpu.Imm8:
		return a.emitValue(n, object.PatchByte)
	case cpu.Imm16:
		return a.emitValue(n, object.PatchWord)
	case cpu.Addr16:
		return a.emitValue(indirect(n), object.PatchWord)
	case cpu.Signed8:
		return a.emitSigned(n)
	case cpu.SPOffset:
		return a.emitSigned(spOffsetOperand(n))
	case cpu.Rel8:
		return a.emitPatch(n, object.PatchJR)
	case cpu.HighOffset:
		return a.emitValue(a.highPageOperand(indirect(n)), object.PatchByte)
	case cpu.HighAddr:
		return a.emitHighAddr(indirect(n))
	}
	return nil
}

// emitSigned appends a signed 8-bit offset.
func (a *assembler) emitSigned(n *Node) error {
	return a.emitValue(n, object.PatchSigned)
}

// emitHighAddr appends the low byte of an address in $FF00-$FFFF. A
// constant below $100 is taken as the low byte itself.
func (a *assembler) emitHighAddr(n *Node) error {
	if !a.isConstExpr(n) {
		rpn, err := a.buildLinkExpr(n)
		if err != nil {
			return err
		}
		s := a.section
		s.patches = append(s.patches, object.Patch{
			File:   a.file.Path,
			Line:   a.line,
			Offset: s.offset(),
			Kind:   object.PatchByte,
			Expr:   rpn.Op(object.OpHRAM),
		})
		s.reserve(1, 0)
		return nil
	}
	v, err := a.calcConstNumber(n)
	if err != nil {
		return err
	}
	if (v < 0xff00 || v > 0xffff) && (v < 0 || v > 0xff) {
		return errAt(n.Token, "address $%04X is not in $FF00-$FFFF", v)
	}
	a.section.emit(byte(v))
	return nil
}

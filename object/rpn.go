// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package object

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// An Op is a single-byte instruction of the link-expression stack machine.
type Op byte

// Link-expression instructions. Unless noted otherwise, binary operators
// pop the right operand first, then the left operand, and push the result.
const (
	OpAdd Op = 0x00
	OpSub Op = 0x01
	OpMul Op = 0x02
	OpDiv Op = 0x03
	OpMod Op = 0x04
	OpNeg Op = 0x05
	OpPow Op = 0x06

	OpOr  Op = 0x10
	OpAnd Op = 0x11
	OpXor Op = 0x12
	OpNot Op = 0x13

	OpLogAnd Op = 0x21
	OpLogOr  Op = 0x22
	OpLogNot Op = 0x23

	OpEq Op = 0x30
	OpNe Op = 0x31
	OpGt Op = 0x32
	OpLt Op = 0x33
	OpGe Op = 0x34
	OpLe Op = 0x35

	OpShl  Op = 0x40
	OpShr  Op = 0x41
	OpUshr Op = 0x42

	OpBankSym     Op = 0x50 // 4-byte symbol id
	OpBankSect    Op = 0x51 // null-terminated section name
	OpBankSelf    Op = 0x52
	OpSizeofSect  Op = 0x53 // null-terminated section name
	OpStartofSect Op = 0x54 // null-terminated section name

	OpHRAM Op = 0x60 // check $FF00-$FFFF, keep the low byte

	OpConst Op = 0x80 // 4-byte immediate
	OpSym   Op = 0x81 // 4-byte symbol id
)

type opdata struct {
	symbol  string
	operand operandType
}

type operandType byte

const (
	noOperand operandType = iota
	intOperand
	symOperand
	strOperand
)

var ops = map[Op]opdata{
	OpAdd:         {"+", noOperand},
	OpSub:         {"-", noOperand},
	OpMul:         {"*", noOperand},
	OpDiv:         {"/", noOperand},
	OpMod:         {"%", noOperand},
	OpNeg:         {"neg", noOperand},
	OpPow:         {"**", noOperand},
	OpOr:          {"|", noOperand},
	OpAnd:         {"&", noOperand},
	OpXor:         {"^", noOperand},
	OpNot:         {"~", noOperand},
	OpLogAnd:      {"&&", noOperand},
	OpLogOr:       {"||", noOperand},
	OpLogNot:      {"!", noOperand},
	OpEq:          {"==", noOperand},
	OpNe:          {"!=", noOperand},
	OpGt:          {">", noOperand},
	OpLt:          {"<", noOperand},
	OpGe:          {">=", noOperand},
	OpLe:          {"<=", noOperand},
	OpShl:         {"<<", noOperand},
	OpShr:         {">>", noOperand},
	OpUshr:        {">>>", noOperand},
	OpBankSym:     {"bank", symOperand},
	OpBankSect:    {"bank", strOperand},
	OpBankSelf:    {"bank(@)", noOperand},
	OpSizeofSect:  {"sizeof", strOperand},
	OpStartofSect: {"startof", strOperand},
	OpHRAM:        {"hram", noOperand},
	OpConst:       {"", intOperand},
	OpSym:         {"", symOperand},
}

// Symbol returns the operator text used when displaying the instruction.
func (op Op) Symbol() string {
	return ops[op].symbol
}

// ErrMalformedRPN is returned when a link expression cannot be decoded.
var ErrMalformedRPN = errors.New("malformed link expression")

// An RPN is an encoded link expression: a flat stream of single-byte
// instructions and their fixed-width operands.
type RPN []byte

// Const appends an instruction pushing an immediate value.
func (r RPN) Const(v int32) RPN {
	r = append(r, byte(OpConst))
	return binary.LittleEndian.AppendUint32(r, uint32(v))
}

// Sym appends an instruction pushing the value of the symbol with the
// given id.
func (r RPN) Sym(id int) RPN {
	r = append(r, byte(OpSym))
	return binary.LittleEndian.AppendUint32(r, uint32(id))
}

// BankSym appends an instruction pushing the bank of the symbol with the
// given id.
func (r RPN) BankSym(id int) RPN {
	r = append(r, byte(OpBankSym))
	return binary.LittleEndian.AppendUint32(r, uint32(id))
}

// Section appends one of the section-name instructions (OpBankSect,
// OpSizeofSect or OpStartofSect).
func (r RPN) Section(op Op, name string) RPN {
	r = append(r, byte(op))
	r = append(r, name...)
	return append(r, 0)
}

// Op appends an instruction that takes no operand.
func (r RPN) Op(op Op) RPN {
	return append(r, byte(op))
}

// An Instr is a single decoded link-expression instruction.
type Instr struct {
	Op   Op
	Imm  int32  // immediate value or symbol id
	Name string // section name
}

// Decode calls fn for each instruction in the expression, in order.
func (r RPN) Decode(fn func(in Instr) error) error {
	for i := 0; i < len(r); {
		op := Op(r[i])
		data, ok := ops[op]
		if !ok {
			return fmt.Errorf("%w: unknown opcode $%02X", ErrMalformedRPN, r[i])
		}
		i++

		in := Instr{Op: op}
		switch data.operand {
		case intOperand, symOperand:
			if i+4 > len(r) {
				return fmt.Errorf("%w: truncated operand", ErrMalformedRPN)
			}
			in.Imm = int32(binary.LittleEndian.Uint32(r[i:]))
			i += 4
		case strOperand:
			j := i
			for j < len(r) && r[j] != 0 {
				j++
			}
			if j == len(r) {
				return fmt.Errorf("%w: unterminated section name", ErrMalformedRPN)
			}
			in.Name = string(r[i:j])
			i = j + 1
		}

		if err := fn(in); err != nil {
			return err
		}
	}
	return nil
}

// String returns the expression in postfix notation. Symbol ids are
// displayed as #id.
func (r RPN) String() string {
	var parts []string
	err := r.Decode(func(in Instr) error {
		switch in.Op {
		case OpConst:
			parts = append(parts, fmt.Sprintf("%d", in.Imm))
		case OpSym:
			parts = append(parts, fmt.Sprintf("#%d", in.Imm))
		case OpBankSym:
			parts = append(parts, fmt.Sprintf("bank(#%d)", in.Imm))
		case OpBankSect, OpSizeofSect, OpStartofSect:
			parts = append(parts, fmt.Sprintf("%s(%q)", in.Op.Symbol(), in.Name))
		default:
			parts = append(parts, in.Op.Symbol())
		}
		return nil
	})
	if err != nil {
		parts = append(parts, "<"+err.Error()+">")
	}
	return strings.Join(parts, " ")
}

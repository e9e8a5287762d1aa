// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"fmt"

	"github.com/beevik/gbasm/object"
)

// evaluate runs a link expression on a stack machine in the context of the
// placed section that holds the patch.
func (l *Linker) evaluate(p *Placement, expr object.RPN) (int32, error) {
	var stack []int32
	pop := func() (int32, error) {
		if len(stack) == 0 {
			return 0, fmt.Errorf("%w: stack underflow", object.ErrMalformedRPN)
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	err := expr.Decode(func(in object.Instr) error {
		switch in.Op {
		case object.OpConst:
			stack = append(stack, in.Imm)

		case object.OpSym:
			v, _, err := l.symbolValue(p.Module, int(in.Imm))
			if err != nil {
				return err
			}
			stack = append(stack, v)

		case object.OpBankSym:
			_, bank, err := l.symbolValue(p.Module, int(in.Imm))
			if err != nil {
				return err
			}
			if bank < 0 {
				return fmt.Errorf("BANK of '%s' requires a label", p.Module.Symbols[in.Imm].Name)
			}
			stack = append(stack, int32(bank))

		case object.OpBankSelf:
			stack = append(stack, int32(p.Bank))

		case object.OpBankSect, object.OpSizeofSect, object.OpStartofSect:
			s, ok := l.byName[in.Name]
			if !ok {
				return fmt.Errorf("no section named '%s'", in.Name)
			}
			switch in.Op {
			case object.OpBankSect:
				stack = append(stack, int32(s.Bank))
			case object.OpSizeofSect:
				stack = append(stack, int32(s.Size()))
			default:
				stack = append(stack, int32(s.Start))
			}

		case object.OpHRAM:
			v, err := pop()
			if err != nil {
				return err
			}
			if v < 0xff00 || v > 0xffff {
				return fmt.Errorf("address $%04X is not in the high page ($FF00-$FFFF)", v)
			}
			stack = append(stack, v&0xff)

		default:
			var a, b int32
			var err error
			if !in.Op.Unary() {
				if b, err = pop(); err != nil {
					return err
				}
			}
			if a, err = pop(); err != nil {
				return err
			}
			v, err := in.Op.Apply(a, b)
			if err != nil {
				return err
			}
			stack = append(stack, v)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(stack) != 1 {
		return 0, fmt.Errorf("%w: %d values left on the stack", object.ErrMalformedRPN, len(stack))
	}
	return stack[0], nil
}

// symbolValue returns the value of a module's symbol and the bank it was
// placed in. The bank is -1 for constants.
func (l *Linker) symbolValue(m *object.Module, id int) (value int32, bank int, err error) {
	if id < 0 || id >= len(m.Symbols) {
		return 0, -1, fmt.Errorf("%w: symbol id %d out of range", object.ErrMalformedRPN, id)
	}
	sym := &m.Symbols[id]

	if sym.Kind == object.Imported {
		ref, ok := l.exports[sym.Name]
		if !ok {
			return 0, -1, fmt.Errorf("no definition for symbol '%s'", sym.Name)
		}
		m, sym = ref.module, &ref.module.Symbols[ref.index]
	}

	if sym.Section < 0 {
		return int32(sym.Value), -1, nil
	}
	if sym.Section >= len(m.Sections) {
		return 0, -1, fmt.Errorf("symbol '%s' refers to missing section %d", sym.Name, sym.Section)
	}
	p := l.byModule[m][sym.Section]
	if p == nil {
		return 0, -1, fmt.Errorf("symbol '%s' refers to a section that was not placed", sym.Name)
	}
	return int32(p.Start + sym.Value), p.Bank, nil
}

// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"strings"

	"github.com/beevik/gbasm/object"
)

// buildLinkExpr lowers an expression into a link-time RPN program.
// Constant subexpressions are folded into immediates; symbols are
// referenced by their module symbol id.
func (a *assembler) buildLinkExpr(n *Node) (object.RPN, error) {
	return a.appendLinkExpr(nil, n)
}

func (a *assembler) appendLinkExpr(r object.RPN, n *Node) (object.RPN, error) {
	if a.isConstExpr(n) {
		v, err := a.calcConstNumber(n)
		if err != nil {
			return nil, err
		}
		return r.Const(v), nil
	}

	switch n.Kind {
	case IdentifierNode:
		if n.Token.Text == "@" {
			if a.section == nil {
				return nil, errAt(n.Token, "'@' used outside of a section")
			}
			return r.Sym(a.symbolID(a.hereLabel())), nil
		}
		if _, ok := a.stringEquates[n.Token.Text]; ok {
			return nil, errAt(n.Token, "expected a number, found string equate '%s'", n.Token.Text)
		}
		return r.Sym(a.symbolID(a.qualify(n.Token.Text))), nil

	case UnaryNode:
		r, err := a.appendLinkExpr(r, n.Children[0])
		if err != nil {
			return nil, err
		}
		if op := unaryOps[n.Token.Text]; op != opPlus {
			r = r.Op(op)
		}
		return r, nil

	case BinaryNode:
		r, err := a.appendLinkExpr(r, n.Children[0])
		if err != nil {
			return nil, err
		}
		r, err = a.appendLinkExpr(r, n.Children[1])
		if err != nil {
			return nil, err
		}
		return r.Op(binaryOps[n.Token.Text].op), nil

	case FunctionNode:
		return a.appendLinkFunction(r, n)
	}

	// Not constant and not representable at link time; report why.
	_, err := a.calcConstExpr(n)
	if err == nil {
		err = errAt(n.Token, "invalid expression")
	}
	return nil, err
}

func (a *assembler) appendLinkFunction(r object.RPN, n *Node) (object.RPN, error) {
	name := n.name()
	f, ok := functions[name]
	if !ok {
		return nil, errAt(n.Token, "'%s' is not a function", n.Token.Text)
	}
	if len(n.Children) < f.minArgs || len(n.Children) > f.maxArgs {
		return nil, errAt(n.Token, "wrong number of arguments to %s", strings.ToUpper(name))
	}
	arg := n.Children[0]

	switch name {
	case "high", "low":
		r, err := a.appendLinkExpr(r, arg)
		if err != nil {
			return nil, err
		}
		if name == "high" {
			r = r.Const(8).Op(object.OpShr)
		}
		return r.Const(0xff).Op(object.OpAnd), nil

	case "bank":
		switch {
		case arg.Kind == IdentifierNode && arg.Token.Text == "@":
			return r.Op(object.OpBankSelf), nil
		case arg.Kind == IdentifierNode:
			if _, ok := a.lookupConst(arg.Token.Text); ok {
				return nil, errAt(arg.Token, "BANK requires a label, not constant '%s'", arg.Token.Text)
			}
			return r.BankSym(a.symbolID(a.qualify(arg.Token.Text))), nil
		case arg.Kind == StringNode:
			return r.Section(object.OpBankSect, arg.Token.Text), nil
		}
		return nil, errAt(arg.Token, "BANK requires a label or a section name")

	case "sizeof", "startof":
		if arg.Kind != StringNode {
			return nil, errAt(arg.Token, "%s requires a section name", strings.ToUpper(name))
		}
		op := object.OpSizeofSect
		if name == "startof" {
			op = object.OpStartofSect
		}
		return r.Section(op, arg.Token.Text), nil
	}

	// The remaining functions are evaluated at assembly time only.
	_, err := a.calcFunction(n)
	if err == nil {
		err = errAt(n.Token, "%s requires constant arguments", strings.ToUpper(name))
	}
	return nil, err
}

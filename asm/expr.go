// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"
	"strings"

	"github.com/beevik/gbasm/object"
)

type opdata struct {
	precedence int
	rightAssoc bool
	op         object.Op
}

// Binary operators, from loosest to tightest binding.
var binaryOps = map[string]opdata{
	"||":  {10, false, object.OpLogOr},
	"&&":  {20, false, object.OpLogAnd},
	"==":  {30, false, object.OpEq},
	"!=":  {30, false, object.OpNe},
	"<":   {30, false, object.OpLt},
	">":   {30, false, object.OpGt},
	"<=":  {30, false, object.OpLe},
	">=":  {30, false, object.OpGe},
	"+":   {40, false, object.OpAdd},
	"-":   {40, false, object.OpSub},
	"&":   {50, false, object.OpAnd},
	"|":   {50, false, object.OpOr},
	"^":   {50, false, object.OpXor},
	"<<":  {60, false, object.OpShl},
	">>":  {60, false, object.OpShr},
	">>>": {60, false, object.OpUshr},
	"*":   {70, false, object.OpMul},
	"/":   {70, false, object.OpDiv},
	"%":   {70, false, object.OpMod},
	"**":  {80, true, object.OpPow},
}

// opPlus marks the unary plus operator, which has no link-time encoding.
const opPlus object.Op = 0xff

var unaryOps = map[string]object.Op{
	"-": object.OpNeg,
	"+": opPlus,
	"~": object.OpNot,
	"!": object.OpLogNot,
}

// A function describes the argument count of a built-in function.
type function struct {
	minArgs, maxArgs int
	linkTime         bool // value is only known after linking
}

var functions = map[string]function{
	"high":    {1, 1, false},
	"low":     {1, 1, false},
	"bank":    {1, 1, true},
	"sizeof":  {1, 1, true},
	"startof": {1, 1, true},
	"def":     {1, 1, false},
	"isconst": {1, 1, false},
	"strlen":  {1, 1, false},
	"strcat":  {1, 64, false},
	"strupr":  {1, 1, false},
	"strlwr":  {1, 1, false},
	"strsub":  {2, 3, false},
	"strin":   {2, 2, false},
}

// An evalError is an error attached to the token that caused it.
type evalError struct {
	tok Token
	msg string
}

func (e *evalError) Error() string {
	return e.msg
}

func errAt(t Token, format string, args ...any) error {
	return &evalError{tok: t, msg: fmt.Sprintf(format, args...)}
}

// isConstExpr returns true if the expression's value is known at
// assembly time. Labels are never constant, except for the difference of
// two labels in the same section.
func (a *assembler) isConstExpr(n *Node) bool {
	switch n.Kind {
	case NumberNode, StringNode:
		return true
	case IdentifierNode:
		_, ok := a.lookupConst(n.Token.Text)
		return ok
	case UnaryNode:
		return a.isConstExpr(n.Children[0])
	case BinaryNode:
		if _, ok := a.labelDiff(n); ok {
			return true
		}
		return a.isConstExpr(n.Children[0]) && a.isConstExpr(n.Children[1])
	case FunctionNode:
		f, ok := functions[n.name()]
		switch {
		case !ok || f.linkTime:
			return false
		case n.name() == "def" || n.name() == "isconst":
			return true
		}
		for _, c := range n.Children {
			if !a.isConstExpr(c) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// calcConstExpr reduces a constant expression to a value.
func (a *assembler) calcConstExpr(n *Node) (Value, error) {
	switch n.Kind {
	case NumberNode:
		v, err := parseNumber(n.Token.Text)
		if err != nil {
			return Value{}, errAt(n.Token, "%v", err)
		}
		return numberValue(v), nil

	case StringNode:
		return stringValue(n.Token.Text), nil

	case IdentifierNode:
		name := n.Token.Text
		if v, ok := a.lookupConst(name); ok {
			return v, nil
		}
		if name == "@" || a.lookupLabel(name) != nil {
			return Value{}, errAt(n.Token, "symbol '%s' is not constant", name)
		}
		return Value{}, errAt(n.Token, "undefined symbol '%s'", name)

	case UnaryNode:
		v, err := a.calcConstNumber(n.Children[0])
		if err != nil {
			return Value{}, err
		}
		op := unaryOps[n.Token.Text]
		if op == opPlus {
			return numberValue(v), nil
		}
		r, _ := op.Apply(v, 0)
		return numberValue(r), nil

	case BinaryNode:
		return a.calcBinary(n)

	case FunctionNode:
		return a.calcFunction(n)

	case RegisterNode, ConditionNode, RegionNode:
		return Value{}, errAt(n.Token, "unexpected %s '%s' in expression", n.Kind, n.Token.Text)
	case IndexerNode:
		return Value{}, errAt(n.Token, "unexpected '[' in expression")
	default:
		return Value{}, errAt(n.Token, "invalid expression")
	}
}

// calcConstNumber evaluates a constant expression that must produce a
// number.
func (a *assembler) calcConstNumber(n *Node) (int32, error) {
	v, err := a.calcConstExpr(n)
	if err != nil {
		return 0, err
	}
	num, err := v.Number()
	if err != nil {
		return 0, errAt(n.Token, "%v", err)
	}
	return num, nil
}

// calcConstString evaluates a constant expression that must produce a
// string.
func (a *assembler) calcConstString(n *Node) (string, error) {
	v, err := a.calcConstExpr(n)
	if err != nil {
		return "", err
	}
	s, err := v.Text()
	if err != nil {
		return "", errAt(n.Token, "%v", err)
	}
	return s, nil
}

// constNumber evaluates an expression that must be constant, such as a
// conditional or a repeat count.
func (a *assembler) constNumber(n *Node, what string) (int32, error) {
	if !a.isConstExpr(n) {
		return 0, errAt(n.Token, "%s must be a constant expression", what)
	}
	return a.calcConstNumber(n)
}

func (a *assembler) calcBinary(n *Node) (Value, error) {
	if d, ok := a.labelDiff(n); ok {
		return numberValue(d), nil
	}

	l, err := a.calcConstExpr(n.Children[0])
	if err != nil {
		return Value{}, err
	}
	r, err := a.calcConstExpr(n.Children[1])
	if err != nil {
		return Value{}, err
	}

	op := binaryOps[n.Token.Text].op
	if l.Kind == StringValue && r.Kind == StringValue && (op == object.OpEq || op == object.OpNe) {
		eq := l.Str == r.Str
		if op == object.OpNe {
			eq = !eq
		}
		if eq {
			return numberValue(1), nil
		}
		return numberValue(0), nil
	}

	lv, err := l.Number()
	if err != nil {
		return Value{}, errAt(n.Children[0].Token, "%v", err)
	}
	rv, err := r.Number()
	if err != nil {
		return Value{}, errAt(n.Children[1].Token, "%v", err)
	}
	v, err := op.Apply(lv, rv)
	if err != nil {
		return Value{}, errAt(n.Token, "%v", err)
	}
	return numberValue(v), nil
}

// labelDiff computes the difference of two labels defined in the same
// section, which is known before the section is placed.
func (a *assembler) labelDiff(n *Node) (int32, bool) {
	if n.Kind != BinaryNode || n.Token.Text != "-" {
		return 0, false
	}
	l, r := n.Children[0], n.Children[1]
	if l.Kind != IdentifierNode || r.Kind != IdentifierNode {
		return 0, false
	}
	ll, rl := a.lookupLabel(l.Token.Text), a.lookupLabel(r.Token.Text)
	if ll == nil || rl == nil || ll.section != rl.section {
		return 0, false
	}
	return int32(ll.offset - rl.offset), true
}

func (a *assembler) calcFunction(n *Node) (Value, error) {
	name := n.name()
	f, ok := functions[name]
	if !ok {
		return Value{}, errAt(n.Token, "'%s' is not a function", n.Token.Text)
	}
	args := n.Children
	if len(args) < f.minArgs || len(args) > f.maxArgs {
		return Value{}, errAt(n.Token, "wrong number of arguments to %s", strings.ToUpper(name))
	}
	if f.linkTime {
		return Value{}, errAt(n.Token, "%s is not known until link time", strings.ToUpper(name))
	}

	switch name {
	case "def":
		if args[0].Kind != IdentifierNode {
			return Value{}, errAt(args[0].Token, "DEF requires a symbol name")
		}
		return boolValue(a.isDefined(args[0].Token.Text)), nil

	case "isconst":
		return boolValue(a.isConstExpr(args[0])), nil

	case "high", "low":
		v, err := a.calcConstNumber(args[0])
		if err != nil {
			return Value{}, err
		}
		if name == "high" {
			v >>= 8
		}
		return numberValue(v & 0xff), nil
	}

	// String functions.
	strs := make([]string, 0, len(args))
	nums := make([]int32, 0, len(args))
	for i, arg := range args {
		if i == 0 || name == "strcat" || name == "strin" {
			s, err := a.calcConstString(arg)
			if err != nil {
				return Value{}, err
			}
			strs = append(strs, s)
		} else {
			v, err := a.calcConstNumber(arg)
			if err != nil {
				return Value{}, err
			}
			nums = append(nums, v)
		}
	}

	switch name {
	case "strlen":
		return numberValue(int32(len(strs[0]))), nil
	case "strcat":
		return stringValue(strings.Join(strs, "")), nil
	case "strupr":
		return stringValue(strings.ToUpper(strs[0])), nil
	case "strlwr":
		return stringValue(strings.ToLower(strs[0])), nil
	case "strin":
		return numberValue(int32(strings.Index(strs[0], strs[1]) + 1)), nil
	case "strsub":
		s := strs[0]
		start := int(nums[0]) - 1
		if start < 0 || start > len(s) {
			return Value{}, errAt(args[1].Token, "STRSUB position %d out of range", nums[0])
		}
		end := len(s)
		if len(nums) > 1 {
			if nums[1] < 0 {
				return Value{}, errAt(args[2].Token, "STRSUB length %d is negative", nums[1])
			}
			end = min(start+int(nums[1]), len(s))
		}
		return stringValue(s[start:end]), nil
	}
	return Value{}, errAt(n.Token, "unsupported function %s", strings.ToUpper(name))
}

func boolValue(b bool) Value {
	if b {
		return numberValue(1)
	}
	return numberValue(0)
}

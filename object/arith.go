// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package object

import "errors"

// Errors returned by Apply.
var (
	ErrDivideByZero     = errors.New("division by zero")
	ErrNegativeExponent = errors.New("negative exponent")
	ErrNotArithmetic    = errors.New("not an arithmetic operator")
)

// Unary returns true if the operator consumes a single operand.
func (op Op) Unary() bool {
	switch op {
	case OpNeg, OpNot, OpLogNot:
		return true
	default:
		return false
	}
}

// Apply evaluates an arithmetic, bitwise, logical, comparison or shift
// operator with 32-bit wraparound. Unary operators ignore b.
func (op Op) Apply(a, b int32) (int32, error) {
	switch op {
	case OpAdd:
		return a + b, nil
	case OpSub:
		return a - b, nil
	case OpMul:
		return a * b, nil
	case OpDiv:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	case OpMod:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a % b, nil
	case OpNeg:
		return -a, nil
	case OpPow:
		if b < 0 {
			return 0, ErrNegativeExponent
		}
		r := int32(1)
		for ; b > 0; b >>= 1 {
			if b&1 != 0 {
				r *= a
			}
			a *= a
		}
		return r, nil

	case OpOr:
		return a | b, nil
	case OpAnd:
		return a & b, nil
	case OpXor:
		return a ^ b, nil
	case OpNot:
		return ^a, nil

	case OpLogAnd:
		return boolValue(a != 0 && b != 0), nil
	case OpLogOr:
		return boolValue(a != 0 || b != 0), nil
	case OpLogNot:
		return boolValue(a == 0), nil

	case OpEq:
		return boolValue(a == b), nil
	case OpNe:
		return boolValue(a != b), nil
	case OpGt:
		return boolValue(a > b), nil
	case OpLt:
		return boolValue(a < b), nil
	case OpGe:
		return boolValue(a >= b), nil
	case OpLe:
		return boolValue(a <= b), nil

	case OpShl:
		return shiftLeft(a, b), nil
	case OpShr:
		return shiftRight(a, b), nil
	case OpUshr:
		switch {
		case b < 0:
			return shiftLeft(a, -max(b, -32)), nil
		case b >= 32:
			return 0, nil
		default:
			return int32(uint32(a) >> uint(b)), nil
		}
	}
	return 0, ErrNotArithmetic
}

func shiftLeft(a, b int32) int32 {
	switch {
	case b < 0:
		return shiftRight(a, -max(b, -32))
	case b >= 32:
		return 0
	default:
		return a << uint(b)
	}
}

func shiftRight(a, b int32) int32 {
	switch {
	case b < 0:
		return shiftLeft(a, -max(b, -32))
	case b >= 32:
		if a < 0 {
			return -1
		}
		return 0
	default:
		return a >> uint(b)
	}
}

func boolValue(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

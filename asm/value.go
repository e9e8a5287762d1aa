// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"
	"strconv"
)

// A ValueKind identifies the type held by a Value.
type ValueKind byte

// Value kinds.
const (
	NumberValue ValueKind = iota
	StringValue
)

// A Value is the result of evaluating a constant expression: either a
// 32-bit integer or a string.
type Value struct {
	Kind ValueKind
	Num  int32
	Str  string
}

func numberValue(n int32) Value {
	return Value{Kind: NumberValue, Num: n}
}

func stringValue(s string) Value {
	return Value{Kind: StringValue, Str: s}
}

// Number returns the value as an integer. A single-character string
// converts to its character code.
func (v Value) Number() (int32, error) {
	switch {
	case v.Kind == NumberValue:
		return v.Num, nil
	case len(v.Str) == 1:
		return int32(v.Str[0]), nil
	default:
		return 0, fmt.Errorf("expected a number, found string %s", strconv.Quote(v.Str))
	}
}

// Text returns the value as a string.
func (v Value) Text() (string, error) {
	if v.Kind == StringValue {
		return v.Str, nil
	}
	return "", fmt.Errorf("expected a string, found number %d", v.Num)
}

func (v Value) String() string {
	if v.Kind == StringValue {
		return strconv.Quote(v.Str)
	}
	if v.Num < 0 {
		return fmt.Sprintf("-$%X", -int64(v.Num))
	}
	return fmt.Sprintf("$%X", v.Num)
}

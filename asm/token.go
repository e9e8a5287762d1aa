// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/gbasm/cpu"
)

// A TokenKind identifies the lexical class of a token.
type TokenKind byte

// All token kinds.
const (
	EOL TokenKind = iota
	Whitespace
	Comment
	Identifier
	Keyword
	Function
	Opcode
	Register
	Condition
	Region
	Number
	String
	Operator
	Comma
	Colon
	DoubleColon
	LParen
	RParen
	LBracket
	RBracket
	MacroArg
	UniqueID
	Escape
	StringText
	Quote
	Invalid
)

var tokenKindNames = []string{
	"end of line", "whitespace", "comment", "identifier", "keyword",
	"function", "opcode", "register", "condition", "region", "number",
	"string", "operator", "','", "':'", "'::'", "'('", "')'", "'['", "']'",
	"macro argument", "unique id", "escape", "string text", "'\"'", "invalid",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return "unknown"
}

// A Token is a single lexical element of a source line. Columns are
// 1-based.
type Token struct {
	Kind   TokenKind
	Text   string // source text, or the decoded contents of a string
	Line   int
	Column int
}

func (t Token) String() string {
	switch t.Kind {
	case EOL:
		return "end of line"
	case String:
		return strconv.Quote(t.Text)
	default:
		return t.Text
	}
}

// keyword returns the lower-case text of the token if it is a keyword,
// function or opcode. Otherwise it returns an empty string.
func (t Token) keyword() string {
	switch t.Kind {
	case Keyword, Function, Opcode:
		return strings.ToLower(t.Text)
	default:
		return ""
	}
}

var registerNames = map[string]bool{
	"a": true, "b": true, "c": true, "d": true, "e": true, "h": true, "l": true,
	"af": true, "bc": true, "de": true, "hl": true, "sp": true,
	"hli": true, "hld": true, "hl+": true, "hl-": true,
}

var conditionNames = map[string]bool{"nz": true, "z": true, "nc": true}

var functionNames = map[string]bool{
	"high": true, "low": true, "bank": true, "sizeof": true, "startof": true,
	"isconst": true, "strlen": true, "strcat": true, "strupr": true,
	"strlwr": true, "strsub": true, "strin": true,
}

var regionNames = map[string]bool{
	"rom0": true, "romx": true, "vram": true, "sram": true, "wram0": true,
	"wramx": true, "oam": true, "hram": true,
}

// classify determines the kind of an identifier-shaped word. Keyword,
// function, register and condition names are case-insensitive.
func classify(word string) TokenKind {
	lower := strings.ToLower(word)
	switch {
	case registerNames[lower]:
		return Register
	case conditionNames[lower]:
		return Condition
	case regionNames[lower]:
		return Region
	case functionNames[lower]:
		return Function
	case isKeyword(lower):
		return Keyword
	case cpu.GetInstructionSet().IsOpcode(lower):
		return Opcode
	default:
		return Identifier
	}
}

// parseNumber converts the text of a number token into its 32-bit value.
// Values wrap at 32 bits.
func parseNumber(text string) (int32, error) {
	digits, base := text, 10
	switch {
	case strings.HasPrefix(text, "$"):
		digits, base = text[1:], 16
	case strings.HasPrefix(text, "%"):
		digits, base = text[1:], 2
	case strings.HasPrefix(text, "&"):
		digits, base = text[1:], 8
	case strings.HasPrefix(text, "`"):
		return parseGfx(text[1:])
	case len(text) > 2 && text[0] == '0':
		switch text[1] {
		case 'x', 'X':
			digits, base = text[2:], 16
		case 'b', 'B':
			digits, base = text[2:], 2
		case 'o', 'O':
			digits, base = text[2:], 8
		}
	}

	digits = strings.ReplaceAll(digits, "_", "")
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil || v > 0xffffffff {
		return 0, fmt.Errorf("invalid number '%s'", text)
	}
	return int32(uint32(v)), nil
}

// parseGfx converts a string of 2-bit pixel values into the two bytes of
// a Game Boy tile row. The low bit planes form the low byte.
func parseGfx(digits string) (int32, error) {
	if len(digits) == 0 || len(digits) > 8 {
		return 0, fmt.Errorf("invalid graphics literal '`%s'", digits)
	}
	var lo, hi int32
	for _, c := range digits {
		if c < '0' || c > '3' {
			return 0, fmt.Errorf("invalid graphics literal '`%s'", digits)
		}
		p := int32(c - '0')
		lo = lo<<1 | p&1
		hi = hi<<1 | p>>1
	}
	return hi<<8 | lo, nil
}

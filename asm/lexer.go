// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"
	"strings"

	"github.com/beevik/gbasm/diag"
)

// maxExpansions bounds the number of substitutions performed on a
// single line.
const maxExpansions = 64

// A lexContext identifies the construct enclosing the lexer's position.
type lexContext byte

const (
	inLine lexContext = iota
	inString
)

// A rule matches a token kind at the start of a string, returning the
// length of the match or 0. A rule is only tried in the listed contexts.
type rule struct {
	kind     TokenKind
	match    func(s string) int
	contexts []lexContext
}

var (
	lineOnly   = []lexContext{inLine}
	stringOnly = []lexContext{inString}
	anywhere   = []lexContext{inLine, inString}
)

// Rules in declaration order. When two rules match the same number of
// characters, the earlier rule wins.
var rules = []rule{
	{Whitespace, matchWhitespace, lineOnly},
	{Comment, matchComment, lineOnly},
	{Quote, matchExact(`"`), anywhere},
	{Escape, matchEscape, stringOnly},
	{Escape, matchExact(`\,`), lineOnly},
	{MacroArg, matchMacroArg, anywhere},
	{UniqueID, matchExact(`\@`), anywhere},
	{StringText, matchStringText, stringOnly},
	{Number, matchNumber, lineOnly},
	{Register, matchHLIncDec, lineOnly},
	{Identifier, matchIdentifier, lineOnly},
	{Operator, matchOperator, lineOnly},
	{DoubleColon, matchExact("::"), lineOnly},
	{Colon, matchExact(":"), lineOnly},
	{Comma, matchExact(","), lineOnly},
	{LParen, matchExact("("), lineOnly},
	{RParen, matchExact(")"), lineOnly},
	{LBracket, matchExact("["), lineOnly},
	{RBracket, matchExact("]"), lineOnly},
	{Invalid, matchAny, anywhere},
}

func (r *rule) allowed(ctx lexContext) bool {
	for _, c := range r.contexts {
		if c == ctx {
			return true
		}
	}
	return false
}

// longestMatch returns the rule with the longest match at the start of s
// in the given context, along with the match length.
func longestMatch(s string, ctx lexContext) (*rule, int) {
	var best *rule
	bestLen := 0
	for i := range rules {
		r := &rules[i]
		if !r.allowed(ctx) {
			continue
		}
		if n := r.match(s); n > bestLen {
			best, bestLen = r, n
		}
	}
	return best, bestLen
}

// An expander supplies the text substituted for string equates and macro
// arguments during tokenization.
type expander interface {
	// stringEquate returns the value of a string equate.
	stringEquate(name string) (string, bool)

	// expandArg returns the replacement for a macro argument or unique id
	// token.
	expandArg(t Token) (string, error)
}

// A lexer converts source lines into tokens.
type lexer struct {
	file     string
	expander expander // may be nil
	diags    *diag.List
	logger   *diag.Logger
}

// A substitution replaces text[start:end] with a new string.
type substitution struct {
	start, end int
	text       string
}

// tokenize converts a line of text into tokens terminated by an EOL
// token. Substitutions restart the scan from the beginning of the
// rewritten line, which is returned along with the tokens.
func (l *lexer) tokenize(text string, line int) ([]Token, string) {
	for n := 0; ; n++ {
		tokens, errs, sub := l.scan(text, line, n < maxExpansions)
		if sub == nil {
			for _, e := range errs {
				l.diags.Add(e)
			}
			if n >= maxExpansions {
				l.diags.Add(diag.Diagnostic{
					Area: diag.Lexer, Severity: diag.Error, File: l.file, Line: line,
					Message: "recursive expansion exceeded the substitution limit", Source: text,
				})
			}
			return tokens, text
		}
		l.logger.Logf(diag.Expand, "%s:%d: '%s' -> '%s'", l.file, line, text[sub.start:sub.end], sub.text)
		text = text[:sub.start] + sub.text + text[sub.end:]
	}
}

// scan performs a single tokenization pass over the text. If a
// substitution is required and allowed, scanning stops and the
// substitution is returned.
func (l *lexer) scan(text string, line int, substitute bool) ([]Token, []diag.Diagnostic, *substitution) {
	var tokens []Token
	var errs []diag.Diagnostic

	addError := func(col int, format string, args ...any) {
		errs = append(errs, diag.Diagnostic{
			Area: diag.Lexer, Severity: diag.Error, File: l.file, Line: line,
			Column: col, Message: fmt.Sprintf(format, args...), Source: text,
		})
	}

	ctx := inLine
	var str strings.Builder
	strStart := 0

	for pos := 0; pos < len(text); {
		r, n := longestMatch(text[pos:], ctx)
		word := text[pos : pos+n]
		t := Token{Kind: r.kind, Text: word, Line: line, Column: pos + 1}

		switch r.kind {
		case Whitespace:
			// skipped

		case Quote:
			if ctx == inLine {
				ctx, strStart = inString, pos
				str.Reset()
			} else {
				ctx = inLine
				tokens = append(tokens, Token{Kind: String, Text: str.String(), Line: line, Column: strStart + 1})
			}

		case StringText:
			str.WriteString(word)

		case Escape:
			if ctx == inLine {
				tokens = append(tokens, t) // escaped comma in a macro argument
				break
			}
			str.WriteByte(unescape(word[1]))

		case MacroArg, UniqueID:
			var repl string
			var err error
			if l.expander != nil && substitute {
				repl, err = l.expander.expandArg(t)
				if err != nil {
					addError(t.Column, "%v", err)
				}
			}
			if l.expander == nil || !substitute || err != nil {
				if ctx == inString {
					str.WriteString(word)
				} else {
					tokens = append(tokens, t)
				}
				break
			}
			return tokens, errs, &substitution{pos, pos + n, repl}

		case Identifier:
			t.Kind = classify(word)
			if t.Kind == Identifier && substitute && l.expander != nil && !suppressExpansion(tokens) {
				if repl, ok := l.expander.stringEquate(word); ok {
					return tokens, errs, &substitution{pos, pos + n, repl}
				}
			}
			tokens = append(tokens, t)

		case Invalid:
			if ctx == inString {
				addError(t.Column, "invalid escape sequence '%s'", text[pos:min(pos+2, len(text))])
			} else {
				addError(t.Column, "unexpected character '%s'", word)
				tokens = append(tokens, t)
			}

		default:
			tokens = append(tokens, t)
		}

		pos += n
	}

	if ctx == inString {
		addError(strStart+1, "unterminated string")
		tokens = append(tokens, Token{Kind: String, Text: str.String(), Line: line, Column: strStart + 1})
	}

	tokens = append(tokens, Token{Kind: EOL, Line: line, Column: len(text) + 1})
	return tokens, errs, nil
}

// suppressExpansion returns true if an identifier following the given
// tokens names a symbol rather than referring to its value, as in
// "DEF name", "REDEF name", "PURGE name" and "DEF(name)".
func suppressExpansion(prev []Token) bool {
	n := len(prev)
	if n == 0 {
		return false
	}
	switch prev[n-1].keyword() {
	case "def", "redef", "purge":
		return true
	}
	if prev[n-1].Kind == LParen && n > 1 && prev[n-2].keyword() == "def" {
		return true
	}
	for _, t := range prev {
		if t.keyword() == "purge" {
			return true
		}
	}
	return false
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case '0':
		return 0
	default:
		return c
	}
}

func matchExact(lit string) func(s string) int {
	return func(s string) int {
		if strings.HasPrefix(s, lit) {
			return len(lit)
		}
		return 0
	}
}

func matchAny(s string) int {
	if len(s) > 0 {
		return 1
	}
	return 0
}

func matchWhitespace(s string) int {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\r') {
		i++
	}
	return i
}

func matchComment(s string) int {
	if len(s) > 0 && s[0] == ';' {
		return len(s)
	}
	return 0
}

func matchEscape(s string) int {
	if len(s) >= 2 && s[0] == '\\' && strings.IndexByte(`nrt0\",`, s[1]) >= 0 {
		return 2
	}
	return 0
}

func matchMacroArg(s string) int {
	if len(s) >= 2 && s[0] == '\\' && ((s[1] >= '1' && s[1] <= '9') || s[1] == '#') {
		return 2
	}
	return 0
}

func matchStringText(s string) int {
	i := 0
	for i < len(s) && s[i] != '"' && s[i] != '\\' {
		i++
	}
	return i
}

func isDigit(c byte, base int) bool {
	switch base {
	case 2:
		return c == '0' || c == '1'
	case 8:
		return c >= '0' && c <= '7'
	case 16:
		return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
	default:
		return c >= '0' && c <= '9'
	}
}

// matchDigits matches one or more digits of the base, allowing
// underscores after the first digit.
func matchDigits(s string, base int) int {
	if len(s) == 0 || !isDigit(s[0], base) {
		return 0
	}
	i := 1
	for i < len(s) && (isDigit(s[i], base) || s[i] == '_') {
		i++
	}
	return i
}

func matchNumber(s string) int {
	if len(s) == 0 {
		return 0
	}
	prefixed := func(skip, base int) int {
		if n := matchDigits(s[skip:], base); n > 0 {
			return skip + n
		}
		return 0
	}
	switch s[0] {
	case '$':
		return prefixed(1, 16)
	case '%':
		return prefixed(1, 2)
	case '&':
		return prefixed(1, 8)
	case '`':
		i := 1
		for i < len(s) && s[i] >= '0' && s[i] <= '3' {
			i++
		}
		if i == 1 {
			return 0
		}
		return i
	}
	if len(s) > 2 && s[0] == '0' {
		var n int
		switch s[1] {
		case 'x', 'X':
			n = prefixed(2, 16)
		case 'b', 'B':
			n = prefixed(2, 2)
		case 'o', 'O':
			n = prefixed(2, 8)
		}
		if n > 0 {
			return n
		}
	}
	return matchDigits(s, 10)
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '.' || c == '@'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == '#' || c == '$'
}

func matchIdentifier(s string) int {
	if len(s) == 0 || !isIdentStart(s[0]) {
		return 0
	}
	i := 1
	for i < len(s) && isIdentChar(s[i]) {
		i++
	}
	return i
}

// matchHLIncDec matches the post-increment and post-decrement register
// forms "hl+" and "hl-".
func matchHLIncDec(s string) int {
	if len(s) >= 3 && strings.EqualFold(s[:2], "hl") && (s[2] == '+' || s[2] == '-') {
		if len(s) > 3 && isIdentChar(s[3]) {
			return 0
		}
		return 3
	}
	return 0
}

var operators = []string{
	"**", "<<", ">>>", ">>", "<=", ">=", "==", "!=", "&&", "||",
	"+", "-", "*", "/", "%", "&", "|", "^", "~", "!", "<", ">", "=",
}

func matchOperator(s string) int {
	best := 0
	for _, op := range operators {
		if len(op) > best && strings.HasPrefix(s, op) {
			best = len(op)
		}
	}
	return best
}

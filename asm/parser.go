// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"
	"strings"

	"github.com/beevik/gbasm/diag"
)

// Binding power of prefix operators and postfix indexing.
const (
	unaryPrecedence   = 90
	postfixPrecedence = 100
)

// A parser converts the tokens of a single line into a syntax tree.
type parser struct {
	tokens []Token
	pos    int
	text   string // the (expanded) source line
	file   string
	diags  *diag.List
}

// parseLine parses the tokens of one source line into a line node.
func parseLine(tokens []Token, text, file string, diags *diag.List) *Node {
	p := &parser{tokens: tokens, text: text, file: file, diags: diags}
	return p.parseLine()
}

// parseExpression parses tokens consisting of a single expression.
func parseExpression(tokens []Token, text, file string, diags *diag.List) *Node {
	p := &parser{tokens: tokens, text: text, file: file, diags: diags}
	n := p.parseExpr(0)
	if t := p.peek(); t.Kind != EOL {
		p.addError(t, "unexpected %s", describe(t))
	}
	return n
}

func (p *parser) peek() Token {
	return p.peekAt(0)
}

func (p *parser) peekAt(i int) Token {
	if p.pos+i < len(p.tokens) {
		return p.tokens[p.pos+i]
	}
	return Token{Kind: EOL}
}

func (p *parser) next() Token {
	t := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *parser) addError(t Token, format string, args ...any) {
	p.diags.Add(diag.Diagnostic{
		Area:     diag.Parser,
		Severity: diag.Error,
		Message:  fmt.Sprintf(format, args...),
		File:     p.file,
		Line:     t.Line,
		Column:   t.Column,
		Source:   p.text,
	})
}

// expect consumes a token of the given kind, or reports an error and
// leaves the token in place.
func (p *parser) expect(kind TokenKind) bool {
	if p.peek().Kind == kind {
		p.next()
		return true
	}
	t := p.peek()
	p.addError(t, "expected %s, found %s", kind, describe(t))
	return false
}

func describe(t Token) string {
	switch t.Kind {
	case EOL:
		return "end of line"
	case String:
		return "string"
	default:
		return fmt.Sprintf("'%s'", t.Text)
	}
}

// lexed reports whether the lexer already raised an error for the token.
func lexed(t Token) bool {
	switch t.Kind {
	case Invalid, MacroArg, UniqueID:
		return true
	default:
		return false
	}
}

// isDefinition returns true if the token introduces a name-bearing
// definition when it follows a bare identifier.
func isDefinition(t Token) bool {
	switch t.Kind {
	case Operator:
		return t.Text == "="
	case Keyword, Opcode:
		switch t.keyword() {
		case "equ", "equs", "set", "rb", "rw", "rl":
			return true
		}
	}
	return false
}

func (p *parser) parseLine() *Node {
	line := &Node{Kind: LineNode, Token: p.peek()}

	label := p.parseLabel()
	if label != nil {
		line.Children = append(line.Children, label)
	}

	t := p.peek()
	var op *Node
	switch {
	case t.Kind == EOL || t.Kind == Comment:
		// no operation
	case label != nil && label.Raw != ":" && label.Raw != "::" && isDefinition(t):
		op = p.parseOperation(DirectiveNode)
	case t.Kind == Keyword:
		op = p.parseOperation(KeywordNode)
	case t.Kind == Opcode:
		op = p.parseOperation(OpcodeNode)
	case t.Kind == Identifier:
		op = p.parseMacroCall()
	default:
		if !lexed(t) {
			p.addError(t, "unexpected %s at start of statement", describe(t))
		}
		op = &Node{Kind: InvalidNode, Token: t}
		p.skipToEnd()
	}
	if op != nil {
		line.Children = append(line.Children, op)
	}

	if t := p.peek(); t.Kind == Comment {
		line.Children = append(line.Children, &Node{Kind: CommentNode, Token: p.next()})
	}
	if t := p.peek(); t.Kind != EOL {
		if !lexed(t) {
			p.addError(t, "unexpected %s", describe(t))
		}
		p.skipToEnd()
	}
	return line
}

func (p *parser) skipToEnd() {
	for k := p.peek().Kind; k != EOL && k != Comment; k = p.peek().Kind {
		p.next()
	}
}

// parseLabel parses an optional label at the start of a line.
func (p *parser) parseLabel() *Node {
	t0, t1 := p.peekAt(0), p.peekAt(1)
	switch {
	case t0.Kind == Identifier && t1.Kind == Colon:
		p.pos += 2
		return &Node{Kind: LabelNode, Token: t0, Raw: ":"}
	case t0.Kind == Identifier && t1.Kind == DoubleColon:
		p.pos += 2
		return &Node{Kind: LabelNode, Token: t0, Raw: "::"}
	case t0.Kind == Identifier && isDefinition(t1):
		p.pos++
		return &Node{Kind: LabelNode, Token: t0}
	case t0.Kind == Identifier && strings.HasPrefix(t0.Text, ".") && t0.Text != ".":
		p.pos++
		return &Node{Kind: LabelNode, Token: t0}
	case (t0.keyword() == "def" || t0.keyword() == "redef") && t1.Kind == Identifier && isDefinition(p.peekAt(2)):
		p.pos += 2
		return &Node{Kind: LabelNode, Token: t1, Raw: t0.keyword()}
	}
	return nil
}

// rawArgKeywords take their arguments as unparsed text.
var rawArgKeywords = map[string]bool{"opt": true}

// parseOperation parses a keyword, opcode or definition and its
// comma-separated arguments.
func (p *parser) parseOperation(kind NodeKind) *Node {
	t := p.next()
	n := &Node{Kind: kind, Token: t}
	if kind == KeywordNode && rawArgKeywords[t.keyword()] {
		n.Children = p.parseRawArgs(t)
		return n
	}
	if k := p.peek().Kind; k == EOL || k == Comment {
		return n
	}
	for {
		n.Children = append(n.Children, p.parseExpr(0))
		if p.peek().Kind != Comma {
			break
		}
		p.next()
	}
	return n
}

// parseMacroCall parses an identifier in operation position as a macro
// call whose arguments are kept as raw text.
func (p *parser) parseMacroCall() *Node {
	t := p.next()
	n := &Node{Kind: MacroCallNode, Token: t}
	n.Children = p.parseRawArgs(t)
	return n
}

// parseRawArgs splits the text following the token into comma-separated
// arguments, respecting quotes and parentheses. An escaped comma is kept
// as a literal comma.
func (p *parser) parseRawArgs(after Token) []*Node {
	start := after.Column - 1 + len(after.Text)
	end := len(p.text)
	for p.peek().Kind != EOL && p.peek().Kind != Comment {
		p.next()
	}
	if t := p.peek(); t.Kind == Comment {
		end = t.Column - 1
	}
	if start > end {
		start = end
	}
	return splitArgs(p.text[start:end], after)
}

func splitArgs(s string, t Token) []*Node {
	var args []*Node
	if strings.TrimSpace(s) == "" {
		return args
	}

	var cur strings.Builder
	depth, quoted := 0, false
	flush := func() {
		args = append(args, &Node{Kind: StringNode, Token: t, Raw: strings.TrimSpace(cur.String())})
		cur.Reset()
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			if s[i+1] == ',' && !quoted {
				cur.WriteByte(',')
			} else {
				cur.WriteByte(c)
				cur.WriteByte(s[i+1])
			}
			i++
			continue
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			flush()
			continue
		}
		cur.WriteByte(c)
	}
	flush()
	return args
}

// parseExpr parses an expression whose binary operators bind at least as
// tightly as minPrec.
func (p *parser) parseExpr(minPrec int) *Node {
	left := p.parsePrefix()
	for {
		t := p.peek()
		switch t.Kind {
		case LBracket:
			if postfixPrecedence < minPrec {
				return left
			}
			p.next()
			index := p.parseExpr(0)
			p.expect(RBracket)
			left = &Node{Kind: IndexerNode, Token: t, Children: []*Node{left, index}}

		case Operator:
			op, ok := binaryOps[t.Text]
			if !ok || op.precedence < minPrec {
				return left
			}
			p.next()
			next := op.precedence + 1
			if op.rightAssoc {
				next = op.precedence
			}
			right := p.parseExpr(next)
			left = &Node{Kind: BinaryNode, Token: t, Children: []*Node{left, right}}

		default:
			return left
		}
	}
}

// parsePrefix parses a primary expression or a prefix operator.
func (p *parser) parsePrefix() *Node {
	t := p.peek()
	switch t.Kind {
	case Number:
		p.next()
		return &Node{Kind: NumberNode, Token: t}
	case String:
		p.next()
		return &Node{Kind: StringNode, Token: t}
	case Identifier:
		p.next()
		return &Node{Kind: IdentifierNode, Token: t}
	case Register:
		p.next()
		return &Node{Kind: RegisterNode, Token: t}
	case Condition:
		p.next()
		return &Node{Kind: ConditionNode, Token: t}
	case Region:
		p.next()
		return &Node{Kind: RegionNode, Token: t}

	case Function, Keyword:
		p.next()
		if p.peek().Kind == LParen {
			return p.parseCall(t)
		}
		// Attribute names such as BANK and ALIGN in section declarations.
		return &Node{Kind: IdentifierNode, Token: t}

	case Operator:
		if _, ok := unaryOps[t.Text]; ok {
			p.next()
			operand := p.parseExpr(unaryPrecedence)
			return &Node{Kind: UnaryNode, Token: t, Children: []*Node{operand}}
		}

	case LParen:
		p.next()
		e := p.parseExpr(0)
		p.expect(RParen)
		return e

	case LBracket:
		p.next()
		e := p.parseExpr(0)
		p.expect(RBracket)
		return &Node{Kind: IndexerNode, Token: t, Children: []*Node{e}}
	}

	if !lexed(t) {
		p.addError(t, "unexpected %s in expression", describe(t))
	}
	switch t.Kind {
	case EOL, Comment, Comma, RParen, RBracket:
	default:
		p.next()
	}
	return &Node{Kind: InvalidNode, Token: t}
}

// parseCall parses the parenthesized arguments of a function call.
func (p *parser) parseCall(name Token) *Node {
	n := &Node{Kind: FunctionNode, Token: name}
	p.next() // (
	if p.peek().Kind == RParen {
		p.next()
		return n
	}
	for {
		n.Children = append(n.Children, p.parseExpr(0))
		if p.peek().Kind != Comma {
			break
		}
		p.next()
	}
	p.expect(RParen)
	return n
}

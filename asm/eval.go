// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/gbasm/diag"
)

const defaultMaxDepth = 64

// errAbort stops evaluation of the current file once a line has raised
// an error. The diagnostics have already been recorded.
var errAbort = errors.New("assembly aborted")

// evalLines evaluates lines [start, end) of a source file in order.
func (a *assembler) evalLines(f *SourceFile, start, end int) error {
	prevFile, prevLine, prevText := a.file, a.line, a.text
	defer func() {
		a.file, a.line, a.text = prevFile, prevLine, prevText
	}()

	for i := start; i < end; i++ {
		a.file, a.line = f, i+1
		if err := a.evalLine(f.Lines[i]); err != nil {
			return err
		}
	}
	return nil
}

// evalLine tokenizes, parses and evaluates a single line.
func (a *assembler) evalLine(text string) error {
	a.text = text

	switch {
	case len(a.defines) > 0:
		a.scanDefinition(text)
		return nil
	case a.skip > 0:
		a.scanSkippedRepeat(text)
		return nil
	case !a.active():
		if !a.scanSuppressed(text) {
			return nil
		}
	}

	before := a.diags.Errors()

	lx := lexer{file: a.file.Path, expander: a, diags: &a.diags, logger: a.log}
	tokens, expanded := lx.tokenize(text, a.line)
	a.text = expanded
	node := parseLine(tokens, expanded, a.file.Path, &a.diags)

	if a.diags.Errors() == before {
		if a.section != nil {
			a.here = a.section.offset()
		}
		a.hereName = ""

		err := a.evalStatement(node)
		switch {
		case err == errAbort:
			return err
		case err != nil:
			a.report(err, node.Token)
		}
	}

	if a.diags.Errors() > before {
		a.logContext(tokens, node)
		return errAbort
	}
	return nil
}

// evalStatement dispatches a parsed line to the handler for its
// operation.
func (a *assembler) evalStatement(line *Node) error {
	var label, op *Node
	for _, c := range line.Children {
		switch c.Kind {
		case LabelNode:
			label = c
		case CommentNode:
		default:
			op = c
		}
	}

	if op == nil {
		if label != nil {
			return a.defineLabel(label)
		}
		return nil
	}

	switch op.Kind {
	case DirectiveNode:
		return a.evalDefinition(label, op)

	case KeywordNode:
		kw, ok := keywords[op.name()]
		if !ok {
			return errAt(op.Token, "'%s' must follow a symbol name", op.Token.Text)
		}
		if label != nil && !kw.takesLabel {
			if err := a.defineLabel(label); err != nil {
				return err
			}
		}
		return kw.fn(a, op, label, kw.param)

	case OpcodeNode:
		if label != nil {
			if err := a.defineLabel(label); err != nil {
				return err
			}
		}
		return a.evalInstruction(op)

	case MacroCallNode:
		if label != nil {
			if err := a.defineLabel(label); err != nil {
				return err
			}
		}
		return a.callMacro(op)
	}
	return nil
}

// peekKeyword returns the lower-case operation word of a line without
// tokenizing it, skipping a leading label.
func peekKeyword(text string) string {
	s := strings.TrimLeft(text, " \t")
	n := matchIdentifier(s)
	rest := s[n:]
	if strings.HasPrefix(rest, ":") {
		rest = strings.TrimLeft(strings.TrimLeft(rest, ":"), " \t")
		n = matchIdentifier(rest)
		return strings.ToLower(rest[:n])
	}
	return strings.ToLower(s[:n])
}

// scanDefinition handles a line while a macro body is being recorded.
func (a *assembler) scanDefinition(text string) {
	d := a.defines[len(a.defines)-1]
	switch peekKeyword(text) {
	case "macro":
		d.depth++
	case "endm":
		if d.depth > 0 {
			d.depth--
			return
		}
		m := &macro{
			name:  d.name,
			file:  d.file,
			line:  d.line,
			start: d.start,
			end:   a.line - 1,
		}
		a.macros[m.name] = m
		a.defines = a.defines[:len(a.defines)-1]
		a.log.Logf(diag.Symbol, "%s:%d: macro %s (%d lines)", d.file.Path, d.line, m.name, m.end-m.start)
	}
}

// scanSkippedRepeat handles a line inside a REPT 0 block.
func (a *assembler) scanSkippedRepeat(text string) {
	switch peekKeyword(text) {
	case "rept":
		a.skip++
	case "endr":
		a.skip--
	}
}

// scanSuppressed handles a line inside a conditional branch that is not
// being evaluated. It returns true if the line must be evaluated anyway
// because it may change the state of the innermost conditional.
func (a *assembler) scanSuppressed(text string) bool {
	top := a.conds[len(a.conds)-1]
	switch peekKeyword(text) {
	case "if":
		a.conds = append(a.conds, &condFrame{line: a.line})
	case "elif", "else":
		return top.parent
	case "endc":
		a.conds = a.conds[:len(a.conds)-1]
	}
	return false
}

// A scopeMark records the depth of each control stack on entry to an
// include, macro invocation or REPT iteration.
type scopeMark struct {
	conds, unions, repeats, calls, defines, skip int
}

func (a *assembler) mark() scopeMark {
	return scopeMark{
		conds:   len(a.conds),
		unions:  len(a.unions),
		repeats: len(a.repeats),
		calls:   len(a.calls),
		defines: len(a.defines),
		skip:    a.skip,
	}
}

// closeScope reports and discards any construct left open since the
// mark was taken.
func (a *assembler) closeScope(m scopeMark, what string) {
	if len(a.conds) > m.conds {
		a.addError(Token{}, "IF at line %d has no matching ENDC in %s", a.conds[m.conds].line, what)
		a.conds = a.conds[:m.conds]
	}
	if len(a.repeats) > m.repeats {
		a.addError(Token{}, "REPT at line %d has no matching ENDR in %s", a.repeats[m.repeats].line, what)
		a.repeats = a.repeats[:m.repeats]
	}
	if a.skip > m.skip {
		a.addError(Token{}, "REPT has no matching ENDR in %s", what)
		a.skip = m.skip
	}
	if len(a.defines) > m.defines {
		d := a.defines[m.defines]
		a.addError(Token{}, "MACRO '%s' at line %d has no matching ENDM in %s", d.name, d.line, what)
		a.defines = a.defines[:m.defines]
	}
	if len(a.unions) > m.unions {
		a.addError(Token{}, "UNION has no matching ENDU in %s", what)
		a.unions = a.unions[:m.unions]
	}
	a.calls = a.calls[:m.calls]
}

// enter increases the nesting depth for an include, macro invocation or
// REPT iteration. The returned function restores it.
func (a *assembler) enter(t Token, kind, name string) (func(), error) {
	if a.depth >= a.cfg.MaxDepth {
		return nil, errAt(t, "maximum nesting depth of %d exceeded", a.cfg.MaxDepth)
	}
	a.depth++
	a.log.Logf(diag.Scope, "%s:%d: enter %s %s (depth %d)", a.file.Path, a.line, kind, name, a.depth)
	return func() {
		a.depth--
		a.log.Logf(diag.Scope, "%s:%d: leave %s %s", a.file.Path, a.line, kind, name)
	}, nil
}

// evalNested evaluates a span of lines as a nested invocation, checking
// that every construct opened inside it is also closed inside it.
func (a *assembler) evalNested(f *SourceFile, start, end int, what string) error {
	m := a.mark()
	condBase := a.condBase
	a.condBase = len(a.conds)
	defer func() { a.condBase = condBase }()

	if err := a.evalLines(f, start, end); err != nil {
		return err
	}
	a.closeScope(m, what)
	return nil
}

// callMacro invokes a macro with the raw arguments of a macro call.
func (a *assembler) callMacro(op *Node) error {
	m, ok := a.macros[op.Token.Text]
	if !ok {
		return errAt(op.Token, "unknown opcode or macro '%s'", op.Token.Text)
	}

	leave, err := a.enter(op.Token, "macro", m.name)
	if err != nil {
		return err
	}
	defer leave()

	args := make([]string, len(op.Children))
	for i, c := range op.Children {
		args[i] = c.Raw
	}

	a.macroCounter++
	calls := len(a.calls)
	a.calls = append(a.calls, &callFrame{id: a.macroCounter, macro: m, args: args})
	defer func() { a.calls = a.calls[:calls] }()

	return a.evalNested(m.file, m.start, m.end, fmt.Sprintf("macro '%s'", m.name))
}

// logContext records the tokens, syntax tree and assembler state of a
// line that raised an error.
func (a *assembler) logContext(tokens []Token, node *Node) {
	if !a.log.Enabled(diag.Context) {
		return
	}
	texts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.Kind != EOL {
			texts = append(texts, fmt.Sprintf("%s:%s", t.Kind, t))
		}
	}
	a.log.Logf(diag.Context, "%s:%d: %s", a.file.Path, a.line, a.text)
	a.log.Logf(diag.Context, "  tokens: %s", strings.Join(texts, " "))
	a.log.Logf(diag.Context, "  tree:   %s", node)

	sect := "none"
	if a.section != nil {
		sect = fmt.Sprintf("%s+$%04X", a.section.name, a.section.offset())
	}
	a.log.Logf(diag.Context, "  state:  section=%s scope=%q depth=%d if=%d rept=%d union=%d calls=%d",
		sect, a.inLabel, a.depth, len(a.conds), len(a.repeats), len(a.unions), len(a.calls))
}

// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/gbasm/cpu"
	"github.com/beevik/gbasm/diag"
	"github.com/beevik/gbasm/object"
)

// A section accumulates the bytes and patches of a named section.
type section struct {
	name    string
	region  object.Region
	address int // -1 if not fixed
	bank    int // -1 if not fixed
	align   int // -1 if not aligned
	file    string
	line    int
	data    []byte // ROM sections only
	size    int
	patches []object.Patch
	index   int
}

func (s *section) offset() int {
	return s.size
}

func (s *section) emit(b ...byte) {
	if s.region.IsROM() {
		s.data = append(s.data, b...)
	}
	s.size += len(b)
}

// reserve extends the section by n bytes of the fill value.
func (s *section) reserve(n int, fill byte) {
	if s.region.IsROM() {
		for i := 0; i < n; i++ {
			s.data = append(s.data, fill)
		}
	}
	s.size += n
}

// truncate shrinks the section back to n bytes, discarding any patches
// beyond the new end.
func (s *section) truncate(n int) {
	if s.region.IsROM() {
		s.data = s.data[:n]
	}
	s.size = n
	kept := s.patches[:0]
	for _, p := range s.patches {
		if p.Offset < n {
			kept = append(kept, p)
		}
	}
	s.patches = kept
}

// sameAttributes returns true if a section declaration matches the
// section's existing attributes.
func (s *section) sameAttributes(region object.Region, address, bank, align int) bool {
	return s.region == region && s.address == address && s.bank == bank && s.align == align
}

// A label is a named offset within a section.
type label struct {
	name     string
	file     string
	line     int
	section  *section
	offset   int
	exported bool
	hidden   bool // internal label created for a reference to '@'
}

// A macro records the span of source lines making up a macro body.
type macro struct {
	name       string
	file       *SourceFile
	line       int // line number of the MACRO directive
	start, end int // body line indexes, end exclusive
}

// A condFrame tracks one level of IF/ELIF/ELSE/ENDC nesting.
type condFrame struct {
	active bool // lines are currently being evaluated
	taken  bool // some branch of this conditional has been taken
	parent bool // the enclosing level was active when IF was seen
	inElse bool
	line   int
}

// A unionFrame tracks one level of UNION/NEXTU/ENDU nesting.
type unionFrame struct {
	section *section
	start   int
	longest int
}

// A repeatFrame tracks an open REPT block.
type repeatFrame struct {
	count  int
	file   *SourceFile
	start  int // index of the first body line
	line   int
	calls  int // call stack depth at the REPT directive
	conds  int // conditional stack depth at the REPT directive
	parent *callFrame
}

// A callFrame binds the arguments and unique id of a macro invocation or
// of one iteration of a REPT block.
type callFrame struct {
	id     int
	macro  *macro // nil for REPT iterations
	args   []string
	shift  int
	parent *callFrame // enclosing frame, used by REPT to reach macro args
}

// A defineFrame tracks a macro definition in progress.
type defineFrame struct {
	name  string
	file  *SourceFile
	line  int
	start int
	depth int // nested MACRO directives seen inside the body
}

// options holds the values saved by PUSHO and restored by POPO.
type options struct {
	pad byte
}

// The assembler is a state object used during the assembly of a single
// top-level file into an object module.
type assembler struct {
	cfg     Config
	instSet *cpu.InstructionSet
	diags   diag.List
	log     *diag.Logger
	out     io.Writer
	path    string

	sections     []*section
	sectionMap   map[string]*section
	section      *section   // the open section, or nil
	sectionStack []*section // PUSHS/POPS
	here         int        // offset of the current line's start

	labels        map[string]*label
	labelOrder    []*label
	numberEquates map[string]int32
	stringEquates map[string]string
	sets          map[string]int32
	macros        map[string]*macro
	charmap       map[string]byte
	charmapMax    int
	exports       map[string]bool
	exportOrder   []string

	conds   []*condFrame
	unions  []*unionFrame
	repeats []*repeatFrame
	calls   []*callFrame
	defines []*defineFrame
	skip    int // nesting of REPT 0 blocks being skipped

	// Depth of the conditional stack on entry to the current include or
	// macro invocation.
	condBase int

	opts     options
	optStack []options

	rs           int32
	macroCounter int
	hiddenCount  int
	hereName     string // hidden label for '@' on the current line
	inLabel      string // current global label scope
	depth        int

	symIDs   map[string]int
	symOrder []string

	root   *SourceFile
	module *object.Module

	file *SourceFile // file currently being evaluated
	line int        // 1-based line number within file
	text string     // expanded text of the current line

	resolve func(name string) (int32, bool) // optional external symbols
}

func newAssembler(path string, cfg *Config) *assembler {
	a := &assembler{
		instSet:       cpu.GetInstructionSet(),
		path:          path,
		sectionMap:    make(map[string]*section),
		labels:        make(map[string]*label),
		numberEquates: make(map[string]int32),
		stringEquates: make(map[string]string),
		sets:          make(map[string]int32),
		macros:        make(map[string]*macro),
		charmap:       make(map[string]byte),
		exports:       make(map[string]bool),
		symIDs:        make(map[string]int),
	}
	if cfg != nil {
		a.cfg = *cfg
	}
	if a.cfg.MaxDepth <= 0 {
		a.cfg.MaxDepth = defaultMaxDepth
	}
	if a.cfg.Files == nil {
		a.cfg.Files = &DirProvider{IncludePaths: a.cfg.IncludePaths}
	}
	a.out = a.cfg.Out
	if a.out == nil {
		a.out = io.Discard
	}
	a.log = a.cfg.Logger
	if a.log == nil && a.cfg.Options&Verbose != 0 {
		a.log = diag.NewLogger(a.out, diag.All)
	}
	a.opts.pad = a.cfg.PadValue
	for name, value := range a.cfg.Defines {
		a.stringEquates[name] = value
	}
	return a
}

// addError records an evaluator error at the given token of the current
// line.
func (a *assembler) addError(t Token, format string, args ...any) {
	a.addDiag(diag.Error, t, fmt.Sprintf(format, args...))
}

func (a *assembler) addWarning(t Token, format string, args ...any) {
	a.addDiag(diag.Warn, t, fmt.Sprintf(format, args...))
}

func (a *assembler) addDiag(sev diag.Severity, t Token, msg string) {
	d := diag.Diagnostic{
		Area:     diag.Evaluator,
		Severity: sev,
		Message:  msg,
		Column:   t.Column,
		Line:     a.line,
		Source:   a.text,
	}
	if a.file != nil {
		d.File = a.file.Path
	}
	a.diags.Add(d)
}

// report records an error returned by an evaluation helper, attaching it
// to the token carried by the error or to the fallback token.
func (a *assembler) report(err error, fallback Token) {
	if e, ok := err.(*evalError); ok {
		a.addError(e.tok, "%s", e.msg)
		return
	}
	a.addError(fallback, "%v", err)
}

// qualify expands a local label name to its full name.
func (a *assembler) qualify(name string) string {
	if strings.HasPrefix(name, ".") && a.inLabel != "" {
		return a.inLabel + name
	}
	return name
}

func (a *assembler) lookupLabel(name string) *label {
	if name == "@" {
		if a.section == nil {
			return nil
		}
		return &label{name: "@", section: a.section, offset: a.here}
	}
	return a.labels[a.qualify(name)]
}

// lookupConst returns the value of a symbol known at assembly time.
func (a *assembler) lookupConst(name string) (Value, bool) {
	switch name {
	case "_NARG":
		if f := a.macroFrame(); f != nil {
			return numberValue(int32(len(f.args) - f.shift)), true
		}
		return Value{}, false
	case "_RS":
		return numberValue(a.rs), true
	}
	q := a.qualify(name)
	if v, ok := a.numberEquates[q]; ok {
		return numberValue(v), true
	}
	if v, ok := a.sets[q]; ok {
		return numberValue(v), true
	}
	if s, ok := a.stringEquates[q]; ok {
		return stringValue(s), true
	}
	if a.resolve != nil {
		if v, ok := a.resolve(name); ok {
			return numberValue(v), true
		}
	}
	return Value{}, false
}

// symbolKind describes how a name is currently defined, or returns an
// empty string.
func (a *assembler) symbolKind(name string) string {
	switch {
	case a.labels[name] != nil:
		return "label"
	}
	if _, ok := a.numberEquates[name]; ok {
		return "EQU"
	}
	if _, ok := a.stringEquates[name]; ok {
		return "EQUS"
	}
	if _, ok := a.sets[name]; ok {
		return "SET"
	}
	if _, ok := a.macros[name]; ok {
		return "MACRO"
	}
	return ""
}

func (a *assembler) isDefined(name string) bool {
	switch name {
	case "_RS":
		return true
	case "_NARG":
		return a.macroFrame() != nil
	}
	return a.symbolKind(a.qualify(name)) != ""
}

// symbolID returns the module symbol id for a name, assigning ids in
// order of first reference.
func (a *assembler) symbolID(name string) int {
	if id, ok := a.symIDs[name]; ok {
		return id
	}
	id := len(a.symOrder)
	a.symIDs[name] = id
	a.symOrder = append(a.symOrder, name)
	return id
}

// hereLabel returns the name of a hidden label at the start of the
// current line, creating it if necessary.
func (a *assembler) hereLabel() string {
	if a.hereName != "" {
		return a.hereName
	}
	a.hereName = fmt.Sprintf("@%d", a.hiddenCount)
	a.hiddenCount++
	l := &label{
		name:    a.hereName,
		section: a.section,
		offset:  a.here,
		line:    a.line,
		hidden:  true,
	}
	if a.file != nil {
		l.file = a.file.Path
	}
	a.labels[l.name] = l
	a.labelOrder = append(a.labelOrder, l)
	return a.hereName
}

// macroFrame returns the innermost macro invocation, skipping REPT
// iterations.
func (a *assembler) macroFrame() *callFrame {
	if len(a.calls) == 0 {
		return nil
	}
	for f := a.calls[len(a.calls)-1]; f != nil; f = f.parent {
		if f.macro != nil {
			return f
		}
	}
	return nil
}

// active returns true if lines are currently being evaluated.
func (a *assembler) active() bool {
	return len(a.conds) == 0 || a.conds[len(a.conds)-1].active
}

// stringEquate returns the text substituted for a string equate.
func (a *assembler) stringEquate(name string) (string, bool) {
	s, ok := a.stringEquates[name]
	return s, ok
}

// expandArg returns the text substituted for a macro argument or a
// unique id.
func (a *assembler) expandArg(t Token) (string, error) {
	if len(a.calls) == 0 {
		return "", fmt.Errorf("'%s' used outside of a macro or REPT block", t.Text)
	}
	if t.Kind == UniqueID {
		return fmt.Sprintf("_%d", a.calls[len(a.calls)-1].id), nil
	}

	f := a.macroFrame()
	if f == nil {
		return "", fmt.Errorf("macro argument '%s' used outside of a macro", t.Text)
	}
	args := f.args[f.shift:]
	if t.Text[1] == '#' {
		return strings.Join(args, ","), nil
	}
	i := int(t.Text[1] - '1')
	if i >= len(args) {
		return "", fmt.Errorf("macro argument '%s' is not defined", t.Text)
	}
	return args[i], nil
}

// encodeString converts a string to bytes through the character map,
// replacing the longest matching fragment at each position.
func (a *assembler) encodeString(s string) []byte {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		n := min(a.charmapMax, len(s)-i)
		for ; n > 0; n-- {
			if v, ok := a.charmap[s[i:i+n]]; ok {
				b = append(b, v)
				i += n
				break
			}
		}
		if n == 0 {
			b = append(b, s[i])
			i++
		}
	}
	return b
}

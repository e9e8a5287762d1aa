// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"
	"strings"

	"github.com/beevik/gbasm/diag"
	"github.com/beevik/gbasm/object"
)

type keywordData struct {
	fn         func(a *assembler, op, label *Node, param any) error
	param      any
	takesLabel bool // the line's label is an argument, not a new label
}

var keywords = map[string]keywordData{
	"section":       {fn: (*assembler).evalSection},
	"pushs":         {fn: (*assembler).evalPushSection},
	"pops":          {fn: (*assembler).evalPopSection},
	"endsection":    {fn: (*assembler).evalEndSection},
	"db":            {fn: (*assembler).evalData, param: object.PatchByte},
	"dw":            {fn: (*assembler).evalData, param: object.PatchWord},
	"dl":            {fn: (*assembler).evalData, param: object.PatchLong},
	"ds":            {fn: (*assembler).evalReserve},
	"incbin":        {fn: (*assembler).evalIncbin},
	"export":        {fn: (*assembler).evalExport},
	"purge":         {fn: (*assembler).evalPurge},
	"rsreset":       {fn: (*assembler).evalRSSet, param: false},
	"rsset":         {fn: (*assembler).evalRSSet, param: true},
	"if":            {fn: (*assembler).evalIf},
	"elif":          {fn: (*assembler).evalElif},
	"else":          {fn: (*assembler).evalElse},
	"endc":          {fn: (*assembler).evalEndc},
	"rept":          {fn: (*assembler).evalRept},
	"macro":         {fn: (*assembler).evalMacro, takesLabel: true},
	"endm":          {fn: (*assembler).evalEndm},
	"shift":         {fn: (*assembler).evalShift},
	"union":         {fn: (*assembler).evalUnion},
	"nextu":         {fn: (*assembler).evalNextu},
	"endu":          {fn: (*assembler).evalEndu},
	"charmap":       {fn: (*assembler).evalCharmap},
	"opt":           {fn: (*assembler).evalOpt},
	"pusho":         {fn: (*assembler).evalPushOptions},
	"popo":          {fn: (*assembler).evalPopOptions},
	"print":         {fn: (*assembler).evalPrint, param: false},
	"println":       {fn: (*assembler).evalPrint, param: true},
	"warn":          {fn: (*assembler).evalMessage, param: diag.Warn},
	"fail":          {fn: (*assembler).evalMessage, param: diag.Error},
	"assert":        {fn: (*assembler).evalAssert},
	"static_assert": {fn: (*assembler).evalAssert},
	"align":         {fn: (*assembler).evalAlign},
}

func init() {
	// Directives that evaluate nested lines must be initialized here to
	// bypass go's initialization loop detection.
	keywords["include"] = keywordData{fn: (*assembler).evalInclude}
	keywords["endr"] = keywordData{fn: (*assembler).evalEndr}
}

// Keywords that only appear as part of a symbol definition. SET and RL
// are lexed as opcodes and recognized by position.
var definitionKeywords = map[string]bool{
	"def": true, "redef": true, "equ": true, "equs": true, "rb": true, "rw": true,
}

// isKeyword returns true if the lower-case word is an assembler
// directive.
func isKeyword(word string) bool {
	if definitionKeywords[word] {
		return true
	}
	switch word {
	case "include", "endr":
		return true
	}
	_, ok := keywords[word]
	return ok
}

func wantArgs(op *Node, lo, hi int) error {
	n := len(op.Children)
	switch {
	case n >= lo && n <= hi:
		return nil
	case lo == hi && lo == 0:
		return errAt(op.Token, "%s takes no arguments", strings.ToUpper(op.Token.Text))
	case lo == hi:
		return errAt(op.Token, "%s requires %d argument(s)", strings.ToUpper(op.Token.Text), lo)
	default:
		return errAt(op.Token, "%s requires %d to %d arguments", strings.ToUpper(op.Token.Text), lo, hi)
	}
}

// constString evaluates an expression that must be a constant string.
func (a *assembler) constString(n *Node, what string) (string, error) {
	if !a.isConstExpr(n) {
		return "", errAt(n.Token, "%s must be a constant string", what)
	}
	return a.calcConstString(n)
}

// romSection returns the open section if it may contain code or data.
func (a *assembler) romSection(t Token) (*section, error) {
	if a.section == nil {
		return nil, errAt(t, "'%s' used outside of a section", t.Text)
	}
	if !a.section.region.IsROM() {
		return nil, errAt(t, "section '%s' cannot contain code or data (not ROM0 or ROMX)", a.section.name)
	}
	return a.section, nil
}

//
// Symbols
//

// defineLabel adds a label at the current offset of the open section.
func (a *assembler) defineLabel(n *Node) error {
	name := n.Token.Text
	if a.section == nil {
		return errAt(n.Token, "label '%s' defined outside of a section", name)
	}

	full := name
	dot := strings.IndexByte(name, '.')
	switch {
	case dot < 0:
	case a.inLabel == "":
		return errAt(n.Token, "local label '%s' defined without a global label", name)
	case dot == 0:
		full = a.inLabel + name
	case name[:dot] != a.inLabel:
		return errAt(n.Token, "local label '%s' defined within wrong global label '%s'", name, a.inLabel)
	}

	if kind := a.symbolKind(full); kind != "" {
		return errAt(n.Token, "'%s' already defined as %s", full, kind)
	}

	l := &label{
		name:     full,
		file:     a.file.Path,
		line:     a.line,
		section:  a.section,
		offset:   a.section.offset(),
		exported: n.Raw == "::" || a.exports[full],
	}
	a.labels[full] = l
	a.labelOrder = append(a.labelOrder, l)
	if dot < 0 {
		a.inLabel = name
	}

	a.log.Logf(diag.Symbol, "%s:%d: label %s = %s+$%04X", l.file, l.line, full, l.section.name, l.offset)
	return nil
}

// evalDefinition handles EQU, EQUS, SET, =, RB, RW and RL.
func (a *assembler) evalDefinition(label, op *Node) error {
	name := a.qualify(label.Token.Text)
	kind := op.name()
	if kind == "=" {
		kind = "set"
	}
	redef := label.Raw == "redef"

	// check returns an error if the name may not be given this kind of
	// definition.
	check := func(allowed string) error {
		existing := a.symbolKind(name)
		switch {
		case existing == "":
			return nil
		case existing == allowed && (allowed == "SET" || redef):
			return nil
		default:
			return errAt(label.Token, "'%s' already defined as %s", name, existing)
		}
	}

	switch kind {
	case "equ":
		if err := wantArgs(op, 1, 1); err != nil {
			return err
		}
		v, err := a.constNumber(op.Children[0], "EQU value")
		if err != nil {
			return err
		}
		if err := check("EQU"); err != nil {
			return err
		}
		a.numberEquates[name] = v
		a.log.Logf(diag.Symbol, "%s:%d: equ %s = %s", a.file.Path, a.line, name, numberValue(v))

	case "equs":
		if err := wantArgs(op, 1, 1); err != nil {
			return err
		}
		s, err := a.constString(op.Children[0], "EQUS value")
		if err != nil {
			return err
		}
		if err := check("EQUS"); err != nil {
			return err
		}
		a.stringEquates[name] = s
		a.log.Logf(diag.Symbol, "%s:%d: equs %s = %q", a.file.Path, a.line, name, s)

	case "set":
		if err := wantArgs(op, 1, 1); err != nil {
			return err
		}
		v, err := a.constNumber(op.Children[0], "SET value")
		if err != nil {
			return err
		}
		if err := check("SET"); err != nil {
			return err
		}
		a.sets[name] = v
		a.log.Logf(diag.Symbol, "%s:%d: set %s = %s", a.file.Path, a.line, name, numberValue(v))

	case "rb", "rw", "rl":
		if err := wantArgs(op, 0, 1); err != nil {
			return err
		}
		count := int32(1)
		if len(op.Children) > 0 {
			var err error
			if count, err = a.constNumber(op.Children[0], "RS count"); err != nil {
				return err
			}
		}
		if err := check("EQU"); err != nil {
			return err
		}
		unit := map[string]int32{"rb": 1, "rw": 2, "rl": 4}[kind]
		a.numberEquates[name] = a.rs
		a.log.Logf(diag.Symbol, "%s:%d: %s %s = %s", a.file.Path, a.line, kind, name, numberValue(a.rs))
		a.rs += count * unit

	default:
		return errAt(op.Token, "unknown definition '%s'", op.Token.Text)
	}
	return nil
}

func (a *assembler) evalExport(op, label *Node, param any) error {
	if len(op.Children) == 0 {
		return wantArgs(op, 1, 1)
	}
	for _, c := range op.Children {
		if c.Kind != IdentifierNode {
			return errAt(c.Token, "EXPORT requires symbol names")
		}
		name := a.qualify(c.Token.Text)
		if !a.exports[name] {
			a.exports[name] = true
			a.exportOrder = append(a.exportOrder, name)
		}
		if l := a.labels[name]; l != nil {
			l.exported = true
		}
	}
	return nil
}

func (a *assembler) evalPurge(op, label *Node, param any) error {
	if len(op.Children) == 0 {
		return wantArgs(op, 1, 1)
	}
	for _, c := range op.Children {
		if c.Kind != IdentifierNode {
			return errAt(c.Token, "PURGE requires symbol names")
		}
		name := a.qualify(c.Token.Text)
		switch a.symbolKind(name) {
		case "":
			return errAt(c.Token, "'%s' is not defined", name)
		case "label":
			return errAt(c.Token, "label '%s' cannot be purged", name)
		}
		delete(a.numberEquates, name)
		delete(a.stringEquates, name)
		delete(a.sets, name)
		delete(a.macros, name)
		a.log.Logf(diag.Symbol, "%s:%d: purge %s", a.file.Path, a.line, name)
	}
	return nil
}

func (a *assembler) evalRSSet(op, label *Node, param any) error {
	if !param.(bool) {
		if err := wantArgs(op, 0, 0); err != nil {
			return err
		}
		a.rs = 0
		return nil
	}
	if err := wantArgs(op, 1, 1); err != nil {
		return err
	}
	v, err := a.constNumber(op.Children[0], "RSSET value")
	if err != nil {
		return err
	}
	a.rs = v
	return nil
}

func (a *assembler) evalCharmap(op, label *Node, param any) error {
	if err := wantArgs(op, 2, 2); err != nil {
		return err
	}
	s, err := a.constString(op.Children[0], "CHARMAP string")
	if err != nil {
		return err
	}
	if s == "" {
		return errAt(op.Children[0].Token, "CHARMAP string must not be empty")
	}
	v, err := a.constNumber(op.Children[1], "CHARMAP value")
	if err != nil {
		return err
	}
	if v < 0 || v > 0xff {
		return errAt(op.Children[1].Token, "CHARMAP value $%X does not fit in 8 bits", v)
	}
	a.charmap[s] = byte(v)
	a.charmapMax = max(a.charmapMax, len(s))
	return nil
}

//
// Sections
//

func (a *assembler) evalSection(op, label *Node, param any) error {
	if len(op.Children) < 2 {
		return errAt(op.Token, "SECTION requires a name and a memory region")
	}
	name, err := a.constString(op.Children[0], "section name")
	if err != nil {
		return err
	}

	r := op.Children[1]
	address := -1
	if r.Kind == IndexerNode && len(r.Children) == 2 && r.Children[0].Kind == RegionNode {
		v, err := a.constNumber(r.Children[1], "section address")
		if err != nil {
			return err
		}
		address, r = int(v), r.Children[0]
	}
	if r.Kind != RegionNode {
		return errAt(r.Token, "expected a memory region")
	}
	region, _ := object.ParseRegion(r.Token.Text)
	info := region.Info()

	bank, align := -1, -1
	for _, attr := range op.Children[2:] {
		if attr.Kind != IndexerNode || len(attr.Children) != 2 || attr.Children[0].Kind != IdentifierNode {
			return errAt(attr.Token, "expected BANK[n] or ALIGN[n]")
		}
		v, err := a.constNumber(attr.Children[1], "section attribute")
		if err != nil {
			return err
		}
		switch attr.Children[0].name() {
		case "bank":
			bank = int(v)
		case "align":
			align = int(v)
		default:
			return errAt(attr.Token, "unknown section attribute '%s'", attr.Children[0].Token.Text)
		}
	}

	switch {
	case address >= 0 && (address < info.Start || address > info.End):
		return errAt(op.Token, "address $%04X is outside of region %s ($%04X-$%04X)", address, region, info.Start, info.End)
	case bank >= 0 && !region.Banked():
		return errAt(op.Token, "region %s is not banked", region)
	case bank >= 0 && (bank < info.MinBank || bank > info.MaxBank):
		return errAt(op.Token, "bank %d is out of range for region %s (%d-%d)", bank, region, info.MinBank, info.MaxBank)
	case align > 16:
		return errAt(op.Token, "alignment of %d bits exceeds 16", align)
	case align >= 0 && address >= 0 && address&(1<<align-1) != 0:
		return errAt(op.Token, "address $%04X is not aligned to %d bits", address, align)
	}

	if s, ok := a.sectionMap[name]; ok {
		if !s.sameAttributes(region, address, bank, align) {
			return errAt(op.Children[0].Token, "section '%s' already defined with different attributes at %s:%d", name, s.file, s.line)
		}
		a.section = s
		a.log.Logf(diag.Section, "%s:%d: reopen section %s at $%04X", a.file.Path, a.line, name, s.offset())
		return nil
	}

	s := &section{
		name:    name,
		region:  region,
		address: address,
		bank:    bank,
		align:   align,
		file:    a.file.Path,
		line:    a.line,
		index:   len(a.sections),
	}
	a.sections = append(a.sections, s)
	a.sectionMap[name] = s
	a.section = s
	a.log.Logf(diag.Section, "%s:%d: section %s %s addr=%d bank=%d align=%d", a.file.Path, a.line, name, region, address, bank, align)
	return nil
}

func (a *assembler) evalPushSection(op, label *Node, param any) error {
	if err := wantArgs(op, 0, 0); err != nil {
		return err
	}
	a.sectionStack = append(a.sectionStack, a.section)
	a.section = nil
	return nil
}

func (a *assembler) evalPopSection(op, label *Node, param any) error {
	if err := wantArgs(op, 0, 0); err != nil {
		return err
	}
	if len(a.sectionStack) == 0 {
		return errAt(op.Token, "POPS without matching PUSHS")
	}
	a.section = a.sectionStack[len(a.sectionStack)-1]
	a.sectionStack = a.sectionStack[:len(a.sectionStack)-1]
	return nil
}

func (a *assembler) evalEndSection(op, label *Node, param any) error {
	if err := wantArgs(op, 0, 0); err != nil {
		return err
	}
	if a.section == nil {
		return errAt(op.Token, "ENDSECTION used outside of a section")
	}
	a.section = nil
	return nil
}

//
// Data
//

func (a *assembler) evalData(op, label *Node, param any) error {
	kind := param.(object.PatchKind)
	s, err := a.romSection(op.Token)
	if err != nil {
		return err
	}
	for _, arg := range op.Children {
		if a.isConstExpr(arg) {
			v, err := a.calcConstExpr(arg)
			if err != nil {
				return err
			}
			if v.Kind == StringValue {
				for _, b := range a.encodeString(v.Str) {
					s.emit(toBytes(kind.Width(), int32(b))...)
				}
				continue
			}
		}
		if err := a.emitValue(arg, kind); err != nil {
			return err
		}
	}
	return nil
}

func (a *assembler) evalReserve(op, label *Node, param any) error {
	if len(op.Children) == 0 {
		return wantArgs(op, 1, 1)
	}
	if a.section == nil {
		return errAt(op.Token, "DS used outside of a section")
	}
	count, err := a.constNumber(op.Children[0], "DS count")
	if err != nil {
		return err
	}
	if count < 0 {
		return errAt(op.Children[0].Token, "DS count %d is negative", count)
	}

	fills := op.Children[1:]
	if len(fills) == 0 {
		a.section.reserve(int(count), a.opts.pad)
		return nil
	}
	if _, err := a.romSection(op.Token); err != nil {
		return err
	}
	for i := 0; i < int(count); {
		for _, f := range fills {
			if i == int(count) {
				break
			}
			if err := a.emitValue(f, object.PatchByte); err != nil {
				return err
			}
			i++
		}
	}
	return nil
}

func (a *assembler) evalIncbin(op, label *Node, param any) error {
	if err := wantArgs(op, 1, 3); err != nil {
		return err
	}
	s, err := a.romSection(op.Token)
	if err != nil {
		return err
	}
	name, err := a.constString(op.Children[0], "INCBIN file name")
	if err != nil {
		return err
	}
	f, err := a.cfg.Files.Retrieve(name, a.file.Path, true)
	if err != nil {
		return errAt(op.Children[0].Token, "unable to read '%s': %v", name, err)
	}

	data := f.Data
	start, length := 0, len(data)
	if len(op.Children) > 1 {
		v, err := a.constNumber(op.Children[1], "INCBIN start")
		if err != nil {
			return err
		}
		if v < 0 || int(v) > len(data) {
			return errAt(op.Children[1].Token, "INCBIN start %d is beyond the end of '%s'", v, name)
		}
		start, length = int(v), len(data)-int(v)
	}
	if len(op.Children) > 2 {
		v, err := a.constNumber(op.Children[2], "INCBIN length")
		if err != nil {
			return err
		}
		if v < 0 || start+int(v) > len(data) {
			return errAt(op.Children[2].Token, "INCBIN range exceeds the size of '%s'", name)
		}
		length = int(v)
	}
	s.emit(data[start : start+length]...)
	return nil
}

func (a *assembler) evalAlign(op, label *Node, param any) error {
	if err := wantArgs(op, 1, 2); err != nil {
		return err
	}
	s := a.section
	if s == nil {
		return errAt(op.Token, "ALIGN used outside of a section")
	}
	bits, err := a.constNumber(op.Children[0], "ALIGN bits")
	if err != nil {
		return err
	}
	if bits < 0 || bits > 16 {
		return errAt(op.Children[0].Token, "alignment of %d bits must be between 0 and 16", bits)
	}
	mask := 1<<bits - 1
	offset := 0
	if len(op.Children) > 1 {
		v, err := a.constNumber(op.Children[1], "ALIGN offset")
		if err != nil {
			return err
		}
		if v < 0 || int(v) > mask {
			return errAt(op.Children[1].Token, "ALIGN offset %d must be less than %d", v, mask+1)
		}
		offset = int(v)
	}

	var cur int
	switch {
	case s.address >= 0:
		cur = s.address + s.offset()
	case s.align >= int(bits):
		cur = s.offset()
	default:
		return errAt(op.Token, "ALIGN %d requires a section with a fixed address or at least %d bits of alignment", bits, bits)
	}
	s.reserve((offset-cur)&mask, a.opts.pad)
	return nil
}

// emitValue appends a value of the given width to the open section. If
// the value is not known until link time, a patch is recorded instead.
func (a *assembler) emitValue(n *Node, kind object.PatchKind) error {
	if !a.isConstExpr(n) {
		return a.emitPatch(n, kind)
	}
	v, err := a.calcConstNumber(n)
	if err != nil {
		return err
	}
	switch {
	case kind == object.PatchByte && (v < -128 || v > 0xff):
		return errAt(n.Token, "value $%X does not fit in 8 bits", v)
	case kind == object.PatchWord && (v < -32768 || v > 0xffff):
		return errAt(n.Token, "value $%X does not fit in 16 bits", v)
	case kind == object.PatchSigned && (v < -128 || v > 127):
		return errAt(n.Token, "offset %d does not fit in a signed byte", v)
	}
	a.section.emit(toBytes(kind.Width(), v)...)
	return nil
}

// emitPatch reserves space for a value and records a patch that fills it
// in at link time.
func (a *assembler) emitPatch(n *Node, kind object.PatchKind) error {
	rpn, err := a.buildLinkExpr(n)
	if err != nil {
		return err
	}
	s := a.section
	p := object.Patch{
		File:   a.file.Path,
		Line:   a.line,
		Offset: s.offset(),
		Kind:   kind,
		Expr:   rpn,
	}
	s.patches = append(s.patches, p)
	s.reserve(kind.Width(), 0)
	a.log.Logf(diag.Patch, "%s:%d: %s patch at %s+$%04X: %s", p.File, p.Line, kind, s.name, p.Offset, rpn)
	return nil
}

//
// Unions
//

func (a *assembler) evalUnion(op, label *Node, param any) error {
	if err := wantArgs(op, 0, 0); err != nil {
		return err
	}
	if a.section == nil || a.section.region.IsROM() {
		return errAt(op.Token, "UNION is only allowed in RAM sections")
	}
	a.unions = append(a.unions, &unionFrame{section: a.section, start: a.section.offset()})
	return nil
}

// unionBranch closes the current branch of the innermost union.
func (a *assembler) unionBranch(op *Node) (*unionFrame, error) {
	if err := wantArgs(op, 0, 0); err != nil {
		return nil, err
	}
	if len(a.unions) == 0 {
		return nil, errAt(op.Token, "%s without matching UNION", strings.ToUpper(op.Token.Text))
	}
	u := a.unions[len(a.unions)-1]
	if u.section != a.section {
		return nil, errAt(op.Token, "%s is not in the same section as its UNION", strings.ToUpper(op.Token.Text))
	}
	u.longest = max(u.longest, u.section.offset()-u.start)
	u.section.truncate(u.start)
	return u, nil
}

func (a *assembler) evalNextu(op, label *Node, param any) error {
	_, err := a.unionBranch(op)
	return err
}

func (a *assembler) evalEndu(op, label *Node, param any) error {
	u, err := a.unionBranch(op)
	if err != nil {
		return err
	}
	u.section.reserve(u.longest, a.opts.pad)
	a.unions = a.unions[:len(a.unions)-1]
	return nil
}

//
// Conditionals
//

func (a *assembler) evalIf(op, label *Node, param any) error {
	if err := wantArgs(op, 1, 1); err != nil {
		return err
	}
	v, err := a.constNumber(op.Children[0], "IF condition")
	if err != nil {
		return err
	}
	a.conds = append(a.conds, &condFrame{active: v != 0, taken: v != 0, parent: true, line: a.line})
	return nil
}

// topCond returns the innermost conditional opened by the current
// include or macro invocation.
func (a *assembler) topCond(op *Node) (*condFrame, error) {
	if len(a.conds) <= a.condBase {
		return nil, errAt(op.Token, "%s without matching IF", strings.ToUpper(op.Token.Text))
	}
	return a.conds[len(a.conds)-1], nil
}

func (a *assembler) evalElif(op, label *Node, param any) error {
	if err := wantArgs(op, 1, 1); err != nil {
		return err
	}
	c, err := a.topCond(op)
	if err != nil {
		return err
	}
	if c.inElse {
		return errAt(op.Token, "ELIF after ELSE")
	}
	if c.taken {
		c.active = false
		return nil
	}
	v, err := a.constNumber(op.Children[0], "ELIF condition")
	if err != nil {
		return err
	}
	c.active, c.taken = v != 0, v != 0
	return nil
}

func (a *assembler) evalElse(op, label *Node, param any) error {
	if err := wantArgs(op, 0, 0); err != nil {
		return err
	}
	c, err := a.topCond(op)
	if err != nil {
		return err
	}
	if c.inElse {
		return errAt(op.Token, "ELSE after ELSE")
	}
	c.inElse = true
	c.active = !c.taken
	c.taken = true
	return nil
}

func (a *assembler) evalEndc(op, label *Node, param any) error {
	if err := wantArgs(op, 0, 0); err != nil {
		return err
	}
	if _, err := a.topCond(op); err != nil {
		return err
	}
	a.conds = a.conds[:len(a.conds)-1]
	return nil
}

//
// Repeats and macros
//

func (a *assembler) evalRept(op, label *Node, param any) error {
	if err := wantArgs(op, 1, 1); err != nil {
		return err
	}
	count, err := a.constNumber(op.Children[0], "REPT count")
	if err != nil {
		return err
	}
	if count < 0 {
		return errAt(op.Children[0].Token, "REPT count %d is negative", count)
	}
	if count == 0 {
		a.skip = 1
		return nil
	}

	var parent *callFrame
	if len(a.calls) > 0 {
		parent = a.calls[len(a.calls)-1]
	}
	a.repeats = append(a.repeats, &repeatFrame{
		count:  int(count),
		file:   a.file,
		start:  a.line,
		line:   a.line,
		calls:  len(a.calls),
		conds:  len(a.conds),
		parent: parent,
	})
	a.macroCounter++
	a.calls = append(a.calls, &callFrame{id: a.macroCounter, parent: parent})
	a.log.Logf(diag.Scope, "%s:%d: rept %d", a.file.Path, a.line, count)
	return nil
}

// evalEndr closes the first pass over a REPT block, then evaluates the
// block's body for each remaining iteration.
func (a *assembler) evalEndr(op, label *Node, param any) error {
	if err := wantArgs(op, 0, 0); err != nil {
		return err
	}
	if len(a.repeats) == 0 {
		return errAt(op.Token, "ENDR without matching REPT")
	}
	r := a.repeats[len(a.repeats)-1]
	if r.file != a.file {
		return errAt(op.Token, "ENDR without matching REPT")
	}
	if len(a.conds) != r.conds {
		return errAt(op.Token, "IF and ENDC are not balanced inside the REPT block at line %d", r.line)
	}
	a.calls = a.calls[:r.calls]
	end := a.line - 1

	for i := 1; i < r.count; i++ {
		leave, err := a.enter(op.Token, "rept", fmt.Sprintf("#%d", i+1))
		if err != nil {
			return err
		}
		a.macroCounter++
		a.calls = append(a.calls, &callFrame{id: a.macroCounter, parent: r.parent})
		err = a.evalNested(r.file, r.start, end, fmt.Sprintf("REPT block at line %d", r.line))
		a.calls = a.calls[:r.calls]
		leave()
		if err != nil {
			return err
		}
	}

	a.repeats = a.repeats[:len(a.repeats)-1]
	return nil
}

func (a *assembler) evalMacro(op, label *Node, param any) error {
	var name Token
	switch {
	case label != nil && len(op.Children) == 0:
		name = label.Token
	case label == nil && len(op.Children) == 1 && op.Children[0].Kind == IdentifierNode:
		name = op.Children[0].Token
	default:
		return errAt(op.Token, "MACRO requires a single name")
	}
	if kind := a.symbolKind(name.Text); kind != "" {
		return errAt(name, "'%s' already defined as %s", name.Text, kind)
	}
	a.defines = append(a.defines, &defineFrame{
		name:  name.Text,
		file:  a.file,
		line:  a.line,
		start: a.line,
	})
	return nil
}

func (a *assembler) evalEndm(op, label *Node, param any) error {
	return errAt(op.Token, "ENDM without matching MACRO")
}

func (a *assembler) evalShift(op, label *Node, param any) error {
	if err := wantArgs(op, 0, 1); err != nil {
		return err
	}
	f := a.macroFrame()
	if f == nil {
		return errAt(op.Token, "SHIFT used outside of a macro")
	}
	n := int32(1)
	if len(op.Children) > 0 {
		var err error
		if n, err = a.constNumber(op.Children[0], "SHIFT count"); err != nil {
			return err
		}
	}
	if shift := f.shift + int(n); shift < 0 || shift > len(f.args) {
		return errAt(op.Token, "cannot shift macro arguments past their end")
	}
	f.shift += int(n)
	return nil
}

func (a *assembler) evalInclude(op, label *Node, param any) error {
	if err := wantArgs(op, 1, 1); err != nil {
		return err
	}
	name, err := a.constString(op.Children[0], "INCLUDE file name")
	if err != nil {
		return err
	}
	f, err := a.cfg.Files.Retrieve(name, a.file.Path, false)
	if err != nil {
		return errAt(op.Children[0].Token, "unable to include '%s': %v", name, err)
	}

	leave, err := a.enter(op.Token, "include", f.Path)
	if err != nil {
		return err
	}
	defer leave()
	return a.evalNested(f, 0, len(f.Lines), fmt.Sprintf("file '%s'", f.Path))
}

//
// Options and messages
//

func (a *assembler) evalOpt(op, label *Node, param any) error {
	for _, arg := range op.Children {
		s := arg.Raw
		if len(s) < 2 || (s[0] != 'p' && s[0] != 'P') {
			a.addWarning(op.Token, "unsupported option '%s'", s)
			continue
		}
		v, err := parseNumber(s[1:])
		if err != nil || v < 0 || v > 0xff {
			return errAt(op.Token, "invalid pad value '%s'", s[1:])
		}
		a.opts.pad = byte(v)
	}
	return nil
}

func (a *assembler) evalPushOptions(op, label *Node, param any) error {
	if err := wantArgs(op, 0, 0); err != nil {
		return err
	}
	a.optStack = append(a.optStack, a.opts)
	return nil
}

func (a *assembler) evalPopOptions(op, label *Node, param any) error {
	if err := wantArgs(op, 0, 0); err != nil {
		return err
	}
	if len(a.optStack) == 0 {
		return errAt(op.Token, "POPO without matching PUSHO")
	}
	a.opts = a.optStack[len(a.optStack)-1]
	a.optStack = a.optStack[:len(a.optStack)-1]
	return nil
}

func (a *assembler) evalPrint(op, label *Node, param any) error {
	var b strings.Builder
	for _, arg := range op.Children {
		if !a.isConstExpr(arg) {
			return errAt(arg.Token, "%s arguments must be constant", strings.ToUpper(op.Token.Text))
		}
		v, err := a.calcConstExpr(arg)
		if err != nil {
			return err
		}
		if v.Kind == StringValue {
			b.WriteString(v.Str)
		} else {
			b.WriteString(v.String())
		}
	}
	if param.(bool) {
		b.WriteByte('\n')
	}
	fmt.Fprint(a.out, b.String())
	return nil
}

func (a *assembler) evalMessage(op, label *Node, param any) error {
	if err := wantArgs(op, 1, 1); err != nil {
		return err
	}
	msg, err := a.constString(op.Children[0], strings.ToUpper(op.Token.Text)+" message")
	if err != nil {
		return err
	}
	a.addDiag(param.(diag.Severity), op.Token, msg)
	return nil
}

func (a *assembler) evalAssert(op, label *Node, param any) error {
	if err := wantArgs(op, 1, 2); err != nil {
		return err
	}
	v, err := a.constNumber(op.Children[0], "assertion")
	if err != nil {
		return err
	}
	if v != 0 {
		return nil
	}
	msg := "assertion failed"
	if len(op.Children) > 1 {
		s, err := a.constString(op.Children[1], "assertion message")
		if err != nil {
			return err
		}
		msg += ": " + s
	}
	return errAt(op.Token, "%s", msg)
}

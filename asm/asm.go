// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asm implements a Game Boy (SM83) macro assembler that produces
// relocatable object modules.
package asm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/beevik/gbasm/diag"
	"github.com/beevik/gbasm/object"
)

// Option type used by the Config structure.
type Option uint

// Options for the Assemble function.
const (
	Verbose Option = 1 << iota // log every event category to Out
)

// Config controls the behavior of the assembler. The zero value is
// usable.
type Config struct {
	Options      Option
	Files        FileProvider      // source of included files; defaults to a DirProvider
	IncludePaths []string          // used by the default DirProvider
	Defines      map[string]string // string equates defined before assembly
	MaxDepth     int               // include/macro/REPT nesting limit; defaults to 64
	PadValue     byte              // default fill byte for DS, ALIGN and unions
	Logger       *diag.Logger      // event sink; may be nil
	Out          io.Writer         // destination of PRINT output
}

// Assembly contains the object module produced by assembling a file,
// along with every diagnostic raised while assembling it.
type Assembly struct {
	Module      *object.Module
	Diagnostics diag.List
}

// AssembleFile reads a file containing SM83 assembly code and assembles
// it into an object module.
func AssembleFile(path string, cfg *Config) (*Assembly, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Assemble(f, path, cfg)
}

// AssembleFiles assembles each file independently. An error in one file
// does not prevent the remaining files from being assembled. The returned
// error lists the errors of every file.
func AssembleFiles(paths []string, cfg *Config) ([]*Assembly, error) {
	var errs diag.ErrorList
	assemblies := make([]*Assembly, len(paths))
	for i, path := range paths {
		assembly, err := AssembleFile(path, cfg)
		if err != nil {
			var list diag.ErrorList
			if errors.As(err, &list) {
				errs = append(errs, list...)
			} else {
				errs = append(errs, diag.Diagnostic{
					Area:     diag.Evaluator,
					Severity: diag.Error,
					Message:  err.Error(),
					File:     path,
				})
			}
		}
		assemblies[i] = assembly
	}
	if len(errs) > 0 {
		return assemblies, errs
	}
	return assemblies, nil
}

// Assemble reads assembly code from the provided stream and assembles it
// into an object module. If any error diagnostic is raised, the returned
// error is a diag.ErrorList.
func Assemble(r io.Reader, path string, cfg *Config) (*Assembly, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	a := newAssembler(path, cfg)
	a.root = NewSourceFile(path, data)

	// Assembly consists of the following steps.
	steps := []func(a *assembler) error{
		(*assembler).evaluate,    // Evaluate every line of the file
		(*assembler).buildModule, // Project the final state into a module
	}

	// Execute assembler steps, breaking if an error is encountered in any
	// one of them.
	for _, step := range steps {
		err = step(a)
		if err != nil || a.diags.HasErrors() {
			break
		}
	}

	assembly := &Assembly{Module: a.module, Diagnostics: a.diags}
	if a.diags.HasErrors() {
		return assembly, a.diags.Err()
	}
	return assembly, err
}

// EvalExpr evaluates a constant expression. Symbols not defined by the
// expression itself are looked up with resolve, which may be nil.
func EvalExpr(text string, resolve func(name string) (int32, bool)) (Value, error) {
	const path = "<expr>"
	a := newAssembler(path, nil)
	a.resolve = resolve
	a.file = &SourceFile{Path: path, Lines: []string{text}}
	a.line, a.text = 1, text

	lx := lexer{file: path, diags: &a.diags}
	tokens, _ := lx.tokenize(text, 1)
	n := parseExpression(tokens, text, path, &a.diags)
	if a.diags.HasErrors() {
		return Value{}, a.diags.Err()
	}

	v, err := a.calcConstExpr(n)
	if err != nil {
		a.report(err, n.Token)
		return Value{}, a.diags.Err()
	}
	return v, nil
}

// evaluate evaluates every line of the top-level file.
func (a *assembler) evaluate() error {
	a.log.Banner(diag.Scope, "Assembling "+a.path)
	if err := a.evalLines(a.root, 0, len(a.root.Lines)); err != nil {
		return err
	}

	a.file, a.line, a.text = a.root, len(a.root.Lines), ""
	a.closeScope(scopeMark{}, fmt.Sprintf("file '%s'", a.path))
	if len(a.sectionStack) > 0 {
		a.addWarning(Token{}, "PUSHS without matching POPS")
	}
	return nil
}

// buildModule projects the assembler's sections and labels into an
// object module. Symbols referenced by patches come first, in the order
// of their ids.
func (a *assembler) buildModule() error {
	a.log.Banner(diag.Symbol, "Building object module")

	for _, name := range a.exportOrder {
		if !a.isDefinedValue(name) {
			a.addError(Token{}, "exported symbol '%s' is not defined", name)
		}
	}
	if a.diags.HasErrors() {
		return nil
	}

	m := &object.Module{Path: a.path}
	seen := make(map[string]bool)
	for _, name := range a.symOrder {
		m.Symbols = append(m.Symbols, a.projectSymbol(name))
		seen[name] = true
	}
	for _, l := range a.labelOrder {
		if !seen[l.name] {
			m.Symbols = append(m.Symbols, a.projectSymbol(l.name))
			seen[l.name] = true
		}
	}
	for _, name := range a.exportOrder {
		if !seen[name] {
			m.Symbols = append(m.Symbols, a.projectSymbol(name))
			seen[name] = true
		}
	}

	for _, s := range a.sections {
		sect := object.Section{
			Name:    s.name,
			Size:    s.size,
			Region:  s.region,
			Address: s.address,
			Bank:    s.bank,
			Align:   s.align,
		}
		if s.region.IsROM() {
			sect.Data = s.data
			sect.Patches = s.patches
		}
		m.Sections = append(m.Sections, sect)
	}

	for _, sym := range m.Symbols {
		a.log.Logf(diag.Symbol, "%-8s %-24s section=%d value=$%04X", sym.Kind, sym.Name, sym.Section, sym.Value)
	}
	a.module = m
	return nil
}

// isDefinedValue returns true if the name is a label or a numeric
// constant.
func (a *assembler) isDefinedValue(name string) bool {
	if a.labels[name] != nil {
		return true
	}
	_, equ := a.numberEquates[name]
	_, set := a.sets[name]
	return equ || set
}

// projectSymbol converts the final definition of a name into a module
// symbol. Names without a definition are imported from other modules.
func (a *assembler) projectSymbol(name string) object.Symbol {
	kind := object.Internal
	if a.exports[name] {
		kind = object.Exported
	}

	if l := a.labels[name]; l != nil {
		if l.exported {
			kind = object.Exported
		}
		return object.Symbol{
			Name:    name,
			Kind:    kind,
			File:    l.file,
			Line:    l.line,
			Section: l.section.index,
			Value:   l.offset,
		}
	}

	v, ok := a.numberEquates[name]
	if !ok {
		v, ok = a.sets[name]
	}
	if ok {
		return object.Symbol{Name: name, Kind: kind, File: a.path, Section: -1, Value: int(v)}
	}
	return object.Symbol{Name: name, Kind: object.Imported, Section: -1}
}

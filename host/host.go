// Copyright 2018-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host implements an interactive shell around the gbasm assembler
// and linker.
//
// Within the host it is possible to assemble source files into object
// modules, link object modules into a ROM image, load a ROM image and its
// symbol file, disassemble and dump the contents of the ROM, and evaluate
// assembler expressions that refer to the ROM's symbols.
package host

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/beevik/cmd"
	"github.com/beevik/gbasm/asm"
	"github.com/beevik/gbasm/cpu"
	"github.com/beevik/gbasm/diag"
	"github.com/beevik/gbasm/disasm"
	"github.com/beevik/gbasm/link"
	"github.com/beevik/term"
	"github.com/peterh/liner"
)

// errQuit is returned by a command handler to end command processing.
var errQuit = errors.New("exiting program")

// A Host is an interactive environment for assembling, linking and
// inspecting Game Boy programs.
type Host struct {
	input       *bufio.Scanner
	editor      *liner.State // line editor for terminal input, or nil
	output      *bufio.Writer
	interactive bool
	lastCmd     *cmd.Selection
	settings    *settings

	mem     *cpu.ROMMemory // loaded ROM image, or nil
	romPath string
	symbols *link.SymbolFile
	bank    int // ROM bank mapped at $4000-$7FFF
}

// New creates a new host environment.
func New() *Host {
	return &Host{
		settings: newSettings(),
		symbols:  &link.SymbolFile{},
		bank:     1,
	}
}

// RunCommands accepts host commands from a reader and outputs the results
// to a writer. If the commands are interactive, a prompt is displayed while
// the host waits for the the next command to be entered. Interactive input
// from a terminal supports line editing and history.
func (h *Host) RunCommands(r io.Reader, w io.Writer, interactive bool) {
	h.input = bufio.NewScanner(r)
	h.output = bufio.NewWriter(w)
	h.interactive = interactive

	if f, ok := r.(*os.File); ok && interactive && term.IsTerminal(int(f.Fd())) {
		h.editor = liner.NewLiner()
		h.editor.SetCtrlCAborts(true)
		defer func() {
			h.editor.Close()
			h.editor = nil
		}()
	}

	for {
		line, err := h.getLine()
		if err == liner.ErrPromptAborted {
			continue
		}
		if err != nil {
			break
		}

		var c cmd.Selection
		if line != "" {
			c, err = cmds.Lookup(line)
			switch {
			case err == cmd.ErrNotFound:
				h.println("Command not found.")
				continue
			case err == cmd.ErrAmbiguous:
				h.println("Command is ambiguous.")
				continue
			case err != nil:
				h.printf("ERROR: %v.\n", err)
				continue
			}
		} else if h.lastCmd != nil {
			c = *h.lastCmd
		}

		if c.Command == nil {
			continue
		}
		cc, ok := c.Command.Data.(*command)
		if !ok {
			h.println("Incomplete command.")
			continue
		}
		h.lastCmd = &c

		err = cc.handler(h, c)
		if err != nil {
			break
		}
	}
	h.flush()
}

func (h *Host) print(args ...any) {
	fmt.Fprint(h.output, args...)
}

func (h *Host) printf(format string, args ...any) {
	fmt.Fprintf(h.output, format, args...)
	h.flush()
}

func (h *Host) println(args ...any) {
	fmt.Fprintln(h.output, args...)
	h.flush()
}

func (h *Host) flush() {
	h.output.Flush()
}

func (h *Host) getLine() (string, error) {
	if h.editor != nil {
		line, err := h.editor.Prompt("* ")
		if err == nil && strings.TrimSpace(line) != "" {
			h.editor.AppendHistory(line)
		}
		return strings.TrimSpace(line), err
	}

	if h.interactive {
		h.printf("* ")
	}
	if h.input.Scan() {
		return strings.TrimSpace(h.input.Text()), nil
	}
	if h.input.Err() != nil {
		return "", h.input.Err()
	}
	return "", io.EOF
}

func (h *Host) cmdAssemble(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	filename := c.Args[0]
	if filepath.Ext(filename) == "" {
		filename += ".asm"
	}

	objFilename := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".o"
	if len(c.Args) >= 2 {
		objFilename = c.Args[1]
	}

	cfg := &asm.Config{
		IncludePaths: h.settings.includePaths(),
		PadValue:     h.settings.PadValue,
		Out:          h.output,
	}
	if h.settings.Verbose {
		cfg.Logger = diag.NewLogger(h.output, diag.All)
	}

	assembly, err := asm.AssembleFile(filename, cfg)
	if assembly != nil {
		h.displayDiagnostics(assembly.Diagnostics)
	}
	if err != nil {
		if assembly == nil {
			h.printf("Failed to open '%s': %v\n", filepath.Base(filename), err)
		}
		h.printf("Failed to assemble: %s\n", filepath.Base(filename))
		return nil
	}

	err = assembly.Module.WriteFile(objFilename)
	if err != nil {
		h.printf("Failed to save '%s': %v\n", filepath.Base(objFilename), err)
		return nil
	}

	h.printf("Assembled '%s' to '%s'.\n", filepath.Base(filename), filepath.Base(objFilename))
	return nil
}

func (h *Host) cmdDisassemble(c cmd.Selection) error {
	if h.mem == nil {
		h.println("No ROM loaded.")
		return nil
	}
	if len(c.Args) == 0 {
		c.Args = []string{"$"}
	}

	bank, addr := h.bank, h.settings.NextDisasmAddr
	if c.Args[0] != "$" {
		var err error
		bank, addr, err = h.parseAddress(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
	}

	lines := h.settings.DisasmLines
	if len(c.Args) > 1 {
		l, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		lines = int(l)
	}

	for i := 0; i < lines; i++ {
		d, next := h.disassemble(bank, addr)
		h.println(d)
		addr = next
	}

	h.bank = bank
	h.settings.NextDisasmAddr = addr
	h.lastCmd.Args = []string{"$", fmt.Sprintf("%d", lines)}
	return nil
}

func (h *Host) cmdEvaluate(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	expr := strings.Join(c.Args, " ")
	v, err := asm.EvalExpr(expr, h.resolveSymbol)
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	if v.Kind == asm.StringValue {
		h.printf("%s\n", v)
	} else {
		h.printf("%s (%d)\n", v, v.Num)
	}
	return nil
}

func (h *Host) cmdHelp(c cmd.Selection) error {
	if len(c.Args) == 0 {
		h.println("gbasm commands:")
		for _, cc := range commands {
			h.printf("    %-15s  %s\n", cc.name, cc.brief)
		}
		return nil
	}

	s, err := cmds.Lookup(strings.Join(c.Args, " "))
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}
	var cc *command
	if s.Command != nil {
		cc, _ = s.Command.Data.(*command)
	}
	if cc == nil {
		// A command group; list its members.
		prefix := strings.Join(c.Args, " ")
		for _, sub := range commands {
			if strings.HasPrefix(sub.name, prefix+" ") {
				h.printf("    %-15s  %s\n", sub.name, sub.brief)
			}
		}
		return nil
	}

	if cc.usage != "" {
		h.printf("Syntax: %s\n\n", cc.usage)
	}
	switch {
	case cc.description != "":
		h.printf("Description:\n%s\n\n", indentWrap(3, h.width(), cc.description))
	case cc.brief != "":
		h.printf("Description:\n%s.\n\n", indentWrap(3, h.width(), cc.brief))
	}
	return nil
}

func (h *Host) cmdLink(c cmd.Selection) error {
	if len(c.Args) < 2 {
		h.displayUsage(c)
		return nil
	}

	romFilename := c.Args[0]
	opts := link.Options{PadValue: h.settings.PadValue}
	if h.settings.Verbose {
		opts.Logger = diag.NewLogger(h.output, diag.Place|diag.Resolve)
	}

	l := link.New(opts)
	for _, path := range c.Args[1:] {
		if filepath.Ext(path) == "" {
			path += ".o"
		}
		if err := l.AddFile(path); err != nil {
			h.printf("%v\n", err)
			return nil
		}
	}

	result, err := l.Link()
	if result != nil {
		h.displayDiagnostics(result.Diagnostics)
	}
	if err != nil {
		h.printf("Failed to link: %s\n", filepath.Base(romFilename))
		return nil
	}

	prefix := strings.TrimSuffix(romFilename, filepath.Ext(romFilename))
	outputs := []struct {
		path  string
		write func(w io.Writer) error
	}{
		{romFilename, result.WriteROM},
		{prefix + ".sym", result.WriteSymbols},
		{prefix + ".map", result.WriteMap},
	}
	for _, o := range outputs {
		if err := writeFile(o.path, o.write); err != nil {
			h.printf("Failed to save '%s': %v\n", filepath.Base(o.path), err)
			return nil
		}
	}

	h.printf("Linked %d module(s) to '%s' ($%X bytes).\n", len(c.Args)-1, filepath.Base(romFilename), len(result.ROM))
	h.setROM(romFilename, result.ROM, &link.SymbolFile{Symbols: result.Symbols})
	return nil
}

func (h *Host) cmdLoad(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	filename := c.Args[0]
	if filepath.Ext(filename) == "" {
		filename += ".gb"
	}

	rom, err := os.ReadFile(filename)
	if err != nil {
		h.printf("Failed to open '%s': %v\n", filepath.Base(filename), err)
		return nil
	}
	h.printf("Loaded '%s' ($%X bytes).\n", filepath.Base(filename), len(rom))

	syms := &link.SymbolFile{}
	symFilename := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".sym"
	if file, err := os.Open(symFilename); err == nil {
		_, err = syms.ReadFrom(file)
		file.Close()
		if err != nil {
			h.printf("Failed to read '%s': %v\n", filepath.Base(symFilename), err)
		} else {
			h.printf("Loaded '%s' (%d symbols).\n", filepath.Base(symFilename), len(syms.Symbols))
		}
	}

	h.setROM(filename, rom, syms)
	return nil
}

func (h *Host) cmdMemoryDump(c cmd.Selection) error {
	if h.mem == nil {
		h.println("No ROM loaded.")
		return nil
	}
	if len(c.Args) == 0 {
		c.Args = []string{"$"}
	}

	bank, addr := h.bank, h.settings.NextMemDumpAddr
	if c.Args[0] != "$" {
		var err error
		bank, addr, err = h.parseAddress(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
	}

	count := uint16(h.settings.MemDumpBytes)
	if len(c.Args) >= 2 {
		v, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		count = uint16(v)
	}

	h.dumpMemory(bank, addr, count)

	h.bank = bank
	h.settings.NextMemDumpAddr = addr + count
	h.lastCmd.Args = []string{"$", fmt.Sprintf("%d", count)}
	return nil
}

func (h *Host) cmdQuit(c cmd.Selection) error {
	return errQuit
}

func (h *Host) cmdSet(c cmd.Selection) error {
	switch len(c.Args) {
	case 0:
		h.println("Variables:")
		h.settings.Display(h.output)
		h.flush()

	case 1:
		h.displayUsage(c)

	default:
		key, value := c.Args[0], strings.Join(c.Args[1:], " ")
		name, kind, err := h.settings.Field(key)
		if err != nil {
			h.printf("Setting '%s' not found.\n", key)
			return nil
		}

		switch kind {
		case reflect.String:
			err = h.settings.Set(key, value)
		case reflect.Bool:
			var v bool
			v, err = stringToBool(value)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		default:
			var v int32
			v, err = h.parseExpr(value)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		}

		if err == nil {
			h.printf("Setting %s updated.\n", name)
		} else {
			h.printf("%v\n", err)
		}
	}

	return nil
}

func (h *Host) cmdSymbols(c cmd.Selection) error {
	if len(h.symbols.Symbols) == 0 {
		h.println("No symbols loaded.")
		return nil
	}

	filter := strings.ToLower(strings.Join(c.Args, " "))
	for _, sym := range h.symbols.Symbols {
		if filter == "" || strings.Contains(strings.ToLower(sym.Name), filter) {
			fmt.Fprintf(h.output, "%02X:%04X  %-5s  %s\n", sym.Bank, sym.Address, sym.Region, sym.Name)
		}
	}
	h.flush()
	return nil
}

// setROM makes a ROM image and its symbols the target of inspection
// commands.
func (h *Host) setROM(path string, rom []byte, syms *link.SymbolFile) {
	h.mem, h.romPath, h.symbols = cpu.NewROMMemory(rom), path, syms
	h.bank = 1
	h.settings.NextDisasmAddr = 0x0100
	h.settings.NextMemDumpAddr = 0
}

// parseExpr evaluates an expression that must produce a number.
func (h *Host) parseExpr(expr string) (int32, error) {
	v, err := asm.EvalExpr(expr, h.resolveSymbol)
	if err != nil {
		return 0, err
	}
	return v.Number()
}

// parseAddress parses an address of the form [bank:]address. A symbol
// name selects the symbol's bank.
func (h *Host) parseAddress(s string) (bank int, addr uint16, err error) {
	bank = h.bank
	bankText, addrText, found := strings.Cut(s, ":")
	if found {
		b, err := h.parseExpr(bankText)
		if err != nil {
			return 0, 0, err
		}
		bank = int(b)
	} else {
		addrText = s
		if sym, ok := h.symbols.Lookup(addrText); ok && sym.Address >= 0x4000 && sym.Address < 0x8000 {
			bank = sym.Bank
		}
	}

	v, err := h.parseExpr(addrText)
	if err != nil {
		return 0, 0, err
	}
	if v < 0 || v > 0xffff {
		return 0, 0, fmt.Errorf("address $%X out of range", v)
	}
	return bank, uint16(v), nil
}

// resolveSymbol returns the address of a symbol in the loaded symbol file.
func (h *Host) resolveSymbol(name string) (int32, bool) {
	if sym, ok := h.symbols.Lookup(name); ok {
		return int32(sym.Address), true
	}
	return 0, false
}

// memory returns the loaded ROM with a bank mapped at $4000-$7FFF.
func (h *Host) memory(bank int) *cpu.ROMMemory {
	h.mem.Bank = bank
	return h.mem
}

func (h *Host) disassemble(bank int, addr uint16) (str string, next uint16) {
	m := h.memory(bank)

	var line string
	line, next = disasm.DisassembleMemory(m, addr)

	b := make([]byte, next-addr)
	m.LoadBytes(addr, b)

	str = fmt.Sprintf("%02X:%04X-   %-8s    %-20s", bank, addr, codeString(b), line)
	if name, ok := h.symbols.Search(h.symbolBank(bank, addr), int(addr)); ok {
		str += " ; " + name
	}
	return strings.TrimRight(str, " "), next
}

// symbolBank returns the bank number recorded in the symbol file for an
// address in the given ROM bank.
func (h *Host) symbolBank(bank int, addr uint16) int {
	if addr < 0x4000 {
		return 0
	}
	return bank
}

func (h *Host) dumpMemory(bank int, addr0, count uint16) {
	if count == 0 {
		return
	}

	addr1 := addr0 + count - 1
	if addr1 < addr0 {
		addr1 = 0xffff
	}

	m := h.memory(bank)
	buf := []byte("    -" + strings.Repeat(" ", 35))

	// Don't align display for short dumps.
	if addr1-addr0 < 8 {
		addrToBuf(addr0, buf[0:4])
		for a, c1, c2 := addr0, 6, 32; a <= addr1; a, c1, c2 = a+1, c1+3, c2+1 {
			v := m.LoadByte(a)
			byteToBuf(v, buf[c1:c1+2])
			buf[c2] = toPrintableChar(v)
		}
		h.println(strings.TrimRight(string(buf), " "))
		return
	}

	// Align addr0 and addr1 to 8-byte boundaries.
	start := uint32(addr0) & 0xfff8
	stop := (uint32(addr1) + 8) & 0xffff8
	if stop > 0x10000 {
		stop = 0x10000
	}

	a := uint16(start)
	for r := start; r < stop; r += 8 {
		addrToBuf(a, buf[0:4])
		for c1, c2 := 6, 32; c1 < 29; c1, c2, a = c1+3, c2+1, a+1 {
			if a >= addr0 && a <= addr1 {
				v := m.LoadByte(a)
				byteToBuf(v, buf[c1:c1+2])
				buf[c2] = toPrintableChar(v)
			} else {
				buf[c1] = ' '
				buf[c1+1] = ' '
				buf[c2] = ' '
			}
		}
		h.println(strings.TrimRight(string(buf), " "))
	}
}

func (h *Host) displayUsage(c cmd.Selection) {
	if cc, ok := c.Command.Data.(*command); ok && cc.usage != "" {
		h.printf("Syntax: %s\n", cc.usage)
	} else {
		h.println("<no help text>")
	}
}

func (h *Host) displayDiagnostics(diags diag.List) {
	for _, d := range diags {
		h.println(d)
	}
}

// width returns the width of the terminal, or 80 if output is not a
// terminal.
func (h *Host) width() int {
	if h.editor != nil {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
			return w
		}
	}
	return 80
}

func writeFile(path string, write func(w io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

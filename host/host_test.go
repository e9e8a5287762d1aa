// Copyright 2018-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testSource = `
SECTION "Header", ROM0[$0100]
Start::
	nop
	jp Main

SECTION "Code", ROM0
Main:
	ld a, $12
	jr Main
`

func runScript(h *Host, lines ...string) string {
	var out bytes.Buffer
	h.RunCommands(strings.NewReader(strings.Join(lines, "\n")), &out, false)
	return out.String()
}

func checkOutput(t *testing.T, out string, expected ...string) {
	t.Helper()
	for _, s := range expected {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
}

func TestAssembleAndLink(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "game.asm")
	if err := os.WriteFile(src, []byte(testSource), 0644); err != nil {
		t.Fatal(err)
	}
	obj := filepath.Join(dir, "game.o")
	rom := filepath.Join(dir, "game.gb")

	h := New()
	out := runScript(h,
		"assemble "+src,
		fmt.Sprintf("link %s %s", rom, obj),
		"disassemble $100 2",
		"evaluate Main + 1",
		"memory dump 0 4",
		"symbols",
	)
	checkOutput(t, out,
		"Assembled 'game.asm' to 'game.o'.",
		"Linked 1 module(s) to 'game.gb' ($8000 bytes).",
		"nop",
		"; Start",
		"jp $0000",
		"$1 (1)",
		"0000- 3E 12 18 FC",
		"00:0000  ROM0   Main",
		"00:0100  ROM0   Start",
	)

	for _, ext := range []string{".sym", ".map"} {
		if _, err := os.Stat(filepath.Join(dir, "game"+ext)); err != nil {
			t.Errorf("missing output file: %v", err)
		}
	}

	// A fresh host picks up the symbol file when loading the ROM.
	h = New()
	out = runScript(h, "load "+rom, "d Start 1")
	checkOutput(t, out,
		"Loaded 'game.gb' ($8000 bytes).",
		"Loaded 'game.sym' (2 symbols).",
		"00:0100-   00",
	)
}

func TestAssembleErrors(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.asm")
	if err := os.WriteFile(src, []byte("SECTION \"a\", ROM0\n\tld q, 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out := runScript(New(), "a "+src)
	checkOutput(t, out, "line 2", "Failed to assemble: bad.asm")
}

func TestSettings(t *testing.T) {
	h := New()
	out := runScript(h,
		"set DisasmLines 3",
		"set pad $00",
		"set verbose true",
		"set IncludePath inc, lib",
		"set nosuch 1",
		"set",
	)
	checkOutput(t, out,
		"Setting DisasmLines updated.",
		"Setting PadValue updated.",
		"Setting Verbose updated.",
		"Setting 'nosuch' not found.",
		`IncludePath      "inc, lib"`,
	)

	if h.settings.DisasmLines != 3 || h.settings.PadValue != 0 || !h.settings.Verbose {
		t.Errorf("got settings %+v", *h.settings)
	}
	if paths := h.settings.includePaths(); len(paths) != 2 || paths[0] != "inc" || paths[1] != "lib" {
		t.Errorf("got include paths %v", paths)
	}
}

func TestCommands(t *testing.T) {
	out := runScript(New(),
		"help",
		"? disassemble",
		"e 2 ** 10",
		`e STRCAT("a", "b")`,
		"d",
		"quit",
		"e 1",
	)
	checkOutput(t, out,
		"memory dump",
		"Syntax: disassemble [<address>] [<lines>]",
		"$400 (1024)",
		`"ab"`,
		"No ROM loaded.",
	)
	if strings.Contains(out, "$1 (1)") {
		t.Error("commands after quit should not run")
	}
}

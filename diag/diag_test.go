// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diag

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDiagnosticString(t *testing.T) {
	tests := []struct {
		d   Diagnostic
		exp string
	}{
		{Diagnostic{Severity: Error, Message: "boom"}, "Error: boom"},
		{Diagnostic{Severity: Error, File: "a.asm", Line: 3, Column: 5, Message: "bad"}, "Error in 'a.asm' line 3, col 5: bad"},
		{Diagnostic{Severity: Warn, File: "a.asm", Line: 3, Message: "hmm"}, "Warning in 'a.asm' line 3: hmm"},
		{Diagnostic{Severity: Error, File: "a.o", Message: "broken"}, "Error in 'a.o': broken"},
	}
	for _, test := range tests {
		if got := test.d.String(); got != test.exp {
			t.Errorf("got %q, exp %q", got, test.exp)
		}
	}
}

func TestListErr(t *testing.T) {
	var l List
	if l.Err() != nil {
		t.Error("empty list produced an error")
	}

	l.Add(Diagnostic{Severity: Warn, Message: "w"})
	if l.HasErrors() || l.Err() != nil {
		t.Error("warnings should not produce an error")
	}

	l.Add(Diagnostic{Severity: Error, Message: "e1"})
	l.Add(Diagnostic{Severity: Error, Message: "e2"})
	if l.Errors() != 2 {
		t.Errorf("expected 2 errors, got %d", l.Errors())
	}

	err := l.Err()
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Error() != "Error: e1\nError: e2" {
		t.Errorf("unexpected error text %q", err.Error())
	}
	if !errors.Is(err, ErrFailed) {
		t.Error("error list should match ErrFailed")
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, Symbol|Place)
	l.Logf(Symbol, "defined %s", "Start")
	l.Logf(Resolve, "hidden")
	l.Logf(Place, "placed %d", 1)

	out := buf.String()
	if !strings.Contains(out, "defined Start") || !strings.Contains(out, "placed 1") {
		t.Errorf("missing log lines:\n%s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("disabled category was logged:\n%s", out)
	}

	var nilLogger *Logger
	nilLogger.Logf(Symbol, "nothing")
	if nilLogger.Enabled(Symbol) {
		t.Error("nil logger should be disabled")
	}
}

func TestParseCategories(t *testing.T) {
	c, err := ParseCategories("symbol, place")
	if err != nil {
		t.Fatal(err)
	}
	if c != Symbol|Place {
		t.Errorf("got %v", c)
	}

	c, err = ParseCategories("all")
	if err != nil || c != All {
		t.Errorf("expected all categories, got %v (%v)", c, err)
	}

	if _, err := ParseCategories("bogus"); err == nil {
		t.Error("expected an error for an unknown category")
	}
}

// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diag

import (
	"fmt"
	"io"
	"strings"
)

// A Category selects a class of logged events.
type Category uint16

// Logged event categories.
const (
	Symbol  Category = 1 << iota // symbol definitions
	Scope                        // include, macro and repeat frames
	Expand                       // string equate and macro argument expansion
	Section                      // section selection
	Patch                        // link-time patches recorded by the assembler
	Place                        // section placement by the linker
	Resolve                      // patch resolution by the linker
	Context                      // token, tree and state dumps after an error

	All Category = Symbol | Scope | Expand | Section | Patch | Place | Resolve | Context
)

var categoryNames = []struct {
	c    Category
	name string
}{
	{Symbol, "symbol"},
	{Scope, "scope"},
	{Expand, "expand"},
	{Section, "section"},
	{Patch, "patch"},
	{Place, "place"},
	{Resolve, "resolve"},
	{Context, "context"},
}

func (c Category) String() string {
	var names []string
	for _, n := range categoryNames {
		if c&n.c != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseCategories converts a comma-separated list of category names into a
// category mask. The name "all" selects every category.
func ParseCategories(s string) (Category, error) {
	var mask Category
	for _, f := range strings.Split(s, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if f == "all" {
			mask |= All
			continue
		}
		found := false
		for _, n := range categoryNames {
			if n.name == f {
				mask |= n.c
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown log category '%s'", f)
		}
	}
	return mask, nil
}

// A Logger is an append-only sink for categorized events. A nil Logger
// discards everything written to it.
type Logger struct {
	w    io.Writer
	mask Category
}

// NewLogger creates a logger that writes events in the selected
// categories to w.
func NewLogger(w io.Writer, mask Category) *Logger {
	return &Logger{w: w, mask: mask}
}

// Enabled returns true if events in category c are being recorded.
func (l *Logger) Enabled(c Category) bool {
	return l != nil && l.w != nil && l.mask&c != 0
}

// Logf records a formatted event in category c.
func (l *Logger) Logf(c Category, format string, args ...any) {
	if !l.Enabled(c) {
		return
	}
	fmt.Fprintf(l.w, "%-8s| %s\n", c, fmt.Sprintf(format, args...))
}

// Banner records a section header, used to separate the stages of a
// longer operation.
func (l *Logger) Banner(c Category, name string) {
	if !l.Enabled(c) {
		return
	}
	fmt.Fprintln(l.w, strings.Repeat("-", len(name)+6))
	fmt.Fprintf(l.w, "-- %s --\n", name)
	fmt.Fprintln(l.w, strings.Repeat("-", len(name)+6))
}

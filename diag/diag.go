// Copyright 2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package diag defines the diagnostics produced by the assembler and linker,
// along with a categorized event logger used to trace their progress.
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFailed is returned when an operation produced one or more error
// diagnostics but no more specific error is available.
var ErrFailed = errors.New("operation failed")

// An Area identifies the toolchain stage that raised a diagnostic.
type Area byte

// All diagnostic areas.
const (
	Lexer Area = iota
	Parser
	Evaluator
	Linker
)

var areaNames = []string{"lexer", "parser", "evaluator", "linker"}

func (a Area) String() string {
	if int(a) < len(areaNames) {
		return areaNames[a]
	}
	return "unknown"
}

// Severity describes how serious a diagnostic is.
type Severity byte

// All diagnostic severities.
const (
	Info Severity = iota
	Warn
	Error
)

var severityNames = []string{"Info", "Warning", "Error"}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "Unknown"
}

// A Diagnostic is a single message attached to a location in the source
// code or in an object module.
type Diagnostic struct {
	Area     Area
	Severity Severity
	Message  string
	File     string // file containing the offending line, if known
	Line     int    // 1-based line number, or 0 if unknown
	Column   int    // 1-based column number, or 0 if unknown
	Source   string // text of the offending line, if known
}

// String formats the diagnostic as a single line of text.
func (d Diagnostic) String() string {
	switch {
	case d.File == "":
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	case d.Column > 0:
		return fmt.Sprintf("%s in '%s' line %d, col %d: %s", d.Severity, d.File, d.Line, d.Column, d.Message)
	case d.Line > 0:
		return fmt.Sprintf("%s in '%s' line %d: %s", d.Severity, d.File, d.Line, d.Message)
	default:
		return fmt.Sprintf("%s in '%s': %s", d.Severity, d.File, d.Message)
	}
}

// A List accumulates diagnostics in the order they were raised.
type List []Diagnostic

// Add appends a diagnostic to the list.
func (l *List) Add(d Diagnostic) {
	*l = append(*l, d)
}

// Errors returns the number of error-level diagnostics in the list.
func (l List) Errors() int {
	n := 0
	for _, d := range l {
		if d.Severity == Error {
			n++
		}
	}
	return n
}

// HasErrors returns true if the list contains at least one error-level
// diagnostic.
func (l List) HasErrors() bool {
	return l.Errors() > 0
}

// Err returns an ErrorList containing every error-level diagnostic in the
// list, or nil if there are none.
func (l List) Err() error {
	var errs ErrorList
	for _, d := range l {
		if d.Severity == Error {
			errs = append(errs, d)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// An ErrorList is an error made up of one or more error diagnostics.
type ErrorList []Diagnostic

func (e ErrorList) Error() string {
	lines := make([]string, len(e))
	for i, d := range e {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}

// Is reports ErrFailed as matching any non-empty error list.
func (e ErrorList) Is(target error) bool {
	return target == ErrFailed && len(e) > 0
}

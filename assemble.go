// Copyright 2018-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/gbasm/asm"
	"github.com/beevik/gbasm/diag"
	"github.com/spf13/cobra"
)

var asmFlags struct {
	includes []string
	defines  []string
	output   string
	pad      uint8
	verbose  bool
	log      string
}

var asmCmd = &cobra.Command{
	Use:   "asm [flags] file...",
	Short: "Assemble source files into object modules",
	Long: `Asm assembles each source file independently into an object module.
The object module is written next to its source file with a .o
extension, unless a single source file is assembled with -o. An
error in one file does not prevent the remaining files from being
assembled.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsm,
}

func init() {
	f := asmCmd.Flags()
	f.StringArrayVarP(&asmFlags.includes, "include", "I", nil, "add a directory to the include search path")
	f.StringArrayVarP(&asmFlags.defines, "define", "D", nil, "define a string equate as name[=value]")
	f.StringVarP(&asmFlags.output, "output", "o", "", "object module output file")
	f.Uint8VarP(&asmFlags.pad, "pad", "p", 0, "fill byte for DS, ALIGN and unions")
	f.BoolVarP(&asmFlags.verbose, "verbose", "v", false, "log every assembler event")
	f.StringVar(&asmFlags.log, "log", "", "comma-separated list of event categories to log")
}

func runAsm(cmd *cobra.Command, args []string) error {
	if asmFlags.output != "" && len(args) > 1 {
		return errors.New("-o requires a single source file")
	}

	logger, err := newLogger(os.Stderr, asmFlags.verbose, asmFlags.log)
	if err != nil {
		return err
	}

	cfg := &asm.Config{
		IncludePaths: asmFlags.includes,
		Defines:      make(map[string]string),
		PadValue:     asmFlags.pad,
		Logger:       logger,
		Out:          os.Stdout,
	}
	for _, d := range asmFlags.defines {
		name, value, found := strings.Cut(d, "=")
		if !found {
			value = "1"
		}
		cfg.Defines[name] = value
	}

	assemblies, err := asm.AssembleFiles(args, cfg)

	// Errors are reported by the returned error list; report the
	// remaining diagnostics here.
	for _, a := range assemblies {
		if a == nil {
			continue
		}
		for _, d := range a.Diagnostics {
			if d.Severity != diag.Error {
				fmt.Fprintln(os.Stderr, d)
			}
		}
	}
	if werr := writeModules(assemblies, args, asmFlags.output); werr != nil {
		return werr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return fmt.Errorf("assembly failed")
	}
	return nil
}

// writeModules writes the object module of every file that assembled
// without errors. Output paths default to the source path with a .o
// extension.
func writeModules(assemblies []*asm.Assembly, paths []string, output string) error {
	for i, a := range assemblies {
		if a == nil || a.Module == nil || a.Diagnostics.HasErrors() {
			continue
		}
		path := output
		if path == "" {
			path = strings.TrimSuffix(paths[i], filepath.Ext(paths[i])) + ".o"
		}
		if err := a.Module.WriteFile(path); err != nil {
			return err
		}
	}
	return nil
}

// newLogger creates an event logger for the verbose flag or a list of
// log categories, or returns nil if neither was requested.
func newLogger(w io.Writer, verbose bool, categories string) (*diag.Logger, error) {
	mask := diag.Category(0)
	if verbose {
		mask = diag.All
	}
	if categories != "" {
		c, err := diag.ParseCategories(categories)
		if err != nil {
			return nil, err
		}
		mask |= c
	}
	if mask == 0 {
		return nil, nil
	}
	return diag.NewLogger(w, mask), nil
}

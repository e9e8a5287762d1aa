// Copyright 2018-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/beevik/gbasm/link"
	"github.com/spf13/cobra"
)

var linkFlags struct {
	output  string
	mapFile string
	symFile string
	pad     uint8
	verbose bool
	log     string
}

var linkCmd = &cobra.Command{
	Use:   "link [flags] object...",
	Short: "Link object modules into a ROM image",
	Long: `Link places the sections of every object module into Game Boy
memory, resolves every patch and writes the ROM image. A symbol file
and a map file may be written alongside the ROM.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLink,
}

func init() {
	f := linkCmd.Flags()
	f.StringVarP(&linkFlags.output, "output", "o", "out.gb", "ROM image output file")
	f.StringVarP(&linkFlags.mapFile, "map", "m", "", "map file output")
	f.StringVarP(&linkFlags.symFile, "sym", "n", "", "symbol file output")
	f.Uint8VarP(&linkFlags.pad, "pad", "p", 0xff, "fill byte for unused ROM space")
	f.BoolVarP(&linkFlags.verbose, "verbose", "v", false, "log section placement and patch resolution")
	f.StringVar(&linkFlags.log, "log", "", "comma-separated list of event categories to log")
}

func runLink(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(os.Stderr, linkFlags.verbose, linkFlags.log)
	if err != nil {
		return err
	}

	l := link.New(link.Options{PadValue: linkFlags.pad, Logger: logger})
	for _, path := range args {
		if err := l.AddFile(path); err != nil {
			return err
		}
	}

	result, err := l.Link()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return fmt.Errorf("link failed")
	}

	outputs := []struct {
		path  string
		write func(w io.Writer) error
	}{
		{linkFlags.output, result.WriteROM},
		{linkFlags.mapFile, result.WriteMap},
		{linkFlags.symFile, result.WriteSymbols},
	}
	for _, o := range outputs {
		if o.path == "" {
			continue
		}
		if err := createFile(o.path, o.write); err != nil {
			return err
		}
	}
	return nil
}

func createFile(path string, write func(w io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

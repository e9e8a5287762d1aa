// Copyright 2018-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command gbasm assembles and links Game Boy programs.
package main

import (
	"fmt"
	"os"

	"github.com/beevik/gbasm/host"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gbasm",
	Short: "A Game Boy assembler and linker",
	Long: `Gbasm assembles SM83 source files into relocatable object modules
and links object modules into Game Boy ROM images. Run the shell
subcommand for an interactive environment that can also disassemble
and inspect the linked ROM.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var shellCmd = &cobra.Command{
	Use:   "shell [script...]",
	Short: "Run the interactive shell",
	Long: `Shell runs the commands contained in each script file, then accepts
commands interactively. Type help at the prompt for a list of commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h := host.New()

		// Run commands contained in command-line files.
		for _, filename := range args {
			file, err := os.Open(filename)
			if err != nil {
				return err
			}
			h.RunCommands(file, os.Stdout, false)
			file.Close()
		}

		// Run commands interactively.
		h.RunCommands(os.Stdin, os.Stdout, true)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(asmCmd, linkCmd, shellCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		exitOnError(err)
	}
}

func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}

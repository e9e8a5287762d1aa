// Copyright 2018-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import "github.com/beevik/cmd"

// A command describes a host command and the handler that runs it. Each
// node of the command tree carries its command as user data.
type command struct {
	name        string // full command path, e.g. "memory dump"
	brief       string
	description string
	usage       string
	handler     func(h *Host, c cmd.Selection) error
}

var (
	cmds     *cmd.Tree
	commands []*command // in display order
)

func addCommand(t *cmd.Tree, leaf string, c *command) {
	t.AddCommand(cmd.CommandDescriptor{
		Name:        leaf,
		Brief:       c.brief,
		Description: c.description,
		Usage:       c.usage,
		Data:        c,
	})
	commands = append(commands, c)
}

func init() {
	root := cmd.NewTree(cmd.TreeDescriptor{Name: "gbasm"})
	addCommand(root, "help", &command{
		name:        "help",
		brief:       "Display help for a command",
		description: "Display help for a command.",
		usage:       "help [<command>]",
		handler:     (*Host).cmdHelp,
	})
	addCommand(root, "assemble", &command{
		name:  "assemble",
		brief: "Assemble a file into an object module",
		description: "Run the assembler on the specified source file," +
			" producing an object module if successful. The object module" +
			" is written next to the source file with a .o extension unless" +
			" an output file is given.",
		usage:   "assemble <filename> [<output>]",
		handler: (*Host).cmdAssemble,
	})
	addCommand(root, "disassemble", &command{
		name:  "disassemble",
		brief: "Disassemble code",
		description: "Disassemble machine code in the loaded ROM starting at" +
			" the requested address. An address may be prefixed with a bank" +
			" number, as in 2:$4000. The number of instruction lines to" +
			" disassemble may be specified as an option. If no address is" +
			" specified, the disassembly continues from where the last" +
			" disassembly left off.",
		usage:   "disassemble [<address>] [<lines>]",
		handler: (*Host).cmdDisassemble,
	})
	addCommand(root, "evaluate", &command{
		name:  "evaluate",
		brief: "Evaluate an expression",
		description: "Evaluate an assembler expression. Symbols of the loaded" +
			" ROM may be used in the expression.",
		usage:   "evaluate <expression>",
		handler: (*Host).cmdEvaluate,
	})
	addCommand(root, "link", &command{
		name:  "link",
		brief: "Link object modules into a ROM",
		description: "Link one or more object modules into a ROM image. A" +
			" symbol file and a map file are written next to the ROM, and the" +
			" ROM is loaded for inspection.",
		usage:   "link <rom> <object> [<object> ...]",
		handler: (*Host).cmdLink,
	})
	addCommand(root, "load", &command{
		name:  "load",
		brief: "Load a ROM image",
		description: "Load a ROM image for inspection. If a symbol file with" +
			" the same base name exists, it is loaded too.",
		usage:   "load <filename>",
		handler: (*Host).cmdLoad,
	})

	// Memory commands
	me := root.AddSubtree(cmd.TreeDescriptor{Name: "memory", Brief: "Memory commands"})
	addCommand(me, "dump", &command{
		name:  "memory dump",
		brief: "Dump memory at address",
		description: "Dump the contents of the loaded ROM starting from the" +
			" specified address. The number of bytes to dump may be" +
			" specified as an option. If no address is specified, the" +
			" memory dump continues from where the last dump left off.",
		usage:   "memory dump [<address>] [<bytes>]",
		handler: (*Host).cmdMemoryDump,
	})

	addCommand(root, "quit", &command{
		name:        "quit",
		brief:       "Quit the program",
		description: "Quit the program.",
		usage:       "quit",
		handler:     (*Host).cmdQuit,
	})
	addCommand(root, "set", &command{
		name:  "set",
		brief: "Set a configuration variable",
		description: "Set the value of a configuration variable. To see the" +
			" current values of all configuration variables, type set" +
			" without any arguments.",
		usage:   "set [<var> <value>]",
		handler: (*Host).cmdSet,
	})
	addCommand(root, "symbols", &command{
		name:  "symbols",
		brief: "List symbols of the loaded ROM",
		description: "Display the bank and address of every symbol in the" +
			" loaded symbol file. An optional filter restricts the list to" +
			" symbols containing the filter text.",
		usage:   "symbols [<filter>]",
		handler: (*Host).cmdSymbols,
	})

	// Add command shortcuts.
	root.AddShortcut("a", "assemble")
	root.AddShortcut("d", "disassemble")
	root.AddShortcut("e", "evaluate")
	root.AddShortcut("l", "link")
	root.AddShortcut("m", "memory dump")
	root.AddShortcut("?", "help")

	cmds = root
}

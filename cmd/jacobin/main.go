/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Command jacobin is the thin CLI entry point spec.md §1 calls an
// external collaborator: it only parses flags into globals and hands
// off to jvm.RunMain, which drives the actual VM core. A full launcher
// (classpath search, -jar manifest unpacking, JAVA_TOOL_OPTIONS
// environment-variable merging) is "CLI driver proper", explicitly out
// of this core's scope.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"jacobin/globals"
	"jacobin/jvm"
	"jacobin/shutdown"
	"jacobin/trace"
)

var (
	stackSizeFlag string
	verboseClass  bool
	jarFlag       string
)

func main() {
	g := globals.InitGlobals("jacobin")

	root := &cobra.Command{
		Use:   "jacobin [flags] <main-class> [args...]",
		Short: "Jacobin: a JVM written in Go",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(g, args[0], args[1:])
		},
	}

	root.Flags().StringVar(&stackSizeFlag, "Xss", "", "thread stack size, e.g. 512k or 8m")
	root.Flags().BoolVar(&verboseClass, "verbose:class", false, "trace class loading")
	root.Flags().StringVar(&jarFlag, "jar", "", "run the main class of the named jar (unsupported: no jar reader in this core)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(shutdown.JVM_EXCEPTION))
	}
}

func run(g *globals.Globals, mainClassName string, progArgs []string) error {
	g.TraceClass = verboseClass
	g.TraceCloadi = verboseClass

	if stackSizeFlag != "" {
		size, err := parseStackSize(stackSizeFlag)
		if err != nil {
			return err
		}
		g.ThreadStackSize = size
	}

	if jvm.ClassFileLoader == nil {
		return fmt.Errorf("jacobin: no class-file parser wired (cmd/jacobin only drives jvm.RunMain; see spec.md §1 non-goals)")
	}

	view, err := jvm.ClassFileLoader(mainClassName)
	if err != nil {
		trace.Error("jacobin: " + err.Error())
		os.Exit(int(shutdown.JVM_EXCEPTION))
	}

	code := jvm.RunMain(view, progArgs)
	os.Exit(int(code))
	return nil
}

// parseStackSize accepts the java launcher's -Xss<size> suffix
// convention (k/K, m/M, g/G multipliers; a bare number is bytes).
func parseStackSize(s string) (int, error) {
	mult := 1
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1024
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("jacobin: bad -Xss value %q", s)
	}
	return n * mult, nil
}

/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package shutdown names the core's process exit codes (spec.md §6,
// "Exit codes") and gives VM-internal-error paths (spec.md §7.2) a
// single choke point to leave the process through, instead of scattered
// os.Exit calls.
package shutdown

import "os"

// ExitCode identifies why the JVM process terminated.
type ExitCode int

const (
	// OK is returned on normal completion.
	OK ExitCode = 0
	// JVM_EXCEPTION is returned when the main thread's uncaught
	// exception handler prints a stack trace and exits (spec.md §6).
	JVM_EXCEPTION ExitCode = 1
)

// exitFunc is replaced in tests so shutdown.Exit doesn't kill the test
// binary.
var exitFunc = os.Exit

// Exit terminates the process with the given code. VM-internal errors
// (corrupt bytecode past verification, broken invariants) must never
// reach here on any input that passed verification (spec.md §7.2); when
// they do, it indicates a bug in the verifier or interpreter, not a
// reportable Java condition.
func Exit(code ExitCode) {
	exitFunc(int(code))
}

// OverrideExitFuncForTest lets _test.go files in this module observe
// Exit calls without terminating the test process.
func OverrideExitFuncForTest(f func(int)) (restore func()) {
	prev := exitFunc
	exitFunc = f
	return func() { exitFunc = prev }
}

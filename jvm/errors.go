/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2022-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package jvm

import (
	"fmt"
	"os"

	"jacobin/globals"
	"jacobin/thread"
)

// showFrameStack prints the Java call stack of t to stderr, most
// recent frame first, as part of a fatal-error report (spec.md §7.2,
// "VM-internal aborts ... a trace.Error diagnostic"). It prints at
// most once per VM run: a second call after a first report is a no-op,
// since the stack hasn't changed and repeating it only adds noise to
// an already-fatal report.
func showFrameStack(t *thread.ExecThread) {
	g := globals.GetGlobalRef()
	if g.JvmFrameStackShown {
		return
	}
	g.JvmFrameStackShown = true

	if t == nil || t.Stack == nil || t.Stack.Depth() == 0 {
		fmt.Fprintln(os.Stderr, "no further data available")
		return
	}

	for f := t.Stack.Top(); f != nil; f = f.Prev() {
		label := fmt.Sprintf("Method: %s.%s", f.ClassName, f.MethodName)
		fmt.Fprintf(os.Stderr, "%-49sPC: %03d\n", label, f.PC)
	}
}

// showGoStackTrace prints the captured Go-runtime stack once, the
// low-level complement to showFrameStack's Java-level view. err is
// accepted for call-site symmetry with other error-reporting hooks
// but isn't otherwise consulted: the stack text itself comes from
// globals.ErrorGoStack, captured by the panic recovery site.
func showGoStackTrace(err interface{}) {
	g := globals.GetGlobalRef()
	if g.GoStackShown {
		return
	}
	g.GoStackShown = true
	fmt.Fprintln(os.Stderr, g.ErrorGoStack)
}

// showPanicCause prints whatever caused a recovered Go panic, falling
// back to a fixed message when the recovered value carries nothing
// useful (spec.md §7.2: VM-internal aborts must not leave the operator
// without a diagnostic even when the panic value itself is opaque).
func showPanicCause(cause interface{}) {
	g := globals.GetGlobalRef()
	if g.PanicCauseShown {
		return
	}
	g.PanicCauseShown = true

	if cause == nil {
		fmt.Fprintln(os.Stderr, "error: go panic -- cause unknown")
		return
	}
	fmt.Fprintf(os.Stderr, "error: go panic: %v\n", cause)
}

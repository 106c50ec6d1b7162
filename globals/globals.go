/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package globals holds the process-wide configuration singleton:
// trace flags, default thread-stack size, strict-JDK mode, and the
// exception-throwing hook the class loader and interpreter call into.
// Grounded on the teacher's globals.TraceCloadi/TraceClass/GetGlobalRef
// pattern referenced throughout classloader.go.
package globals

import "sync"

// DefaultThreadStackSize is the default per-thread stack region size
// (spec.md §4.4: "one mmap region per thread, default 1 MiB").
const DefaultThreadStackSize = 1 << 20 // 1 MiB, in 8-byte slots this is 131072 slots

// Globals is the process-wide configuration and state singleton.
type Globals struct {
	JacobinName string
	JavaHome    string
	StartingJar string
	StrictJDK   bool

	// trace flags, one per subsystem, so a user can turn on
	// -verbose:class without paying for interpreter-level tracing.
	TraceClass  bool
	TraceCloadi bool
	TraceInst   bool
	TraceVerify bool

	ThreadStackSize int

	// JvmFrameStackShown, GoStackShown and PanicCauseShown each latch
	// true the first time the matching crash-diagnostic section has been
	// printed, so a VM abort that touches several error paths (frame
	// stack, Go stack, panic cause) doesn't repeat the same section.
	JvmFrameStackShown bool
	GoStackShown       bool
	ErrorGoStack       string
	PanicCauseShown    bool

	// FuncThrowException is the hook classloader/jvm call to raise a
	// Java-visible exception without importing the jvm package (which
	// would create an import cycle). Installed by jvm.init/RunMain.
	FuncThrowException func(excClassName string, msg string)

	exitNow bool
}

var (
	globalRef *Globals
	mu        sync.Mutex
)

// InitGlobals (re)initializes the singleton, naming the running
// program jacobinName. Safe to call repeatedly from tests.
func InitGlobals(jacobinName string) *Globals {
	mu.Lock()
	defer mu.Unlock()
	globalRef = &Globals{
		JacobinName:     jacobinName,
		ThreadStackSize: DefaultThreadStackSize,
		FuncThrowException: func(string, string) {
			// overwritten once jvm is wired in; default is a no-op so
			// packages that only need config (classloader tests) don't
			// need to import jvm.
		},
	}
	return globalRef
}

// GetGlobalRef returns the process singleton, lazily creating it with
// default settings on first use.
func GetGlobalRef() *Globals {
	mu.Lock()
	defer mu.Unlock()
	if globalRef == nil {
		globalRef = &Globals{ThreadStackSize: DefaultThreadStackSize}
	}
	return globalRef
}

func (g *Globals) RequestExit()     { g.exitNow = true }
func (g *Globals) ExitRequested() bool { return g.exitNow }

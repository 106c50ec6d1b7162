/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2022-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package jvm

import (
	"fmt"

	"jacobin/classloader"
	"jacobin/globals"
	"jacobin/object"
	"jacobin/shutdown"
	"jacobin/thread"
	"jacobin/trace"
	"jacobin/types"
)

func init() {
	globals.GetGlobalRef().FuncThrowException = func(excClassName string, msg string) {
		trace.Error(excClassName + ": " + msg)
	}
}

// ClassFileLoader is the seam a real class-file parser plugs into: this
// core consumes classes pre-parsed into a *classloader.ClassView
// (spec.md §1, §6), so reading bytes off disk and decoding the
// class-file format is an external collaborator's job, not this
// package's. It is nil unless something installs it: nothing in this
// module does, and cmd/jacobin reports an error while it is nil.
var ClassFileLoader func(mainClassName string) (*classloader.ClassView, error)

// RunMain drives one full VM run (spec.md §6, §1's "CLI driver... wires
// global flags into globals and invokes the core's jvm.RunMain"):
// bootstrap the class table, load and initialize the main class, build
// the main thread, and execute its public static void main(String[]).
//
// mainView is the already-parsed class whose main method runs; the
// class-file parser that produced it is outside this core's scope
// (spec.md §1).
func RunMain(mainView *classloader.ClassView, programArgs []string) (exitCode shutdown.ExitCode) {
	defer func() {
		if r := recover(); r != nil {
			trace.Error(fmt.Sprintf("RunMain: internal error: %v", r))
			exitCode = shutdown.JVM_EXCEPTION
		}
	}()

	if err := classloader.Init(); err != nil {
		trace.Error("RunMain: bootstrap failed: " + err.Error())
		return shutdown.JVM_EXCEPTION
	}

	rc, err := classloader.LoadClass(classloader.BootstrapLoaderName, mainView)
	if err != nil {
		trace.Error("RunMain: " + err.Error())
		return shutdown.JVM_EXCEPTION
	}

	mainThread := thread.New("main")
	thread.Register(mainThread)
	defer thread.Unregister(mainThread)

	if err := ensureInitialized(mainThread, rc); err != nil {
		reportUncaught(mainThread, err)
		return shutdown.JVM_EXCEPTION
	}

	me, err := classloader.ResolveStatic(rc, "main", "([Ljava/lang/String;)V")
	if err != nil {
		trace.Error("RunMain: no main method in " + rc.Name + ": " + err.Error())
		return shutdown.JVM_EXCEPTION
	}

	argsArr := object.NewArray(0, types.ClassType("java/lang/String"), int32(len(programArgs)))
	for i, a := range programArgs {
		_ = argsArr.Store(int32(i), objRefSlot(object.NewStringObject(0, a)))
	}

	_, _, err = RunMethod(mainThread, rc, me, []types.Slot{arrRefSlot(argsArr)})
	if err != nil {
		reportUncaught(mainThread, err)
		return shutdown.JVM_EXCEPTION
	}
	return shutdown.OK
}

// reportUncaught prints the exception and the thread's Java call stack
// the way a real JVM's default uncaught-exception handler does (spec.md
// §7.2), using showFrameStack (errors.go) for the frame dump.
func reportUncaught(th *thread.ExecThread, err error) {
	ve := wrapError(err)
	trace.Error("Exception in thread \"" + th.Name + "\" " + ve.className + ": " + ve.message)
	showFrameStack(th)
}

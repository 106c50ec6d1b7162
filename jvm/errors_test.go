/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2022-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package jvm

import (
	"errors"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"testing"

	"jacobin/frames"
	"jacobin/globals"
	"jacobin/thread"
	"jacobin/trace"
)

// if the JVM frame stack has already been displayed, then
// don't display it again.
func TestShowFrameStackWhenPreviouslyShown(t *testing.T) {
	globals.InitGlobals("test")
	trace.Init()
	_ = trace.SetLogLevel(trace.INFO)

	normalStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	th := thread.New("main")
	globals.GetGlobalRef().JvmFrameStackShown = true // should prevent any output
	showFrameStack(th)

	_ = w.Close()
	os.Stderr = normalStderr
	msg, _ := io.ReadAll(r)

	if string(msg) != "" {
		t.Errorf("Got following output when expecting none: %s", string(msg))
	}
}

// if the JVM stack is empty, then notify the user that
// no additional data is available
func TestShowFrameStackWithEmptyStack(t *testing.T) {
	globals.InitGlobals("test")
	trace.Init()
	_ = trace.SetLogLevel(trace.INFO)

	normalStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	th := thread.New("main")
	globals.GetGlobalRef().JvmFrameStackShown = false
	showFrameStack(th)

	_ = w.Close()
	os.Stderr = normalStderr
	msg, _ := io.ReadAll(r)

	errMsg := string(msg)
	if errMsg != "no further data available\n" {
		t.Errorf("Got this when expecting 'no further data available': %s", errMsg)
	}
}

func TestShowFrameStackWithOneEntry(t *testing.T) {
	globals.InitGlobals("test")
	trace.Init()
	_ = trace.SetLogLevel(trace.INFO)

	normalStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f := frames.NewJavaFrame("testClass", "main", 0, 0, 1)
	f.PC = 42

	th := thread.New("main")
	th.Stack = frames.NewStack()
	if err := th.Stack.Push(f); err != nil {
		t.Fatalf("unexpected push error: %v", err)
	}

	globals.GetGlobalRef().JvmFrameStackShown = false
	showFrameStack(th)

	_ = w.Close()
	os.Stderr = normalStderr
	msg, _ := io.ReadAll(r)

	errMsg := string(msg)
	if errMsg != "Method: testClass.main                           PC: 042\n" {
		t.Errorf("Got this when expecting 'Method: testClass.main                           PC: 042': %s",
			errMsg)
	}
}

// check that when a Go stack is captured, it is shown when we call showGoStackTrace()
func TestShowGoStackWhenPreviouslyCaptured(t *testing.T) {
	globals.InitGlobals("test")
	trace.Init()
	_ = trace.SetLogLevel(trace.INFO)

	normalStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	globals.GetGlobalRef().GoStackShown = false
	capturedGoStack := debug.Stack()
	stackAsString := string(capturedGoStack)
	globals.GetGlobalRef().ErrorGoStack = stackAsString
	entries := strings.Split(stackAsString, "\n")
	firstEntry := entries[0]

	showGoStackTrace(nil)

	_ = w.Close()
	os.Stderr = normalStderr
	msg, _ := io.ReadAll(r)

	contents := string(msg)
	if !strings.Contains(contents, firstEntry) {
		t.Errorf("Go stack did not contain expected entry: %s", contents)
	}
}

// check that when a Go stack is not shown a second time when we call showGoStackTrace()
func TestShowGoStackWhenPreviouslyShown(t *testing.T) {
	globals.InitGlobals("test")
	trace.Init()
	_ = trace.SetLogLevel(trace.INFO)

	normalStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	globals.GetGlobalRef().GoStackShown = true
	capturedGoStack := debug.Stack()
	globals.GetGlobalRef().ErrorGoStack = string(capturedGoStack)

	showGoStackTrace(nil)

	_ = w.Close()
	os.Stderr = normalStderr
	msg, _ := io.ReadAll(r)

	contents := string(msg)
	if len(contents) != 0 {
		t.Errorf("Expected empty string, got: %s", contents)
	}
}

// showPanicCause() should correctly report an error's content
func TestShowPanicCause(t *testing.T) {
	globals.InitGlobals("test")
	trace.Init()
	_ = trace.SetLogLevel(trace.INFO)

	normalStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	globals.GetGlobalRef().PanicCauseShown = false
	cause := errors.New("error causing panic")
	showPanicCause(cause)

	_ = w.Close()
	os.Stderr = normalStderr
	msg, _ := io.ReadAll(r)

	errMsg := string(msg)
	if !strings.Contains(errMsg, "error causing panic") {
		t.Errorf("Got unexpected message re panic cause: %s", errMsg)
	}
}

// showPanicCause() should show nothing if it's already been called
func TestShowPanicCauseAfterAlreadyShown(t *testing.T) {
	globals.InitGlobals("test")
	trace.Init()
	_ = trace.SetLogLevel(trace.INFO)

	normalStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	globals.GetGlobalRef().PanicCauseShown = true // should prevent showing
	cause := errors.New("error causing panic")
	showPanicCause(cause)

	_ = w.Close()
	os.Stderr = normalStderr
	msg, _ := io.ReadAll(r)

	errMsg := string(msg)
	if errMsg != "" {
		t.Errorf("Expected empty string, got: %s", errMsg)
	}
}

// if showPanicCause() is passed nil, it should state causal data is not available
func TestShowPanicCauseNil(t *testing.T) {
	globals.InitGlobals("test")
	trace.Init()
	_ = trace.SetLogLevel(trace.INFO)

	normalStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	globals.GetGlobalRef().PanicCauseShown = false
	showPanicCause(nil)

	_ = w.Close()
	os.Stderr = normalStderr
	msg, _ := io.ReadAll(r)

	errMsg := string(msg)
	if !strings.Contains(errMsg, "error: go panic -- cause unknown") {
		t.Errorf("Got unexpected message for nil panic cause: %s", errMsg)
	}
}

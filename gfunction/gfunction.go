/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2023 by  the Jacobin authors. Consult jacobin.org.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0) All rights reserved.
 */

// Package gfunction is the native call bridge (spec.md §6): Go
// functions standing in for JDK native methods, registered by fully
// qualified signature. classloader's Prepare attaches the matching Go
// function to a native method's MethodEntry, and jvm's RunMethod calls
// it directly, without pushing a native frame. Every registered
// function has the uniform signature (args []interface{}) interface{}
// regardless of the Java method's own descriptor — jvm's invokeNative
// marshals to and from this shape the same way the JNI ABI (spec.md §6)
// marshals at the foreign-function boundary, just without the libffi
// round trip.
package gfunction

import "jacobin/excNames"

// GMeth is one entry in MethodSignatures: the number of declared
// arguments, and the Go function to run. ParamSlots is a record only;
// invokeNative marshals the arguments from the method's parsed
// descriptor and does not read it.
type GMeth struct {
	ParamSlots int
	GFunction  func(params []interface{}) interface{}
}

// MethodSignatures maps "class.name+descriptor" (for example
// "java/lang/Object.hashCode()I") to its native
// implementation. Populated by the Load_* functions in this package
// (one per JDK class with natives), called once from classloader.Init.
var MethodSignatures = make(map[string]GMeth)

// GErrBlk is the non-nil return value a GFunction uses to signal a
// pending Java exception back to the interpreter (spec.md §7,
// "Propagation policy: across a native call, the exception is recorded
// in thread state and checked after the native returns").
type GErrBlk struct {
	ExceptionType excNames.JavaExceptionClass
	ErrMsg        string
}

func getGErrBlk(exc excNames.JavaExceptionClass, msg string) *GErrBlk {
	return &GErrBlk{ExceptionType: exc, ErrMsg: msg}
}

// IsErrBlk reports whether a GFunction's return value is a pending
// exception rather than a real result.
func IsErrBlk(v interface{}) (*GErrBlk, bool) {
	g, ok := v.(*GErrBlk)
	return g, ok
}

// justReturn is the implementation for native methods whose only
// contract is "do nothing, return void" (registerNatives, and similar
// JVM bookkeeping hooks the core doesn't need to act on).
func justReturn(params []interface{}) interface{} { return nil }

// LoadAll registers every native method this core provides. classloader
// calls this once during Init, mirroring the teacher's one-function-
// per-JDK-class registration style.
func LoadAll() {
	Load_Lang_Object()
	Load_Lang_Thread()
	Load_Lang_System()
	Load_Lang_Class()
}

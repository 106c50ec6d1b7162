/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2022-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package jvm

import (
	"jacobin/classloader"
	"jacobin/excNames"
	"jacobin/object"
	"jacobin/types"
)

// vmException is the one Go error type athrow and every VM-internal
// fault (NPE, divide by zero, bad cast, array bounds...) travel as on
// their way up through RunMethod (spec.md §4.7, §7: "the exception is
// represented uniformly whether it came from athrow or was raised by
// the VM itself"). obj is populated eagerly for an explicit athrow
// (the thrown reference already exists) and lazily for a VM-synthesized
// fault, since most such faults are never actually caught and
// inspected, only logged.
type vmException struct {
	className string
	message   string
	obj       *object.Object
}

func (e *vmException) Error() string { return e.className + ": " + e.message }

func newVMException(class excNames.JavaExceptionClass, msg string) *vmException {
	return &vmException{className: string(class), message: msg}
}

func throwObject(o *object.Object) *vmException {
	return &vmException{className: o.ClassName, message: o.ToString(), obj: o}
}

// wrapError normalizes any error this core's lower layers return into a
// *vmException: classloader/object/thread already tag their errors with
// ExceptionClass() precisely so this conversion needs no per-call-site
// switch (spec.md §7, "Error-to-exception bridging").
func wrapError(err error) *vmException {
	if err == nil {
		return nil
	}
	if ve, ok := err.(*vmException); ok {
		return ve
	}
	if ec, ok := err.(interface {
		ExceptionClass() excNames.JavaExceptionClass
	}); ok {
		return &vmException{className: string(ec.ExceptionClass()), message: err.Error()}
	}
	return &vmException{className: "java/lang/InternalError", message: err.Error()}
}

// objectFor materializes e's Java-visible exception object, allocating
// one from the named class's layout the first time it's asked for.
// Falls back to a classless placeholder if the exception class itself
// was never loaded (e.g. a fault raised before bootstrap finished) so a
// catch handler still gets a non-nil reference to work with.
func (e *vmException) objectFor(loader string) *object.Object {
	if e.obj != nil {
		return e.obj
	}
	rc, ok := classloader.LookupClass(e.className, loader)
	if !ok {
		rc, ok = classloader.LookupClass(e.className, classloader.BootstrapLoaderName)
	}
	if ok {
		e.obj = object.NewObject(rc.ClassID, rc.Name, rc.InheritanceVector, rc.InterfaceIDs, rc.InstanceLayout)
	} else {
		e.obj = object.NewObject(0, e.className, nil, nil, nil)
	}
	return e.obj
}

// findHandler implements the exception-table scan spec.md §4.7
// prescribes for athrow and every other opcode that can raise an
// exception: the first entry whose PC range covers pc and whose catch
// type the thrown class is assignable to (empty catch type matches
// everything, the finally-block encoding).
func findHandler(me *classloader.MethodEntry, pc int, excClassName string) (int, bool) {
	for _, h := range me.ExceptionTable {
		if pc < h.StartPC || pc >= h.EndPC {
			continue
		}
		if h.CatchType == "" {
			return h.HandlerPC, true
		}
		if types.IsAssignable(types.ClassType(excClassName), types.ClassType(h.CatchType), classloader.Supertypes) {
			return h.HandlerPC, true
		}
	}
	return 0, false
}

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
	"jacobin/trace"
)

// instantiateClass implements the `new` opcode's object-allocation half
// (spec.md §4.7): the class must already be loaded, linked and
// initialized before an instance can be created, and the instance's
// fields come straight from the class's precomputed layout (C3),
// zero-initialized per type. Class initialization itself is driven by
// classloader.Initialize via runClinit, the seam that lets this
// package supply the interpreter without classloader importing jvm.
func instantiateClass(loader string, className string, runClinit func(rc *classloader.RuntimeClass) error) (*object.Object, error) {
	rc, ok := classloader.LookupClass(className, loader)
	if !ok {
		return nil, &classNotFoundErr{className}
	}
	if rc.State() < classloader.StatePrepared {
		if err := classloader.Link(rc); err != nil {
			return nil, err
		}
	}
	if rc.State() != classloader.StateInitialized {
		if err := runClinit(rc); err != nil {
			return nil, err
		}
	}

	trace.Trace("instantiateClass: " + className)
	return object.NewObject(rc.ClassID, className, rc.InheritanceVector, rc.InterfaceIDs, rc.InstanceLayout), nil
}

type classNotFoundErr struct{ name string }

func (e *classNotFoundErr) Error() string { return "class not found: " + e.name }
func (e *classNotFoundErr) ExceptionClass() excNames.JavaExceptionClass {
	return excNames.ClassNotFoundException
}

/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2021-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
	"jacobin/excNames"
)

// ResolveStatic is C8's static resolution: the declared-class method,
// honoring signature-polymorphism for MethodHandle.invoke* (spec.md
// §4.8).
func ResolveStatic(class *RuntimeClass, name, descriptor string) (*MethodEntry, error) {
	if m := signaturePolymorphic(class, name); m != nil {
		return m, nil
	}
	m := findMethod(class, name, descriptor)
	if m == nil {
		return nil, &NoSuchMethodErr{Class: class.Name, Name: name, Descriptor: descriptor}
	}
	return m, nil
}

// ResolveSpecial resolves in the declared class and its superclasses:
// used for <init>, private methods, and super.m() (spec.md §4.8).
func ResolveSpecial(class *RuntimeClass, name, descriptor string) (*MethodEntry, error) {
	for c := class; c != nil; c = c.Parent {
		if m := findMethod(c, name, descriptor); m != nil {
			return m, nil
		}
	}
	return nil, &NoSuchMethodErr{Class: class.Name, Name: name, Descriptor: descriptor}
}

type dispatchKey struct {
	receiverClass string
	name          string
	descriptor    string
}

var (
	dispatchCacheLock sync.RWMutex
	dispatchCache     = map[dispatchKey]*MethodEntry{}
	dispatchGroup     singleflight.Group
)

// ResolveVirtual is C8's virtual dispatch: a C3-walk from the
// receiver's runtime class upward for the most-specific override
// matching (name, descriptor); results are cached keyed by (receiver
// class, name, descriptor) because classes never change their method
// set post-linkage (spec.md §4.8). A cache miss is resolved through
// dispatchGroup (singleflight) so that concurrent callers hitting the
// exact same miss collapse into one C3 walk instead of each repeating
// it (SPEC_FULL.md §3).
func ResolveVirtual(receiverClass *RuntimeClass, name, descriptor string) (*MethodEntry, error) {
	key := dispatchKey{receiverClass.Name, name, descriptor}
	dispatchCacheLock.RLock()
	if m, ok := dispatchCache[key]; ok {
		dispatchCacheLock.RUnlock()
		return m, nil
	}
	dispatchCacheLock.RUnlock()

	sfKey := receiverClass.Name + "#" + name + "#" + descriptor
	v, err, _ := dispatchGroup.Do(sfKey, func() (interface{}, error) {
		dispatchCacheLock.RLock()
		if m, ok := dispatchCache[key]; ok {
			dispatchCacheLock.RUnlock()
			return m, nil
		}
		dispatchCacheLock.RUnlock()

		for c := receiverClass; c != nil; c = c.Parent {
			if m := findMethod(c, name, descriptor); m != nil && !m.IsStatic() {
				dispatchCacheLock.Lock()
				dispatchCache[key] = m
				dispatchCacheLock.Unlock()
				return m, nil
			}
		}
		return nil, &AbstractMethodErr{Class: receiverClass.Name, Name: name, Descriptor: descriptor}
	})
	if err != nil {
		return nil, err
	}
	return v.(*MethodEntry), nil
}

// ResolveInterface is the interface branch of dispatch: same walk as
// virtual, but the receiver must actually implement the interface the
// call site names (spec.md §4.8).
func ResolveInterface(receiverClass *RuntimeClass, interfaceName, name, descriptor string) (*MethodEntry, error) {
	implements := false
	for c := receiverClass; c != nil; c = c.Parent {
		for _, iface := range c.Interfaces {
			if iface.Name == interfaceName {
				implements = true
			}
		}
	}
	if !implements {
		return nil, &IncompatibleClassChangeErr{Msg: fmt.Sprintf("%s does not implement %s", receiverClass.Name, interfaceName)}
	}
	return ResolveVirtual(receiverClass, name, descriptor)
}

// signaturePolymorphic recognizes java/lang/invoke/MethodHandle's
// invoke/invokeExact/invokeBasic and the linkTo* family, whose call-site
// descriptor is synthesized from the operand stack rather than fixed at
// compile time (spec.md §4.8). Only ResolveStatic calls it: for those
// names it returns MethodHandle's own generic
// ([Ljava/lang/Object;)Ljava/lang/Object; method when the class declares
// one. No vmentry or MethodHandleNatives lookup of the ultimate target
// is made anywhere in this core.
func signaturePolymorphic(class *RuntimeClass, name string) *MethodEntry {
	if class.Name != "java/lang/invoke/MethodHandle" {
		return nil
	}
	switch name {
	case "invoke", "invokeExact", "invokeBasic", "linkToStatic", "linkToVirtual", "linkToSpecial", "linkToInterface":
		return findMethod(class, name, "([Ljava/lang/Object;)Ljava/lang/Object;")
	default:
		return nil
	}
}

// NoSuchMethodErr is java/lang/NoSuchMethodError (spec.md §7).
type NoSuchMethodErr struct{ Class, Name, Descriptor string }

func (e *NoSuchMethodErr) Error() string {
	return fmt.Sprintf("no such method %s.%s%s", e.Class, e.Name, e.Descriptor)
}
func (e *NoSuchMethodErr) ExceptionClass() excNames.JavaExceptionClass {
	return excNames.NoSuchMethodError
}

// AbstractMethodErr is java/lang/AbstractMethodError, raised when
// virtual dispatch walks off the top of the hierarchy without finding
// a concrete override.
type AbstractMethodErr struct{ Class, Name, Descriptor string }

func (e *AbstractMethodErr) Error() string {
	return fmt.Sprintf("no concrete override of %s%s reachable from %s", e.Name, e.Descriptor, e.Class)
}
func (e *AbstractMethodErr) ExceptionClass() excNames.JavaExceptionClass {
	return excNames.AbstractMethodError
}

// IncompatibleClassChangeErr is raised when an invokeinterface call
// site's receiver doesn't actually implement the named interface.
type IncompatibleClassChangeErr struct{ Msg string }

func (e *IncompatibleClassChangeErr) Error() string { return e.Msg }
func (e *IncompatibleClassChangeErr) ExceptionClass() excNames.JavaExceptionClass {
	return excNames.IncompatibleClassChangeError
}

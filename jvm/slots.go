/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2022-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package jvm

import (
	"unsafe"

	"jacobin/object"
	"jacobin/types"
)

// objRefSlot and arrRefSlot round-trip a heap pointer through the raw
// uintptr storage types.RefSlot already defines (spec.md §3, "this
// core's allocator is external" — object/array identity on the operand
// stack is just the pointer value, the way a real JVM's oop would be).
func objRefSlot(o *object.Object) types.Slot {
	return types.RefSlot(uintptr(unsafe.Pointer(o)))
}

func arrRefSlot(a *object.Array) types.Slot {
	return types.RefSlot(uintptr(unsafe.Pointer(a)))
}

func slotToObj(s types.Slot) *object.Object {
	if s.IsNull() {
		return nil
	}
	return (*object.Object)(unsafe.Pointer(s.Ref()))
}

func slotToArr(s types.Slot) *object.Array {
	if s.IsNull() {
		return nil
	}
	return (*object.Array)(unsafe.Pointer(s.Ref()))
}

// monitorKeyFor returns the pointer thread.MonitorFor keys its
// per-object monitor table by, uniform across instance and array
// monitors (spec.md §4.9, "monitor_for(objref)").
func monitorKeyFor(s types.Slot) unsafe.Pointer {
	return unsafe.Pointer(s.Ref())
}

// headerOf reinterprets a reference slot as *object.Header: valid for
// both *object.Object and *object.Array since Header is each struct's
// first embedded field, so its fields sit at the same offset regardless
// of which concrete shape the pointer actually addresses. Used where a
// reference needs to be inspected (instanceof/checkcast) before it's
// known whether it names an object or an array.
func headerOf(s types.Slot) *object.Header {
	if s.IsNull() {
		return nil
	}
	return (*object.Header)(unsafe.Pointer(s.Ref()))
}

// isArraySlot reports whether a non-null reference slot refers to an
// array rather than an ordinary object (spec.md §4.7, checkcast/
// instanceof's array branch).
func isArraySlot(s types.Slot) bool {
	h := headerOf(s)
	return h != nil && h.IsArray
}

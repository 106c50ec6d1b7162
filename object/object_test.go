/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2023 by  the Jacobin authors. Consult jacobin.org.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0) All rights reserved.
 */

package object

import (
	"strings"
	"testing"

	"jacobin/types"
)

func TestObjectToStringIncludesFields(t *testing.T) {
	layout := []FieldLayoutEntry{
		{Name: "myInt", Type: types.TInt, Offset: 0},
		{Name: "myLong", Type: types.TLong, Offset: 1},
	}
	obj := NewObject(1, "java/lang/madeUpClass", []uint32{1}, nil, layout)
	obj.SetField("myInt", types.IntSlot(42))
	obj.SetField("myLong", types.LongSlot(99))

	str := obj.ToString()
	if len(str) == 0 {
		t.Errorf("empty string for object.ToString()")
	}
	if !strings.Contains(str, "myInt=42") || !strings.Contains(str, "myLong=99") {
		t.Errorf("ToString() = %q, want it to include myInt=42 and myLong=99", str)
	}
	if _, ok := obj.GetField("nonexistent"); ok {
		t.Errorf("GetField found a field that was never declared")
	}
}

func TestNewStringObjectRoundTrips(t *testing.T) {
	obj := NewStringObject(0, "Hello, Unka Andoo !")
	bytes := JavaByteArrayFromStringObject(obj)
	if GoStringFromJavaByteArray(bytes) != "Hello, Unka Andoo !" {
		t.Errorf("string round trip failed, got %q", GoStringFromJavaByteArray(bytes))
	}
}

func TestDominatedByAndInterfaces(t *testing.T) {
	h := Header{InheritanceVector: []uint32{1, 2, 3}, InterfaceIDs: []uint32{9}}
	if !h.DominatedBy(2) {
		t.Errorf("expected class id 2 to dominate")
	}
	if h.DominatedBy(7) {
		t.Errorf("class id 7 should not dominate")
	}
	if !h.ImplementsInterface(9) {
		t.Errorf("expected interface 9 to be implemented")
	}
	if h.ImplementsInterface(42) {
		t.Errorf("interface 42 should not be implemented")
	}
}

/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2023 by  the Jacobin authors. Consult jacobin.org.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0) All rights reserved.
 */

package gfunction

import (
	"strings"

	"jacobin/object"
)

// java/lang/Class has no real mirror object in this core: a Class
// instance is, like java/lang/Object.getClass()'s return value, a
// java/lang/String wrapping the class's internal (slash-separated)
// binary name, backed directly by the classloader.RuntimeClass data
// already resident, with no separate reflection metadata table. The two
// seams below let this
// package answer getSuperclass and isInstance without importing
// classloader, which already imports gfunction to register these
// methods.

// ClassSuperclassOf reports the internal name of className's
// superclass, or ok=false if it has none (java/lang/Object, an
// interface, or a primitive). Installed by classloader.Init.
var ClassSuperclassOf func(className string) (superclass string, ok bool)

// ClassIsInstance reports whether obj is an instance of className (or
// one of its subclasses/implementors). Installed by classloader.Init.
var ClassIsInstance func(className string, obj *object.Object) bool

func Load_Lang_Class() {
	MethodSignatures["java/lang/Class.getName()Ljava/lang/String;"] = GMeth{
		ParamSlots: 0,
		GFunction:  classGetName,
	}

	MethodSignatures["java/lang/Class.isInstance(Ljava/lang/Object;)Z"] = GMeth{
		ParamSlots: 1,
		GFunction:  classIsInstance,
	}

	MethodSignatures["java/lang/Class.getSuperclass()Ljava/lang/Class;"] = GMeth{
		ParamSlots: 0,
		GFunction:  classGetSuperclass,
	}
}

// classReceiverName recovers the internal binary name this Class
// stand-in wraps. The receiver always arrives as a *object.Object
// (jvm/invoke.go's invokeNative marshals every non-static receiver that
// way), specifically the java/lang/String instance
// objectGetClassName's unmarshalling wrapped around the class name.
func classReceiverName(v interface{}) (string, bool) {
	obj, ok := v.(*object.Object)
	if !ok || obj == nil {
		return "", false
	}
	return object.GoString(obj), true
}

// classGetName implements getName()'s "replace '/' with '.'" contract
// (JLS: Class.getName returns the binary name, dot-separated).
func classGetName(params []interface{}) interface{} {
	name, ok := classReceiverName(params[0])
	if !ok {
		return object.NewStringObject(0, "")
	}
	return object.NewStringObject(0, strings.ReplaceAll(name, "/", "."))
}

func classIsInstance(params []interface{}) interface{} {
	name, ok := classReceiverName(params[0])
	if !ok || ClassIsInstance == nil {
		return int64(0)
	}
	obj, ok := params[1].(*object.Object)
	if !ok || obj == nil {
		return int64(0)
	}
	if ClassIsInstance(name, obj) {
		return int64(1)
	}
	return int64(0)
}

// classGetSuperclass returns nil for java/lang/Object, an interface, or
// when the lookup seam isn't wired (no class table resident yet). A
// non-nil result is itself a class-name string, matching
// jvm.unmarshalResult's ClassRef case which wraps it the same way
// Object.getClass() does.
func classGetSuperclass(params []interface{}) interface{} {
	name, ok := classReceiverName(params[0])
	if !ok || ClassSuperclassOf == nil {
		return nil
	}
	super, ok := ClassSuperclassOf(name)
	if !ok {
		return nil
	}
	return super
}

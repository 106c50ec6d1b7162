/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2023 by  the Jacobin authors. Consult jacobin.org.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0) All rights reserved.
 */

package gfunction

import "jacobin/object"

func Load_Lang_Object() {
	MethodSignatures["java/lang/Object.<init>()V"] = GMeth{
		ParamSlots: 0,
		GFunction:  justReturn,
	}

	MethodSignatures["java/lang/Object.registerNatives()V"] = GMeth{
		ParamSlots: 0,
		GFunction:  justReturn,
	}

	MethodSignatures["java/lang/Object.hashCode()I"] = GMeth{
		ParamSlots: 0,
		GFunction:  objectHashCode,
	}

	MethodSignatures["java/lang/Object.getClass()Ljava/lang/Class;"] = GMeth{
		ParamSlots: 0,
		GFunction:  objectGetClassName,
	}
}

// "java/lang/Object.hashCode()I" returns the object's Mark field, the
// identity hash every object carries in lieu of a real GC-assigned one
// (spec.md §3, "Object layout").
func objectHashCode(params []interface{}) interface{} {
	obj, ok := params[0].(*object.Object)
	if !ok || obj == nil {
		return int64(0)
	}
	return int64(int32(obj.Mark))
}

func objectGetClassName(params []interface{}) interface{} {
	obj, ok := params[0].(*object.Object)
	if !ok || obj == nil {
		return ""
	}
	return obj.ClassName
}

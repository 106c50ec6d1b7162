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
	"jacobin/opcodes"
	"jacobin/thread"
	"jacobin/types"
)

// resolveClassRef looks a CPClass entry's name up in the class table
// under loader. It does not load a class that is not registered yet; it
// raises NoClassDefFoundError for it instead.
func resolveClassRef(loader, name string) (*classloader.RuntimeClass, error) {
	if rc, ok := classloader.LookupClass(name, loader); ok {
		return rc, nil
	}
	return nil, newVMException(excNames.NoClassDefFoundError, name)
}

// newInstance implements the `new` opcode (spec.md §4.7): resolve,
// link, initialize, then allocate a zero-initialized instance. th
// supplies the running thread's id and the <clinit>-invocation seam.
func newInstance(th *thread.ExecThread, loader, className string) (*object.Object, error) {
	return instantiateClass(loader, className, func(rc *classloader.RuntimeClass) error {
		return classloader.Initialize(rc, th.ID, clinitRunner)
	})
}

// clinitRunner is the run callback classloader.Initialize invokes to
// execute a class's <clinit>: it looks the calling thread back up by
// id because singleflight.Do may run this on any one of several
// racing callers' goroutines, not necessarily the one that happened to
// trigger the outermost Initialize call (spec.md §4.5).
func clinitRunner(m *classloader.MethodEntry, threadID string) error {
	th, ok := thread.Lookup(threadID)
	if !ok {
		return newVMException("java/lang/InternalError", "clinit run on unregistered thread "+threadID)
	}
	_, _, err := RunMethod(th, m.Class, m, nil)
	return err
}

// newArray implements newarray: primitive-element arrays resolved by
// the JVMS §6.5 newarray atype codes rather than a class name.
func newArray(atype int, length int32) (*object.Array, error) {
	if length < 0 {
		return nil, newVMException(excNames.NegativeArraySizeException, "")
	}
	var et types.Type
	switch atype {
	case opcodes.AT_BOOLEAN:
		et = types.TBoolean
	case opcodes.AT_CHAR:
		et = types.TChar
	case opcodes.AT_FLOAT:
		et = types.TFloat
	case opcodes.AT_DOUBLE:
		et = types.TDouble
	case opcodes.AT_BYTE:
		et = types.TByte
	case opcodes.AT_SHORT:
		et = types.TShort
	case opcodes.AT_INT:
		et = types.TInt
	case opcodes.AT_LONG:
		et = types.TLong
	default:
		return nil, newVMException("java/lang/InternalError", "bad newarray atype")
	}
	return object.NewArray(0, et, length), nil
}

// newRefArray implements anewarray: an array of the named reference
// type, resolved the same way `new` resolves its operand class.
func newRefArray(loader, elemClassName string, length int32) (*object.Array, error) {
	if length < 0 {
		return nil, newVMException(excNames.NegativeArraySizeException, "")
	}
	rc, err := resolveClassRef(loader, elemClassName)
	if err != nil {
		return nil, err
	}
	return object.NewArray(rc.ClassID, types.ClassType(elemClassName), length), nil
}

// newMultiArray implements multianewarray: dims outer arrays are
// allocated top-down, each dimension's elements being references to
// the next dimension down, and the innermost dimension holding
// zero-valued elements of elemType (JVMS §6.5 multianewarray).
func newMultiArray(elemType types.Type, classID uint32, counts []int32) (*object.Array, error) {
	for _, c := range counts {
		if c < 0 {
			return nil, newVMException(excNames.NegativeArraySizeException, "")
		}
	}
	return buildDim(elemType, classID, counts), nil
}

func buildDim(elemType types.Type, classID uint32, counts []int32) *object.Array {
	n := counts[0]
	if len(counts) == 1 {
		return object.NewArray(classID, elemType, n)
	}
	arrType := types.ArrayOf(elemType)
	for i := 1; i < len(counts)-1; i++ {
		arrType = types.ArrayOf(arrType)
	}
	outer := object.NewArray(classID, arrType, n)
	for i := int32(0); i < n; i++ {
		sub := buildDim(elemType, classID, counts[1:])
		_ = outer.Store(i, arrRefSlot(sub))
	}
	return outer
}

// castTarget is INSTANCEOF/CHECKCAST's resolved operand: a plain class
// (interface or not) via its RuntimeClass, or an array type via its
// parsed descriptor. A CONSTANT_Class referring to an array type spells
// it with field-descriptor syntax (e.g. "[Ljava/lang/String;"), not a
// plain class name (JVMS §4.4.1), so the two shapes need separate
// resolution.
type castTarget struct {
	class     *classloader.RuntimeClass // nil when arrayType is the target
	arrayType types.Type
}

func (t castTarget) name() string {
	if t.class != nil {
		return t.class.Name
	}
	return t.arrayType.Descriptor()
}

// resolveCastTarget resolves an INSTANCEOF/CHECKCAST constant-pool class
// reference, recognizing the array-descriptor spelling before falling
// back to an ordinary class-table lookup.
func resolveCastTarget(loader, name string) (castTarget, error) {
	if len(name) > 0 && name[0] == '[' {
		t, _, err := types.ParseFieldDescriptor(name)
		if err != nil {
			return castTarget{}, newVMException(excNames.NoClassDefFoundError, name)
		}
		return castTarget{arrayType: t}, nil
	}
	rc, err := resolveClassRef(loader, name)
	if err != nil {
		return castTarget{}, err
	}
	return castTarget{class: rc}, nil
}

// instanceOf implements instanceof/checkcast's shared predicate
// (spec.md §4.1/§4.7): null is never an instance of anything (instanceof
// answers false, checkcast lets it through per JVMS §6.5). A non-array
// reference against a non-array target keeps the O(1) inheritance-
// vector/interface-id check (spec.md §9, "constant-time instanceof
// against non-interface classes"); an array reference is handled
// separately by arrayInstanceOf, since arrays carry no inheritance
// vector of their own.
func instanceOf(s types.Slot, target castTarget) bool {
	if s.IsNull() {
		return false
	}
	if isArraySlot(s) {
		return arrayInstanceOf(slotToArr(s), target)
	}
	if target.class == nil {
		// ref names a plain object, target names an array type.
		return false
	}
	obj := slotToObj(s)
	if target.class.View != nil && target.class.View.AccessFlags&0x0200 != 0 {
		return obj.ImplementsInterface(target.class.ClassID)
	}
	return obj.DominatedBy(target.class.ClassID)
}

// arrayInstanceOf implements instanceof/checkcast's array-operand branch
// (spec.md §4.1, §4.7): every array is assignable to Object, Cloneable,
// and Serializable, and an array-to-array cast is covariant on element
// assignability. types.IsAssignable already encodes both rules, so this
// just builds the two Types and delegates rather than reinterpreting the
// reference as *object.Object.
func arrayInstanceOf(arr *object.Array, target castTarget) bool {
	targetType := target.arrayType
	if target.class != nil {
		targetType = types.ClassType(target.class.Name)
	}
	return types.IsAssignable(types.ArrayOf(arr.ElemType), targetType, classloader.Supertypes)
}

// refTypeName renders a non-null reference slot's runtime type for a
// ClassCastException message, without assuming it names a plain object.
func refTypeName(s types.Slot) string {
	if isArraySlot(s) {
		return types.ArrayOf(slotToArr(s).ElemType).Descriptor()
	}
	return slotToObj(s).ClassName
}

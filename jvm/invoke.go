/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2022-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package jvm

import (
	"unsafe"

	"jacobin/classloader"
	"jacobin/excNames"
	"jacobin/frames"
	"jacobin/gfunction"
	"jacobin/object"
	"jacobin/thread"
	"jacobin/types"
)

// RunMethod is C7's entry point. A native me is called directly through
// invokeNative; no native frame is pushed for it. Otherwise it builds a
// Java frame for me, populates its locals from args (receiver first
// when me isn't static, then the declared arguments in descriptor
// order, one types.Slot per Java argument regardless of category),
// pushes it onto th's call stack, and interprets until it returns or an
// uncaught exception propagates (spec.md §4.4, §4.7).
//
// A synchronized method (me.IsSynchronized()) wraps the whole call in
// monitor enter/exit on the receiver, or the class mirror for a static
// method (spec.md §4.7): the monitor is acquired before runLoop starts
// and released via defer, so it is released on a normal return exactly
// as on a propagated exception.
func RunMethod(th *thread.ExecThread, class *classloader.RuntimeClass, me *classloader.MethodEntry, args []types.Slot) (types.Slot, bool, error) {
	if me.IsNative {
		return invokeNative(me, args)
	}
	if me.Code == nil {
		return types.Slot{}, false, newVMException(excNames.AbstractMethodError, class.Name+"."+me.Name+me.Descriptor)
	}

	if me.IsSynchronized() {
		var key unsafe.Pointer
		if me.IsStatic() {
			key = unsafe.Pointer(class.Mirror())
		} else {
			key = monitorKeyFor(args[0])
		}
		mon := thread.MonitorFor(key)
		if err := mon.Lock(th); err != nil {
			return types.Slot{}, false, err
		}
		defer mon.Unlock(th)
	}

	id := classloader.GetOrAddMethodId(class, me.Index)
	f := frames.NewJavaFrame(class.Name, me.Name+me.Descriptor, uint64(id), me.MaxLocals, me.MaxStack)

	li, ai := 0, 0
	if !me.IsStatic() {
		f.SetLocal(0, args[0])
		li, ai = 1, 1
	}
	for _, t := range me.ArgTypes {
		f.SetLocal(li, args[ai])
		if t.Kind.Category() == 2 {
			f.SetLocal(li+1, types.TopSlot())
			li += 2
		} else {
			li++
		}
		ai++
	}

	if err := th.Stack.Push(f); err != nil {
		return types.Slot{}, false, err
	}
	defer th.Stack.Pop()

	return runLoop(th, class, me, f)
}

// invokeNative marshals args into gfunction's uniform (args
// []interface{}) interface{} ABI and marshals the result back (spec.md
// §6, "Native call ABI"). The receiver, when present, is args[0]
// exactly as for a Java frame; gfunction's own registrations (e.g.
// Object.hashCode) already assume that position.
func invokeNative(me *classloader.MethodEntry, args []types.Slot) (types.Slot, bool, error) {
	params := make([]interface{}, 0, len(args))
	i := 0
	if !me.IsStatic() {
		params = append(params, slotToObj(args[0]))
		i = 1
	}
	for _, t := range me.ArgTypes {
		params = append(params, marshalArg(t, args[i]))
		i++
	}

	result := me.Native.GFunction(params)
	if gerr, ok := gfunction.IsErrBlk(result); ok {
		return types.Slot{}, false, newVMException(gerr.ExceptionType, gerr.ErrMsg)
	}
	if me.ReturnType.Kind == types.Void {
		return types.Slot{}, false, nil
	}
	return unmarshalResult(me.ReturnType, result), true, nil
}

func marshalArg(t types.Type, s types.Slot) interface{} {
	switch t.Kind {
	case types.Boolean, types.Byte, types.Short, types.Char, types.Int:
		return int64(s.Int())
	case types.Long:
		return s.Long()
	case types.Float:
		return float64(s.Float())
	case types.Double:
		return s.Double()
	case types.ArrayRef:
		return slotToArr(s)
	default: // ClassRef
		return slotToObj(s)
	}
}

func unmarshalResult(t types.Type, v interface{}) types.Slot {
	switch t.Kind {
	case types.Boolean, types.Byte, types.Short, types.Char, types.Int:
		switch x := v.(type) {
		case int64:
			return types.IntSlot(int32(x))
		case int32:
			return types.IntSlot(x)
		case bool:
			if x {
				return types.IntSlot(1)
			}
			return types.IntSlot(0)
		}
	case types.Long:
		switch x := v.(type) {
		case int64:
			return types.LongSlot(x)
		case int32:
			return types.LongSlot(int64(x))
		}
	case types.Float:
		if x, ok := v.(float64); ok {
			return types.FloatSlot(float32(x))
		}
	case types.Double:
		if x, ok := v.(float64); ok {
			return types.DoubleSlot(x)
		}
	case types.ArrayRef:
		if x, ok := v.(*object.Array); ok {
			return arrRefSlot(x)
		}
	default: // ClassRef
		switch x := v.(type) {
		case *object.Object:
			return objRefSlot(x)
		case string:
			return objRefSlot(object.NewStringObject(0, x))
		}
	}
	return types.Slot{}
}

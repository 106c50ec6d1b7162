/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2022-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package jvm

import (
	"jacobin/classloader"
	"jacobin/excNames"
	"jacobin/frames"
	"jacobin/object"
	"jacobin/opcodes"
	"jacobin/thread"
	"jacobin/types"
)

// pushConstant implements ldc/ldc_w/ldc2_w: the operand stack takes one
// value per logical constant regardless of category, matching how
// Frame's operand stack is already indexed by value rather than by
// JVM-style category-2-counts-double slots (frames.go's Locals are the
// only place that convention applies).
func pushConstant(class *classloader.RuntimeClass, idx int, f *frames.Frame) error {
	entry := class.View.ConstantPool[idx]
	switch entry.Kind {
	case classloader.CPInteger:
		return f.Push(types.IntSlot(entry.IntVal))
	case classloader.CPLong:
		return f.Push(types.LongSlot(entry.LongVal))
	case classloader.CPFloat:
		return f.Push(types.FloatSlot(entry.FloatVal))
	case classloader.CPDouble:
		return f.Push(types.DoubleSlot(entry.DoubleVal))
	case classloader.CPString:
		return f.Push(objRefSlot(object.NewStringObject(0, entry.Utf8)))
	case classloader.CPClass, classloader.CPMethodType:
		// No real java.lang.Class model in this core; a plain string
		// object stands in, the same simplification gfunction's
		// Object.getClass() uses (jvm/invoke.go's unmarshalResult).
		return f.Push(objRefSlot(object.NewStringObject(0, entry.Utf8)))
	default:
		return newVMException("java/lang/InternalError", "ldc of unsupported constant kind")
	}
}

func execArrayLoad(f *frames.Frame) error {
	index, err := f.Pop()
	if err != nil {
		return err
	}
	ref, err := f.Pop()
	if err != nil {
		return err
	}
	if ref.IsNull() {
		return newVMException(excNames.NullPointerException, "")
	}
	v, err := slotToArr(ref).Load(index.Int())
	if err != nil {
		return wrapError(err)
	}
	return f.Push(v)
}

// execArrayStore implements {i,l,f,d,a,b,c,s}astore. bastore/castore/
// sastore narrow the popped int value to the element width at store
// time so a later baload/caload/saload can push the stored slot back
// unchanged (spec.md §4.7).
func execArrayStore(op byte, f *frames.Frame) error {
	value, err := f.Pop()
	if err != nil {
		return err
	}
	index, err := f.Pop()
	if err != nil {
		return err
	}
	ref, err := f.Pop()
	if err != nil {
		return err
	}
	if ref.IsNull() {
		return newVMException(excNames.NullPointerException, "")
	}
	switch op {
	case opcodes.BASTORE:
		value = types.IntSlot(int32(int8(value.Int())))
	case opcodes.CASTORE:
		value = types.IntSlot(int32(uint16(value.Int())))
	case opcodes.SASTORE:
		value = types.IntSlot(int32(int16(value.Int())))
	}
	if err := slotToArr(ref).Store(index.Int(), value); err != nil {
		return wrapError(err)
	}
	return nil
}

func execPop2(f *frames.Frame) error {
	top, err := f.Peek()
	if err != nil {
		return err
	}
	if _, err := f.Pop(); err != nil {
		return err
	}
	if top.Kind.Category() != 2 {
		if _, err := f.Pop(); err != nil {
			return err
		}
	}
	return nil
}

func execDup(f *frames.Frame) error {
	v, err := f.Peek()
	if err != nil {
		return err
	}
	return f.Push(v)
}

func execDupX1(f *frames.Frame) error {
	v1, err := f.Pop()
	if err != nil {
		return err
	}
	v2, err := f.Pop()
	if err != nil {
		return err
	}
	if err := f.Push(v1); err != nil {
		return err
	}
	if err := f.Push(v2); err != nil {
		return err
	}
	return f.Push(v1)
}

func execDupX2(f *frames.Frame) error {
	v1, err := f.Pop()
	if err != nil {
		return err
	}
	v2, err := f.Pop()
	if err != nil {
		return err
	}
	if v2.Kind.Category() == 2 {
		if err := f.Push(v1); err != nil {
			return err
		}
		if err := f.Push(v2); err != nil {
			return err
		}
		return f.Push(v1)
	}
	v3, err := f.Pop()
	if err != nil {
		return err
	}
	if err := f.Push(v1); err != nil {
		return err
	}
	if err := f.Push(v3); err != nil {
		return err
	}
	if err := f.Push(v2); err != nil {
		return err
	}
	return f.Push(v1)
}

// execDup2 follows JVMS §6.5 dup2's form-1/form-2 split: a single
// category-2 value duplicates alone, two category-1 values duplicate
// as a pair, decided here by inspecting the top value's Kind since this
// core's operand stack counts logical values, not JVM-style slots.
func execDup2(f *frames.Frame) error {
	top, err := f.Peek()
	if err != nil {
		return err
	}
	if top.Kind.Category() == 2 {
		return f.Push(top)
	}
	v1, err := f.Pop()
	if err != nil {
		return err
	}
	v2, err := f.Pop()
	if err != nil {
		return err
	}
	if err := f.Push(v2); err != nil {
		return err
	}
	if err := f.Push(v1); err != nil {
		return err
	}
	if err := f.Push(v2); err != nil {
		return err
	}
	return f.Push(v1)
}

func execDup2X1(f *frames.Frame) error {
	top, err := f.Peek()
	if err != nil {
		return err
	}
	if top.Kind.Category() == 2 {
		v1, err := f.Pop()
		if err != nil {
			return err
		}
		v2, err := f.Pop()
		if err != nil {
			return err
		}
		if err := f.Push(v1); err != nil {
			return err
		}
		if err := f.Push(v2); err != nil {
			return err
		}
		return f.Push(v1)
	}
	v1, err := f.Pop()
	if err != nil {
		return err
	}
	v2, err := f.Pop()
	if err != nil {
		return err
	}
	v3, err := f.Pop()
	if err != nil {
		return err
	}
	if err := f.Push(v2); err != nil {
		return err
	}
	if err := f.Push(v1); err != nil {
		return err
	}
	if err := f.Push(v3); err != nil {
		return err
	}
	if err := f.Push(v2); err != nil {
		return err
	}
	return f.Push(v1)
}

func execDup2X2(f *frames.Frame) error {
	v1, err := f.Pop()
	if err != nil {
		return err
	}
	v2, err := f.Pop()
	if err != nil {
		return err
	}
	cat1 := v1.Kind.Category() == 2
	cat2 := v2.Kind.Category() == 2

	switch {
	case cat1 && cat2:
		if err := f.Push(v1); err != nil {
			return err
		}
		if err := f.Push(v2); err != nil {
			return err
		}
		return f.Push(v1)
	case cat1 && !cat2:
		v3, err := f.Pop()
		if err != nil {
			return err
		}
		if err := f.Push(v1); err != nil {
			return err
		}
		if err := f.Push(v3); err != nil {
			return err
		}
		if err := f.Push(v2); err != nil {
			return err
		}
		return f.Push(v1)
	default:
		v3, err := f.Pop()
		if err != nil {
			return err
		}
		if !cat1 && v3.Kind.Category() == 2 {
			if err := f.Push(v2); err != nil {
				return err
			}
			if err := f.Push(v1); err != nil {
				return err
			}
			if err := f.Push(v3); err != nil {
				return err
			}
			if err := f.Push(v2); err != nil {
				return err
			}
			return f.Push(v1)
		}
		v4, err := f.Pop()
		if err != nil {
			return err
		}
		if err := f.Push(v2); err != nil {
			return err
		}
		if err := f.Push(v1); err != nil {
			return err
		}
		if err := f.Push(v4); err != nil {
			return err
		}
		if err := f.Push(v3); err != nil {
			return err
		}
		if err := f.Push(v2); err != nil {
			return err
		}
		return f.Push(v1)
	}
}

func execSwap(f *frames.Frame) error {
	v1, err := f.Pop()
	if err != nil {
		return err
	}
	v2, err := f.Pop()
	if err != nil {
		return err
	}
	if err := f.Push(v1); err != nil {
		return err
	}
	return f.Push(v2)
}

func execBinary(op byte, f *frames.Frame) error {
	b, err := f.Pop()
	if err != nil {
		return err
	}
	a, err := f.Pop()
	if err != nil {
		return err
	}
	v, err := binaryArith(op, a, b)
	if err != nil {
		return err
	}
	return f.Push(v)
}

func execCompareLong(f *frames.Frame) error {
	b, err := f.Pop()
	if err != nil {
		return err
	}
	a, err := f.Pop()
	if err != nil {
		return err
	}
	return f.Push(types.IntSlot(compareLongs(a.Long(), b.Long())))
}

func execCompareFloat(op byte, f *frames.Frame) error {
	b, err := f.Pop()
	if err != nil {
		return err
	}
	a, err := f.Pop()
	if err != nil {
		return err
	}
	nanResult := int32(-1)
	if op == opcodes.FCMPG {
		nanResult = 1
	}
	return f.Push(types.IntSlot(compareFloats(float64(a.Float()), float64(b.Float()), nanResult)))
}

func execCompareDouble(op byte, f *frames.Frame) error {
	b, err := f.Pop()
	if err != nil {
		return err
	}
	a, err := f.Pop()
	if err != nil {
		return err
	}
	nanResult := int32(-1)
	if op == opcodes.DCMPG {
		nanResult = 1
	}
	return f.Push(types.IntSlot(compareFloats(a.Double(), b.Double(), nanResult)))
}

// execTableSwitch/execLookupSwitch decode their 4-byte-aligned operand
// blocks per JVMS §4.10.1 and return the next pc (either the matched
// offset target or, via *stepErr, a propagated pop error).
func execTableSwitch(code []byte, opcodeAddr int, f *frames.Frame, stepErr *error) int {
	operands := opcodeAddr + 1
	pad := (4 - (operands % 4)) % 4
	operands += pad

	def := s32(code, operands)
	low := s32(code, operands+4)
	high := s32(code, operands+8)
	offsetsStart := operands + 12

	key, err := f.Pop()
	if err != nil {
		*stepErr = err
		return opcodeAddr
	}
	k := key.Int()
	if k < low || k > high {
		return opcodeAddr + int(def)
	}
	off := s32(code, offsetsStart+4*int(k-low))
	return opcodeAddr + int(off)
}

func execLookupSwitch(code []byte, opcodeAddr int, f *frames.Frame, stepErr *error) int {
	operands := opcodeAddr + 1
	pad := (4 - (operands % 4)) % 4
	operands += pad

	def := s32(code, operands)
	npairs := int(s32(code, operands+4))
	pairsStart := operands + 8

	key, err := f.Pop()
	if err != nil {
		*stepErr = err
		return opcodeAddr
	}
	k := key.Int()
	for i := 0; i < npairs; i++ {
		match := s32(code, pairsStart+8*i)
		if match == k {
			off := s32(code, pairsStart+8*i+4)
			return opcodeAddr + int(off)
		}
	}
	return opcodeAddr + int(def)
}

// execWide handles the wide-prefixed variants of iload/lload/fload/
// dload/aload, istore/lstore/fstore/dstore/astore, ret and iinc, each
// taking a u16 local-variable index instead of u8 (JVMS §6.5 wide).
func execWide(code []byte, pc int, f *frames.Frame) (int, error) {
	sub := code[pc]
	pc++
	idx := u16(code, pc)
	pc += 2

	switch sub {
	case opcodes.ILOAD, opcodes.LLOAD, opcodes.FLOAD, opcodes.DLOAD, opcodes.ALOAD:
		return pc, f.Push(f.GetLocal(idx))
	case opcodes.ISTORE, opcodes.LSTORE, opcodes.FSTORE, opcodes.DSTORE, opcodes.ASTORE:
		v, err := f.Pop()
		if err != nil {
			return pc, err
		}
		f.SetLocal(idx, v)
		return pc, nil
	case opcodes.RET:
		return int(f.GetLocal(idx).Int()), nil
	case opcodes.IINC:
		delta := s16(code, pc)
		pc += 2
		f.SetLocal(idx, types.IntSlot(f.GetLocal(idx).Int()+int32(delta)))
		return pc, nil
	}
	return pc, newVMException("java/lang/InternalError", "unsupported wide sub-opcode")
}

func execStaticField(th *thread.ExecThread, loader string, op byte, entry classloader.CPEntry, f *frames.Frame) error {
	owner, err := resolveClassRef(loader, entry.ClassName)
	if err != nil {
		return err
	}
	if err := ensureInitialized(th, owner); err != nil {
		return err
	}
	declaring, fld, err := classloader.ResolveField(owner, entry.NameAndTypeName, entry.NameAndTypeDescr)
	if err != nil {
		return err
	}
	if op == opcodes.GETSTATIC {
		return f.Push(declaring.GetStaticField(fld.Offset))
	}
	v, err := f.Pop()
	if err != nil {
		return err
	}
	declaring.SetStaticField(fld.Offset, v)
	return nil
}

func execInstanceField(loader string, op byte, entry classloader.CPEntry, f *frames.Frame) error {
	fieldClass, err := resolveClassRef(loader, entry.ClassName)
	if err != nil {
		return err
	}
	_, fld, err := classloader.ResolveField(fieldClass, entry.NameAndTypeName, entry.NameAndTypeDescr)
	if err != nil {
		return err
	}
	if op == opcodes.GETFIELD {
		ref, err := f.Pop()
		if err != nil {
			return err
		}
		if ref.IsNull() {
			return newVMException(excNames.NullPointerException, "")
		}
		return f.Push(slotToObj(ref).GetFieldAt(fld.Offset))
	}
	value, err := f.Pop()
	if err != nil {
		return err
	}
	ref, err := f.Pop()
	if err != nil {
		return err
	}
	if ref.IsNull() {
		return newVMException(excNames.NullPointerException, "")
	}
	slotToObj(ref).SetFieldAt(fld.Offset, value)
	return nil
}

// execMultiANewArray implements multianewarray: the operand class-ref
// descriptor (e.g. "[[Ljava/lang/String;") is parsed once, then peeled
// dims times to find the innermost element type, matching a dims
// operand equal to the descriptor's full array nesting depth (the
// common case; a dims operand smaller than the descriptor's nesting,
// leaving inner dimensions unallocated per JVMS §6.5, is not modeled).
func execMultiANewArray(loader, descriptor string, dims int, f *frames.Frame) error {
	typ, _, err := types.ParseFieldDescriptor(descriptor)
	if err != nil {
		return newVMException("java/lang/InternalError", err.Error())
	}

	counts := make([]int32, dims)
	for i := dims - 1; i >= 0; i-- {
		v, err := f.Pop()
		if err != nil {
			return err
		}
		counts[i] = v.Int()
	}

	elemType := typ
	for i := 0; i < dims && elemType.Element != nil; i++ {
		elemType = *elemType.Element
	}

	var classID uint32
	if elemType.Kind == types.ClassRef {
		rc, err := resolveClassRef(loader, elemType.Class)
		if err != nil {
			return err
		}
		classID = rc.ClassID
	}

	arr, err := newMultiArray(elemType, classID, counts)
	if err != nil {
		return err
	}
	return f.Push(arrRefSlot(arr))
}

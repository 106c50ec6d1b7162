/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2022-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package jvm

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jacobin/classloader"
	"jacobin/excNames"
	"jacobin/gfunction"
	"jacobin/opcodes"
	"jacobin/thread"
	"jacobin/types"
)

func loadTestClass(t *testing.T, view *classloader.ClassView) *classloader.RuntimeClass {
	t.Helper()
	require.NoError(t, classloader.Init())
	rc, err := classloader.LoadClass(classloader.BootstrapLoaderName, view)
	require.NoError(t, err)
	return rc
}

// static int compute(int a, int b) { return a + b; }
func TestRunMethodAddsTwoInts(t *testing.T) {
	view := &classloader.ClassView{
		Name: "ArithTest",
		Methods: []classloader.MethodView{
			{
				Name:        "compute",
				Descriptor:  "(II)I",
				AccessFlags: 0x0008, // static
				MaxStack:    2,
				MaxLocals:   2,
				Code: []byte{
					opcodes.ILOAD_0,
					opcodes.ILOAD_1,
					opcodes.IADD,
					opcodes.IRETURN,
				},
			},
		},
	}
	rc := loadTestClass(t, view)
	me, err := classloader.ResolveStatic(rc, "compute", "(II)I")
	require.NoError(t, err)

	th := thread.New("test")
	thread.Register(th)
	defer thread.Unregister(th)

	result, has, err := RunMethod(th, rc, me, []types.Slot{types.IntSlot(3), types.IntSlot(4)})
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, int32(7), result.Int())
}

// static int divByZero(int a, int b) { return a / b; } -- exercises
// ArithmeticException propagation with no handler in range.
func TestRunMethodPropagatesArithmeticException(t *testing.T) {
	view := &classloader.ClassView{
		Name: "DivTest",
		Methods: []classloader.MethodView{
			{
				Name:        "divByZero",
				Descriptor:  "(II)I",
				AccessFlags: 0x0008,
				MaxStack:    2,
				MaxLocals:   2,
				Code: []byte{
					opcodes.ILOAD_0,
					opcodes.ILOAD_1,
					opcodes.IDIV,
					opcodes.IRETURN,
				},
			},
		},
	}
	rc := loadTestClass(t, view)
	me, err := classloader.ResolveStatic(rc, "divByZero", "(II)I")
	require.NoError(t, err)

	th := thread.New("test")
	thread.Register(th)
	defer thread.Unregister(th)

	_, _, err = RunMethod(th, rc, me, []types.Slot{types.IntSlot(10), types.IntSlot(0)})
	require.Error(t, err)
	ve, ok := err.(*vmException)
	require.True(t, ok)
	assert.Equal(t, string(excNames.ArithmeticException), ve.className)
}

// static int caught(int a, int b) {
//     try { return a / b; } catch (ArithmeticException e) { return -1; }
// }
func TestRunMethodCatchesWithinExceptionTable(t *testing.T) {
	code := []byte{
		opcodes.ILOAD_0,
		opcodes.ILOAD_1,
		opcodes.IDIV,
		opcodes.IRETURN,
		// handler at offset 4: pop the exception ref, push -1, return it
		opcodes.POP,
		opcodes.ICONST_M1,
		opcodes.IRETURN,
	}
	view := &classloader.ClassView{
		Name: "CatchTest",
		Methods: []classloader.MethodView{
			{
				Name:        "caught",
				Descriptor:  "(II)I",
				AccessFlags: 0x0008,
				MaxStack:    2,
				MaxLocals:   2,
				Code:        code,
				ExceptionTable: []classloader.ExceptionHandler{
					{StartPC: 0, EndPC: 4, HandlerPC: 4, CatchType: string(excNames.ArithmeticException)},
				},
			},
		},
	}
	rc := loadTestClass(t, view)
	me, err := classloader.ResolveStatic(rc, "caught", "(II)I")
	require.NoError(t, err)

	th := thread.New("test")
	thread.Register(th)
	defer thread.Unregister(th)

	result, has, err := RunMethod(th, rc, me, []types.Slot{types.IntSlot(10), types.IntSlot(0)})
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, int32(-1), result.Int())
}

// static int loopSum(int n) { int s = 0; while (n > 0) { s += n; n--; } return s; }
//
// Byte offsets (locals: 0 = n, 1 = s):
//
//	0  iconst_0
//	1  istore_1                  s = 0
//	2  iload_0                   loop:
//	3  ifle +13 (-> 16)          if n <= 0 goto end
//	6  iload_1
//	7  iload_0
//	8  iadd
//	9  istore_1                  s += n
//	10 iinc 0, -1                n--
//	13 goto -11 (-> 2)           goto loop
//	16 iload_1                   end:
//	17 ireturn
func TestRunMethodLoopWithGoto(t *testing.T) {
	prog := []byte{
		/*0*/ opcodes.ICONST_0,
		/*1*/ opcodes.ISTORE_1,
		/*2*/ opcodes.ILOAD_0,
		/*3*/ opcodes.IFLE, 0x00, 0x0d, // target = 3 + 13 = 16
		/*6*/ opcodes.ILOAD_1,
		/*7*/ opcodes.ILOAD_0,
		/*8*/ opcodes.IADD,
		/*9*/ opcodes.ISTORE_1,
		/*10*/ opcodes.IINC, 0, 0xff, // n += -1
		/*13*/ opcodes.GOTO, 0xff, 0xf5, // target = 13 + (-11) = 2
		/*16*/ opcodes.ILOAD_1,
		/*17*/ opcodes.IRETURN,
	}
	view := &classloader.ClassView{
		Name: "LoopTest",
		Methods: []classloader.MethodView{
			{
				Name:        "loopSum",
				Descriptor:  "(I)I",
				AccessFlags: 0x0008,
				MaxStack:    2,
				MaxLocals:   2,
				Code:        prog,
			},
		},
	}
	rc := loadTestClass(t, view)
	me, err := classloader.ResolveStatic(rc, "loopSum", "(I)I")
	require.NoError(t, err)

	th := thread.New("test")
	thread.Register(th)
	defer thread.Unregister(th)

	result, has, err := RunMethod(th, rc, me, []types.Slot{types.IntSlot(4)})
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, int32(10), result.Int())
}

// static synchronized void recurse(int n) {
//     if (n == 0) { peek(); return; }
//     recurse(n - 1);
// }
//
// peek() is a test-only native that reads the class mirror's monitor
// recursion count at the bottom of the recursion, exercising spec.md
// §8 scenario 6: a synchronized method recursing 100 times acquires
// the monitor to count 100 and releases it back to 0.
func TestRunMethodSynchronizedStaticRecursionLocksAndUnlocksMonitor(t *testing.T) {
	const calls = 100 // n = 99 .. 0 inclusive

	var rc *classloader.RuntimeClass
	var peakCount int
	gfunction.MethodSignatures["SyncTest.peek()V"] = gfunction.GMeth{
		ParamSlots: 0,
		GFunction: func(params []interface{}) interface{} {
			peakCount = thread.MonitorFor(unsafe.Pointer(rc.Mirror())).RecursionCount()
			return nil
		},
	}
	defer delete(gfunction.MethodSignatures, "SyncTest.peek()V")

	view := &classloader.ClassView{
		Name: "SyncTest",
		ConstantPool: []classloader.CPEntry{
			{Kind: classloader.CPMethodref, ClassName: "SyncTest", NameAndTypeName: "recurse", NameAndTypeDescr: "(I)V"},
			{Kind: classloader.CPMethodref, ClassName: "SyncTest", NameAndTypeName: "peek", NameAndTypeDescr: "()V"},
		},
		Methods: []classloader.MethodView{
			{
				Name:        "recurse",
				Descriptor:  "(I)V",
				AccessFlags: 0x0008 | 0x0020, // static | synchronized
				MaxStack:    2,
				MaxLocals:   1,
				Code: []byte{
					/*0*/ opcodes.ILOAD_0,
					/*1*/ opcodes.IFEQ, 0x00, 0x0c, // -> 13 (n == 0)
					/*4*/ opcodes.ILOAD_0,
					/*5*/ opcodes.ICONST_1,
					/*6*/ opcodes.ISUB,
					/*7*/ opcodes.INVOKESTATIC, 0x00, 0x00, // recurse(n - 1)
					/*10*/ opcodes.GOTO, 0x00, 0x06, // -> 16
					/*13*/ opcodes.INVOKESTATIC, 0x00, 0x01, // peek()
					/*16*/ opcodes.RETURN,
				},
			},
			{
				Name:        "peek",
				Descriptor:  "()V",
				AccessFlags: 0x0008, // static; resolved to the native above by signature
			},
		},
	}
	rc = loadTestClass(t, view)
	me, err := classloader.ResolveStatic(rc, "recurse", "(I)V")
	require.NoError(t, err)
	require.True(t, me.IsSynchronized())

	th := thread.New("test")
	thread.Register(th)
	defer thread.Unregister(th)

	mirrorKey := unsafe.Pointer(rc.Mirror())
	defer thread.ReleaseMonitor(mirrorKey)

	_, _, err = RunMethod(th, rc, me, []types.Slot{types.IntSlot(calls - 1)})
	require.NoError(t, err)
	assert.Equal(t, calls, peakCount)

	mon := thread.MonitorFor(mirrorKey)
	assert.Nil(t, mon.Owner())
	assert.Equal(t, 0, mon.RecursionCount())
}

// instanceof/checkcast against array operands (spec.md §4.1, §4.7): every
// array is assignable to Object, Cloneable and Serializable but not to
// an arbitrary class, and an array-to-array cast is covariant on element
// type.
func TestInstanceofAndCheckcastHandleArrayOperands(t *testing.T) {
	require.NoError(t, classloader.Init())
	_, err := classloader.LoadClass(classloader.BootstrapLoaderName, &classloader.ClassView{
		Name:           "java/lang/String",
		SuperclassName: "java/lang/Object",
	})
	require.NoError(t, err)

	view := &classloader.ClassView{
		Name: "ArrayCastTest",
		ConstantPool: []classloader.CPEntry{
			{Kind: classloader.CPClass, Utf8: "java/lang/Object"},       // 0
			{Kind: classloader.CPClass, Utf8: "java/lang/Cloneable"},    // 1
			{Kind: classloader.CPClass, Utf8: "java/io/Serializable"},   // 2
			{Kind: classloader.CPClass, Utf8: "java/lang/String"},       // 3
			{Kind: classloader.CPClass, Utf8: "[Ljava/lang/Object;"},    // 4
			{Kind: classloader.CPClass, Utf8: "[[I"},                    // 5
		},
		Methods: []classloader.MethodView{
			instanceOfArrayMethod("isObject", 0),
			instanceOfArrayMethod("isCloneable", 1),
			instanceOfArrayMethod("isSerializable", 2),
			instanceOfArrayMethod("isString", 3),
			{
				Name:        "checkcastObject",
				Descriptor:  "()V",
				AccessFlags: 0x0008,
				MaxStack:    1,
				MaxLocals:   0,
				Code: []byte{
					opcodes.ICONST_3,
					opcodes.NEWARRAY, byte(opcodes.AT_INT),
					opcodes.CHECKCAST, 0x00, 0x00,
					opcodes.POP,
					opcodes.RETURN,
				},
			},
			{
				Name:        "checkcastStringFails",
				Descriptor:  "()V",
				AccessFlags: 0x0008,
				MaxStack:    1,
				MaxLocals:   0,
				Code: []byte{
					opcodes.ICONST_3,
					opcodes.NEWARRAY, byte(opcodes.AT_INT),
					opcodes.CHECKCAST, 0x00, 0x03,
					opcodes.POP,
					opcodes.RETURN,
				},
			},
			{
				Name:        "nestedArrayIsObjectArray",
				Descriptor:  "()I",
				AccessFlags: 0x0008,
				MaxStack:    2,
				MaxLocals:   0,
				Code: []byte{
					opcodes.ICONST_2,
					opcodes.ICONST_2,
					opcodes.MULTIANEWARRAY, 0x00, 0x05, 0x02,
					opcodes.INSTANCEOF, 0x00, 0x04,
					opcodes.IRETURN,
				},
			},
		},
	}
	rc := loadTestClass(t, view)

	th := thread.New("test")
	thread.Register(th)
	defer thread.Unregister(th)

	runInt := func(name string) int32 {
		me, err := classloader.ResolveStatic(rc, name, "()I")
		require.NoError(t, err)
		result, _, err := RunMethod(th, rc, me, nil)
		require.NoError(t, err)
		return result.Int()
	}
	runVoid := func(name string) error {
		me, err := classloader.ResolveStatic(rc, name, "()V")
		require.NoError(t, err)
		_, _, err = RunMethod(th, rc, me, nil)
		return err
	}

	assert.Equal(t, int32(1), runInt("isObject"))
	assert.Equal(t, int32(1), runInt("isCloneable"))
	assert.Equal(t, int32(1), runInt("isSerializable"))
	assert.Equal(t, int32(0), runInt("isString"))
	assert.Equal(t, int32(1), runInt("nestedArrayIsObjectArray"))

	require.NoError(t, runVoid("checkcastObject"))

	err = runVoid("checkcastStringFails")
	require.Error(t, err)
	ve, ok := err.(*vmException)
	require.True(t, ok)
	assert.Equal(t, string(excNames.ClassCastException), ve.className)
}

// instanceOfArrayMethod builds "static int <name>() { return (new
// int[3]) instanceof <cp index>; }" for the array-instanceof table test.
func instanceOfArrayMethod(name string, cpIndex byte) classloader.MethodView {
	return classloader.MethodView{
		Name:        name,
		Descriptor:  "()I",
		AccessFlags: 0x0008,
		MaxStack:    2,
		MaxLocals:   0,
		Code: []byte{
			opcodes.ICONST_3,
			opcodes.NEWARRAY, byte(opcodes.AT_INT),
			opcodes.INSTANCEOF, 0x00, cpIndex,
			opcodes.IRETURN,
		},
	}
}

/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2022-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package jvm implements C7, the bytecode interpreter: a single
// dispatch loop over one Frame's code array, resolving constant-pool
// references, method calls and field accesses through classloader's C8
// machinery and monitor acquisition through thread's C9 machinery
// (spec.md §4.7, "Interpretation"). It also supplies the run/runClinit
// callbacks classloader.Initialize and the `new` opcode need without
// those packages importing jvm directly.
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

func u8(code []byte, pc int) int   { return int(code[pc]) }
func s8(code []byte, pc int) int8  { return int8(code[pc]) }
func u16(code []byte, pc int) int  { return int(code[pc])<<8 | int(code[pc+1]) }
func s16(code []byte, pc int) int16 {
	return int16(u16(code, pc))
}
func s32(code []byte, pc int) int32 {
	return int32(code[pc])<<24 | int32(code[pc+1])<<16 | int32(code[pc+2])<<8 | int32(code[pc+3])
}

// ensureInitialized drives a class through link+initialize on demand,
// the trigger getstatic/putstatic/new/invokestatic all share (spec.md
// §4.5, "Triggers": first active use).
func ensureInitialized(th *thread.ExecThread, rc *classloader.RuntimeClass) error {
	if rc.State() < classloader.StatePrepared {
		if err := classloader.Link(rc); err != nil {
			return err
		}
	}
	if rc.State() != classloader.StateInitialized {
		return classloader.Initialize(rc, th.ID, clinitRunner)
	}
	return nil
}

// runLoop is C7's fetch-decode-execute cycle over one already-pushed
// Java frame. PC arithmetic follows JVMS §4.10.1: branch offsets are
// relative to the branching instruction's own opcode address, not to
// the address following its operands.
func runLoop(th *thread.ExecThread, class *classloader.RuntimeClass, me *classloader.MethodEntry, f *frames.Frame) (types.Slot, bool, error) {
	loader := class.Loader
	code := me.Code
	pc := 0

	for {
		if err := th.PollSafepoint(); err != nil {
			return types.Slot{}, false, wrapError(err)
		}

		f.PC = pc
		opcodeAddr := pc
		op := code[pc]
		pc++

		var stepErr error
		switch op {
		case opcodes.NOP:
		case opcodes.ACONST_NULL:
			stepErr = f.Push(types.RefSlot(0))
		case opcodes.ICONST_M1, opcodes.ICONST_0, opcodes.ICONST_1, opcodes.ICONST_2,
			opcodes.ICONST_3, opcodes.ICONST_4, opcodes.ICONST_5:
			stepErr = f.Push(types.IntSlot(int32(op) - opcodes.ICONST_0))
		case opcodes.LCONST_0, opcodes.LCONST_1:
			stepErr = f.Push(types.LongSlot(int64(op) - opcodes.LCONST_0))
		case opcodes.FCONST_0, opcodes.FCONST_1, opcodes.FCONST_2:
			stepErr = f.Push(types.FloatSlot(float32(int(op) - opcodes.FCONST_0)))
		case opcodes.DCONST_0, opcodes.DCONST_1:
			stepErr = f.Push(types.DoubleSlot(float64(int(op) - opcodes.DCONST_0)))
		case opcodes.BIPUSH:
			v := s8(code, pc)
			pc++
			stepErr = f.Push(types.IntSlot(int32(v)))
		case opcodes.SIPUSH:
			v := s16(code, pc)
			pc += 2
			stepErr = f.Push(types.IntSlot(int32(v)))
		case opcodes.LDC:
			idx := u8(code, pc)
			pc++
			stepErr = pushConstant(class, idx, f)
		case opcodes.LDC_W:
			idx := u16(code, pc)
			pc += 2
			stepErr = pushConstant(class, idx, f)
		case opcodes.LDC2_W:
			idx := u16(code, pc)
			pc += 2
			stepErr = pushConstant(class, idx, f)

		case opcodes.ILOAD, opcodes.LLOAD, opcodes.FLOAD, opcodes.DLOAD, opcodes.ALOAD:
			idx := u8(code, pc)
			pc++
			stepErr = f.Push(f.GetLocal(idx))
		case opcodes.ILOAD_0, opcodes.ILOAD_1, opcodes.ILOAD_2, opcodes.ILOAD_3:
			stepErr = f.Push(f.GetLocal(int(op) - opcodes.ILOAD_0))
		case opcodes.LLOAD_0, opcodes.LLOAD_1, opcodes.LLOAD_2, opcodes.LLOAD_3:
			stepErr = f.Push(f.GetLocal(int(op) - opcodes.LLOAD_0))
		case opcodes.FLOAD_0, opcodes.FLOAD_1, opcodes.FLOAD_2, opcodes.FLOAD_3:
			stepErr = f.Push(f.GetLocal(int(op) - opcodes.FLOAD_0))
		case opcodes.DLOAD_0, opcodes.DLOAD_1, opcodes.DLOAD_2, opcodes.DLOAD_3:
			stepErr = f.Push(f.GetLocal(int(op) - opcodes.DLOAD_0))
		case opcodes.ALOAD_0, opcodes.ALOAD_1, opcodes.ALOAD_2, opcodes.ALOAD_3:
			stepErr = f.Push(f.GetLocal(int(op) - opcodes.ALOAD_0))

		case opcodes.ISTORE, opcodes.LSTORE, opcodes.FSTORE, opcodes.DSTORE, opcodes.ASTORE:
			idx := u8(code, pc)
			pc++
			var v types.Slot
			v, stepErr = f.Pop()
			if stepErr == nil {
				f.SetLocal(idx, v)
			}
		case opcodes.ISTORE_0, opcodes.ISTORE_1, opcodes.ISTORE_2, opcodes.ISTORE_3:
			var v types.Slot
			v, stepErr = f.Pop()
			if stepErr == nil {
				f.SetLocal(int(op)-opcodes.ISTORE_0, v)
			}
		case opcodes.LSTORE_0, opcodes.LSTORE_1, opcodes.LSTORE_2, opcodes.LSTORE_3:
			var v types.Slot
			v, stepErr = f.Pop()
			if stepErr == nil {
				f.SetLocal(int(op)-opcodes.LSTORE_0, v)
			}
		case opcodes.FSTORE_0, opcodes.FSTORE_1, opcodes.FSTORE_2, opcodes.FSTORE_3:
			var v types.Slot
			v, stepErr = f.Pop()
			if stepErr == nil {
				f.SetLocal(int(op)-opcodes.FSTORE_0, v)
			}
		case opcodes.DSTORE_0, opcodes.DSTORE_1, opcodes.DSTORE_2, opcodes.DSTORE_3:
			var v types.Slot
			v, stepErr = f.Pop()
			if stepErr == nil {
				f.SetLocal(int(op)-opcodes.DSTORE_0, v)
			}
		case opcodes.ASTORE_0, opcodes.ASTORE_1, opcodes.ASTORE_2, opcodes.ASTORE_3:
			var v types.Slot
			v, stepErr = f.Pop()
			if stepErr == nil {
				f.SetLocal(int(op)-opcodes.ASTORE_0, v)
			}

		case opcodes.IALOAD, opcodes.LALOAD, opcodes.FALOAD, opcodes.DALOAD, opcodes.AALOAD,
			opcodes.BALOAD, opcodes.CALOAD, opcodes.SALOAD:
			stepErr = execArrayLoad(f)
		case opcodes.IASTORE, opcodes.LASTORE, opcodes.FASTORE, opcodes.DASTORE, opcodes.AASTORE,
			opcodes.BASTORE, opcodes.CASTORE, opcodes.SASTORE:
			stepErr = execArrayStore(op, f)

		case opcodes.POP:
			_, stepErr = f.Pop()
		case opcodes.POP2:
			stepErr = execPop2(f)
		case opcodes.DUP:
			stepErr = execDup(f)
		case opcodes.DUP_X1:
			stepErr = execDupX1(f)
		case opcodes.DUP_X2:
			stepErr = execDupX2(f)
		case opcodes.DUP2:
			stepErr = execDup2(f)
		case opcodes.DUP2_X1:
			stepErr = execDup2X1(f)
		case opcodes.DUP2_X2:
			stepErr = execDup2X2(f)
		case opcodes.SWAP:
			stepErr = execSwap(f)

		case opcodes.IADD, opcodes.LADD, opcodes.FADD, opcodes.DADD,
			opcodes.ISUB, opcodes.LSUB, opcodes.FSUB, opcodes.DSUB,
			opcodes.IMUL, opcodes.LMUL, opcodes.FMUL, opcodes.DMUL,
			opcodes.IDIV, opcodes.LDIV, opcodes.FDIV, opcodes.DDIV,
			opcodes.IREM, opcodes.LREM, opcodes.FREM, opcodes.DREM,
			opcodes.IAND, opcodes.LAND, opcodes.IOR, opcodes.LOR, opcodes.IXOR, opcodes.LXOR,
			opcodes.ISHL, opcodes.LSHL, opcodes.ISHR, opcodes.LSHR, opcodes.IUSHR, opcodes.LUSHR:
			stepErr = execBinary(op, f)
		case opcodes.INEG, opcodes.LNEG, opcodes.FNEG, opcodes.DNEG:
			var v types.Slot
			v, stepErr = f.Pop()
			if stepErr == nil {
				stepErr = f.Push(unaryNeg(op, v))
			}
		case opcodes.IINC:
			idx := u8(code, pc)
			pc++
			delta := s8(code, pc)
			pc++
			f.SetLocal(idx, types.IntSlot(f.GetLocal(idx).Int()+int32(delta)))

		case opcodes.I2L, opcodes.I2F, opcodes.I2D, opcodes.L2I, opcodes.L2F, opcodes.L2D,
			opcodes.F2I, opcodes.F2L, opcodes.F2D, opcodes.D2I, opcodes.D2L, opcodes.D2F,
			opcodes.I2B, opcodes.I2C, opcodes.I2S:
			var v types.Slot
			v, stepErr = f.Pop()
			if stepErr == nil {
				stepErr = f.Push(convert(op, v))
			}

		case opcodes.LCMP:
			stepErr = execCompareLong(f)
		case opcodes.FCMPL, opcodes.FCMPG:
			stepErr = execCompareFloat(op, f)
		case opcodes.DCMPL, opcodes.DCMPG:
			stepErr = execCompareDouble(op, f)

		case opcodes.IFEQ, opcodes.IFNE, opcodes.IFLT, opcodes.IFGE, opcodes.IFGT, opcodes.IFLE:
			var v types.Slot
			v, stepErr = f.Pop()
			if stepErr == nil && branchTakenUnary(op, v.Int()) {
				pc = opcodeAddr + int(s16(code, pc))
			} else if stepErr == nil {
				pc += 2
			}
		case opcodes.IF_ICMPEQ, opcodes.IF_ICMPNE, opcodes.IF_ICMPLT,
			opcodes.IF_ICMPGE, opcodes.IF_ICMPGT, opcodes.IF_ICMPLE:
			var b, a types.Slot
			b, stepErr = f.Pop()
			if stepErr == nil {
				a, stepErr = f.Pop()
			}
			if stepErr == nil && branchTakenBinary(op, a.Int(), b.Int()) {
				pc = opcodeAddr + int(s16(code, pc))
			} else if stepErr == nil {
				pc += 2
			}
		case opcodes.IF_ACMPEQ, opcodes.IF_ACMPNE:
			var b, a types.Slot
			b, stepErr = f.Pop()
			if stepErr == nil {
				a, stepErr = f.Pop()
			}
			if stepErr == nil {
				eq := a.Ref() == b.Ref()
				taken := (op == opcodes.IF_ACMPEQ && eq) || (op == opcodes.IF_ACMPNE && !eq)
				if taken {
					pc = opcodeAddr + int(s16(code, pc))
				} else {
					pc += 2
				}
			}
		case opcodes.IFNULL, opcodes.IFNONNULL:
			var v types.Slot
			v, stepErr = f.Pop()
			if stepErr == nil {
				taken := (op == opcodes.IFNULL && v.IsNull()) || (op == opcodes.IFNONNULL && !v.IsNull())
				if taken {
					pc = opcodeAddr + int(s16(code, pc))
				} else {
					pc += 2
				}
			}
		case opcodes.GOTO:
			pc = opcodeAddr + int(s16(code, pc))
		case opcodes.GOTO_W:
			pc = opcodeAddr + int(s32(code, pc))
		case opcodes.JSR:
			ret := pc + 2
			stepErr = f.Push(types.IntSlot(int32(ret)))
			if stepErr == nil {
				pc = opcodeAddr + int(s16(code, pc))
			}
		case opcodes.JSR_W:
			ret := pc + 4
			stepErr = f.Push(types.IntSlot(int32(ret)))
			if stepErr == nil {
				pc = opcodeAddr + int(s32(code, pc))
			}
		case opcodes.RET:
			idx := u8(code, pc)
			pc = int(f.GetLocal(idx).Int())
		case opcodes.TABLESWITCH:
			pc = execTableSwitch(code, opcodeAddr, f, &stepErr)
		case opcodes.LOOKUPSWITCH:
			pc = execLookupSwitch(code, opcodeAddr, f, &stepErr)
		case opcodes.WIDE:
			pc, stepErr = execWide(code, pc, f)

		case opcodes.IRETURN, opcodes.LRETURN, opcodes.FRETURN, opcodes.DRETURN, opcodes.ARETURN:
			v, err := f.Pop()
			if err != nil {
				return types.Slot{}, false, err
			}
			return v, true, nil
		case opcodes.RETURN:
			return types.Slot{}, false, nil

		case opcodes.GETSTATIC, opcodes.PUTSTATIC:
			idx := u16(code, pc)
			pc += 2
			stepErr = execStaticField(th, loader, op, class.View.ConstantPool[idx], f)
		case opcodes.GETFIELD, opcodes.PUTFIELD:
			idx := u16(code, pc)
			pc += 2
			stepErr = execInstanceField(loader, op, class.View.ConstantPool[idx], f)

		case opcodes.INVOKEVIRTUAL:
			idx := u16(code, pc)
			pc += 2
			stepErr = invokeVirtualSite(th, loader, f, class.View.ConstantPool[idx])
		case opcodes.INVOKESPECIAL:
			idx := u16(code, pc)
			pc += 2
			stepErr = invokeSpecialSite(th, loader, f, class.View.ConstantPool[idx])
		case opcodes.INVOKESTATIC:
			idx := u16(code, pc)
			pc += 2
			stepErr = invokeStaticSite(th, loader, f, class.View.ConstantPool[idx])
		case opcodes.INVOKEINTERFACE:
			idx := u16(code, pc)
			pc += 4 // count, 0 trailer bytes (JVMS §6.5 invokeinterface)
			stepErr = invokeInterfaceSite(th, loader, f, class.View.ConstantPool[idx])
		case opcodes.INVOKEDYNAMIC:
			idx := u16(code, pc)
			pc += 4
			stepErr = invokeDynamicSite(th, class, opcodeAddr, f, class.View.ConstantPool[idx])

		case opcodes.NEW:
			idx := u16(code, pc)
			pc += 2
			var obj *object.Object
			obj, stepErr = newInstance(th, loader, class.View.ConstantPool[idx].Utf8)
			if stepErr == nil {
				stepErr = f.Push(objRefSlot(obj))
			}
		case opcodes.NEWARRAY:
			atype := u8(code, pc)
			pc++
			var length types.Slot
			length, stepErr = f.Pop()
			if stepErr == nil {
				var arr *object.Array
				arr, stepErr = newArray(atype, length.Int())
				if stepErr == nil {
					stepErr = f.Push(arrRefSlot(arr))
				}
			}
		case opcodes.ANEWARRAY:
			idx := u16(code, pc)
			pc += 2
			var length types.Slot
			length, stepErr = f.Pop()
			if stepErr == nil {
				var arr *object.Array
				arr, stepErr = newRefArray(loader, class.View.ConstantPool[idx].Utf8, length.Int())
				if stepErr == nil {
					stepErr = f.Push(arrRefSlot(arr))
				}
			}
		case opcodes.MULTIANEWARRAY:
			idx := u16(code, pc)
			pc += 2
			dims := u8(code, pc)
			pc++
			stepErr = execMultiANewArray(loader, class.View.ConstantPool[idx].Utf8, dims, f)
		case opcodes.ARRAYLENGTH:
			var ref types.Slot
			ref, stepErr = f.Pop()
			if stepErr == nil {
				if ref.IsNull() {
					stepErr = newVMException(excNames.NullPointerException, "")
				} else {
					stepErr = f.Push(types.IntSlot(slotToArr(ref).Length))
				}
			}
		case opcodes.INSTANCEOF:
			idx := u16(code, pc)
			pc += 2
			var ref types.Slot
			ref, stepErr = f.Pop()
			if stepErr == nil {
				var target castTarget
				target, stepErr = resolveCastTarget(loader, class.View.ConstantPool[idx].Utf8)
				if stepErr == nil {
					if instanceOf(ref, target) {
						stepErr = f.Push(types.IntSlot(1))
					} else {
						stepErr = f.Push(types.IntSlot(0))
					}
				}
			}
		case opcodes.CHECKCAST:
			idx := u16(code, pc)
			pc += 2
			var ref types.Slot
			ref, stepErr = f.Peek()
			if stepErr == nil && !ref.IsNull() {
				var target castTarget
				target, stepErr = resolveCastTarget(loader, class.View.ConstantPool[idx].Utf8)
				if stepErr == nil && !instanceOf(ref, target) {
					stepErr = newVMException(excNames.ClassCastException, refTypeName(ref)+" cannot be cast to "+target.name())
				}
			}

		case opcodes.ATHROW:
			var ref types.Slot
			ref, stepErr = f.Pop()
			if stepErr == nil {
				if ref.IsNull() {
					stepErr = newVMException(excNames.NullPointerException, "")
				} else {
					stepErr = throwObject(slotToObj(ref))
				}
			}

		case opcodes.MONITORENTER:
			var ref types.Slot
			ref, stepErr = f.Pop()
			if stepErr == nil {
				if ref.IsNull() {
					stepErr = newVMException(excNames.NullPointerException, "")
				} else {
					stepErr = thread.MonitorFor(monitorKeyFor(ref)).Lock(th)
				}
			}
		case opcodes.MONITOREXIT:
			var ref types.Slot
			ref, stepErr = f.Pop()
			if stepErr == nil {
				if ref.IsNull() {
					stepErr = newVMException(excNames.NullPointerException, "")
				} else {
					stepErr = thread.MonitorFor(monitorKeyFor(ref)).Unlock(th)
				}
			}

		default:
			stepErr = newVMException("java/lang/InternalError", "unsupported opcode "+opcodes.Name(op))
		}

		if stepErr != nil {
			ve := wrapError(stepErr)
			if handlerPC, ok := findHandler(me, opcodeAddr, ve.className); ok {
				for f.Depth() > 0 {
					_, _ = f.Pop()
				}
				if pushErr := f.Push(objRefSlot(ve.objectFor(loader))); pushErr != nil {
					return types.Slot{}, false, pushErr
				}
				pc = handlerPC
				continue
			}
			return types.Slot{}, false, ve
		}
	}
}

func branchTakenUnary(op byte, v int32) bool {
	switch op {
	case opcodes.IFEQ:
		return v == 0
	case opcodes.IFNE:
		return v != 0
	case opcodes.IFLT:
		return v < 0
	case opcodes.IFGE:
		return v >= 0
	case opcodes.IFGT:
		return v > 0
	case opcodes.IFLE:
		return v <= 0
	}
	return false
}

func branchTakenBinary(op byte, a, b int32) bool {
	switch op {
	case opcodes.IF_ICMPEQ:
		return a == b
	case opcodes.IF_ICMPNE:
		return a != b
	case opcodes.IF_ICMPLT:
		return a < b
	case opcodes.IF_ICMPGE:
		return a >= b
	case opcodes.IF_ICMPGT:
		return a > b
	case opcodes.IF_ICMPLE:
		return a <= b
	}
	return false
}

/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2022-4 by the Jacobin authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package jvm

import (
	"math"

	"jacobin/excNames"
	"jacobin/opcodes"
	"jacobin/types"
)

// binaryArith implements the iadd..dxor family: JVMS §2.11.4 integer
// arithmetic is always 2's-complement wraparound (Go's int32/int64
// arithmetic already wraps the same way, so no overflow check is
// needed), and float/double arithmetic inherits Go's IEEE 754 behavior
// directly. drem/frem are the one case that is NOT Go's % operator
// (that's truncated-toward-zero only for integers); math.Mod gives the
// C-fmod-style, sign-of-dividend remainder JVMS §6.5 "drem" specifies.
func binaryArith(op byte, a, b types.Slot) (types.Slot, error) {
	switch op {
	case opcodes.IADD:
		return types.IntSlot(a.Int() + b.Int()), nil
	case opcodes.LADD:
		return types.LongSlot(a.Long() + b.Long()), nil
	case opcodes.FADD:
		return types.FloatSlot(a.Float() + b.Float()), nil
	case opcodes.DADD:
		return types.DoubleSlot(a.Double() + b.Double()), nil
	case opcodes.ISUB:
		return types.IntSlot(a.Int() - b.Int()), nil
	case opcodes.LSUB:
		return types.LongSlot(a.Long() - b.Long()), nil
	case opcodes.FSUB:
		return types.FloatSlot(a.Float() - b.Float()), nil
	case opcodes.DSUB:
		return types.DoubleSlot(a.Double() - b.Double()), nil
	case opcodes.IMUL:
		return types.IntSlot(a.Int() * b.Int()), nil
	case opcodes.LMUL:
		return types.LongSlot(a.Long() * b.Long()), nil
	case opcodes.FMUL:
		return types.FloatSlot(a.Float() * b.Float()), nil
	case opcodes.DMUL:
		return types.DoubleSlot(a.Double() * b.Double()), nil
	case opcodes.IDIV:
		if b.Int() == 0 {
			return types.Slot{}, newVMException(excNames.ArithmeticException, "/ by zero")
		}
		return types.IntSlot(divInt32(a.Int(), b.Int())), nil
	case opcodes.LDIV:
		if b.Long() == 0 {
			return types.Slot{}, newVMException(excNames.ArithmeticException, "/ by zero")
		}
		return types.LongSlot(divInt64(a.Long(), b.Long())), nil
	case opcodes.FDIV:
		return types.FloatSlot(a.Float() / b.Float()), nil
	case opcodes.DDIV:
		return types.DoubleSlot(a.Double() / b.Double()), nil
	case opcodes.IREM:
		if b.Int() == 0 {
			return types.Slot{}, newVMException(excNames.ArithmeticException, "/ by zero")
		}
		return types.IntSlot(a.Int() % b.Int()), nil
	case opcodes.LREM:
		if b.Long() == 0 {
			return types.Slot{}, newVMException(excNames.ArithmeticException, "/ by zero")
		}
		return types.LongSlot(a.Long() % b.Long()), nil
	case opcodes.FREM:
		return types.FloatSlot(float32(math.Mod(float64(a.Float()), float64(b.Float())))), nil
	case opcodes.DREM:
		return types.DoubleSlot(math.Mod(a.Double(), b.Double())), nil
	case opcodes.IAND:
		return types.IntSlot(a.Int() & b.Int()), nil
	case opcodes.LAND:
		return types.LongSlot(a.Long() & b.Long()), nil
	case opcodes.IOR:
		return types.IntSlot(a.Int() | b.Int()), nil
	case opcodes.LOR:
		return types.LongSlot(a.Long() | b.Long()), nil
	case opcodes.IXOR:
		return types.IntSlot(a.Int() ^ b.Int()), nil
	case opcodes.LXOR:
		return types.LongSlot(a.Long() ^ b.Long()), nil
	case opcodes.ISHL:
		return types.IntSlot(a.Int() << (uint32(b.Int()) & 0x1f)), nil
	case opcodes.LSHL:
		return types.LongSlot(a.Long() << (uint32(b.Int()) & 0x3f)), nil
	case opcodes.ISHR:
		return types.IntSlot(a.Int() >> (uint32(b.Int()) & 0x1f)), nil
	case opcodes.LSHR:
		return types.LongSlot(a.Long() >> (uint32(b.Int()) & 0x3f)), nil
	case opcodes.IUSHR:
		return types.IntSlot(int32(uint32(a.Int()) >> (uint32(b.Int()) & 0x1f))), nil
	case opcodes.LUSHR:
		return types.LongSlot(int64(uint64(a.Long()) >> (uint32(b.Int()) & 0x3f))), nil
	}
	return types.Slot{}, newVMException("java/lang/InternalError", "unknown binary arithmetic opcode")
}

// divInt32/divInt64 spell out the one overflowing quotient Java
// defines: MinValue / -1 overflows back to MinValue (JVMS §6.5
// idiv/ldiv, "if the dividend is the negative integer of largest
// possible magnitude... then overflow occurs"). Go's own / yields the
// same MinValue for this case.
func divInt32(a, b int32) int32 {
	if a == math.MinInt32 && b == -1 {
		return math.MinInt32
	}
	return a / b
}

func divInt64(a, b int64) int64 {
	if a == math.MinInt64 && b == -1 {
		return math.MinInt64
	}
	return a / b
}

func unaryNeg(op byte, a types.Slot) types.Slot {
	switch op {
	case opcodes.INEG:
		return types.IntSlot(-a.Int())
	case opcodes.LNEG:
		return types.LongSlot(-a.Long())
	case opcodes.FNEG:
		return types.FloatSlot(-a.Float())
	case opcodes.DNEG:
		return types.DoubleSlot(-a.Double())
	}
	return types.Slot{}
}

// convert implements the iNtype2Mtype family (JVMS §2.11.4 widening/
// narrowing conversions): widening never loses information; narrowing
// to a smaller integer type truncates via Go's own integer-cast
// semantics, which already does the required bit-truncation plus
// sign-extension from the narrower width.
func convert(op byte, a types.Slot) types.Slot {
	switch op {
	case opcodes.I2L:
		return types.LongSlot(int64(a.Int()))
	case opcodes.I2F:
		return types.FloatSlot(float32(a.Int()))
	case opcodes.I2D:
		return types.DoubleSlot(float64(a.Int()))
	case opcodes.L2I:
		return types.IntSlot(int32(a.Long()))
	case opcodes.L2F:
		return types.FloatSlot(float32(a.Long()))
	case opcodes.L2D:
		return types.DoubleSlot(float64(a.Long()))
	case opcodes.F2I:
		return types.IntSlot(floatToInt32(float64(a.Float())))
	case opcodes.F2L:
		return types.LongSlot(floatToInt64(float64(a.Float())))
	case opcodes.F2D:
		return types.DoubleSlot(float64(a.Float()))
	case opcodes.D2I:
		return types.IntSlot(floatToInt32(a.Double()))
	case opcodes.D2L:
		return types.LongSlot(floatToInt64(a.Double()))
	case opcodes.D2F:
		return types.FloatSlot(float32(a.Double()))
	case opcodes.I2B:
		return types.IntSlot(int32(int8(a.Int())))
	case opcodes.I2C:
		return types.IntSlot(int32(uint16(a.Int())))
	case opcodes.I2S:
		return types.IntSlot(int32(int16(a.Int())))
	}
	return types.Slot{}
}

// floatToInt32/floatToInt64 implement JVMS §2.8.3's "value set
// conversion" rules for f2i/f2l/d2i/d2l: NaN converts to zero, and an
// out-of-range value saturates to the target type's min or max rather
// than wrapping the way a raw Go conversion would.
func floatToInt32(f float64) int32 {
	if math.IsNaN(f) {
		return 0
	}
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	if f <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(f)
}

func floatToInt64(f float64) int64 {
	if math.IsNaN(f) {
		return 0
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	if f <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(f)
}

// compareLongs/compareFloats implement lcmp/fcmpl/fcmpg/dcmpl/dcmpg:
// -1/0/1 for less/equal/greater, with the fcmpg/dcmpg "g" variants
// returning 1 (rather than l's -1) when either operand is NaN (JVMS
// §6.5 fcmp<op>).
func compareLongs(a, b int64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloats(a, b float64, nanResult int32) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return nanResult
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
